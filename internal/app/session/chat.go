package session

import "github.com/lexsuite/meet/internal/domain"

// chatLog is the append-only local chat history, ordered by receipt
// time at this client. Delivery is at-most-once and best-effort;
// there is no cross-client total order.
type chatLog struct {
	msgs []domain.ChatMessage
}

func (c *chatLog) append(m domain.ChatMessage) {
	c.msgs = append(c.msgs, m)
}

func (c *chatLog) snapshot() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(c.msgs))
	copy(out, c.msgs)
	return out
}
