package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxChatTextLen = 2000

var (
	ErrChatTextEmpty   = errors.New("chat text empty")
	ErrChatTextTooLong = errors.New("chat text too long")
)

// ChatMessage is one entry of the room chat. Each client appends on
// local receipt; there is no cross-client total order.
type ChatMessage struct {
	ID         string        `json:"id"`
	SenderID   ParticipantID `json:"senderId"`
	SenderName string        `json:"senderName,omitempty"`
	Text       string        `json:"text"`
	Timestamp  time.Time     `json:"timestamp"`
}

func NewChatMessage(sender *Participant, text string) (*ChatMessage, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil, ErrChatTextEmpty
	}
	if len(text) > MaxChatTextLen {
		return nil, ErrChatTextTooLong
	}
	msg := &ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	if sender != nil {
		msg.SenderID = sender.ID
		msg.SenderName = sender.DisplayName
	}
	return msg, nil
}
