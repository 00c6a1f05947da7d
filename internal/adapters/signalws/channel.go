// Package signalws implements the client side of the signaling channel
// over a WebSocket connection to the coordinator.
package signalws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

const writeWait = 5 * time.Second

// Channel is one bidirectional signaling connection. Envelopes are
// delivered on Events in the order the transport delivered them; no
// reordering or coalescing. The channel does not auto-retry: a dead
// connection closes Events and the session decides what to do.
type Channel struct {
	conn   *websocket.Conn
	send   chan domain.Envelope
	events chan domain.Envelope

	once sync.Once
	done chan struct{}

	logger zerolog.Logger
}

// Dial connects to the coordinator and announces the caller via a
// join-room envelope before anything else goes over the wire.
func Dial(ctx context.Context, url string, roomID domain.RoomID, self domain.Participant) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", core.ErrSignalingUnavailable, url, err)
	}

	join, err := domain.NewEnvelope(domain.TypeJoinRoom, roomID, self)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	join.From = self.ID
	if err := conn.WriteJSON(join); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: send join-room: %v", core.ErrSignalingUnavailable, err)
	}

	ch := &Channel{
		conn:   conn,
		send:   make(chan domain.Envelope, 32),
		events: make(chan domain.Envelope, 32),
		done:   make(chan struct{}),
		logger: log.With().Str("module", "signalws").Str("room", string(roomID)).Str("self", string(self.ID)).Logger(),
	}
	go ch.writeLoop()
	go ch.readLoop()

	ch.logger.Info().Str("url", url).Msg("signaling connected")
	return ch, nil
}

func (c *Channel) Send(env domain.Envelope) error {
	select {
	case <-c.done:
		return core.ErrChannelClosed
	default:
	}
	select {
	case <-c.done:
		return core.ErrChannelClosed
	case c.send <- env:
		return nil
	}
}

func (c *Channel) Events() <-chan domain.Envelope { return c.events }

func (c *Channel) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
		c.logger.Info().Msg("signaling closed")
	})
}

func (c *Channel) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case env := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error().Err(err).Msg("writeLoop set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Error().Err(err).Msg("writeLoop write error")
				c.Close()
				return
			}
		}
	}
}

func (c *Channel) readLoop() {
	defer func() {
		c.Close()
		close(c.events)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.logger.Error().Err(err).Msg("readLoop read error")
			}
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Error().Err(err).Msg("bad envelope json")
			continue
		}
		select {
		case <-c.done:
			return
		case c.events <- env:
		}
	}
}

var _ core.SignalChannel = (*Channel)(nil)
