package core

import (
	"errors"

	"github.com/lexsuite/meet/internal/domain"
)

// Frame is a raw wire payload.
type Frame []byte

var (
	// ErrSignalingUnavailable means the signaling coordinator cannot be
	// reached. Retry policy belongs to the session, not the channel.
	ErrSignalingUnavailable = errors.New("signaling unavailable")
	// ErrChannelClosed is returned by Send after the channel shut down.
	ErrChannelClosed = errors.New("signal channel closed")
)

// SignalChannel is one bidirectional connection to the signaling
// coordinator. Implementations send a join-room envelope on connect.
// Events delivers envelopes in transport arrival order and is closed
// when the underlying connection dies; the channel never auto-retries.
type SignalChannel interface {
	Send(domain.Envelope) error
	Events() <-chan domain.Envelope
	Close()
}

// SignalConnection is the coordinator-side transport endpoint for one
// member. Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
