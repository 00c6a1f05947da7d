package signalws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexsuite/meet/internal/core"
	"github.com/lexsuite/meet/internal/domain"
)

var upgrader = websocket.Upgrader{}

// wsServer accepts one connection and records everything it reads.
type wsServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	conn     *websocket.Conn
	received []domain.Envelope
	connCh   chan struct{}
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{connCh: make(chan struct{})}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		close(s.connCh)
		for {
			var env domain.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, env)
			s.mu.Unlock()
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) envelopes() []domain.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Envelope, len(s.received))
	copy(out, s.received)
	return out
}

func (s *wsServer) push(t *testing.T, env domain.Envelope) {
	t.Helper()
	select {
	case <-s.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted a connection")
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	require.NoError(t, conn.WriteJSON(env))
}

func (s *wsServer) dropClient(t *testing.T) {
	t.Helper()
	select {
	case <-s.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted a connection")
	}
	s.mu.Lock()
	_ = s.conn.Close()
	s.mu.Unlock()
}

func testSelf() domain.Participant {
	return domain.Participant{ID: "A", DisplayName: "Alice", JoinedAt: time.Now().UTC()}
}

func TestDialAnnouncesJoinFirst(t *testing.T) {
	srv := newWSServer(t)
	ch, err := Dial(context.Background(), srv.url(), "room-1", testSelf())
	require.NoError(t, err)
	defer ch.Close()

	// A couple of signaling messages behind the join.
	env, err := domain.NewEnvelope(domain.TypeChatMessage, "room-1", nil)
	require.NoError(t, err)
	require.NoError(t, ch.Send(env))

	require.Eventually(t, func() bool {
		return len(srv.envelopes()) == 2
	}, 2*time.Second, 5*time.Millisecond, "messages not received")

	got := srv.envelopes()
	assert.Equal(t, domain.TypeJoinRoom, got[0].Type, "join-room must be the first frame on the wire")
	assert.Equal(t, domain.RoomID("room-1"), got[0].RoomID)
	p, err := got[0].User()
	require.NoError(t, err)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, domain.TypeChatMessage, got[1].Type)
}

func TestEventsDeliveredInArrivalOrder(t *testing.T) {
	srv := newWSServer(t)
	ch, err := Dial(context.Background(), srv.url(), "room-1", testSelf())
	require.NoError(t, err)
	defer ch.Close()

	for _, mt := range []domain.MessageType{domain.TypeUserJoined, domain.TypeOffer, domain.TypeICECandidate} {
		srv.push(t, domain.Envelope{Type: mt, RoomID: "room-1"})
	}

	var got []domain.MessageType
	for i := 0; i < 3; i++ {
		select {
		case env := <-ch.Events():
			got = append(got, env.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("event not delivered")
		}
	}
	assert.Equal(t, []domain.MessageType{domain.TypeUserJoined, domain.TypeOffer, domain.TypeICECandidate}, got)
}

func TestDialFailureIsSignalingUnavailable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/api/ws/signal", "room-1", testSelf())
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrSignalingUnavailable)
}

func TestConnectionLossClosesEvents(t *testing.T) {
	srv := newWSServer(t)
	ch, err := Dial(context.Background(), srv.url(), "room-1", testSelf())
	require.NoError(t, err)

	srv.dropClient(t)

	select {
	case _, ok := <-ch.Events():
		assert.False(t, ok, "events must close on connection loss")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel did not close")
	}

	assert.ErrorIs(t, ch.Send(domain.Envelope{Type: domain.TypeChatMessage}), core.ErrChannelClosed)
}

func TestCloseIsIdempotent(t *testing.T) {
	srv := newWSServer(t)
	ch, err := Dial(context.Background(), srv.url(), "room-1", testSelf())
	require.NoError(t, err)
	ch.Close()
	ch.Close()
	assert.ErrorIs(t, ch.Send(domain.Envelope{Type: domain.TypeChatMessage}), core.ErrChannelClosed)
}
