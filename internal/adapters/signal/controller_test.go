package signal

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexsuite/meet/internal/app/hub"
	"github.com/lexsuite/meet/internal/domain"
)

func signalServer(t *testing.T, h *hub.Hub) string {
	t.Helper()
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	ctl := NewController(h, 0, 0)
	r.GET("/ws", ctl.HandleSignal)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dialRaw(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func joinAs(t *testing.T, conn *websocket.Conn, room domain.RoomID, p domain.Participant) {
	t.Helper()
	env, err := domain.NewEnvelope(domain.TypeJoinRoom, room, p)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func readEnvelope(t *testing.T, conn *websocket.Conn) domain.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHandshakeJoinsHubAndSendsSnapshot(t *testing.T) {
	h := hub.New(nil)
	url := signalServer(t, h)

	conn := dialRaw(t, url)
	joinAs(t, conn, "room-1", domain.Participant{ID: "A", DisplayName: "Alice"})

	env := readEnvelope(t, conn)
	assert.Equal(t, domain.TypeParticipantsUpdate, env.Type)
	ps, err := env.Participants()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, domain.ParticipantID("A"), ps[0].ID)

	require.Eventually(t, func() bool { return len(h.List()) == 1 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandshakeFillsMissingIdentity(t *testing.T) {
	h := hub.New(nil)
	url := signalServer(t, h)

	conn := dialRaw(t, url)
	joinAs(t, conn, "room-1", domain.Participant{})

	env := readEnvelope(t, conn)
	ps, err := env.Participants()
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.NotEmpty(t, ps[0].ID, "anonymous joiner gets a generated id")
	assert.Equal(t, "guest", ps[0].DisplayName)
	assert.False(t, ps[0].JoinedAt.IsZero())
}

func TestHandshakeRejectsNonJoinFirstMessage(t *testing.T) {
	h := hub.New(nil)
	url := signalServer(t, h)

	conn := dialRaw(t, url)
	env, err := domain.NewEnvelope(domain.TypeChatMessage, "room-1", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))

	// The server drops the connection without joining anything.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
	assert.Empty(t, h.List())
}

func TestHandshakeRequiresRoomID(t *testing.T) {
	h := hub.New(nil)
	url := signalServer(t, h)

	conn := dialRaw(t, url)
	joinAs(t, conn, "", domain.Participant{ID: "A"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Empty(t, h.List())
}

func TestSignalingRelayBetweenTwoConnections(t *testing.T) {
	h := hub.New(nil)
	url := signalServer(t, h)

	connA := dialRaw(t, url)
	joinAs(t, connA, "room-1", domain.Participant{ID: "A", DisplayName: "Alice"})
	readEnvelope(t, connA) // own snapshot

	connB := dialRaw(t, url)
	joinAs(t, connB, "room-1", domain.Participant{ID: "B", DisplayName: "Bob"})
	readEnvelope(t, connB) // own snapshot

	joined := readEnvelope(t, connA)
	require.Equal(t, domain.TypeUserJoined, joined.Type)

	offer := domain.Envelope{Type: domain.TypeOffer, To: "B", Payload: json.RawMessage(`{"type":"offer","sdp":"v=0"}`)}
	require.NoError(t, connA.WriteJSON(offer))

	relayed := readEnvelope(t, connB)
	assert.Equal(t, domain.TypeOffer, relayed.Type)
	assert.Equal(t, domain.ParticipantID("A"), relayed.From)
	assert.Equal(t, domain.RoomID("room-1"), relayed.RoomID)
}

func TestJoinRateLimiter(t *testing.T) {
	rl := newJoinRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("A"))
	}
	assert.False(t, rl.Allow("A"), "fourth attempt inside the window must be refused")
	assert.True(t, rl.Allow("B"), "limits are per participant")
}

func TestConnBackpressure(t *testing.T) {
	// No reader draining the send buffer; it fills and then TrySend
	// refuses instead of blocking the hub.
	c := newWSConn(nil)
	frame := []byte(`{}`)
	for i := 0; i < cap(c.send); i++ {
		require.NoError(t, c.TrySend(frame))
	}
	assert.ErrorIs(t, c.TrySend(frame), ErrBackpressure)
}
