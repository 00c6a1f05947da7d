// Package signal is the coordinator-side WebSocket adapter: it
// upgrades connections, requires a join-room handshake and pumps
// envelopes between the wire and the hub.
package signal

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/lexsuite/meet/internal/app/hub"
	"github.com/lexsuite/meet/internal/domain"
)

const (
	joinWait  = 10 * time.Second
	writeWait = 5 * time.Second
	pongWait  = 60 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Controller struct {
	Hub        *hub.Hub
	ReadLimit  int64
	PingPeriod time.Duration

	joins *joinRateLimiter
}

func NewController(h *hub.Hub, readLimit int64, pingPeriod time.Duration) *Controller {
	return &Controller{
		Hub:        h,
		ReadLimit:  readLimit,
		PingPeriod: pingPeriod,
		joins:      newJoinRateLimiter(5, time.Minute),
	}
}

// HandleSignal upgrades the connection and expects a join-room
// envelope carrying the caller's identity before anything else.
func (ctl *Controller) HandleSignal(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	roomID, p, ok := ctl.awaitJoin(ws)
	if !ok {
		_ = ws.Close()
		return
	}
	if !ctl.joins.Allow(p.ID) {
		log.Warn().Str("module", "signal").Str("peer", string(p.ID)).Msg("join rate limited")
		_ = ws.Close()
		return
	}

	conn := newWSConn(ws)
	log.Info().Str("module", "signal").Str("room", string(roomID)).Str("peer", string(p.ID)).Msg("member connected")
	ctl.Hub.Join(roomID, p, conn)

	go ctl.writePump(conn)
	go ctl.readPump(roomID, p.ID, conn)
}

// awaitJoin reads the handshake. Identity fields the client did not
// supply are filled in server-side.
func (ctl *Controller) awaitJoin(ws *websocket.Conn) (domain.RoomID, domain.Participant, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(joinWait))
	_, data, err := ws.ReadMessage()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("no join-room handshake")
		return "", domain.Participant{}, false
	}
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type != domain.TypeJoinRoom || env.RoomID == "" {
		log.Warn().Str("module", "signal").Msg("bad join-room handshake")
		return "", domain.Participant{}, false
	}
	p, err := env.User()
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join-room identity")
		return "", domain.Participant{}, false
	}
	if p.ID == "" {
		p.ID = domain.ParticipantID(uuid.NewString())
	}
	if p.DisplayName == "" {
		p.DisplayName = "guest"
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = time.Now().UTC()
	}
	return env.RoomID, p, true
}

func (ctl *Controller) writePump(c *wsConn) {
	pingPeriod := ctl.PingPeriod
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (ctl *Controller) readPump(roomID domain.RoomID, pid domain.ParticipantID, c *wsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("peer", string(pid)).Msg("readPump closing")
		ctl.Hub.Leave(roomID, pid)
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("module", "signal").Str("peer", string(pid)).Msg("readPump read error")
			}
			return
		}
		ctl.dispatch(roomID, pid, data)
	}
}

func (ctl *Controller) dispatch(roomID domain.RoomID, pid domain.ParticipantID, data []byte) {
	var env domain.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad envelope json")
		return
	}

	switch env.Type {
	case domain.TypeOffer, domain.TypeAnswer, domain.TypeICECandidate:
		ctl.Hub.Relay(roomID, pid, env)
	case domain.TypeChatMessage:
		ctl.Hub.Chat(roomID, pid, env)
	case domain.TypeStartRecording:
		ctl.Hub.ToggleRecording(roomID, pid, true)
	case domain.TypeStopRecording:
		ctl.Hub.ToggleRecording(roomID, pid, false)
	case domain.TypeJoinRoom:
		// Already joined on this connection.
	default:
		log.Warn().Str("module", "signal").Str("type", string(env.Type)).Msg("unknown signal")
	}
}
