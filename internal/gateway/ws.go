// ABOUTME: WebSocket endpoint bridging client connections to the realtime hub
// ABOUTME: One read pump dispatching client events, one write pump draining the channel

package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talentlink/chat-gateway/internal/event"
	"github.com/talentlink/chat-gateway/internal/hub"
)

const writeTimeout = 10 * time.Second

// newUpgrader creates a WebSocket upgrader restricted to the allowed origins.
// An empty allow-list permits any origin (local development, tests).
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(allowed) == 0 {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// handleWebSocket handles GET /ws. Identity comes from the JWT, passed either
// as a bearer header or a token query parameter (browsers cannot set headers
// on websocket dials).
func (g *Gateway) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			token = h[7:]
		}
	}

	userID, err := g.verifier.Verify(token)
	if err != nil {
		g.sendJSONError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	upgrader := newUpgrader(g.config.Realtime.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ch := g.hub.Connect(userID)
	go g.writePump(conn, ch)
	g.readPump(r.Context(), conn, ch)
}

// writePump drains the channel's outbound queue onto the wire. Exits when the
// hub closes the channel, which also tears down the connection so the read
// pump unblocks.
func (g *Gateway) writePump(conn *websocket.Conn, ch *hub.Channel) {
	defer conn.Close()

	for env := range ch.Events() {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(env); err != nil {
			g.logger.Debug("websocket write failed",
				"channel_id", ch.ID(), "error", err)
			g.hub.Disconnect(ch)
			return
		}
	}
}

// readPump decodes client envelopes and dispatches them to the hub until the
// connection drops. The only lifecycle-ending signal is disconnect.
func (g *Gateway) readPump(ctx context.Context, conn *websocket.Conn, ch *hub.Channel) {
	defer g.hub.Disconnect(ch)

	for {
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			g.logger.Debug("websocket closed",
				"channel_id", ch.ID(), "user_id", ch.UserID(), "error", err)
			return
		}
		g.dispatch(ctx, ch, env)
	}
}

// dispatch routes one client envelope to the matching hub operation.
// Malformed payloads are logged and skipped; the connection stays up.
func (g *Gateway) dispatch(ctx context.Context, ch *hub.Channel, env event.Envelope) {
	switch env.Event {
	case event.Identify:
		// Identity is established by the token at upgrade time; the client's
		// announce is accepted for protocol compatibility and cross-checked.
		var p event.IdentifyPayload
		if err := env.Decode(&p); err == nil && p.UserID != ch.UserID() {
			g.logger.Warn("identify mismatch ignored",
				"channel_user", ch.UserID(), "claimed_user", p.UserID)
		}

	case event.JoinRoom:
		var p event.RoomPayload
		if err := env.Decode(&p); err != nil {
			g.logger.Debug("bad joinRoom payload", "error", err)
			return
		}
		g.hub.JoinRoom(ch, p.ConversationID)

	case event.LeaveRoom:
		var p event.RoomPayload
		if err := env.Decode(&p); err != nil {
			g.logger.Debug("bad leaveRoom payload", "error", err)
			return
		}
		g.hub.LeaveRoom(ch, p.ConversationID)

	case event.SendMessage:
		var p event.SendMessagePayload
		if err := env.Decode(&p); err != nil {
			g.logger.Debug("bad sendMessage payload", "error", err)
			return
		}
		// The sender field is the authenticated identity, not client input
		p.Sender = ch.UserID()
		g.hub.SendMessage(ctx, ch, p)

	case event.TypingStart:
		var p event.TypingPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		p.UserID = ch.UserID()
		g.hub.TypingStart(ch, p)

	case event.TypingStop:
		var p event.TypingPayload
		if err := env.Decode(&p); err != nil {
			return
		}
		p.UserID = ch.UserID()
		g.hub.TypingStop(ch, p)

	default:
		g.logger.Debug("unknown event ignored", "event", env.Event)
	}
}
