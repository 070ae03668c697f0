/*
websocket.go - WebSocket endpoint for live notifications

PURPOSE:
  Accepts a connection for one user, authenticates it, registers it with the
  Hub, and keeps it alive until the client leaves.

HANDSHAKE:
  1. server -> {"type":"connection_established"}
  2. client -> {"type":"auth","token":"<jwt>","groups":["admin"]}
     within the handshake timeout; the token subject must be the path user
  3. server -> {"type":"auth_ok","groups":[...granted...]}
  Afterwards the client may send {"type":"ping"} and gets {"type":"pong"}.
  Anything else during the handshake closes with a policy violation.

SEE ALSO:
  - hub.go: registration and fan-out
  - auth/auth.go: token verification
*/
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	readLimit               = 4096
)

type clientMessage struct {
	Type   string   `json:"type"`
	Token  string   `json:"token,omitempty"`
	Groups []string `json:"groups,omitempty"`
}

// Handler upgrades HTTP requests to notification connections.
type Handler struct {
	Hub              *Hub
	Verifier         auth.Verifier
	HandshakeTimeout time.Duration
	OriginPatterns   []string
	Logger           *slog.Logger
}

// Serve runs one connection for userID until it closes.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify", "user_id", userID)

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()
	c.SetReadLimit(readLimit)

	ctx := r.Context()
	if err := wsjson.Write(ctx, c, Envelope{Type: TypeConnectionEstablished}); err != nil {
		return
	}

	actor, groups, err := h.authenticate(ctx, c, userID)
	if err != nil {
		logger.Info("websocket handshake rejected", "error", err)
		c.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}

	conn := &wsConn{c: c}
	h.Hub.Register(conn, userID, groups)
	defer h.Hub.UnregisterConn(userID, conn)

	if err := h.Hub.send(ctx, conn, mustJSON(Envelope{Type: TypeAuthOK, Groups: groups})); err != nil {
		return
	}
	logger.Debug("websocket connected", "role", actor.Role, "groups", groups)

	pong := mustJSON(Envelope{Type: TypePong})
	for {
		var msg clientMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			if websocket.CloseStatus(err) == -1 {
				logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if msg.Type == TypePing {
			if err := h.Hub.send(ctx, conn, pong); err != nil {
				return
			}
		}
	}
}

// authenticate waits for the auth message and resolves the granted groups.
func (h *Handler) authenticate(ctx context.Context, c *websocket.Conn, userID string) (leave.Actor, []string, error) {
	timeout := h.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var msg clientMessage
	if err := wsjson.Read(ctx, c, &msg); err != nil {
		return leave.Actor{}, nil, err
	}
	if msg.Type != TypeAuth || msg.Token == "" {
		return leave.Actor{}, nil, errors.New("expected auth message")
	}
	actor, err := h.Verifier.Verify(msg.Token)
	if err != nil {
		return leave.Actor{}, nil, err
	}
	if actor.ID != userID {
		return leave.Actor{}, nil, errors.New("token subject does not match connection user")
	}
	return actor, grantGroups(actor.Role, msg.Groups), nil
}

// grantGroups keeps the requested groups the role may join. An empty request
// joins every group the role allows.
func grantGroups(role leave.Role, requested []string) []string {
	allowed := map[string]bool{}
	switch role {
	case leave.RoleAdmin:
		allowed[GroupAdmin] = true
		allowed[GroupSupervisor] = true
	case leave.RoleSupervisor:
		allowed[GroupSupervisor] = true
	}
	if len(requested) == 0 {
		var out []string
		for _, g := range []string{GroupAdmin, GroupSupervisor} {
			if allowed[g] {
				out = append(out, g)
			}
		}
		return out
	}
	var out []string
	seen := map[string]bool{}
	for _, g := range requested {
		if allowed[g] && !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// wsConn adapts a websocket connection to Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, msg []byte) error {
	return w.c.Write(ctx, websocket.MessageText, msg)
}

func (w *wsConn) Close() error { return w.c.CloseNow() }
