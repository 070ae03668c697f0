package notify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
)

type tokenTable map[string]leave.Actor

func (t tokenTable) Verify(token string) (leave.Actor, error) {
	a, ok := t[token]
	if !ok {
		return leave.Actor{}, errors.New("unknown token")
	}
	return a, nil
}

var tokens = tokenTable{
	"emp-token":   {ID: "emp-1", Role: leave.RoleEmployee},
	"boss-token":  {ID: "boss-1", Role: leave.RoleSupervisor},
	"admin-token": {ID: "admin-1", Role: leave.RoleAdmin},
}

func startServer(t *testing.T, hub *notify.Hub) string {
	t.Helper()
	h := &notify.Handler{Hub: hub, Verifier: tokens, HandshakeTimeout: 500 * time.Millisecond}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/"
}

func dial(t *testing.T, ctx context.Context, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.CloseNow() })

	var hello notify.Envelope
	require.NoError(t, wsjson.Read(ctx, c, &hello))
	require.Equal(t, notify.TypeConnectionEstablished, hello.Type)
	return c
}

func handshake(t *testing.T, ctx context.Context, c *websocket.Conn, token string, groups []string) notify.Envelope {
	t.Helper()
	require.NoError(t, wsjson.Write(ctx, c, map[string]any{"type": "auth", "token": token, "groups": groups}))
	var reply notify.Envelope
	require.NoError(t, wsjson.Read(ctx, c, &reply))
	return reply
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	assert.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestHandler_HandshakeAndDelivery(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub := notify.NewHub()
	base := startServer(t, hub)

	// GIVEN: an admin connects asking for both groups
	c := dial(t, ctx, base+"admin-1")
	reply := handshake(t, ctx, c, "admin-token", []string{"admin", "supervisor", "bogus"})

	// THEN: the handshake grants only known groups
	assert.Equal(t, notify.TypeAuthOK, reply.Type)
	assert.Equal(t, []string{notify.GroupAdmin, notify.GroupSupervisor}, reply.Groups)
	waitFor(t, func() bool { return hub.Connections("admin-1") == 1 })

	// WHEN: a request changes
	hub.NotifyRequestChanged(ctx, sampleRequest())

	// THEN: the admin receives the update
	var got notify.Envelope
	require.NoError(t, wsjson.Read(ctx, c, &got))
	assert.Equal(t, notify.TypeRequestUpdated, got.Type)
	require.NotNil(t, got.Data)
	assert.Equal(t, "req-1", got.Data.ID)

	// AND: ping is answered
	require.NoError(t, wsjson.Write(ctx, c, map[string]string{"type": "ping"}))
	require.NoError(t, wsjson.Read(ctx, c, &got))
	assert.Equal(t, notify.TypePong, got.Type)

	// WHEN: the client leaves, it is deregistered
	c.Close(websocket.StatusNormalClosure, "")
	waitFor(t, func() bool { return hub.Connections("admin-1") == 0 })
}

func TestHandler_EmployeeCannotJoinAdminGroup(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub := notify.NewHub()
	base := startServer(t, hub)

	c := dial(t, ctx, base+"emp-1")
	reply := handshake(t, ctx, c, "emp-token", []string{"admin"})

	assert.Equal(t, notify.TypeAuthOK, reply.Type)
	assert.Empty(t, reply.Groups)
	waitFor(t, func() bool { return hub.Connections("emp-1") == 1 })
	assert.Empty(t, hub.Members(notify.GroupAdmin))
}

func TestHandler_RejectsBadHandshake(t *testing.T) {
	tests := []struct {
		name string
		user string
		send func(ctx context.Context, c *websocket.Conn) error
		// A timed-out handshake may drop the socket without a close frame
		anyClose bool
	}{
		{
			name: "unknown token",
			user: "emp-1",
			send: func(ctx context.Context, c *websocket.Conn) error {
				return wsjson.Write(ctx, c, map[string]string{"type": "auth", "token": "nope"})
			},
		},
		{
			name: "subject mismatch",
			user: "emp-2",
			send: func(ctx context.Context, c *websocket.Conn) error {
				return wsjson.Write(ctx, c, map[string]string{"type": "auth", "token": "emp-token"})
			},
		},
		{
			name: "wrong first message",
			user: "emp-1",
			send: func(ctx context.Context, c *websocket.Conn) error {
				return wsjson.Write(ctx, c, map[string]string{"type": "ping"})
			},
		},
		{
			name:     "handshake timeout",
			user:     "emp-1",
			send:     func(context.Context, *websocket.Conn) error { return nil },
			anyClose: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			hub := notify.NewHub()
			base := startServer(t, hub)

			c := dial(t, ctx, base+tt.user)
			require.NoError(t, tt.send(ctx, c))

			var env notify.Envelope
			err := wsjson.Read(ctx, c, &env)
			require.Error(t, err)
			if !tt.anyClose {
				assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
			}
			assert.Equal(t, 0, hub.Connections(tt.user))
		})
	}
}
