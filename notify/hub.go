/*
hub.go - Notification fan-out registry

PURPOSE:
  Tracks live connections per user and group memberships, and pushes request
  events to everyone interested. A Hub is constructed per server (and per
  test); there is no package-level registry.

TARGETS:
  NotifyRequestChanged: employee, supervisor, group "admin", group "supervisor"
  NotifyRequestCreated: the request's supervisor and group "admin"; the
                        employee gets a lighter "request_submitted" echo

DELIVERY:
  Sends run concurrently outside the lock, each bounded by the send timeout.
  A failed or stalled send is a connection failure: the connection is closed
  and removed. It never reaches the caller.

SEE ALSO:
  - websocket.go: the endpoint that registers connections
  - leave/store.go: the Notifier interface the Hub satisfies
*/
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/i18n"
	"github.com/warp/leave-engine/leave"
)

// Group names.
const (
	GroupAdmin      = "admin"
	GroupSupervisor = "supervisor"
)

// Message types.
const (
	TypeRequestCreated        = "request_created"
	TypeRequestSubmitted      = "request_submitted"
	TypeRequestUpdated        = "request_updated"
	TypeConnectionEstablished = "connection_established"
	TypeAuth                  = "auth"
	TypeAuthOK                = "auth_ok"
	TypePing                  = "ping"
	TypePong                  = "pong"
)

const DefaultSendTimeout = 5 * time.Second

// Conn is one live connection. Send must honor ctx.
type Conn interface {
	Send(ctx context.Context, msg []byte) error
	Close() error
}

// Envelope is what connections receive.
type Envelope struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Data    *leave.Request `json:"data,omitempty"`
	Groups  []string       `json:"groups,omitempty"`
}

// =============================================================================
// HUB
// =============================================================================

type Hub struct {
	mu     sync.RWMutex
	conns  map[string]map[Conn]struct{}   // userID -> connections
	groups map[string]map[string]struct{} // group -> userIDs

	sendTimeout time.Duration
	translator  *i18n.Translator
	logger      *slog.Logger
}

var _ leave.Notifier = (*Hub)(nil)

type HubOption func(*Hub)

func WithSendTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.sendTimeout = d
		}
	}
}

func WithTranslator(t *i18n.Translator) HubOption { return func(h *Hub) { h.translator = t } }

func WithLogger(l *slog.Logger) HubOption { return func(h *Hub) { h.logger = l } }

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		conns:       make(map[string]map[Conn]struct{}),
		groups:      make(map[string]map[string]struct{}),
		sendTimeout: DefaultSendTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With("component", "notify")
	return h
}

// Register adds conn under userID and joins userID to each group. Registering
// the same connection again only adds groups.
func (h *Hub) Register(conn Conn, userID string, groups []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[userID] == nil {
		h.conns[userID] = make(map[Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
	for _, g := range groups {
		if h.groups[g] == nil {
			h.groups[g] = make(map[string]struct{})
		}
		h.groups[g][userID] = struct{}{}
	}
}

// Unregister removes every connection and membership of userID.
func (h *Hub) Unregister(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropUserLocked(userID)
}

// UnregisterConn removes one connection. The user leaves its groups when its
// last connection goes.
func (h *Hub) UnregisterConn(userID string, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.conns[userID]
	if !ok {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		h.dropUserLocked(userID)
	}
}

func (h *Hub) dropUserLocked(userID string) {
	delete(h.conns, userID)
	for g, members := range h.groups {
		delete(members, userID)
		if len(members) == 0 {
			delete(h.groups, g)
		}
	}
}

// Connections returns how many connections userID has.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[userID])
}

// Members lists the users in a group, sorted.
func (h *Hub) Members(group string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]string, 0, len(h.groups[group]))
	for id := range h.groups[group] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (h *Hub) NotifyRequestChanged(ctx context.Context, r *leave.Request) {
	updated := h.encode(ctx, TypeRequestUpdated, r)
	var ts targets
	h.mu.RLock()
	ts.user(h, r.EmployeeID, updated)
	ts.user(h, r.SupervisorID, updated)
	ts.group(h, GroupAdmin, updated)
	ts.group(h, GroupSupervisor, updated)
	h.mu.RUnlock()
	h.deliver(ctx, ts.list)
}

func (h *Hub) NotifyRequestCreated(ctx context.Context, r *leave.Request) {
	created := h.encode(ctx, TypeRequestCreated, r)
	submitted := h.encode(ctx, TypeRequestSubmitted, r)
	var ts targets
	h.mu.RLock()
	ts.user(h, r.EmployeeID, submitted)
	ts.user(h, r.SupervisorID, created)
	ts.group(h, GroupAdmin, created)
	h.mu.RUnlock()
	h.deliver(ctx, ts.list)
}

type target struct {
	userID string
	conn   Conn
	msg    []byte
}

// targets collects recipients. A connection receives at most one message per
// event; the first match wins. Callers hold h.mu.
type targets struct {
	list []target
	seen map[Conn]struct{}
}

func (ts *targets) user(h *Hub, userID string, msg []byte) {
	if userID == "" || msg == nil {
		return
	}
	if ts.seen == nil {
		ts.seen = make(map[Conn]struct{})
	}
	for c := range h.conns[userID] {
		if _, dup := ts.seen[c]; dup {
			continue
		}
		ts.seen[c] = struct{}{}
		ts.list = append(ts.list, target{userID: userID, conn: c, msg: msg})
	}
}

func (ts *targets) group(h *Hub, group string, msg []byte) {
	for userID := range h.groups[group] {
		ts.user(h, userID, msg)
	}
}

// deliver sends to every target concurrently and waits for all of them.
func (h *Hub) deliver(ctx context.Context, targets []target) {
	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(t target) {
			defer wg.Done()
			if err := h.send(ctx, t.conn, t.msg); err != nil {
				h.logger.Warn("dropping connection", "user_id", t.userID, "error", err)
				t.conn.Close()
				h.UnregisterConn(t.userID, t.conn)
			}
		}(t)
	}
	wg.Wait()
}

// send writes one message within the send timeout.
func (h *Hub) send(ctx context.Context, c Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, h.sendTimeout)
	defer cancel()
	if err := c.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %v", generic.ErrConnectionFailure, err)
	}
	return nil
}

func (h *Hub) encode(ctx context.Context, msgType string, r *leave.Request) []byte {
	b, err := json.Marshal(Envelope{Type: msgType, Message: h.describe(ctx, msgType, r), Data: r})
	if err != nil {
		h.logger.Error("failed to encode event", "type", msgType, "request_id", r.ID, "error", err)
		return nil
	}
	return b
}

// describe renders the human-readable line for an event.
func (h *Hub) describe(ctx context.Context, msgType string, r *leave.Request) string {
	if h.translator == nil {
		return ""
	}
	return h.translator.T(ctx, msgType, map[string]any{
		"Kind":       h.translator.T(ctx, "kind."+string(r.Kind)),
		"State":      h.translator.T(ctx, "state."+string(r.State)),
		"EmployeeID": r.EmployeeID,
	})
}
