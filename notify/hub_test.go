/*
hub_test.go - Fan-out tests

Tests for:
- Routing to employee, supervisor and groups
- Dead and stalled connections are dropped without affecting others
- Registration bookkeeping
- Localized messages
*/
package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/i18n"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/notify"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type fakeConn struct {
	mu     sync.Mutex
	msgs   []notify.Envelope
	fail   bool
	stall  bool
	closed bool
}

func (c *fakeConn) Send(ctx context.Context, msg []byte) error {
	if c.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.fail {
		return errors.New("broken pipe")
	}
	var env notify.Envelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) received() []notify.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Envelope(nil), c.msgs...)
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func sampleRequest() *leave.Request {
	from := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return &leave.Request{
		ID:           "req-1",
		EmployeeID:   "emp-1",
		SupervisorID: "boss-1",
		Kind:         leave.KindVacation,
		State:        leave.StateApproved,
		Detail: &leave.VacationDetail{
			FromDay:    from,
			ToDay:      from.AddDate(0, 0, 4),
			ReturnDate: from.AddDate(0, 0, 7),
		},
		RequestedAt: from.AddDate(0, 0, -10),
		Version:     2,
	}
}

// =============================================================================
// ROUTING
// =============================================================================

func TestHub_NotifyRequestChanged_Routing(t *testing.T) {
	// GIVEN: the employee, their supervisor, an admin, an unrelated
	// supervisor in the supervisor group, and a bystander
	hub := notify.NewHub()
	own, boss, adm, other, bystander := &fakeConn{}, &fakeConn{}, &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register(own, "emp-1", nil)
	hub.Register(boss, "boss-1", []string{notify.GroupSupervisor})
	hub.Register(adm, "admin-1", []string{notify.GroupAdmin, notify.GroupSupervisor})
	hub.Register(other, "boss-2", []string{notify.GroupSupervisor})
	hub.Register(bystander, "emp-2", nil)

	// WHEN: a request changes
	hub.NotifyRequestChanged(context.Background(), sampleRequest())

	// THEN: every interested connection gets exactly one update
	for name, c := range map[string]*fakeConn{"employee": own, "supervisor": boss, "admin": adm, "other supervisor": other} {
		msgs := c.received()
		require.Len(t, msgs, 1, name)
		assert.Equal(t, notify.TypeRequestUpdated, msgs[0].Type, name)
		require.NotNil(t, msgs[0].Data, name)
		assert.Equal(t, "req-1", msgs[0].Data.ID, name)
		assert.Equal(t, leave.StateApproved, msgs[0].Data.State, name)
	}
	assert.Empty(t, bystander.received())
}

func TestHub_NotifyRequestCreated_EchoesToEmployee(t *testing.T) {
	// GIVEN: the request's own supervisor, an admin, and a supervisor of
	// another team who is only a member of the supervisor group
	hub := notify.NewHub()
	own, boss, adm, otherBoss := &fakeConn{}, &fakeConn{}, &fakeConn{}, &fakeConn{}
	hub.Register(own, "emp-1", nil)
	hub.Register(boss, "boss-1", []string{notify.GroupSupervisor})
	hub.Register(adm, "admin-1", []string{notify.GroupAdmin})
	hub.Register(otherBoss, "boss-2", []string{notify.GroupSupervisor})

	// WHEN: a new request is announced
	r := sampleRequest()
	r.State = leave.StatePending
	hub.NotifyRequestCreated(context.Background(), r)

	// THEN: the employee gets the echo, the assigned supervisor and the admins
	// get the new request, and other supervisors get nothing
	require.Len(t, own.received(), 1)
	assert.Equal(t, notify.TypeRequestSubmitted, own.received()[0].Type)
	require.Len(t, boss.received(), 1)
	assert.Equal(t, notify.TypeRequestCreated, boss.received()[0].Type)
	require.Len(t, adm.received(), 1)
	assert.Equal(t, notify.TypeRequestCreated, adm.received()[0].Type)
	assert.Empty(t, otherBoss.received(), "boss-2 is not the request's supervisor")
}

// =============================================================================
// FAILURES
// =============================================================================

func TestHub_DeadConnectionIsDropped(t *testing.T) {
	// GIVEN: three recipients, one of them dead
	hub := notify.NewHub()
	own, dead, adm := &fakeConn{}, &fakeConn{fail: true}, &fakeConn{}
	hub.Register(own, "emp-1", nil)
	hub.Register(dead, "boss-1", []string{notify.GroupSupervisor})
	hub.Register(adm, "admin-1", []string{notify.GroupAdmin})

	// WHEN: broadcasting
	hub.NotifyRequestChanged(context.Background(), sampleRequest())

	// THEN: the live ones receive it, the dead one is closed and removed
	assert.Len(t, own.received(), 1)
	assert.Len(t, adm.received(), 1)
	assert.True(t, dead.isClosed())
	assert.Equal(t, 0, hub.Connections("boss-1"))
	assert.Empty(t, hub.Members(notify.GroupSupervisor))

	// AND: later broadcasts skip it
	hub.NotifyRequestChanged(context.Background(), sampleRequest())
	assert.Len(t, own.received(), 2)
}

func TestHub_StalledConnectionIsBounded(t *testing.T) {
	hub := notify.NewHub(notify.WithSendTimeout(50 * time.Millisecond))
	own, stalled := &fakeConn{}, &fakeConn{stall: true}
	hub.Register(own, "emp-1", nil)
	hub.Register(stalled, "boss-1", nil)

	start := time.Now()
	hub.NotifyRequestChanged(context.Background(), sampleRequest())

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, own.received(), 1)
	assert.True(t, stalled.isClosed())
	assert.Equal(t, 0, hub.Connections("boss-1"))
}

func TestHub_NoRecipients(t *testing.T) {
	hub := notify.NewHub()
	assert.NotPanics(t, func() {
		hub.NotifyRequestChanged(context.Background(), sampleRequest())
		hub.NotifyRequestCreated(context.Background(), sampleRequest())
	})
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestHub_Registration(t *testing.T) {
	hub := notify.NewHub()
	a, b := &fakeConn{}, &fakeConn{}

	// Same connection twice counts once and merges groups.
	hub.Register(a, "admin-1", []string{notify.GroupAdmin})
	hub.Register(a, "admin-1", []string{notify.GroupSupervisor})
	assert.Equal(t, 1, hub.Connections("admin-1"))
	assert.Equal(t, []string{"admin-1"}, hub.Members(notify.GroupAdmin))
	assert.Equal(t, []string{"admin-1"}, hub.Members(notify.GroupSupervisor))

	// A second tab keeps group membership while one closes.
	hub.Register(b, "admin-1", nil)
	hub.UnregisterConn("admin-1", a)
	assert.Equal(t, 1, hub.Connections("admin-1"))
	assert.Equal(t, []string{"admin-1"}, hub.Members(notify.GroupAdmin))

	// Unknown connections are ignored.
	hub.UnregisterConn("nobody", a)

	hub.Unregister("admin-1")
	assert.Equal(t, 0, hub.Connections("admin-1"))
	assert.Empty(t, hub.Members(notify.GroupAdmin))
}

// =============================================================================
// LOCALIZATION
// =============================================================================

func TestHub_LocalizedMessage(t *testing.T) {
	tr, err := i18n.New("en")
	require.NoError(t, err)
	hub := notify.NewHub(notify.WithTranslator(tr))
	own := &fakeConn{}
	hub.Register(own, "emp-1", nil)

	hub.NotifyRequestChanged(context.Background(), sampleRequest())

	require.Len(t, own.received(), 1)
	assert.Equal(t, "emp-1's vacation request is now approved", own.received()[0].Message)
}
