/*
Package storetest holds the behavior every leave.Store must share.

Each backend's tests call Run with a constructor for a fresh, empty store:

	func TestStore(t *testing.T) {
	    storetest.Run(t, func(t *testing.T) leave.Store { return memory.New() })
	}
*/
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) leave.Store

// Run executes the shared suite.
func Run(t *testing.T, newStore Factory) {
	t.Run("RequestRoundTrip", func(t *testing.T) { testRequestRoundTrip(t, newStore(t)) })
	t.Run("RequestNotFound", func(t *testing.T) { testRequestNotFound(t, newStore(t)) })
	t.Run("ConditionalUpdate", func(t *testing.T) { testConditionalUpdate(t, newStore(t)) })
	t.Run("ConcurrentConditionalUpdate", func(t *testing.T) { testConcurrentConditionalUpdate(t, newStore(t)) })
	t.Run("ListRequests", func(t *testing.T) { testListRequests(t, newStore(t)) })
	t.Run("EmployeeRoundTrip", func(t *testing.T) { testEmployeeRoundTrip(t, newStore(t)) })
	t.Run("ApplyBalanceEffectIsIdempotent", func(t *testing.T) { testApplyBalanceEffect(t, newStore(t)) })
	t.Run("EmployeeVersionGuards", func(t *testing.T) { testEmployeeVersionGuards(t, newStore(t)) })
	t.Run("Inconsistencies", func(t *testing.T) { testInconsistencies(t, newStore(t)) })
}

// =============================================================================
// FIXTURES
// =============================================================================

var base = time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func vacationRequest(employeeID string, requestedAt time.Time) *leave.Request {
	return &leave.Request{
		EmployeeID:   employeeID,
		SupervisorID: "boss-1",
		Kind:         leave.KindVacation,
		State:        leave.StatePending,
		Period:       "2024-2025",
		Detail: &leave.VacationDetail{
			FromDay:    time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC),
			ToDay:      time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
			ReturnDate: time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC),
		},
		RequestedAt: requestedAt,
	}
}

func newEmployee(id string) *leave.Employee {
	return &leave.Employee{
		ID:           id,
		Name:         "Ana",
		Email:        id + "@example.com",
		SupervisorID: "boss-1",
		Role:         leave.RoleEmployee,
		Regime:       accrual.RegimeLaborCode,
		HireDate:     time.Date(2018, 3, 1, 0, 0, 0, 0, time.UTC),
		Active:       true,
		Balance:      leave.Balance{Historical: dec("4.5")},
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func testRequestRoundTrip(t *testing.T, s leave.Store) {
	ctx := context.Background()
	from := base.Add(24 * time.Hour)
	in := &leave.Request{
		EmployeeID:   "emp-1",
		SupervisorID: "boss-1",
		Kind:         leave.KindPermit,
		State:        leave.StatePending,
		Detail: &leave.PermitDetail{
			FromTime: from, ToTime: from.Add(3 * time.Hour), Reason: leave.PermitHealth,
			AttachmentRef: "cert.pdf", DiscountEnabled: true, DiscountDays: dec("0.375"),
		},
		RefundAmount: dec("0.5"),
		RequestedAt:  base,
		Notes:        "doctor",
	}

	require.NoError(t, s.CreateRequest(ctx, in))
	require.NotEmpty(t, in.ID)
	assert.EqualValues(t, 1, in.Version)

	got, err := s.GetRequest(ctx, in.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.KindPermit, got.Kind)
	assert.Equal(t, "boss-1", got.SupervisorID)
	assert.Equal(t, "doctor", got.Notes)
	assert.True(t, got.RequestedAt.Equal(base))
	assert.Nil(t, got.DecidedAt)
	assertDecimal(t, "0.5", got.RefundAmount)

	d, ok := got.Detail.(*leave.PermitDetail)
	require.True(t, ok, "got %T", got.Detail)
	assert.True(t, d.FromTime.Equal(from))
	assert.Equal(t, "cert.pdf", d.AttachmentRef)
	assertDecimal(t, "0.375", d.DiscountDays)
	assertDecimal(t, "0.375", got.ChargeableDays())
}

func testRequestNotFound(t *testing.T, s leave.Store) {
	_, err := s.GetRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, generic.ErrNotFound)

	r := vacationRequest("emp-1", base)
	r.ID = "missing"
	err = s.UpdateRequest(context.Background(), r, leave.StatePending, 1)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testConditionalUpdate(t *testing.T, s leave.Store) {
	ctx := context.Background()
	r := vacationRequest("emp-1", base)
	require.NoError(t, s.CreateRequest(ctx, r))

	// GIVEN: An approval written against version 1
	approved := r.Clone()
	approved.State = leave.StateApproved
	decidedAt := base.Add(time.Hour)
	approved.DecidedAt = &decidedAt
	approved.DecidedBy = "boss-1"
	approved.ChargedDays = dec("5")
	approved.Version = 2
	require.NoError(t, s.UpdateRequest(ctx, approved, leave.StatePending, 1))

	// WHEN: A second writer still holding version 1 tries to reject
	rejected := r.Clone()
	rejected.State = leave.StateRejected
	rejected.Version = 2
	err := s.UpdateRequest(ctx, rejected, leave.StatePending, 1)

	// THEN: It loses and the approval stands
	assert.ErrorIs(t, err, generic.ErrPersistenceConflict)
	got, err := s.GetRequest(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StateApproved, got.State)
	assert.EqualValues(t, 2, got.Version)
	assertDecimal(t, "5", got.ChargedDays)
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decidedAt))

	// Right version, wrong state also loses
	stale := got.Clone()
	stale.Version = 3
	assert.ErrorIs(t, s.UpdateRequest(ctx, stale, leave.StatePending, 2), generic.ErrPersistenceConflict)
}

func testConcurrentConditionalUpdate(t *testing.T, s leave.Store) {
	ctx := context.Background()
	r := vacationRequest("emp-1", base)
	require.NoError(t, s.CreateRequest(ctx, r))

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := r.Clone()
			next.State = leave.StateApproved
			next.Version = 2
			err := s.UpdateRequest(ctx, next, leave.StatePending, 1)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, generic.ErrPersistenceConflict), "unexpected: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testListRequests(t *testing.T, s leave.Store) {
	ctx := context.Background()
	var ids []string
	for i := 0; i < 7; i++ {
		r := vacationRequest("emp-1", base.Add(time.Duration(i)*time.Minute))
		if i%2 == 1 {
			r.SupervisorID = "boss-2"
		}
		require.NoError(t, s.CreateRequest(ctx, r))
		ids = append(ids, r.ID)
	}
	other := vacationRequest("emp-2", base)
	require.NoError(t, s.CreateRequest(ctx, other))

	page, err := s.ListRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1", PerPage: 3, Page: 1})
	require.NoError(t, err)
	assert.Equal(t, 7, page.Total)
	require.Len(t, page.Requests, 3)
	assert.Equal(t, []string{ids[6], ids[5], ids[4]},
		[]string{page.Requests[0].ID, page.Requests[1].ID, page.Requests[2].ID})

	page, err = s.ListRequests(ctx, leave.RequestFilter{EmployeeID: "emp-1", PerPage: 3, Page: 3})
	require.NoError(t, err)
	require.Len(t, page.Requests, 1)
	assert.Equal(t, ids[0], page.Requests[0].ID)

	page, err = s.ListRequests(ctx, leave.RequestFilter{SupervisorID: "boss-2"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)

	page, err = s.ListRequests(ctx, leave.RequestFilter{State: leave.StateApproved})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.NotNil(t, page.Requests)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func testEmployeeRoundTrip(t *testing.T, s leave.Store) {
	ctx := context.Background()
	e := newEmployee("emp-1")
	end := base.Add(-24 * time.Hour)
	e.Inactivity = accrual.Timeline{{Start: base.Add(-72 * time.Hour), End: &end, Reason: "leave"}}
	require.NoError(t, s.CreateEmployee(ctx, e))
	assert.EqualValues(t, 1, e.Version)

	inactive := newEmployee("emp-2")
	inactive.Active = false
	require.NoError(t, s.CreateEmployee(ctx, inactive))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "emp-1@example.com", got.Email)
	assert.Equal(t, accrual.RegimeLaborCode, got.Regime)
	assert.True(t, got.HireDate.Equal(e.HireDate))
	assertDecimal(t, "4.5", got.Balance.Historical)
	require.Len(t, got.Inactivity, 1)
	require.NotNil(t, got.Inactivity[0].End)
	assert.True(t, got.Inactivity[0].End.Equal(end))

	active, err := s.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "emp-1", active[0].ID)

	_, err = s.GetEmployee(ctx, "nobody")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func testApplyBalanceEffect(t *testing.T, s leave.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, newEmployee("emp-1")))

	effect := leave.BalanceEffect{
		Key:           leave.EffectKey("r-1", "approve", 2),
		RequestID:     "r-1",
		EmployeeID:    "emp-1",
		Transition:    "approve",
		UsedDelta:     dec("5"),
		RefundedDelta: dec("1.25"),
		CreatedAt:     base,
	}
	require.NoError(t, s.ApplyBalanceEffect(ctx, effect))
	assert.ErrorIs(t, s.ApplyBalanceEffect(ctx, effect), generic.ErrDuplicateIdempotencyKey)

	release := effect
	release.Key = leave.EffectKey("r-1", "reject", 4)
	release.UsedDelta = dec("-2")
	release.RefundedDelta = decimal.Zero
	release.CreatedAt = base.Add(time.Hour)
	require.NoError(t, s.ApplyBalanceEffect(ctx, release))

	e, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assertDecimal(t, "3", e.Balance.Used)
	assertDecimal(t, "1.25", e.Balance.Refunded)
	assert.EqualValues(t, 3, e.Version)

	effects, err := s.ListBalanceEffects(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, effects, 2)
	assert.Equal(t, effect.Key, effects[0].Key)
	assertDecimal(t, "-2", effects[1].UsedDelta)

	orphan := effect
	orphan.Key = "r-9:approve:v2"
	orphan.EmployeeID = "ghost"
	assert.ErrorIs(t, s.ApplyBalanceEffect(ctx, orphan), generic.ErrNotFound)
}

func testEmployeeVersionGuards(t *testing.T, s leave.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateEmployee(ctx, newEmployee("emp-1")))

	// Accrual written against the current version
	u := leave.AccrualUpdate{Accrued: dec("12.5"), AccruedHours: dec("100"), Total: dec("17"), ComputedAt: base}
	require.NoError(t, s.UpdateAccrual(ctx, "emp-1", u, 1))
	assert.ErrorIs(t, s.UpdateAccrual(ctx, "emp-1", u, 1), generic.ErrPersistenceConflict)
	assert.ErrorIs(t, s.UpdateAccrual(ctx, "ghost", u, 1), generic.ErrNotFound)

	e, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, e.Version)
	assertDecimal(t, "17", e.Balance.Total)
	require.NotNil(t, e.Balance.ComputedAt)

	// Profile writes never touch the ledger
	require.NoError(t, s.ApplyBalanceEffect(ctx, leave.BalanceEffect{
		Key: "r-1:approve:v2", RequestID: "r-1", EmployeeID: "emp-1", Transition: "approve",
		UsedDelta: dec("2"), RefundedDelta: decimal.Zero, CreatedAt: base,
	}))
	stale := e.Clone()
	stale.Name = "Ana María"
	stale.Balance.Used = dec("999")
	assert.ErrorIs(t, s.SaveEmployeeProfile(ctx, stale, e.Version), generic.ErrPersistenceConflict)

	fresh, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	fresh.Name = "Ana María"
	fresh.Active = false
	fresh.Balance.Used = dec("999")
	fresh.Balance.Historical = dec("6")
	require.NoError(t, s.SaveEmployeeProfile(ctx, fresh, fresh.Version))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana María", got.Name)
	assert.False(t, got.Active)
	assertDecimal(t, "2", got.Balance.Used)
	assertDecimal(t, "6", got.Balance.Historical)
	assert.Equal(t, fresh.Version+1, got.Version)
}

// =============================================================================
// INCONSISTENCIES
// =============================================================================

func testInconsistencies(t *testing.T, s leave.Store) {
	ctx := context.Background()
	inc := &leave.Inconsistency{
		ID: "inc-1",
		Effect: leave.BalanceEffect{
			Key: "r-1:approve:v2", RequestID: "r-1", EmployeeID: "emp-1", Transition: "approve",
			UsedDelta: dec("5"), RefundedDelta: decimal.Zero, CreatedAt: base,
		},
		Stage:     leave.StageApply,
		Error:     "boom",
		Attempts:  1,
		CreatedAt: base,
		UpdatedAt: base,
	}
	require.NoError(t, s.SaveInconsistency(ctx, inc))
	second := *inc
	second.ID = "inc-2"
	second.CreatedAt = base.Add(time.Minute)
	require.NoError(t, s.SaveInconsistency(ctx, &second))

	resolvedAt := base.Add(time.Hour)
	inc.Attempts = 2
	inc.ResolvedAt = &resolvedAt
	require.NoError(t, s.SaveInconsistency(ctx, inc))

	got, err := s.GetInconsistency(ctx, "inc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attempts)
	assert.True(t, got.IsResolved())
	assert.Equal(t, "r-1:approve:v2", got.Effect.Key)
	assertDecimal(t, "5", got.Effect.UsedDelta)

	open, err := s.ListInconsistencies(ctx, true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "inc-2", open[0].ID)

	all, err := s.ListInconsistencies(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.GetInconsistency(ctx, "inc-9")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}
