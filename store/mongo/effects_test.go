package mongo

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Employee documents only carry applied_keys when the server cannot run
// transactions; otherwise the effect log's _id is the only guard.
func TestApplyBalanceEffect_GuardFollowsTopology(t *testing.T) {
	uri := os.Getenv("LEAVE_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("LEAVE_TEST_MONGODB_URI not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, uri, fmt.Sprintf("leave_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Drop(context.Background())
		s.Close(context.Background())
	})

	// GIVEN: An employee
	now := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, s.CreateEmployee(ctx, &leave.Employee{
		ID: "emp-1", Name: "Ana", Role: leave.RoleEmployee, Regime: "losep",
		HireDate: now.AddDate(-1, 0, 0), Active: true, CreatedAt: now, UpdatedAt: now,
	}))

	// WHEN: Applying several effects, one of them twice
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.ApplyBalanceEffect(ctx, leave.BalanceEffect{
			Key: leave.EffectKey("r-1", leave.OpModify, int64(i)), RequestID: "r-1", EmployeeID: "emp-1",
			Transition: leave.OpModify, UsedDelta: decimal.NewFromInt(1), RefundedDelta: decimal.Zero,
			CreatedAt: now,
		}))
	}
	err = s.ApplyBalanceEffect(ctx, leave.BalanceEffect{
		Key: leave.EffectKey("r-1", leave.OpModify, 1), RequestID: "r-1", EmployeeID: "emp-1",
		Transition: leave.OpModify, UsedDelta: decimal.NewFromInt(1), RefundedDelta: decimal.Zero,
		CreatedAt: now,
	})

	// THEN: The duplicate is refused and counted once
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	e, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(3).Equal(e.Balance.Used), "got %s", e.Balance.Used)

	n, err := s.effects.CountDocuments(ctx, bson.M{"employee_id": "emp-1"})
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	// AND: The employee document only grows without transactions
	var raw bson.M
	require.NoError(t, s.employees.FindOne(ctx, bson.M{"_id": "emp-1"}).Decode(&raw))
	if s.transactional {
		assert.NotContains(t, raw, "applied_keys")
	} else {
		assert.Len(t, raw["applied_keys"], 3)
	}
}
