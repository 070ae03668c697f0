package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/mongo"
	"github.com/warp/leave-engine/store/storetest"
)

// newTestStore connects to LEAVE_TEST_MONGODB_URI with a throwaway database.
func newTestStore(t *testing.T) *mongo.Store {
	t.Helper()
	uri := os.Getenv("LEAVE_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("LEAVE_TEST_MONGODB_URI not set")
	}

	ctx := context.Background()
	store, err := mongo.Open(ctx, uri, fmt.Sprintf("leave_test_%d", time.Now().UnixNano()))
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Drop(context.Background())
		store.Close(context.Background())
	})
	return store
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) leave.Store { return newTestStore(t) })
}

func TestApplyBalanceEffect_DecimalPrecision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.CreateEmployee(ctx, &leave.Employee{
		ID: "emp-1", Name: "Ana", Role: leave.RoleEmployee, Regime: "losep",
		HireDate: now.AddDate(-1, 0, 0), Active: true, CreatedAt: now, UpdatedAt: now,
	}))

	// Three tenths added one at a time stay exactly 0.3
	for i := 0; i < 3; i++ {
		require.NoError(t, store.ApplyBalanceEffect(ctx, leave.BalanceEffect{
			Key: fmt.Sprintf("r-%d:approve:v2", i), RequestID: fmt.Sprintf("r-%d", i), EmployeeID: "emp-1",
			Transition: "approve", UsedDelta: decimal.RequireFromString("0.1"), RefundedDelta: decimal.Zero,
			CreatedAt: now,
		}))
	}

	e, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("0.3").Equal(e.Balance.Used), "got %s", e.Balance.Used)
}
