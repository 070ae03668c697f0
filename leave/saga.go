/*
saga.go - Apply-to-balance and recompute

PURPOSE:
  A settled decision becomes two steps:

    1. apply:     record a BalanceEffect and add its deltas to used/refunded
                  days, atomically, keyed "request:transition:vN"
    2. recompute: recalculate accrual and total from the stored components

  Step 1 is idempotent through its key, step 2 through being a pure function
  of stored state. Either step can therefore be re-run after a failure; the
  failure itself is saved as an Inconsistency so it can be listed and retried.

SEE ALSO:
  - accrual/calculator.go: the balance formula
  - store.go: ApplyBalanceEffect / UpdateAccrual contracts
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
	"golang.org/x/sync/errgroup"
)

// settle derives the effect between two versions of a request and runs the
// saga for it. Failures are recorded, not returned: the decision stands.
func (s *Service) settle(ctx context.Context, prev, next *Request, transition string, alwaysRecompute bool) {
	effect := BalanceEffect{
		Key:           EffectKey(next.ID, transition, next.Version),
		RequestID:     next.ID,
		EmployeeID:    next.EmployeeID,
		Transition:    transition,
		UsedDelta:     next.ChargedDays.Sub(prev.ChargedDays),
		RefundedDelta: next.RefundCredited.Sub(prev.RefundCredited),
		CreatedAt:     s.now(),
	}
	if effect.IsNoop() && !alwaysRecompute {
		return
	}

	stage, err := s.runSaga(ctx, effect)
	if err == nil {
		return
	}
	s.logger.Error("balance settlement failed",
		"request_id", next.ID, "employee_id", next.EmployeeID, "key", effect.Key,
		"stage", stage, "error", err)
	s.recordInconsistency(ctx, effect, stage, err)
}

// runSaga executes both steps and reports which one failed.
func (s *Service) runSaga(ctx context.Context, effect BalanceEffect) (SagaStage, error) {
	if !effect.IsNoop() {
		err := s.store.ApplyBalanceEffect(ctx, effect)
		if err != nil && !errors.Is(err, generic.ErrDuplicateIdempotencyKey) {
			return StageApply, err
		}
	}
	if _, err := s.RecomputeBalance(ctx, effect.EmployeeID); err != nil {
		return StageRecompute, err
	}
	return "", nil
}

func (s *Service) recordInconsistency(ctx context.Context, effect BalanceEffect, stage SagaStage, cause error) {
	now := s.now()
	inc := &Inconsistency{
		ID:        uuid.NewString(),
		Effect:    effect,
		Stage:     stage,
		Error:     cause.Error(),
		Attempts:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveInconsistency(ctx, inc); err != nil {
		// Nothing left to write to; the log line is the record.
		s.logger.Error("failed to record inconsistency",
			"key", effect.Key, "stage", stage, "cause", cause, "error", err)
	}
}

// =============================================================================
// RECOMPUTE
// =============================================================================

// RecomputeBalance recalculates an employee's accrual and total as of now and
// stores them with a version-guarded write.
func (s *Service) RecomputeBalance(ctx context.Context, employeeID string) (*Employee, error) {
	for attempt := 1; ; attempt++ {
		e, err := s.store.GetEmployee(ctx, employeeID)
		if err != nil {
			return nil, err
		}

		snap := s.calc.Compute(e.Profile(), e.Ledger(), s.now())
		computedAt := snap.AsOf
		u := AccrualUpdate{
			Accrued:      snap.Accrued,
			AccruedHours: snap.AccruedHours,
			Total:        snap.Total,
			ComputedAt:   computedAt,
		}

		err = s.store.UpdateAccrual(ctx, employeeID, u, e.Version)
		if err == nil {
			e.Balance.Accrued = u.Accrued
			e.Balance.AccruedHours = u.AccruedHours
			e.Balance.Total = u.Total
			e.Balance.ComputedAt = &computedAt
			e.Version++
			return e, nil
		}
		if !errors.Is(err, generic.ErrPersistenceConflict) || attempt >= conflictAttempts {
			return nil, fmt.Errorf("failed to store balance for %s: %w", employeeID, err)
		}
	}
}

// ComputeBalance previews the balance at asOf without writing anything. A
// zero asOf means now.
func (s *Service) ComputeBalance(ctx context.Context, employeeID string, asOf time.Time) (accrual.Snapshot, error) {
	e, err := s.store.GetEmployee(ctx, employeeID)
	if err != nil {
		return accrual.Snapshot{}, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	return s.calc.Compute(e.Profile(), e.Ledger(), asOf), nil
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func (s *Service) ListInconsistencies(ctx context.Context, openOnly bool) ([]Inconsistency, error) {
	return s.store.ListInconsistencies(ctx, openOnly)
}

func (s *Service) ListBalanceEffects(ctx context.Context, employeeID string) ([]BalanceEffect, error) {
	if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
		return nil, err
	}
	return s.store.ListBalanceEffects(ctx, employeeID)
}

// Reconcile re-runs the saga of one recorded inconsistency. Resolved entries
// are returned unchanged.
func (s *Service) Reconcile(ctx context.Context, id string) (*Inconsistency, error) {
	inc, err := s.store.GetInconsistency(ctx, id)
	if err != nil {
		return nil, err
	}
	if inc.IsResolved() {
		return inc, nil
	}

	stage, sagaErr := s.runSaga(ctx, inc.Effect)
	now := s.now()
	inc.Attempts++
	inc.UpdatedAt = now
	if sagaErr != nil {
		inc.Stage = stage
		inc.Error = sagaErr.Error()
	} else {
		inc.ResolvedAt = &now
	}
	if err := s.store.SaveInconsistency(ctx, inc); err != nil {
		return nil, fmt.Errorf("failed to save inconsistency %s: %w", id, err)
	}

	if sagaErr != nil {
		s.logger.Warn("reconcile failed", "inconsistency_id", id, "attempts", inc.Attempts, "error", sagaErr)
		return inc, sagaErr
	}
	s.logger.Info("inconsistency resolved", "inconsistency_id", id, "key", inc.Effect.Key)
	return inc, nil
}

// ReconcileOpen retries every open inconsistency and returns how many were
// resolved.
func (s *Service) ReconcileOpen(ctx context.Context) (int, error) {
	open, err := s.store.ListInconsistencies(ctx, true)
	if err != nil {
		return 0, err
	}
	resolved := 0
	for _, inc := range open {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		if _, err := s.Reconcile(ctx, inc.ID); err == nil {
			resolved++
		}
	}
	return resolved, nil
}

// Sweep retries open inconsistencies, then recomputes every active employee
// with bounded parallelism. One employee's failure does not stop the others.
// When ctx ends early the counts gathered so far come back with the error.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	reconciled, err := s.ReconcileOpen(ctx)
	res.Reconciled = reconciled
	if err != nil {
		res.Duration = time.Since(start)
		return res, fmt.Errorf("failed to reconcile: %w", err)
	}

	employees, err := s.store.ListActiveEmployees(ctx)
	if err != nil {
		res.Duration = time.Since(start)
		return res, fmt.Errorf("failed to list employees: %w", err)
	}

	var processed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.sweepParallelism)
	for _, e := range employees {
		id := e.ID
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if _, err := s.RecomputeBalance(gctx, id); err != nil {
				failed.Add(1)
				s.logger.Warn("recompute failed", "employee_id", id, "error", err)
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	err = g.Wait()

	res.Processed = int(processed.Load())
	res.Failed = int(failed.Load())
	res.Duration = time.Since(start)
	if err != nil {
		s.logger.Warn("sweep interrupted",
			"processed", res.Processed, "failed", res.Failed, "remaining", len(employees)-res.Processed-res.Failed)
		return res, fmt.Errorf("sweep interrupted: %w", err)
	}
	s.logger.Info("sweep complete",
		"processed", res.Processed, "failed", res.Failed, "reconciled", res.Reconciled, "duration", res.Duration)
	return res, nil
}
