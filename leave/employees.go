package leave

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
)

// CreateEmployee registers an employee and computes the opening balance.
// Used and refunded days always start at zero.
func (s *Service) CreateEmployee(ctx context.Context, actor Actor, e *Employee) (*Employee, error) {
	if err := authorizeAdmin(actor, "create employees"); err != nil {
		return nil, err
	}
	e = e.Clone()
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if e.Balance.Historical.IsNegative() {
		return nil, generic.Invalid("historical", "must not be negative")
	}

	now := s.now()
	e.Balance = Balance{Historical: e.Balance.Historical}
	e.CreatedAt = now
	e.UpdatedAt = now
	if err := s.store.CreateEmployee(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to create employee: %w", err)
	}
	s.logger.Info("employee created", "employee_id", e.ID, "regime", e.Regime)

	return s.RecomputeBalance(ctx, e.ID)
}

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	return s.store.GetEmployee(ctx, id)
}

// SetEmployeeActive opens or closes an inactivity interval at now, then
// recomputes so seniority reflects it.
func (s *Service) SetEmployeeActive(ctx context.Context, actor Actor, id string, active bool, reason string) (*Employee, error) {
	if err := authorizeAdmin(actor, "change employee status"); err != nil {
		return nil, err
	}
	err := s.updateProfile(ctx, id, func(e *Employee) error {
		var (
			tl  accrual.Timeline
			err error
		)
		if active {
			tl, err = e.Inactivity.Reactivate(s.now())
		} else {
			tl, err = e.Inactivity.Deactivate(s.now(), reason)
		}
		if err != nil {
			return &generic.OperationError{Kind: "employee", Operation: statusOp(active) + ": " + err.Error()}
		}
		e.Inactivity = tl
		e.Active = active
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("employee status changed", "employee_id", id, "active", active)
	return s.RecomputeBalance(ctx, id)
}

// SetHistoricalBalance replaces the carried-over balance from prior periods.
func (s *Service) SetHistoricalBalance(ctx context.Context, actor Actor, id string, historical decimal.Decimal) (*Employee, error) {
	if err := authorizeAdmin(actor, "set historical balances"); err != nil {
		return nil, err
	}
	if historical.IsNegative() {
		return nil, generic.Invalid("historical", "must not be negative")
	}
	err := s.updateProfile(ctx, id, func(e *Employee) error {
		e.Balance.Historical = historical
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.RecomputeBalance(ctx, id)
}

func statusOp(active bool) string {
	if active {
		return "reactivate"
	}
	return "deactivate"
}

// updateProfile is the employee counterpart of mutate.
func (s *Service) updateProfile(ctx context.Context, id string, fn func(e *Employee) error) error {
	for attempt := 1; ; attempt++ {
		current, err := s.store.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		next := current.Clone()
		if err := fn(next); err != nil {
			return err
		}
		next.UpdatedAt = s.now()

		err = s.store.SaveEmployeeProfile(ctx, next, current.Version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, generic.ErrPersistenceConflict) || attempt >= conflictAttempts {
			return err
		}
	}
}
