/*
service.go - Leave request lifecycle engine

PURPOSE:
  Drives requests through the state machine. Every command reads the current
  request, validates the move, and writes it back with a conditional update on
  (state, version). A lost race is retried once against a fresh read before
  surfacing generic.ErrPersistenceConflict.

  Approvals, refunds and discount changes then settle their balance deltas
  through the saga in saga.go. A settlement failure never reverses the
  decision; it is recorded as an Inconsistency.

  Exactly one notification is emitted per persisted change.

SEE ALSO:
  - transitions.go: legal edges
  - saga.go: apply-to-balance and recompute
  - authz.go: who may do what
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
)

// conflictAttempts is how many times a command tries its conditional write.
const conflictAttempts = 2

// Service is the lifecycle engine. It is safe for concurrent use.
type Service struct {
	store            Store
	notifier         Notifier
	calc             accrual.Calculator
	clock            generic.Clock
	logger           *slog.Logger
	sweepParallelism int
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithClock(c generic.Clock) Option { return func(s *Service) { s.clock = c } }

func WithCalculator(c accrual.Calculator) Option { return func(s *Service) { s.calc = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithSweepParallelism bounds how many employees a sweep recomputes at once.
func WithSweepParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sweepParallelism = n
		}
	}
}

func NewService(store Store, opts ...Option) *Service {
	loc, _ := generic.LoadLocation(generic.DefaultTimezone)
	s := &Service{
		store:            store,
		notifier:         NopNotifier{},
		calc:             accrual.NewCalculator(loc),
		sweepParallelism: 4,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = generic.SystemClock{Location: s.calc.Location}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "leave")
	return s
}

func (s *Service) now() time.Time { return s.clock.Now() }

// =============================================================================
// CREATE
// =============================================================================

// Create files a new Pending request. When no supervisor is given, the
// employee's own supervisor is used if the employee is known.
func (s *Service) Create(ctx context.Context, actor Actor, in NewRequest) (*Request, error) {
	if err := authorizeCreate(actor, in.EmployeeID); err != nil {
		return nil, err
	}

	supervisor := in.SupervisorID
	if supervisor == "" && in.EmployeeID != "" {
		e, err := s.store.GetEmployee(ctx, in.EmployeeID)
		switch {
		case err == nil:
			supervisor = e.SupervisorID
		case !generic.IsNotFound(err):
			return nil, fmt.Errorf("failed to load employee: %w", err)
		}
	}

	now := s.now()
	period := in.Period
	if period == "" {
		period = s.calc.Period.PeriodFor(now.In(s.calc.Location)).Label()
	}

	r := &Request{
		EmployeeID:   in.EmployeeID,
		SupervisorID: supervisor,
		Kind:         in.Kind,
		State:        StatePending,
		Period:       period,
		Detail:       in.Detail,
		RequestedAt:  now,
		Notes:        in.Notes,
	}
	if r.Detail != nil {
		r.Detail = r.Detail.Clone()
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.normalize()

	if err := s.store.CreateRequest(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	s.logger.Info("request created",
		"request_id", r.ID, "employee_id", r.EmployeeID, "kind", r.Kind)
	s.notifier.NotifyRequestCreated(ctx, r.Clone())
	return r, nil
}

// =============================================================================
// READS
// =============================================================================

func (s *Service) Get(ctx context.Context, id string) (*Request, error) {
	return s.store.GetRequest(ctx, id)
}

// ListByEmployee returns an employee's requests, newest first.
func (s *Service) ListByEmployee(ctx context.Context, employeeID string, f RequestFilter) (RequestPage, error) {
	f.EmployeeID = employeeID
	f.SupervisorID = ""
	return s.list(ctx, f)
}

// ListBySupervisor returns the requests assigned to a supervisor, newest first.
func (s *Service) ListBySupervisor(ctx context.Context, supervisorID string, f RequestFilter) (RequestPage, error) {
	f.SupervisorID = supervisorID
	f.EmployeeID = ""
	return s.list(ctx, f)
}

func (s *Service) list(ctx context.Context, f RequestFilter) (RequestPage, error) {
	if f.State != "" && !f.State.Valid() {
		return RequestPage{}, generic.Invalid("state", "unknown state %q", f.State)
	}
	if f.Kind != "" && !f.Kind.Valid() {
		return RequestPage{}, generic.Invalid("kind", "unknown request kind %q", f.Kind)
	}
	return s.store.ListRequests(ctx, f.Normalize())
}

// =============================================================================
// COMMANDS
// =============================================================================

// Decide approves or rejects a Pending or Modified request. An approval
// charges the request's days before returning; a rejection releases whatever
// an earlier approval charged.
func (s *Service) Decide(ctx context.Context, actor Actor, id string, outcome State, notes string) (*Request, error) {
	var op string
	switch outcome {
	case StateApproved:
		op = OpApprove
	case StateRejected:
		op = OpReject
	default:
		return nil, generic.Invalid("outcome", "must be %s or %s", StateApproved, StateRejected)
	}

	prev, next, err := s.mutate(ctx, id, func(r *Request, now time.Time) error {
		if err := authorizeReview(actor, r, op); err != nil {
			return err
		}
		if err := checkTransition(r, outcome, op); err != nil {
			return err
		}
		r.State = outcome
		r.DecidedAt = &now
		r.DecidedBy = actor.ID
		if notes != "" {
			r.Notes = notes
		}
		if outcome == StateApproved {
			r.ChargedDays = r.ChargeableDays()
			r.RefundCredited = r.RefundAmount
		} else {
			r.ChargedDays = decimal.Zero
			r.RefundCredited = decimal.Zero
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("request decided",
		"request_id", id, "state", next.State, "decided_by", actor.ID, "version", next.Version)
	s.settle(ctx, prev, next, op, outcome == StateApproved)
	s.notifier.NotifyRequestChanged(ctx, next.Clone())
	return next, nil
}

// Modify applies a partial update and moves the request to Modified. A refund
// change is credited by its delta immediately; date changes on an approved
// request are charged on re-approval.
func (s *Service) Modify(ctx context.Context, actor Actor, id string, p Patch) (*Request, error) {
	if p.IsEmpty() {
		return nil, generic.Invalid("patch", "no fields to update")
	}

	prev, next, err := s.mutate(ctx, id, func(r *Request, now time.Time) error {
		if err := authorizeReview(actor, r, OpModify); err != nil {
			return err
		}
		if err := checkTransition(r, StateModified, OpModify); err != nil {
			return err
		}
		if err := p.apply(r); err != nil {
			return err
		}
		r.State = StateModified
		r.ModifiedAt = &now
		r.ModifiedBy = actor.ID
		if p.RefundAmount != nil {
			r.RefundCredited = generic.ClampNonNegative(r.RefundAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("request modified", "request_id", id, "modified_by", actor.ID, "version", next.Version)
	s.settle(ctx, prev, next, OpModify, false)
	s.notifier.NotifyRequestChanged(ctx, next.Clone())
	return next, nil
}

// Cancel withdraws a Pending request.
func (s *Service) Cancel(ctx context.Context, actor Actor, id, notes string) (*Request, error) {
	_, next, err := s.mutate(ctx, id, func(r *Request, now time.Time) error {
		if err := authorizeCancel(actor, r); err != nil {
			return err
		}
		if err := checkTransition(r, StateCancelled, OpCancel); err != nil {
			return err
		}
		r.State = StateCancelled
		r.ModifiedAt = &now
		r.ModifiedBy = actor.ID
		if notes != "" {
			r.Notes = notes
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("request cancelled", "request_id", id, "by", actor.ID)
	s.notifier.NotifyRequestChanged(ctx, next.Clone())
	return next, nil
}

// AddRefund overwrites the refund of an Approved or Modified request. Only the
// difference from what was already credited reaches the balance.
func (s *Service) AddRefund(ctx context.Context, actor Actor, id string, amount decimal.Decimal) (*Request, error) {
	if amount.IsNegative() {
		return nil, generic.Invalid("amount", "must not be negative")
	}

	prev, next, err := s.mutate(ctx, id, func(r *Request, now time.Time) error {
		if err := authorizeReview(actor, r, OpRefund); err != nil {
			return err
		}
		if r.State != StateApproved && r.State != StateModified {
			return transitionError(r, OpRefund)
		}
		r.RefundAmount = amount
		r.RefundCredited = amount
		r.ModifiedAt = &now
		r.ModifiedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("refund set",
		"request_id", id, "amount", amount.String(), "delta", next.RefundCredited.Sub(prev.RefundCredited).String())
	s.settle(ctx, prev, next, OpRefund, false)
	s.notifier.NotifyRequestChanged(ctx, next.Clone())
	return next, nil
}

// SetDiscount turns balance charging of a permit on or off. days is required
// when enabling. On an approved permit the charge follows immediately.
func (s *Service) SetDiscount(ctx context.Context, actor Actor, id string, enabled bool, days *decimal.Decimal) (*Request, error) {
	if enabled && days == nil {
		return nil, generic.Invalid("discount_days", "is required when the discount is enabled")
	}
	if days != nil && days.IsNegative() {
		return nil, generic.Invalid("discount_days", "must not be negative")
	}

	prev, next, err := s.mutate(ctx, id, func(r *Request, now time.Time) error {
		if err := authorizeReview(actor, r, OpSetDiscount); err != nil {
			return err
		}
		d, ok := r.Detail.(*PermitDetail)
		if !ok {
			return &generic.OperationError{Kind: string(r.Kind), Operation: OpSetDiscount}
		}
		if r.State.IsTerminal() {
			return transitionError(r, OpSetDiscount)
		}
		d.DiscountEnabled = enabled
		d.DiscountDays = decimal.Zero
		if enabled {
			d.DiscountDays = *days
		}
		if r.State == StateApproved {
			r.ChargedDays = r.ChargeableDays()
		}
		r.ModifiedAt = &now
		r.ModifiedBy = actor.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("discount set", "request_id", id, "enabled", enabled)
	s.settle(ctx, prev, next, OpSetDiscount, false)
	s.notifier.NotifyRequestChanged(ctx, next.Clone())
	return next, nil
}

// =============================================================================
// CONDITIONAL WRITE
// =============================================================================

// mutate reads the request, lets fn change a copy, and writes it back only if
// nobody else wrote in between. On a lost race it re-reads once, so fn must be
// safe to run twice and must re-check everything against the fresh copy.
func (s *Service) mutate(
	ctx context.Context,
	id string,
	fn func(r *Request, now time.Time) error,
) (prev, next *Request, err error) {
	for attempt := 1; ; attempt++ {
		prev, err = s.store.GetRequest(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		next = prev.Clone()
		if err := fn(next, s.now()); err != nil {
			return nil, nil, err
		}
		next.normalize()
		if err := next.Validate(); err != nil {
			return nil, nil, err
		}
		next.Version = prev.Version + 1

		err = s.store.UpdateRequest(ctx, next, prev.State, prev.Version)
		if err == nil {
			return prev, next, nil
		}
		if !errors.Is(err, generic.ErrPersistenceConflict) || attempt >= conflictAttempts {
			return nil, nil, err
		}
		s.logger.Debug("conditional update lost, re-reading", "request_id", id, "attempt", attempt)
	}
}
