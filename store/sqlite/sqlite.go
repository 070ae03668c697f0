/*
Package sqlite provides a SQLite-backed implementation of leave.Store.

PURPOSE:
  Persists requests, employees, balance effects and inconsistencies in one
  SQLite file. Same patterns apply to PostgreSQL, with minor dialect changes.

KEY TABLES:
  requests:         one row per request; detail stored as JSON by kind
  employees:        profile, inactivity (JSON) and balance components
  balance_effects:  applied saga effects, primary key = idempotency key
  inconsistencies:  saga failures awaiting reconciliation

CONDITIONAL UPDATES:
  Request and employee writes carry the expected version (and state) in the
  WHERE clause. Zero rows affected means someone else wrote first and is
  reported as generic.ErrPersistenceConflict.

DECIMALS AND TIMES:
  Decimals are TEXT via decimal.String() so no precision is lost. Times are
  UTC with a fixed-width layout so TEXT ordering is chronological.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ApplyBalanceEffect runs the effect
  insert and the ledger update in one database transaction.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - leave/store.go: interface contracts
  - store/memory: in-memory implementation for tests
  - store/mongo: MongoDB implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements leave.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ leave.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		supervisor_id TEXT,
		kind TEXT NOT NULL,
		state TEXT NOT NULL,
		period TEXT,
		detail_json TEXT NOT NULL,
		refund_amount TEXT NOT NULL DEFAULT '0',
		requested_at TEXT NOT NULL,
		decided_at TEXT,
		decided_by TEXT,
		modified_at TEXT,
		modified_by TEXT,
		notes TEXT,
		version INTEGER NOT NULL,
		charged_days TEXT NOT NULL DEFAULT '0',
		refund_credited TEXT NOT NULL DEFAULT '0'
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON requests(employee_id, requested_at DESC);
	CREATE INDEX IF NOT EXISTS idx_requests_supervisor
		ON requests(supervisor_id, requested_at DESC);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		supervisor_id TEXT,
		role TEXT NOT NULL,
		regime TEXT NOT NULL,
		hire_date TEXT NOT NULL,
		active INTEGER NOT NULL,
		inactivity_json TEXT NOT NULL DEFAULT '[]',
		historical TEXT NOT NULL DEFAULT '0',
		accrued TEXT NOT NULL DEFAULT '0',
		accrued_hours TEXT NOT NULL DEFAULT '0',
		used TEXT NOT NULL DEFAULT '0',
		refunded TEXT NOT NULL DEFAULT '0',
		total TEXT NOT NULL DEFAULT '0',
		computed_at TEXT,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_active ON employees(active);

	-- One row per applied effect; the key makes re-application a no-op
	CREATE TABLE IF NOT EXISTS balance_effects (
		key TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		transition TEXT NOT NULL,
		used_delta TEXT NOT NULL,
		refunded_delta TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_balance_effects_employee
		ON balance_effects(employee_id, created_at);

	CREATE TABLE IF NOT EXISTS inconsistencies (
		id TEXT PRIMARY KEY,
		effect_json TEXT NOT NULL,
		stage TEXT NOT NULL,
		error TEXT NOT NULL,
		attempts INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		resolved_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_inconsistencies_open
		ON inconsistencies(resolved_at) WHERE resolved_at IS NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// inTx runs fn in a database transaction. Callers hold s.mu.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, supervisor_id, kind, state, period, detail_json,
	refund_amount, requested_at, decided_at, decided_by, modified_at, modified_by, notes,
	version, charged_days, refund_credited`

func (s *Store) CreateRequest(ctx context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode detail: %w", err)
	}
	r.Version = 1

	_, err = s.db.ExecContext(ctx, `INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, nullString(r.SupervisorID), r.Kind, r.State, nullString(r.Period), string(detail),
		r.RefundAmount.String(), formatTime(r.RequestedAt), nullTime(r.DecidedAt), nullString(r.DecidedBy),
		nullTime(r.ModifiedAt), nullString(r.ModifiedBy), nullString(r.Notes),
		r.Version, r.ChargedDays.String(), r.RefundCredited.String(),
	)
	if isUniqueConstraintError(err) {
		return generic.Invalid("id", "request %s already exists", r.ID)
	}
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM requests WHERE id = ?`, id)
	r, err := scanRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Entity: "request", ID: id}
	}
	return r, err
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request, expectedState leave.State, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detail, err := json.Marshal(r.Detail)
	if err != nil {
		return fmt.Errorf("failed to encode detail: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE requests SET
			supervisor_id = ?, state = ?, period = ?, detail_json = ?, refund_amount = ?,
			decided_at = ?, decided_by = ?, modified_at = ?, modified_by = ?, notes = ?,
			version = ?, charged_days = ?, refund_credited = ?
		WHERE id = ? AND state = ? AND version = ?`,
		nullString(r.SupervisorID), r.State, nullString(r.Period), string(detail), r.RefundAmount.String(),
		nullTime(r.DecidedAt), nullString(r.DecidedBy), nullTime(r.ModifiedAt), nullString(r.ModifiedBy),
		nullString(r.Notes), r.Version, r.ChargedDays.String(), r.RefundCredited.String(),
		r.ID, expectedState, expectedVersion,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests WHERE id = ?`, r.ID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return &generic.NotFoundError{Entity: "request", ID: r.ID}
	}
	return generic.ErrPersistenceConflict
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) (leave.RequestPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f = f.Normalize()
	var (
		where []string
		args  []any
	)
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, f.EmployeeID)
	}
	if f.SupervisorID != "" {
		where = append(where, "supervisor_id = ?")
		args = append(args, f.SupervisorID)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, f.State)
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, f.Kind)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	page := leave.RequestPage{Page: f.Page, PerPage: f.PerPage, Requests: []*leave.Request{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+clause, args...).Scan(&page.Total); err != nil {
		return page, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM requests`+clause+` ORDER BY requested_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, f.PerPage, f.Offset())...)
	if err != nil {
		return page, err
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return page, err
		}
		page.Requests = append(page.Requests, r)
	}
	return page, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*leave.Request, error) {
	var (
		r                                        leave.Request
		supervisorID, period, decidedBy          sql.NullString
		modifiedBy, notes, decidedAt, modifiedAt sql.NullString
		detail, refund, requestedAt              string
		charged, credited                        string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &supervisorID, &r.Kind, &r.State, &period, &detail,
		&refund, &requestedAt, &decidedAt, &decidedBy, &modifiedAt, &modifiedBy, &notes,
		&r.Version, &charged, &credited)
	if err != nil {
		return nil, err
	}

	if r.Detail, err = leave.DecodeDetail(r.Kind, []byte(detail)); err != nil {
		return nil, fmt.Errorf("request %s: %w", r.ID, err)
	}
	r.SupervisorID = supervisorID.String
	r.Period = period.String
	r.DecidedBy = decidedBy.String
	r.ModifiedBy = modifiedBy.String
	r.Notes = notes.String
	r.RefundAmount = parseDecimal(refund)
	r.ChargedDays = parseDecimal(charged)
	r.RefundCredited = parseDecimal(credited)
	r.RequestedAt = parseTime(requestedAt)
	r.DecidedAt = parseNullTime(decidedAt)
	r.ModifiedAt = parseNullTime(modifiedAt)
	return &r, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

const employeeColumns = `id, name, email, supervisor_id, role, regime, hire_date, active, inactivity_json,
	historical, accrued, accrued_hours, used, refunded, total, computed_at, version, created_at, updated_at`

func (s *Store) CreateEmployee(ctx context.Context, e *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inactivity, err := json.Marshal(nonNilTimeline(e.Inactivity))
	if err != nil {
		return err
	}
	e.Version = 1
	b := e.Balance

	_, err = s.db.ExecContext(ctx, `INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, nullString(e.Email), nullString(e.SupervisorID), e.Role, e.Regime,
		formatTime(e.HireDate), e.Active, string(inactivity),
		b.Historical.String(), b.Accrued.String(), b.AccruedHours.String(), b.Used.String(),
		b.Refunded.String(), b.Total.String(), nullTime(b.ComputedAt),
		e.Version, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if isUniqueConstraintError(err) {
		return generic.Invalid("id", "employee %s already exists", e.ID)
	}
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE id = ?`, id)
	e, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Entity: "employee", ID: id}
	}
	return e, err
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+employeeColumns+` FROM employees WHERE active = 1 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []leave.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) SaveEmployeeProfile(ctx context.Context, e *leave.Employee, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inactivity, err := json.Marshal(nonNilTimeline(e.Inactivity))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE employees SET
			name = ?, email = ?, supervisor_id = ?, role = ?, regime = ?, hire_date = ?,
			active = ?, inactivity_json = ?, historical = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		e.Name, nullString(e.Email), nullString(e.SupervisorID), e.Role, e.Regime, formatTime(e.HireDate),
		e.Active, string(inactivity), e.Balance.Historical.String(), formatTime(e.UpdatedAt),
		e.ID, expectedVersion,
	)
	if err != nil {
		return err
	}
	return s.checkEmployeeWrite(ctx, s.db, res, e.ID)
}

func (s *Store) ApplyBalanceEffect(ctx context.Context, effect leave.BalanceEffect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO balance_effects (key, request_id, employee_id, transition, used_delta, refunded_delta, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			effect.Key, effect.RequestID, effect.EmployeeID, effect.Transition,
			effect.UsedDelta.String(), effect.RefundedDelta.String(), formatTime(effect.CreatedAt),
		)
		if isUniqueConstraintError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		if err != nil {
			return err
		}

		var used, refunded string
		err = tx.QueryRowContext(ctx, `SELECT used, refunded FROM employees WHERE id = ?`, effect.EmployeeID).
			Scan(&used, &refunded)
		if errors.Is(err, sql.ErrNoRows) {
			return &generic.NotFoundError{Entity: "employee", ID: effect.EmployeeID}
		}
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE employees SET used = ?, refunded = ?, version = version + 1 WHERE id = ?`,
			parseDecimal(used).Add(effect.UsedDelta).String(),
			parseDecimal(refunded).Add(effect.RefundedDelta).String(),
			effect.EmployeeID,
		)
		return err
	})
}

func (s *Store) UpdateAccrual(ctx context.Context, employeeID string, u leave.AccrualUpdate, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE employees SET accrued = ?, accrued_hours = ?, total = ?, computed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		u.Accrued.String(), u.AccruedHours.String(), u.Total.String(), formatTime(u.ComputedAt),
		employeeID, expectedVersion,
	)
	if err != nil {
		return err
	}
	return s.checkEmployeeWrite(ctx, s.db, res, employeeID)
}

// checkEmployeeWrite tells a lost race from a missing row.
func (s *Store) checkEmployeeWrite(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM employees WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return &generic.NotFoundError{Entity: "employee", ID: id}
	}
	return generic.ErrPersistenceConflict
}

func (s *Store) ListBalanceEffects(ctx context.Context, employeeID string) ([]leave.BalanceEffect, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, request_id, employee_id, transition, used_delta, refunded_delta, created_at
		FROM balance_effects WHERE employee_id = ? ORDER BY created_at, rowid`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []leave.BalanceEffect{}
	for rows.Next() {
		var (
			e                    leave.BalanceEffect
			used, refunded, when string
		)
		if err := rows.Scan(&e.Key, &e.RequestID, &e.EmployeeID, &e.Transition, &used, &refunded, &when); err != nil {
			return nil, err
		}
		e.UsedDelta = parseDecimal(used)
		e.RefundedDelta = parseDecimal(refunded)
		e.CreatedAt = parseTime(when)
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEmployee(row scanner) (*leave.Employee, error) {
	var (
		e                                        leave.Employee
		email, supervisorID, computedAt          sql.NullString
		hireDate, inactivity, createdAt, updated string
		historical, accrued, hours               string
		used, refunded, total                    string
	)
	err := row.Scan(&e.ID, &e.Name, &email, &supervisorID, &e.Role, &e.Regime, &hireDate, &e.Active,
		&inactivity, &historical, &accrued, &hours, &used, &refunded, &total, &computedAt,
		&e.Version, &createdAt, &updated)
	if err != nil {
		return nil, err
	}

	var tl accrual.Timeline
	if err := json.Unmarshal([]byte(inactivity), &tl); err != nil {
		return nil, fmt.Errorf("employee %s: invalid inactivity: %w", e.ID, err)
	}
	e.Inactivity = tl
	e.Email = email.String
	e.SupervisorID = supervisorID.String
	e.HireDate = parseTime(hireDate)
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updated)
	e.Balance = leave.Balance{
		Historical:   parseDecimal(historical),
		Accrued:      parseDecimal(accrued),
		AccruedHours: parseDecimal(hours),
		Used:         parseDecimal(used),
		Refunded:     parseDecimal(refunded),
		Total:        parseDecimal(total),
		ComputedAt:   parseNullTime(computedAt),
	}
	return &e, nil
}

// =============================================================================
// INCONSISTENCIES
// =============================================================================

func (s *Store) SaveInconsistency(ctx context.Context, inc *leave.Inconsistency) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	effect, err := json.Marshal(inc.Effect)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO inconsistencies (id, effect_json, stage, error, attempts, created_at, updated_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			error = excluded.error,
			attempts = excluded.attempts,
			updated_at = excluded.updated_at,
			resolved_at = excluded.resolved_at`,
		inc.ID, string(effect), inc.Stage, inc.Error, inc.Attempts,
		formatTime(inc.CreatedAt), formatTime(inc.UpdatedAt), nullTime(inc.ResolvedAt),
	)
	return err
}

const inconsistencyColumns = `id, effect_json, stage, error, attempts, created_at, updated_at, resolved_at`

func (s *Store) GetInconsistency(ctx context.Context, id string) (*leave.Inconsistency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+inconsistencyColumns+` FROM inconsistencies WHERE id = ?`, id)
	inc, err := scanInconsistency(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &generic.NotFoundError{Entity: "inconsistency", ID: id}
	}
	return inc, err
}

func (s *Store) ListInconsistencies(ctx context.Context, openOnly bool) ([]leave.Inconsistency, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + inconsistencyColumns + ` FROM inconsistencies`
	if openOnly {
		query += ` WHERE resolved_at IS NULL`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []leave.Inconsistency{}
	for rows.Next() {
		inc, err := scanInconsistency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, rows.Err()
}

func scanInconsistency(row scanner) (*leave.Inconsistency, error) {
	var (
		inc                      leave.Inconsistency
		effect, created, updated string
		resolved                 sql.NullString
	)
	if err := row.Scan(&inc.ID, &effect, &inc.Stage, &inc.Error, &inc.Attempts, &created, &updated, &resolved); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(effect), &inc.Effect); err != nil {
		return nil, fmt.Errorf("inconsistency %s: %w", inc.ID, err)
	}
	inc.CreatedAt = parseTime(created)
	inc.UpdatedAt = parseTime(updated)
	inc.ResolvedAt = parseNullTime(resolved)
	return &inc, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nonNilTimeline(t accrual.Timeline) accrual.Timeline {
	if t == nil {
		return accrual.Timeline{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
