/*
Package mongo provides a MongoDB-backed implementation of leave.Store.

PURPOSE:
  Document storage for deployments that already run MongoDB. Requests and
  employees are one document each, so every conditional write is a single
  document operation. Balance effects are the exception: they touch the
  effect log and the employee together.

COLLECTIONS:
  requests:         _id = request id, detail as a sub-document
  employees:        _id = employee id, balance sub-document
  balance_effects:  _id = idempotency key, log of applied effects
  inconsistencies:  _id = inconsistency id

IDEMPOTENT EFFECTS:
  On a replica set or sharded cluster the effect document is inserted and the
  employee balance incremented in one transaction; the unique _id of the
  effect is the idempotency guard.

  A standalone server has no transactions. There the balance update matches
  only while the key is absent from the employee's applied_keys array and
  pushes it in the same update, and the effect document is upserted after.
  That array keeps one entry per effect for the life of the employee.

DECIMALS:
  Stored as Decimal128 so $inc stays exact.

SEE ALSO:
  - leave/store.go: interface contracts
  - store/sqlite: SQL implementation
*/
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.Store on MongoDB.
type Store struct {
	client          *mongo.Client
	db              *mongo.Database
	requests        *mongo.Collection
	employees       *mongo.Collection
	effects         *mongo.Collection
	inconsistencies *mongo.Collection

	// transactional is set when the deployment supports multi-document
	// transactions.
	transactional bool
}

var _ leave.Store = (*Store)(nil)

// Open connects, pings the primary and ensures indexes.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w: %w", generic.ErrConnectionFailure, err)
	}

	db := client.Database(database)
	s := &Store{
		client:          client,
		db:              db,
		requests:        db.Collection("requests"),
		employees:       db.Collection("employees"),
		effects:         db.Collection("balance_effects"),
		inconsistencies: db.Collection("inconsistencies"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	s.transactional, err = supportsTransactions(ctx, db)
	if err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}

	slog.Info("connected to mongodb", "component", "store", "database", database,
		"transactions", s.transactional)
	return s, nil
}

// supportsTransactions asks the server for its topology. Replica set members
// report a set name and mongos reports "isdbgrid".
func supportsTransactions(ctx context.Context, db *mongo.Database) (bool, error) {
	var hello struct {
		SetName string `bson:"setName"`
		Msg     string `bson:"msg"`
	}
	if err := db.RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		return false, fmt.Errorf("hello: %w", err)
	}
	return hello.SetName != "" || hello.Msg == "isdbgrid", nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.requests.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "requested_at", Value: -1}}},
		{Keys: bson.D{{Key: "supervisor_id", Value: 1}, {Key: "requested_at", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("create request indexes: %w", err)
	}
	if _, err := s.employees.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "active", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create employee indexes: %w", err)
	}
	if _, err := s.effects.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "employee_id", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create effect indexes: %w", err)
	}
	if _, err := s.inconsistencies.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "resolved_at", Value: 1}, {Key: "created_at", Value: 1}},
	}); err != nil {
		return fmt.Errorf("create inconsistency indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Drop removes the whole database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) CreateRequest(ctx context.Context, r *leave.Request) error {
	if r.ID == "" {
		r.ID = bson.NewObjectID().Hex()
	}
	r.Version = 1
	_, err := s.requests.InsertOne(ctx, toRequestDoc(r))
	if mongo.IsDuplicateKeyError(err) {
		return generic.Invalid("id", "request %s already exists", r.ID)
	}
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	var doc requestDoc
	err := s.requests.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &generic.NotFoundError{Entity: "request", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find request: %w", err)
	}
	return doc.toRequest()
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request, expectedState leave.State, expectedVersion int64) error {
	filter := bson.M{"_id": r.ID, "state": expectedState, "version": expectedVersion}
	res, err := s.requests.ReplaceOne(ctx, filter, toRequestDoc(r))
	if err != nil {
		return fmt.Errorf("replace request: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return s.missOrConflict(ctx, s.requests, "request", r.ID)
}

func (s *Store) ListRequests(ctx context.Context, f leave.RequestFilter) (leave.RequestPage, error) {
	f = f.Normalize()
	filter := bson.M{}
	if f.EmployeeID != "" {
		filter["employee_id"] = f.EmployeeID
	}
	if f.SupervisorID != "" {
		filter["supervisor_id"] = f.SupervisorID
	}
	if f.State != "" {
		filter["state"] = f.State
	}
	if f.Kind != "" {
		filter["kind"] = f.Kind
	}

	page := leave.RequestPage{Page: f.Page, PerPage: f.PerPage, Requests: []*leave.Request{}}
	total, err := s.requests.CountDocuments(ctx, filter)
	if err != nil {
		return page, fmt.Errorf("count requests: %w", err)
	}
	page.Total = int(total)

	opts := options.Find().
		SetSort(bson.D{{Key: "requested_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(f.Offset())).
		SetLimit(int64(f.PerPage))
	cursor, err := s.requests.Find(ctx, filter, opts)
	if err != nil {
		return page, fmt.Errorf("find requests: %w", err)
	}
	var docs []requestDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return page, fmt.Errorf("decode requests: %w", err)
	}
	for i := range docs {
		r, err := docs[i].toRequest()
		if err != nil {
			return page, err
		}
		page.Requests = append(page.Requests, r)
	}
	return page, nil
}

// missOrConflict tells a lost race from a missing document.
func (s *Store) missOrConflict(ctx context.Context, coll *mongo.Collection, entity, id string) error {
	n, err := coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("count %s: %w", entity, err)
	}
	if n == 0 {
		return &generic.NotFoundError{Entity: entity, ID: id}
	}
	return generic.ErrPersistenceConflict
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) CreateEmployee(ctx context.Context, e *leave.Employee) error {
	e.Version = 1
	_, err := s.employees.InsertOne(ctx, toEmployeeDoc(e))
	if mongo.IsDuplicateKeyError(err) {
		return generic.Invalid("id", "employee %s already exists", e.ID)
	}
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	var doc employeeDoc
	err := s.employees.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &generic.NotFoundError{Entity: "employee", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find employee: %w", err)
	}
	return doc.toEmployee(), nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	cursor, err := s.employees.Find(ctx, bson.M{"active": true}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find employees: %w", err)
	}
	var docs []employeeDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode employees: %w", err)
	}
	out := make([]leave.Employee, 0, len(docs))
	for i := range docs {
		out = append(out, *docs[i].toEmployee())
	}
	return out, nil
}

func (s *Store) SaveEmployeeProfile(ctx context.Context, e *leave.Employee, expectedVersion int64) error {
	inactivity := e.Inactivity
	if inactivity == nil {
		inactivity = accrual.Timeline{}
	}
	update := bson.M{
		"$set": bson.M{
			"name":               e.Name,
			"email":              e.Email,
			"supervisor_id":      e.SupervisorID,
			"role":               e.Role,
			"regime":             e.Regime,
			"hire_date":          e.HireDate,
			"active":             e.Active,
			"inactivity":         inactivity,
			"balance.historical": toDecimal128(e.Balance.Historical),
			"updated_at":         e.UpdatedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := s.employees.UpdateOne(ctx, bson.M{"_id": e.ID, "version": expectedVersion}, update)
	if err != nil {
		return fmt.Errorf("update employee: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return s.missOrConflict(ctx, s.employees, "employee", e.ID)
}

func (s *Store) ApplyBalanceEffect(ctx context.Context, effect leave.BalanceEffect) error {
	if s.transactional {
		return s.applyEffectInTransaction(ctx, effect)
	}
	return s.applyEffectWithKeyGuard(ctx, effect)
}

func (s *Store) applyEffectInTransaction(ctx context.Context, effect leave.BalanceEffect) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if _, err := s.effects.InsertOne(ctx, toEffectDoc(effect)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, generic.ErrDuplicateIdempotencyKey
			}
			return nil, fmt.Errorf("record balance effect: %w", err)
		}
		res, err := s.employees.UpdateOne(ctx,
			bson.M{"_id": effect.EmployeeID},
			bson.M{"$inc": bson.M{
				"balance.used":     toDecimal128(effect.UsedDelta),
				"balance.refunded": toDecimal128(effect.RefundedDelta),
				"version":          1,
			}},
		)
		if err != nil {
			return nil, fmt.Errorf("apply balance effect: %w", err)
		}
		if res.MatchedCount == 0 {
			return nil, &generic.NotFoundError{Entity: "employee", ID: effect.EmployeeID}
		}
		return nil, nil
	})
	return err
}

func (s *Store) applyEffectWithKeyGuard(ctx context.Context, effect leave.BalanceEffect) error {
	res, err := s.employees.UpdateOne(ctx,
		bson.M{"_id": effect.EmployeeID, "applied_keys": bson.M{"$ne": effect.Key}},
		bson.M{
			"$inc": bson.M{
				"balance.used":     toDecimal128(effect.UsedDelta),
				"balance.refunded": toDecimal128(effect.RefundedDelta),
				"version":          1,
			},
			"$push": bson.M{"applied_keys": effect.Key},
		},
	)
	if err != nil {
		return fmt.Errorf("apply balance effect: %w", err)
	}

	duplicate := false
	if res.MatchedCount == 0 {
		n, err := s.employees.CountDocuments(ctx, bson.M{"_id": effect.EmployeeID})
		if err != nil {
			return fmt.Errorf("count employee: %w", err)
		}
		if n == 0 {
			return &generic.NotFoundError{Entity: "employee", ID: effect.EmployeeID}
		}
		duplicate = true
	}

	// The audit document is keyed like the effect, so a retry repairs it.
	_, err = s.effects.ReplaceOne(ctx, bson.M{"_id": effect.Key}, toEffectDoc(effect), options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record balance effect: %w", err)
	}
	if duplicate {
		return generic.ErrDuplicateIdempotencyKey
	}
	return nil
}

func (s *Store) UpdateAccrual(ctx context.Context, employeeID string, u leave.AccrualUpdate, expectedVersion int64) error {
	update := bson.M{
		"$set": bson.M{
			"balance.accrued":       toDecimal128(u.Accrued),
			"balance.accrued_hours": toDecimal128(u.AccruedHours),
			"balance.total":         toDecimal128(u.Total),
			"balance.computed_at":   u.ComputedAt,
		},
		"$inc": bson.M{"version": 1},
	}
	res, err := s.employees.UpdateOne(ctx, bson.M{"_id": employeeID, "version": expectedVersion}, update)
	if err != nil {
		return fmt.Errorf("update accrual: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}
	return s.missOrConflict(ctx, s.employees, "employee", employeeID)
}

func (s *Store) ListBalanceEffects(ctx context.Context, employeeID string) ([]leave.BalanceEffect, error) {
	cursor, err := s.effects.Find(ctx, bson.M{"employee_id": employeeID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find balance effects: %w", err)
	}
	var docs []effectDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode balance effects: %w", err)
	}
	out := make([]leave.BalanceEffect, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toEffect())
	}
	return out, nil
}

// =============================================================================
// INCONSISTENCIES
// =============================================================================

func (s *Store) SaveInconsistency(ctx context.Context, inc *leave.Inconsistency) error {
	_, err := s.inconsistencies.ReplaceOne(ctx, bson.M{"_id": inc.ID}, toInconsistencyDoc(inc),
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save inconsistency: %w", err)
	}
	return nil
}

func (s *Store) GetInconsistency(ctx context.Context, id string) (*leave.Inconsistency, error) {
	var doc inconsistencyDoc
	err := s.inconsistencies.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &generic.NotFoundError{Entity: "inconsistency", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("find inconsistency: %w", err)
	}
	inc := doc.toInconsistency()
	return &inc, nil
}

func (s *Store) ListInconsistencies(ctx context.Context, openOnly bool) ([]leave.Inconsistency, error) {
	filter := bson.M{}
	if openOnly {
		filter["resolved_at"] = nil
	}
	cursor, err := s.inconsistencies.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find inconsistencies: %w", err)
	}
	var docs []inconsistencyDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode inconsistencies: %w", err)
	}
	out := make([]leave.Inconsistency, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toInconsistency())
	}
	return out, nil
}

// =============================================================================
// DECIMALS
// =============================================================================

func toDecimal128(d decimal.Decimal) bson.Decimal128 {
	v, err := bson.ParseDecimal128(d.String())
	if err != nil {
		v, _ = bson.ParseDecimal128("0")
	}
	return v
}

func fromDecimal128(v bson.Decimal128) decimal.Decimal {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
