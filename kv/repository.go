package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
)

// Repository stores records as JSON documents keyed "<Object>:<id>".
// Queries scan every record of the type and filter in memory.
type Repository struct {
	*store.RepositoryBase
	kvService *Service
	paginator *store.Paginator
}

// Ensure Repository satisfies the backend contract.
var _ store.Backend = (*Repository)(nil)

// NewRepository creates a new KV repository.
func NewRepository(service *Service, opts ...store.BaseOption) *Repository {
	return &Repository{
		RepositoryBase: store.NewRepositoryBase(service.adapter.Name(), service.registry, opts...),
		kvService:      service,
		paginator:      store.NewPaginator(),
	}
}

func recordKey(object store.ObjectType, id string) string {
	return object.String() + ":" + id
}

func objectPattern(object store.ObjectType) string {
	return object.String() + ":*"
}

// Transactions

func (r *Repository) Begin(ctx context.Context) (store.UnitOfWork, error) {
	return r.kvService.Begin(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return r.kvService.WithTx(ctx, fn)
}

// Writes

// Create stores each record under a new ID unless it carries one.
func (r *Repository) Create(ctx context.Context, records ...store.Record) (store.BatchResult, error) {
	return r.runBatch(ctx, "create", records, func(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
		return r.createOne(ctx, schema, i, rec)
	})
}

// Update replaces each stored record, matched by ID.
func (r *Repository) Update(ctx context.Context, records ...store.Record) (store.BatchResult, error) {
	return r.runBatch(ctx, "update", records, func(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
		return r.updateOne(ctx, schema, i, rec)
	})
}

// Upsert updates the single record matching key or creates a new one.
func (r *Repository) Upsert(ctx context.Context, key store.MatchKey, records ...store.Record) (store.BatchResult, error) {
	if len(key) == 0 {
		return store.BatchResult{}, store.NewValidationErrorForField("key", key, "upsert key cannot be empty")
	}
	return r.runBatch(ctx, "upsert", records, func(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
		return r.upsertOne(ctx, schema, key, i, rec)
	})
}

// Delete removes each record by ID.
func (r *Repository) Delete(ctx context.Context, records ...store.Record) (store.BatchResult, error) {
	return r.runBatch(ctx, "delete", records, func(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
		return r.deleteOne(ctx, schema, i, rec)
	})
}

type recordFunc func(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult

// runBatch applies fn to every record inside one transaction. A record is
// checked fully before anything is written for it, so a failed record
// leaves no trace and the others still commit.
func (r *Repository) runBatch(ctx context.Context, op string, records []store.Record, fn recordFunc) (store.BatchResult, error) {
	started := time.Now()
	schema, err := r.BatchSchema(records)
	if err != nil {
		return store.BatchResult{}, err
	}

	var res store.BatchResult
	err = r.kvService.WithTx(ctx, func(ctx context.Context) error {
		res = store.NewBatchResult(op, schema.Object, len(records))
		for i, rec := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			res.Add(fn(ctx, schema, i, rec))
		}
		return nil
	})
	if err != nil {
		r.Logger().Error("batch aborted",
			zap.String("operation", op),
			zap.String("object", schema.Object.String()),
			zap.Error(err),
		)
		return store.BatchResult{}, r.HandleQueryError(err, schema.Object, op, map[string]any{"records": len(records)})
	}
	return r.Finish(ctx, res, started), nil
}

func (r *Repository) createOne(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
	assigned, err := r.PrepareCreate(ctx, rec)
	if err != nil {
		return store.SaveResult{Index: i, Err: err}
	}
	fail := func(err error) store.SaveResult {
		if assigned {
			rec.SetID("")
		}
		return store.SaveResult{Index: i, Err: err}
	}

	key := recordKey(schema.Object, rec.GetID())
	exists, err := r.kvService.Exists(ctx, key)
	if err != nil {
		return fail(r.HandleGetError(err, schema.Object, "exists_check", rec.GetID()))
	}
	if exists {
		return fail(fmt.Errorf("%w: %s %s: %w", store.ErrUniqueConstraint, schema.Object, rec.GetID(), store.ErrRecordExists))
	}
	if err := r.kvService.SetJSON(ctx, key, rec); err != nil {
		return fail(r.HandleUpdateError(err, schema.Object, "create", rec.GetID()))
	}
	return store.SaveResult{Index: i, ID: rec.GetID(), Created: true}
}

func (r *Repository) updateOne(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
	id := rec.GetID()
	if err := r.PrepareUpdate(ctx, rec); err != nil {
		return store.SaveResult{Index: i, ID: id, Err: err}
	}

	existing, err := r.load(ctx, schema, id)
	if err != nil {
		return store.SaveResult{Index: i, ID: id, Err: err}
	}
	if created, ok := existing.Values()[store.ColumnCreatedAt].(time.Time); ok {
		rec.SetCreatedAt(created)
	}

	if err := r.kvService.SetJSON(ctx, recordKey(schema.Object, id), rec); err != nil {
		return store.SaveResult{Index: i, ID: id, Err: r.HandleUpdateError(err, schema.Object, "update", id)}
	}
	return store.SaveResult{Index: i, ID: id}
}

func (r *Repository) upsertOne(ctx context.Context, schema *store.Schema, key store.MatchKey, i int, rec store.Record) store.SaveResult {
	if key.IsID() {
		if rec.GetID() == "" {
			return r.createOne(ctx, schema, i, rec)
		}
		return r.updateOne(ctx, schema, i, rec)
	}

	values := rec.Values()
	conds := make([]store.Condition, 0, len(key))
	for _, col := range key {
		if !schema.HasColumn(col) {
			return store.SaveResult{Index: i, Err: fmt.Errorf("%w: unknown upsert key %q on %s", store.ErrInvalidQuery, col, schema.Object)}
		}
		conds = append(conds, store.Eq(col, values[col]))
	}

	matched, err := r.find(ctx, schema, store.Where(conds...).WithLimit(2))
	if err != nil {
		return store.SaveResult{Index: i, Err: err}
	}

	switch len(matched) {
	case 0:
		rec.SetID("")
		return r.createOne(ctx, schema, i, rec)
	case 1:
		rec.SetID(matched[0].GetID())
		return r.updateOne(ctx, schema, i, rec)
	default:
		return store.SaveResult{Index: i, Err: fmt.Errorf("%w: %s on %v", store.ErrDuplicateMatch, schema.Object, []string(key))}
	}
}

func (r *Repository) deleteOne(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
	id := rec.GetID()
	if err := r.ValidateID(id); err != nil {
		return store.SaveResult{Index: i, Err: err}
	}

	key := recordKey(schema.Object, id)
	exists, err := r.kvService.Exists(ctx, key)
	if err != nil {
		return store.SaveResult{Index: i, ID: id, Err: r.HandleGetError(err, schema.Object, "exists_check", id)}
	}
	if !exists {
		return store.SaveResult{Index: i, ID: id, Err: store.NewRecordNotFoundError(schema.Object.String(), id)}
	}
	if err := r.kvService.Delete(ctx, key); err != nil {
		return store.SaveResult{Index: i, ID: id, Err: r.HandleUpdateError(err, schema.Object, "delete", id)}
	}
	return store.SaveResult{Index: i, ID: id}
}

// load reads one stored record.
func (r *Repository) load(ctx context.Context, schema *store.Schema, id string) (store.Record, error) {
	rec := schema.New()
	err := r.kvService.GetJSON(ctx, recordKey(schema.Object, id), rec)
	if err != nil {
		if r.kvService.adapter.IsKeyNotFoundError(err) {
			return nil, store.NewRecordNotFoundError(schema.Object.String(), id)
		}
		return nil, r.HandleGetError(err, schema.Object, "get", id)
	}
	return rec, nil
}

// Reads

// Find returns the records of object matching q.
func (r *Repository) Find(ctx context.Context, object store.ObjectType, q store.Query) ([]store.Record, error) {
	started := time.Now()
	out, err := r.findObject(ctx, object, q)
	r.Metrics().ObserveQuery(r.Backend(), object, "find", err, started)
	return out, err
}

func (r *Repository) findObject(ctx context.Context, object store.ObjectType, q store.Query) ([]store.Record, error) {
	schema, err := r.Schema(object)
	if err != nil {
		return nil, err
	}
	if err := r.ValidateQuery(schema, q); err != nil {
		return nil, err
	}
	return r.find(ctx, schema, q)
}

func (r *Repository) find(ctx context.Context, schema *store.Schema, q store.Query) ([]store.Record, error) {
	if (q.Limit != nil && *q.Limit < 0) || (q.Offset != nil && *q.Offset < 0) {
		return nil, fmt.Errorf("%w: negative limit or offset", store.ErrInvalidQuery)
	}

	all, err := r.scan(ctx, schema)
	if err != nil {
		return nil, err
	}

	var out []store.Record
	for _, rec := range all {
		ok, err := matches(q.Filter, rec.Values())
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	if err := sortRecords(out, q.OrderBy); err != nil {
		return nil, err
	}

	if q.Offset != nil {
		if *q.Offset >= len(out) {
			return nil, nil
		}
		out = out[*q.Offset:]
	}
	if q.Limit != nil && *q.Limit < len(out) {
		out = out[:*q.Limit]
	}
	return out, nil
}

// scan loads every record of the schema's type in key order.
func (r *Repository) scan(ctx context.Context, schema *store.Schema) ([]store.Record, error) {
	keys, err := r.kvService.Keys(ctx, objectPattern(schema.Object))
	if err != nil {
		return nil, r.HandleQueryError(err, schema.Object, "scan", nil)
	}
	out := make([]store.Record, 0, len(keys))
	for _, key := range keys {
		rec := schema.New()
		if err := r.kvService.GetJSON(ctx, key, rec); err != nil {
			// Deleted between Keys and Get outside a transaction.
			if errors.Is(err, store.ErrRecordNotFound) || r.kvService.adapter.IsKeyNotFoundError(err) {
				continue
			}
			return nil, r.HandleQueryError(err, schema.Object, "scan", map[string]any{"key": key})
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of records of object matching q.
func (r *Repository) Count(ctx context.Context, object store.ObjectType, q store.Query) (int64, error) {
	started := time.Now()
	q.Limit, q.Offset = nil, nil
	out, err := r.findObject(ctx, object, q)
	r.Metrics().ObserveQuery(r.Backend(), object, "count", err, started)
	return int64(len(out)), err
}

// List pages through the records of object in ID order.
func (r *Repository) List(ctx context.Context, object store.ObjectType, params store.CursorParams) (store.CursorResult[store.Record], error) {
	started := time.Now()
	result, err := r.list(ctx, object, params)
	r.Metrics().ObserveQuery(r.Backend(), object, "list", err, started)
	return result, err
}

func (r *Repository) list(ctx context.Context, object store.ObjectType, params store.CursorParams) (store.CursorResult[store.Record], error) {
	params = r.paginator.ParseParams(params.PageSize, params.Cursor)
	afterID, err := r.paginator.AfterID(params)
	if err != nil {
		return store.CursorResult[store.Record]{}, store.NewValidationErrorForField("cursor", params.Cursor, err.Error())
	}

	schema, err := r.Schema(object)
	if err != nil {
		return store.CursorResult[store.Record]{}, err
	}

	all, err := r.find(ctx, schema, store.Query{})
	if err != nil {
		return store.CursorResult[store.Record]{}, err
	}

	var page []store.Record
	for _, rec := range all {
		if rec.GetID() > afterID {
			page = append(page, rec)
		}
	}
	hasMore := len(page) > int(params.PageSize)
	if hasMore {
		page = page[:params.PageSize]
	}

	totalCount := int64(-1)
	if params.Cursor == "" {
		totalCount = int64(len(all))
	}
	return store.BuildCursorResult(r.paginator, page, params.PageSize, hasMore, totalCount), nil
}
