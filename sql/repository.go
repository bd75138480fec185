package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/sql/adapter"
)

// Repository stores every registered record type in its own table.
type Repository struct {
	*store.RepositoryBase
	adapter adapter.Adapter
	dialect adapter.Dialect

	transactionHandler *TransactionHandler
	queryExecutor      *QueryExecutor
	mutationExecutor   *MutationExecutor
	paginator          *SQLPaginator
}

// Ensure Repository satisfies the backend contract.
var _ store.Backend = (*Repository)(nil)

// NewRepository creates a repository over an open database.
func NewRepository(db *sql.DB, adpt adapter.Adapter, registry *store.Registry, opts ...store.BaseOption) *Repository {
	dialect := adpt.Dialect()
	return &Repository{
		RepositoryBase:     store.NewRepositoryBase(dialect.Name, registry, opts...),
		adapter:            adpt,
		dialect:            dialect,
		transactionHandler: NewTransactionHandler(db, adpt),
		queryExecutor:      NewQueryExecutor(db),
		mutationExecutor:   NewMutationExecutor(db, dialect),
		paginator:          NewSQLPaginator(),
	}
}

// Transactions

func (r *Repository) Begin(ctx context.Context) (store.UnitOfWork, error) {
	return r.transactionHandler.Begin(ctx)
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return r.transactionHandler.WithTx(ctx, fn)
}

// Writes

// Create inserts each record. Records get a new ID unless they carry one.
func (r *Repository) Create(ctx context.Context, records ...store.Record) (store.BatchResult, error) {
	return r.runBatch(ctx, "create", records, func(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
		return r.createOne(ctx, schema, i, rec)
	})
}

// Update writes every column of each record, matched by ID.
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

// runBatch applies fn to every record inside one transaction. Each record
// runs in its own savepoint, so failures are isolated and reported in the
// result while the successful records are committed.
func (r *Repository) runBatch(ctx context.Context, op string, records []store.Record, fn recordFunc) (store.BatchResult, error) {
	started := time.Now()
	schema, err := r.BatchSchema(records)
	if err != nil {
		return store.BatchResult{}, err
	}

	var res store.BatchResult
	err = r.transactionHandler.WithTx(ctx, func(ctx context.Context) error {
		res = store.NewBatchResult(op, schema.Object, len(records))
		for i, rec := range records {
			out := fn(ctx, schema, i, rec)
			if out.Err != nil && errors.Is(out.Err, store.ErrConnectionFailed) {
				return out.Err
			}
			res.Add(out)
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
	err = r.mutationExecutor.InSavepoint(ctx, func(ctx context.Context) error {
		_, err := r.mutationExecutor.Execute(ctx, schema.Table, store.InsertRecord(rec))
		return err
	})
	if err != nil {
		if assigned {
			rec.SetID("")
		}
		return store.SaveResult{Index: i, Err: r.classify(err, schema, "create")}
	}
	return store.SaveResult{Index: i, ID: rec.GetID(), Created: true}
}

func (r *Repository) updateOne(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
	if err := r.PrepareUpdate(ctx, rec); err != nil {
		return store.SaveResult{Index: i, ID: rec.GetID(), Err: err}
	}
	err := r.mutationExecutor.InSavepoint(ctx, func(ctx context.Context) error {
		res, err := r.mutationExecutor.Execute(ctx, schema.Table, store.UpdateRecord(rec))
		if err != nil {
			return r.classify(err, schema, "update")
		}
		if res.RowsAffected == 0 {
			return store.NewRecordNotFoundError(schema.Object.String(), rec.GetID())
		}
		return nil
	})
	return store.SaveResult{Index: i, ID: rec.GetID(), Err: err}
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

	compiled, err := NewSQLCompiler(r.dialect, schema.Table, []string{store.ColumnID, store.ColumnCreatedAt}).
		Compile(store.Where(conds...).WithOrder(store.Asc(store.ColumnID)).WithLimit(2))
	if err != nil {
		return store.SaveResult{Index: i, Err: err}
	}

	// The lookup gets its own savepoint: a failed statement aborts a
	// Postgres transaction until it is rolled back.
	var matches []upsertMatch
	err = r.mutationExecutor.InSavepoint(ctx, func(ctx context.Context) error {
		var err error
		matches, err = r.findMatches(ctx, compiled)
		return err
	})
	if err != nil {
		return store.SaveResult{Index: i, Err: r.classify(err, schema, "upsert")}
	}

	switch len(matches) {
	case 0:
		rec.SetID("")
		return r.createOne(ctx, schema, i, rec)
	case 1:
		rec.SetID(matches[0].id)
		rec.SetCreatedAt(matches[0].created.UTC())
		return r.updateOne(ctx, schema, i, rec)
	default:
		return store.SaveResult{Index: i, Err: fmt.Errorf("%w: %s on %v", store.ErrDuplicateMatch, schema.Object, []string(key))}
	}
}

type upsertMatch struct {
	id      string
	created time.Time
}

func (r *Repository) findMatches(ctx context.Context, compiled *CompiledSQL) ([]upsertMatch, error) {
	rows, err := r.queryExecutor.Query(ctx, compiled)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []upsertMatch
	for rows.Next() {
		var m upsertMatch
		if err := rows.Scan(&m.id, &m.created); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *Repository) deleteOne(ctx context.Context, schema *store.Schema, i int, rec store.Record) store.SaveResult {
	id := rec.GetID()
	if err := r.ValidateID(id); err != nil {
		return store.SaveResult{Index: i, Err: err}
	}
	err := r.mutationExecutor.InSavepoint(ctx, func(ctx context.Context) error {
		res, err := r.mutationExecutor.Execute(ctx, schema.Table, store.DeleteRecord(rec))
		if err != nil {
			return r.classify(err, schema, "delete")
		}
		if res.RowsAffected == 0 {
			return store.NewRecordNotFoundError(schema.Object.String(), id)
		}
		return nil
	})
	return store.SaveResult{Index: i, ID: id, Err: err}
}

// classify maps driver errors onto store sentinels and adds table context.
func (r *Repository) classify(err error, schema *store.Schema, op string) error {
	if store.IsQueryError(err) || store.IsValidationError(err) || store.IsRecordNotFoundError(err) {
		return err
	}
	return store.WrapQueryError(adapter.ClassifyError(r.adapter, err), op, schema.Table, "", nil)
}

// Reads

// Find returns the records of object matching q.
func (r *Repository) Find(ctx context.Context, object store.ObjectType, q store.Query) ([]store.Record, error) {
	started := time.Now()
	out, err := r.find(ctx, object, q)
	r.Metrics().ObserveQuery(r.Backend(), object, "find", err, started)
	return out, err
}

func (r *Repository) find(ctx context.Context, object store.ObjectType, q store.Query) ([]store.Record, error) {
	schema, err := r.Schema(object)
	if err != nil {
		return nil, err
	}
	if err := r.ValidateQuery(schema, q); err != nil {
		return nil, err
	}

	compiled, err := NewSQLCompiler(r.dialect, schema.Table, schema.ColumnNames()).Compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.queryExecutor.Query(ctx, compiled)
	if err != nil {
		return nil, r.HandleQueryError(r.classify(err, schema, "find"), object, "find", nil)
	}
	defer rows.Close()

	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows, schema)
		if err != nil {
			return nil, r.HandleQueryError(err, object, "scan", nil)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.HandleQueryError(err, object, "find", nil)
	}
	return out, nil
}

// Count returns the number of records of object matching q.
func (r *Repository) Count(ctx context.Context, object store.ObjectType, q store.Query) (int64, error) {
	started := time.Now()
	n, err := r.count(ctx, object, q)
	r.Metrics().ObserveQuery(r.Backend(), object, "count", err, started)
	return n, err
}

func (r *Repository) count(ctx context.Context, object store.ObjectType, q store.Query) (int64, error) {
	schema, err := r.Schema(object)
	if err != nil {
		return 0, err
	}
	if err := r.ValidateQuery(schema, q); err != nil {
		return 0, err
	}
	compiled, err := NewSQLCompiler(r.dialect, schema.Table, nil).CompileCount(q)
	if err != nil {
		return 0, err
	}
	n, err := r.queryExecutor.Count(ctx, compiled)
	if err != nil {
		return 0, r.HandleQueryError(r.classify(err, schema, "count"), object, "count", nil)
	}
	return n, nil
}

// scanRecord scans one row selected with schema.ColumnNames into a new record.
func scanRecord(rows *sql.Rows, schema *store.Schema) (store.Record, error) {
	rec := schema.New()
	ptrs := rec.Pointers()
	names := schema.ColumnNames()
	dest := make([]any, len(names))
	for i, name := range names {
		p, ok := ptrs[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no field for column %s", store.ErrInternal, schema.Object, name)
		}
		dest[i] = p
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	normalizeTimes(ptrs)
	return rec, nil
}

// normalizeTimes converts scanned times to UTC; drivers differ in the
// location they return.
func normalizeTimes(ptrs map[string]any) {
	for _, p := range ptrs {
		if t, ok := p.(*time.Time); ok {
			*t = t.UTC()
		}
	}
}
