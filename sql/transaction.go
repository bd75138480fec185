package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/sql/adapter"
)

type txContextKey struct{}

// TransactionFromContext extracts an *sql.Tx from context when present.
func TransactionFromContext(ctx context.Context) (*sql.Tx, bool) {
	v := ctx.Value(txContextKey{})
	if v == nil {
		return nil, false
	}
	tx, ok := v.(*sql.Tx)
	return tx, ok
}

// ContextWithTransaction returns a context carrying tx.
func ContextWithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

type TransactionHandler struct {
	db      *sql.DB
	adapter adapter.Adapter
}

func NewTransactionHandler(db *sql.DB, adpt adapter.Adapter) *TransactionHandler {
	return &TransactionHandler{db: db, adapter: adpt}
}

// Ensure TransactionHandler satisfies store.Transactor.
var _ store.Transactor = (*TransactionHandler)(nil)

// sqlUnit is a unit of work owning a database transaction.
type sqlUnit struct {
	tx  *sql.Tx
	ctx context.Context
}

func (u *sqlUnit) Context() context.Context { return u.ctx }

func (u *sqlUnit) Commit() error {
	return u.tx.Commit()
}

// Rollback is safe to call after Commit.
func (u *sqlUnit) Rollback() error {
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

// Begin starts a unit of work, joining the transaction already carried by
// ctx when there is one.
func (t *TransactionHandler) Begin(ctx context.Context) (store.UnitOfWork, error) {
	return t.begin(ctx, t.adapter.DefaultTxOptions())
}

func (t *TransactionHandler) begin(ctx context.Context, opts *sql.TxOptions) (store.UnitOfWork, error) {
	// Reuse existing transaction if present
	if existing, ok := TransactionFromContext(ctx); ok && existing != nil {
		return store.JoinedUnit{Ctx: ctx}, nil
	}

	tx, err := t.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, adapter.ClassifyError(t.adapter, err)
	}
	return &sqlUnit{tx: tx, ctx: ContextWithTransaction(ctx, tx)}, nil
}

func (t *TransactionHandler) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return store.RunTx(ctx, t.Begin, fn)
}

// WithReadTx runs fn in a read-only transaction.
func (t *TransactionHandler) WithReadTx(ctx context.Context, fn func(context.Context) error) error {
	opts := t.adapter.DefaultTxOptions()
	if opts == nil {
		opts = &sql.TxOptions{}
	}
	ro := *opts
	ro.ReadOnly = true

	return store.RunTx(ctx, func(ctx context.Context) (store.UnitOfWork, error) {
		return t.begin(ctx, &ro)
	}, fn)
}
