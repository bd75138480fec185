package kvstore

import (
	"context"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/kv/adapter"
)

type txContextKey struct{}

// TransactionFromContext extracts the KV transaction carried by ctx.
func TransactionFromContext(ctx context.Context) (adapter.Transaction, bool) {
	tx, ok := ctx.Value(txContextKey{}).(adapter.Transaction)
	return tx, ok && tx != nil
}

// kvUnit is a unit of work owning a KV transaction.
type kvUnit struct {
	tx  adapter.Transaction
	ctx context.Context
}

func (u *kvUnit) Context() context.Context { return u.ctx }
func (u *kvUnit) Commit() error            { return u.tx.Commit(u.ctx) }
func (u *kvUnit) Rollback() error          { return u.tx.Rollback() }

// Begin starts a unit of work, joining the transaction carried by ctx when
// there is one.
func (s *Service) Begin(ctx context.Context) (store.UnitOfWork, error) {
	if _, ok := TransactionFromContext(ctx); ok {
		return store.JoinedUnit{Ctx: ctx}, nil
	}
	if !s.adapter.SupportsTransactions() {
		return nil, store.WrapDriverError(store.ErrNotSupported, s.adapter.Name(), "begin")
	}
	tx, err := s.connection.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &kvUnit{tx: tx, ctx: context.WithValue(ctx, txContextKey{}, tx)}, nil
}

// WithTx runs fn in a unit of work, committing when it succeeds.
func (s *Service) WithTx(ctx context.Context, fn func(context.Context) error) error {
	return store.RunTx(ctx, s.Begin, fn)
}
