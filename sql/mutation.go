package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/sql/adapter"
)

// MutationExecutor compiles and executes mutations for SQL databases.
type MutationExecutor struct {
	exec    *QueryExecutor
	dialect adapter.Dialect
	seq     atomic.Uint64
}

// NewMutationExecutor creates a new SQL mutation executor.
func NewMutationExecutor(db *sql.DB, dialect adapter.Dialect) *MutationExecutor {
	return &MutationExecutor{exec: NewQueryExecutor(db), dialect: dialect}
}

// Execute compiles a mutation for table and runs it.
func (me *MutationExecutor) Execute(ctx context.Context, table string, mutation store.Mutation) (store.MutationResult, error) {
	compiled, err := CompileMutation(me.dialect, table, mutation)
	if err != nil {
		return store.MutationResult{}, err
	}
	return me.ExecuteCompiled(ctx, compiled)
}

// ExecuteCompiled executes a pre-compiled mutation.
func (me *MutationExecutor) ExecuteCompiled(ctx context.Context, compiled *CompiledSQL) (store.MutationResult, error) {
	result, err := me.exec.Exec(ctx, compiled)
	if err != nil {
		return store.MutationResult{}, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return store.MutationResult{}, err
	}
	return store.MutationResult{RowsAffected: rowsAffected}, nil
}

// InSavepoint runs fn inside a savepoint of the context's transaction so a
// failing statement is undone without aborting the surrounding work.
// Without a transaction fn runs as is.
func (me *MutationExecutor) InSavepoint(ctx context.Context, fn func(context.Context) error) error {
	tx, ok := TransactionFromContext(ctx)
	if !ok || tx == nil {
		return fn(ctx)
	}

	name := fmt.Sprintf("crm_sp_%d", me.seq.Add(1))
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return store.WrapTransactionError(err, "savepoint")
	}

	if err := fn(ctx); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return store.WrapTransactionError(rbErr, "rollback_savepoint")
		}
		_, _ = tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return store.WrapTransactionError(err, "release_savepoint")
	}
	return nil
}
