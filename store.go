// Package store provides the record persistence framework behind crmstore:
// backend-agnostic Store/Finder contracts, an explicit unit of work, query and
// mutation types, typed errors and shared configuration.
//
// Core abstractions live at the root level, backend-specific implementations
// in sub-packages (sql for PostgreSQL/MySQL/SQLite, kv for in-memory storage).
package store

import (
	"context"
	"sync"
	"time"
)

// Service defines the common interface for all storage services.
// Different backends (SQL, KV) implement this interface.
type Service interface {
	// Connect establishes the connection to the storage backend
	Connect(ctx context.Context) error

	// Close closes the connection and releases resources
	Close() error

	// Stats returns backend-specific statistics
	Stats() interface{}

	// Backend returns the record backend served by this service
	Backend() Backend

	// WithTimeout creates a context with timeout for operations
	WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc)
}

// UnitOfWork is an explicitly controlled transaction boundary.
// All store calls made with Context() take part in the unit of work.
type UnitOfWork interface {
	Context() context.Context
	Commit() error
	Rollback() error
}

// Transactor provides a backend-agnostic transaction contract.
type Transactor interface {
	// Begin starts a unit of work. When ctx already carries one, the returned
	// unit joins it and its Commit/Rollback are left to the outer owner.
	Begin(ctx context.Context) (UnitOfWork, error)

	// WithTx executes fn within a unit of work, committing when fn succeeds.
	WithTx(ctx context.Context, fn func(context.Context) error) error
}

// RunTx begins a unit of work with begin, executes fn inside it and commits.
// An error or panic from fn rolls the work back. Callbacks registered with
// OnSettle inside an outermost unit run once it commits or rolls back.
func RunTx(ctx context.Context, begin func(context.Context) (UnitOfWork, error), fn func(context.Context) error) (err error) {
	uow, err := begin(ctx)
	if err != nil {
		return WrapTransactionError(err, "begin")
	}

	txCtx := uow.Context()
	var hooks *settleHooks
	if _, joined := uow.(JoinedUnit); !joined {
		hooks = &settleHooks{}
		txCtx = context.WithValue(txCtx, settleHooksKey{}, hooks)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = uow.Rollback()
			hooks.run(false)
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		rbErr := uow.Rollback()
		hooks.run(false)
		if rbErr != nil {
			return WrapTransactionError(rbErr, "rollback")
		}
		return err
	}

	if err := uow.Commit(); err != nil {
		hooks.run(false)
		return WrapTransactionError(err, "commit")
	}
	hooks.run(true)
	return nil
}

type settleHooksKey struct{}

type settleHooks struct {
	mu    sync.Mutex
	funcs []func(committed bool)
}

func (h *settleHooks) add(fn func(bool)) {
	h.mu.Lock()
	h.funcs = append(h.funcs, fn)
	h.mu.Unlock()
}

func (h *settleHooks) run(committed bool) {
	if h == nil {
		return
	}
	h.mu.Lock()
	funcs := h.funcs
	h.funcs = nil
	h.mu.Unlock()
	for _, fn := range funcs {
		fn(committed)
	}
}

// OnSettle runs fn when the outermost unit of work carried by ctx commits or
// rolls back. Without a unit of work fn runs at once as committed.
func OnSettle(ctx context.Context, fn func(committed bool)) {
	if h, ok := ctx.Value(settleHooksKey{}).(*settleHooks); ok {
		h.add(fn)
		return
	}
	fn(true)
}

// JoinedUnit is a unit of work nested in an outer one. It shares the outer
// context and leaves commit and rollback to the owner.
type JoinedUnit struct {
	Ctx context.Context
}

func (j JoinedUnit) Context() context.Context { return j.Ctx }
func (j JoinedUnit) Commit() error            { return nil }
func (j JoinedUnit) Rollback() error          { return nil }
