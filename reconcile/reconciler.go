// Package reconcile implements "ensure this record exists and is in the
// right state" operations over a store.Backend.
//
// Every operation runs inside one unit of work: it either commits all of its
// writes or none, except UpsertOpportunityList, which commits the records
// that could be saved and reports the rest in its BatchResult.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	store "github.com/synergyfw/crmstore"
)

// Description markers written by the account resolver.
const (
	AccountCreatedMarker = "Created by crmstore reconciler"
	AccountUpdatedMarker = "Updated by crmstore reconciler"
)

// NormalizedAmount is the amount UpsertOpportunityList assigns.
const NormalizedAmount int64 = 50000

// accountLookupLimit caps the account matches UpsertOpportunities considers.
const accountLookupLimit = 10

// Reconciler runs reconciliation operations against a backend.
type Reconciler struct {
	backend store.Backend
	logger  *zap.Logger
	now     func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides the clock used to compute close dates.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// New creates a Reconciler over backend.
func New(backend store.Backend, opts ...Option) *Reconciler {
	r := &Reconciler{
		backend: backend,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("reconcile")
	return r
}

// Today returns the current date at midnight UTC.
func (r *Reconciler) Today() time.Time {
	t := r.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// saved turns a batch call into a single error: the call error, or the
// batch's *store.BatchError when any record failed.
func saved(res store.BatchResult, err error) error {
	if err != nil {
		return err
	}
	return res.Err()
}

// mutate loads the record of T's type with the given id, applies fn and
// writes it back in one unit of work.
func mutate[T store.Record](ctx context.Context, r *Reconciler, id string, fn func(T) error) (T, error) {
	var out T
	err := r.backend.WithTx(ctx, func(ctx context.Context) error {
		rec, err := store.Get[T](ctx, r.backend, id)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		if err := saved(r.backend.Update(ctx, rec)); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

// distinct returns values without duplicates, in first-appearance order.
func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
