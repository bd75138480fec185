package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RepositoryBase provides common functionality for all backend repositories:
// schema lookup, validation, identity assignment, timestamps, error wrapping,
// logging and metrics.
type RepositoryBase struct {
	backend   string
	registry  *Registry
	validator *validator.Validate
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// BaseOption configures a RepositoryBase.
type BaseOption func(*RepositoryBase)

// WithLogger sets the repository logger.
func WithLogger(l *zap.Logger) BaseOption {
	return func(r *RepositoryBase) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRepositoryMetrics sets the metrics sink.
func WithRepositoryMetrics(m *Metrics) BaseOption {
	return func(r *RepositoryBase) { r.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) BaseOption {
	return func(r *RepositoryBase) { r.now = now }
}

// NewRepositoryBase creates a new base repository for a backend.
func NewRepositoryBase(backend string, registry *Registry, opts ...BaseOption) *RepositoryBase {
	r := &RepositoryBase{
		backend:   backend,
		registry:  registry,
		validator: validator.New(validator.WithRequiredStructEnabled()),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("backend", backend))
	return r
}

// Backend returns the backend name.
func (r *RepositoryBase) Backend() string { return r.backend }

// Registry returns the schema registry.
func (r *RepositoryBase) Registry() *Registry { return r.registry }

// Logger returns the repository logger.
func (r *RepositoryBase) Logger() *zap.Logger { return r.logger }

// Metrics returns the metrics sink (may be nil).
func (r *RepositoryBase) Metrics() *Metrics { return r.metrics }

// Now returns the current timestamp at microsecond precision in UTC.
func (r *RepositoryBase) Now() time.Time {
	return r.now().UTC().Truncate(time.Microsecond)
}

// Schema returns the schema for an object type.
func (r *RepositoryBase) Schema(object ObjectType) (*Schema, error) {
	return r.registry.Get(object)
}

// BatchSchema returns the schema shared by every record in a batch.
// Mixed batches are rejected.
func (r *RepositoryBase) BatchSchema(records []Record) (*Schema, error) {
	if len(records) == 0 {
		return nil, NewValidationError("batch is empty")
	}
	object := records[0].Object()
	for i, rec := range records {
		if rec == nil {
			return nil, NewValidationErrorForField("records", i, "record cannot be nil")
		}
		if rec.Object() != object {
			return nil, NewValidationErrorForField("records", i,
				fmt.Sprintf("mixed batch: %s and %s", object, rec.Object()))
		}
	}
	return r.Schema(object)
}

// Validate validates a record against its struct tags.
func (r *RepositoryBase) Validate(ctx context.Context, rec Record) error {
	if err := r.validator.StructCtx(ctx, rec); err != nil {
		return NewValidationErrorFromValidator(err, rec.Object())
	}
	return nil
}

// ValidateID validates a record ID.
func (r *RepositoryBase) ValidateID(id string) error {
	if id == "" {
		return NewValidationErrorForField("id", id, "record ID cannot be empty")
	}
	return nil
}

// ValidateQuery rejects queries referencing unknown columns.
func (r *RepositoryBase) ValidateQuery(schema *Schema, q Query) error {
	for _, f := range q.Fields() {
		if !schema.HasColumn(f) {
			return fmt.Errorf("%w: unknown field %q on %s", ErrInvalidQuery, f, schema.Object)
		}
	}
	return nil
}

// PrepareCreate validates a new record, assigns its ID and timestamps.
// It reports whether an ID was assigned so a failed insert can undo it.
func (r *RepositoryBase) PrepareCreate(ctx context.Context, rec Record) (assigned bool, err error) {
	if err := r.Validate(ctx, rec); err != nil {
		return false, err
	}
	if rec.GetID() == "" {
		rec.SetID(NewID())
		assigned = true
	}
	r.SetTimestamps(rec, true)
	return assigned, nil
}

// PrepareUpdate validates an existing record and refreshes updated_at.
func (r *RepositoryBase) PrepareUpdate(ctx context.Context, rec Record) error {
	if err := r.ValidateID(rec.GetID()); err != nil {
		return err
	}
	if err := r.Validate(ctx, rec); err != nil {
		return err
	}
	r.SetTimestamps(rec, false)
	return nil
}

// SetTimestamps sets created_at and updated_at timestamps.
func (r *RepositoryBase) SetTimestamps(rec Record, isCreate bool) {
	now := r.Now()
	if isCreate {
		rec.SetCreatedAt(now)
	}
	rec.SetUpdatedAt(now)
}

// Finish records metrics and logs failures of a batch call made with ctx.
func (r *RepositoryBase) Finish(ctx context.Context, res BatchResult, started time.Time) BatchResult {
	r.metrics.ObserveBatch(ctx, r.backend, res, started)
	for _, f := range res.Failed() {
		r.logger.Debug("record failed",
			zap.String("operation", res.Operation),
			zap.String("object", res.Object.String()),
			zap.Int("index", f.Index),
			zap.Error(f.Err),
		)
	}
	return res
}

// Error handling helpers

// HandleGetError wraps get operation errors with context.
func (r *RepositoryBase) HandleGetError(err error, object ObjectType, operation, id string) error {
	if err == nil {
		return nil
	}
	return WrapRepositoryError(err, object.String(), operation, map[string]any{"id": id})
}

// HandleUpdateError wraps update operation errors with context.
func (r *RepositoryBase) HandleUpdateError(err error, object ObjectType, operation, id string) error {
	if err == nil {
		return nil
	}
	return WrapRepositoryError(err, object.String(), operation, map[string]any{"id": id})
}

// HandleQueryError wraps query operation errors with context.
func (r *RepositoryBase) HandleQueryError(err error, object ObjectType, operation string, context map[string]any) error {
	if err == nil {
		return nil
	}
	return WrapRepositoryError(err, object.String(), operation, context)
}
