package store

import (
	"fmt"
	"strings"
)

// SaveResult is the outcome of one record within a batch call.
type SaveResult struct {
	Index   int    // position of the record in the submitted batch
	ID      string // record ID after the call (empty when a create failed)
	Created bool   // true when the call inserted the record
	Err     error
}

// Success reports whether the record was persisted.
func (r SaveResult) Success() bool { return r.Err == nil }

// BatchResult collects per-record outcomes in submission order.
type BatchResult struct {
	Operation string
	Object    ObjectType
	Results   []SaveResult
}

// NewBatchResult creates a result sized for n records.
func NewBatchResult(operation string, object ObjectType, n int) BatchResult {
	return BatchResult{Operation: operation, Object: object, Results: make([]SaveResult, 0, n)}
}

// Add appends one record outcome.
func (b *BatchResult) Add(r SaveResult) {
	b.Results = append(b.Results, r)
}

// Succeeded returns the outcomes of persisted records.
func (b BatchResult) Succeeded() []SaveResult {
	var out []SaveResult
	for _, r := range b.Results {
		if r.Err == nil {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns the outcomes of records that were not persisted.
func (b BatchResult) Failed() []SaveResult {
	var out []SaveResult
	for _, r := range b.Results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// OK reports whether every record was persisted.
func (b BatchResult) OK() bool {
	for _, r := range b.Results {
		if r.Err != nil {
			return false
		}
	}
	return true
}

// Err returns a *BatchError describing the failed records, or nil.
func (b BatchResult) Err() error {
	failed := b.Failed()
	if len(failed) == 0 {
		return nil
	}
	return &BatchError{
		Operation: b.Operation,
		Object:    b.Object,
		Total:     len(b.Results),
		Failures:  failed,
	}
}

// Merge appends the outcomes of other, shifting their indexes by offset.
func (b *BatchResult) Merge(other BatchResult, offset int) {
	for _, r := range other.Results {
		r.Index += offset
		b.Results = append(b.Results, r)
	}
}

// BatchError reports a batch call in which some records failed.
type BatchError struct {
	Operation string
	Object    ObjectType
	Total     int
	Failures  []SaveResult
}

func (e *BatchError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("[%d] %v", f.Index, f.Err))
	}
	return fmt.Sprintf("%s %s: %d of %d records failed: %s",
		e.Operation, e.Object, len(e.Failures), e.Total, strings.Join(parts, "; "))
}

// Unwrap exposes the per-record causes to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// Partial reports whether at least one record succeeded.
func (e *BatchError) Partial() bool {
	return len(e.Failures) < e.Total
}
