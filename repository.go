package store

import (
	"context"
)

// MatchKey lists the columns an upsert uses to find an existing record.
type MatchKey []string

// MatchByID matches on the system identifier.
var MatchByID = MatchKey{ColumnID}

// IsID reports whether the key is the system identifier.
func (k MatchKey) IsID() bool {
	return len(k) == 1 && k[0] == ColumnID
}

// Store persists batches of records. Every call is one round trip; failures
// are reported per record in the BatchResult. The error return is reserved
// for failures that affect the whole call (connection loss, unknown type).
type Store interface {
	Create(ctx context.Context, records ...Record) (BatchResult, error)
	Update(ctx context.Context, records ...Record) (BatchResult, error)

	// Upsert updates the record matching key when one exists and creates it
	// otherwise. More than one match is a per-record failure.
	Upsert(ctx context.Context, key MatchKey, records ...Record) (BatchResult, error)

	Delete(ctx context.Context, records ...Record) (BatchResult, error)
}

// Finder retrieves records of one type matching a query.
// Results carry no ordering guarantee unless the query specifies one.
type Finder interface {
	Find(ctx context.Context, object ObjectType, q Query) ([]Record, error)
}

// Lister pages through all records of one type ordered by ID.
type Lister interface {
	List(ctx context.Context, object ObjectType, params CursorParams) (CursorResult[Record], error)
}

// Counter counts records of one type matching a query.
type Counter interface {
	Count(ctx context.Context, object ObjectType, q Query) (int64, error)
}

// Backend is the full set of capabilities a storage backend exposes.
type Backend interface {
	Store
	Finder
	Lister
	Counter
	Transactor
}
