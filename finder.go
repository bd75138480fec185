package store

import (
	"context"
	"fmt"
)

// objectOf returns the object type of T without needing a value.
func objectOf[T Record]() ObjectType {
	var zero T
	return zero.Object()
}

// FindAll runs q against the records of T's type.
func FindAll[T Record](ctx context.Context, f Finder, q Query) ([]T, error) {
	object := objectOf[T]()
	found, err := f.Find(ctx, object, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(found))
	for _, rec := range found {
		typed, ok := rec.(T)
		if !ok {
			return nil, fmt.Errorf("%w: finder returned %T for %s", ErrInternal, rec, object)
		}
		out = append(out, typed)
	}
	return out, nil
}

// FindFirst returns the first match of q, or ok=false when nothing matches.
func FindFirst[T Record](ctx context.Context, f Finder, q Query) (rec T, ok bool, err error) {
	found, err := FindAll[T](ctx, f, q.WithLimit(1))
	if err != nil || len(found) == 0 {
		return rec, false, err
	}
	return found[0], true, nil
}

// Get returns the record of T's type with the given ID.
// A missing record is a *RecordNotFoundError.
func Get[T Record](ctx context.Context, f Finder, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, NewValidationErrorForField("id", id, "record ID cannot be empty")
	}
	rec, ok, err := FindFirst[T](ctx, f, Where(Eq(ColumnID, id)))
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, NewRecordNotFoundError(objectOf[T]().String(), id)
	}
	return rec, nil
}

// Records converts a typed slice for the Store methods.
func Records[T Record](items []T) []Record {
	out := make([]Record, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}
