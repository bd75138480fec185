package sqlstore

import (
	"context"
	"time"

	store "github.com/synergyfw/crmstore"
)

// SQLPaginator wraps the generic cursor paginator with SQL-specific functionality.
type SQLPaginator struct {
	*store.Paginator
}

// NewSQLPaginator creates a new SQL-specific paginator.
func NewSQLPaginator() *SQLPaginator {
	return &SQLPaginator{
		Paginator: store.NewPaginator(),
	}
}

// NewSQLPaginatorWithConfig creates a new SQL paginator with custom config.
func NewSQLPaginatorWithConfig(config store.PaginationConfig) *SQLPaginator {
	return &SQLPaginator{
		Paginator: store.NewPaginatorWithConfig(config),
	}
}

// PageQuery returns the keyset query for one page: records after the
// cursor's ID in ID order, fetching one extra row to detect a next page.
func (p *SQLPaginator) PageQuery(params store.CursorParams) (store.Query, error) {
	afterID, err := p.AfterID(params)
	if err != nil {
		return store.Query{}, store.NewValidationErrorForField("cursor", params.Cursor, err.Error())
	}
	q := store.Query{}.WithOrder(store.Asc(store.ColumnID)).WithLimit(int(params.PageSize) + 1)
	if afterID != "" {
		q.Filter = store.Gt(store.ColumnID, afterID)
	}
	return q, nil
}

// SetPaginator replaces the repository paginator.
func (r *Repository) SetPaginator(p *SQLPaginator) {
	r.paginator = p
}

// List pages through the records of object in ID order. The total count is
// only computed for the first page.
func (r *Repository) List(ctx context.Context, object store.ObjectType, params store.CursorParams) (store.CursorResult[store.Record], error) {
	started := time.Now()
	params = r.paginator.ParseParams(params.PageSize, params.Cursor)

	var result store.CursorResult[store.Record]
	err := r.transactionHandler.WithReadTx(ctx, func(ctx context.Context) error {
		q, err := r.paginator.PageQuery(params)
		if err != nil {
			return err
		}
		items, err := r.find(ctx, object, q)
		if err != nil {
			return err
		}

		hasMore := len(items) > int(params.PageSize)
		if hasMore {
			items = items[:params.PageSize]
		}

		totalCount := int64(-1)
		if params.Cursor == "" {
			if totalCount, err = r.count(ctx, object, store.Query{}); err != nil {
				return err
			}
		}

		result = store.BuildCursorResult(r.paginator.Paginator, items, params.PageSize, hasMore, totalCount)
		return nil
	})
	r.Metrics().ObserveQuery(r.Backend(), object, "list", err, started)
	if err != nil {
		return store.CursorResult[store.Record]{}, err
	}
	return result, nil
}
