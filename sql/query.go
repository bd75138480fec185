package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/synergyfw/crmstore/sql/adapter"
)

// maxLimit stands in for "no limit" when only an offset is given; MySQL and
// SQLite reject OFFSET without LIMIT.
const maxLimit = 1<<63 - 1

// CompiledSQL represents a compiled SQL statement with arguments.
type CompiledSQL struct {
	SQL  string
	Args []any
}

// argList collects bind arguments and renders their placeholders.
type argList struct {
	dialect adapter.Dialect
	args    []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return a.dialect.Placeholder(len(a.args))
}

// QueryBuilder assembles a SELECT statement for one table.
type QueryBuilder struct {
	table   string
	columns []string
	where   []string
	orderBy []string
	limit   *int
	offset  *int
	args    *argList
}

// NewQueryBuilder creates a builder for table using the dialect's placeholders.
func NewQueryBuilder(dialect adapter.Dialect, table string) *QueryBuilder {
	return &QueryBuilder{
		table:   table,
		columns: []string{"*"},
		args:    &argList{dialect: dialect},
	}
}

func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	if len(columns) > 0 {
		qb.columns = columns
	}
	return qb
}

// Where adds a condition; "?" marks in expr are replaced by placeholders
// bound to values in order.
func (qb *QueryBuilder) Where(expr string, values ...any) *QueryBuilder {
	for _, v := range values {
		expr = strings.Replace(expr, "?", qb.args.add(v), 1)
	}
	qb.where = append(qb.where, expr)
	return qb
}

func (qb *QueryBuilder) WhereEq(column string, value any) *QueryBuilder {
	return qb.Where(column+" = ?", value)
}

// whereRaw adds an already rendered condition whose arguments were bound
// through qb.args.
func (qb *QueryBuilder) whereRaw(expr string) *QueryBuilder {
	if expr != "" {
		qb.where = append(qb.where, expr)
	}
	return qb
}

func (qb *QueryBuilder) OrderBy(column, direction string) *QueryBuilder {
	qb.orderBy = append(qb.orderBy, fmt.Sprintf("%s %s", column, strings.ToUpper(direction)))
	return qb
}
func (qb *QueryBuilder) OrderByAsc(column string) *QueryBuilder  { return qb.OrderBy(column, "ASC") }
func (qb *QueryBuilder) OrderByDesc(column string) *QueryBuilder { return qb.OrderBy(column, "DESC") }
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder           { qb.limit = &limit; return qb }
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder         { qb.offset = &offset; return qb }

// Build renders the statement and its arguments.
func (qb *QueryBuilder) Build() *CompiledSQL {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(qb.columns, ", "), qb.table)
	if len(qb.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(qb.where, " AND "))
	}
	if len(qb.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(qb.orderBy, ", "))
	}
	switch {
	case qb.limit != nil:
		fmt.Fprintf(&b, " LIMIT %d", *qb.limit)
	case qb.offset != nil:
		fmt.Fprintf(&b, " LIMIT %d", int64(maxLimit))
	}
	if qb.offset != nil {
		fmt.Fprintf(&b, " OFFSET %d", *qb.offset)
	}
	return &CompiledSQL{SQL: b.String(), Args: qb.args.args}
}

// Executor

// QueryExecutor runs statements on the transaction carried by the context,
// falling back to the pool.
type QueryExecutor struct{ db *sql.DB }

func NewQueryExecutor(db *sql.DB) *QueryExecutor { return &QueryExecutor{db: db} }

func (qe *QueryExecutor) Query(ctx context.Context, c *CompiledSQL) (*sql.Rows, error) {
	if tx, ok := TransactionFromContext(ctx); ok && tx != nil {
		return tx.QueryContext(ctx, c.SQL, c.Args...)
	}
	return qe.db.QueryContext(ctx, c.SQL, c.Args...)
}

func (qe *QueryExecutor) QueryRow(ctx context.Context, c *CompiledSQL) *sql.Row {
	if tx, ok := TransactionFromContext(ctx); ok && tx != nil {
		return tx.QueryRowContext(ctx, c.SQL, c.Args...)
	}
	return qe.db.QueryRowContext(ctx, c.SQL, c.Args...)
}

func (qe *QueryExecutor) Exec(ctx context.Context, c *CompiledSQL) (sql.Result, error) {
	if tx, ok := TransactionFromContext(ctx); ok && tx != nil {
		return tx.ExecContext(ctx, c.SQL, c.Args...)
	}
	return qe.db.ExecContext(ctx, c.SQL, c.Args...)
}

// Count runs c, which must select a single integer.
func (qe *QueryExecutor) Count(ctx context.Context, c *CompiledSQL) (int64, error) {
	var count int64
	err := qe.QueryRow(ctx, c).Scan(&count)
	return count, err
}
