package sqlstore

import (
	"fmt"
	"strings"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/sql/adapter"
)

// SQLCompiler compiles a backend-agnostic store.Query into SQL for one table.
type SQLCompiler struct {
	dialect adapter.Dialect
	table   string
	columns []string
}

// NewSQLCompiler creates a compiler selecting columns from table.
func NewSQLCompiler(dialect adapter.Dialect, table string, columns []string) *SQLCompiler {
	return &SQLCompiler{dialect: dialect, table: table, columns: columns}
}

// Compile renders a SELECT for q.
func (c *SQLCompiler) Compile(q store.Query) (*CompiledSQL, error) {
	qb := NewQueryBuilder(c.dialect, c.table).Select(c.columns...)
	if err := c.applyFilter(qb, q.Filter); err != nil {
		return nil, err
	}

	for _, o := range q.OrderBy {
		if o.Desc {
			qb.OrderByDesc(o.Field)
		} else {
			qb.OrderByAsc(o.Field)
		}
	}

	if q.Limit != nil {
		if *q.Limit < 0 {
			return nil, fmt.Errorf("%w: negative limit", store.ErrInvalidQuery)
		}
		qb.Limit(*q.Limit)
	}
	if q.Offset != nil {
		if *q.Offset < 0 {
			return nil, fmt.Errorf("%w: negative offset", store.ErrInvalidQuery)
		}
		qb.Offset(*q.Offset)
	}

	return qb.Build(), nil
}

// CompileCount renders a SELECT COUNT(*) for the filter of q.
func (c *SQLCompiler) CompileCount(q store.Query) (*CompiledSQL, error) {
	qb := NewQueryBuilder(c.dialect, c.table).Select("COUNT(*)")
	if err := c.applyFilter(qb, q.Filter); err != nil {
		return nil, err
	}
	return qb.Build(), nil
}

func (c *SQLCompiler) applyFilter(qb *QueryBuilder, filter store.Node) error {
	if filter == nil {
		return nil
	}
	where, err := compileNode(c.dialect, filter, qb.args)
	if err != nil {
		return err
	}
	qb.whereRaw(where)
	return nil
}

// compileNode renders a filter tree, binding its values through args.
func compileNode(d adapter.Dialect, n store.Node, args *argList) (string, error) {
	switch v := n.(type) {
	case store.Condition:
		return compileCondition(d, v, args)
	case store.And:
		return compileGroup(d, v.Children, " AND ", args)
	case store.Or:
		return compileGroup(d, v.Children, " OR ", args)
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: unsupported filter node %T", store.ErrInvalidQuery, n)
	}
}

func compileGroup(d adapter.Dialect, children []store.Node, sep string, args *argList) (string, error) {
	parts := make([]string, 0, len(children))
	for _, ch := range children {
		s, err := compileNode(d, ch, args)
		if err != nil {
			return "", err
		}
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func compileCondition(d adapter.Dialect, cond store.Condition, args *argList) (string, error) {
	f := cond.Field
	if f == "" {
		return "", fmt.Errorf("%w: condition without field", store.ErrInvalidQuery)
	}

	switch cond.Op {
	case store.OpEq:
		return fmt.Sprintf("%s = %s", f, args.add(cond.Value)), nil
	case store.OpNe:
		return fmt.Sprintf("%s <> %s", f, args.add(cond.Value)), nil
	case store.OpGt:
		return fmt.Sprintf("%s > %s", f, args.add(cond.Value)), nil
	case store.OpGe:
		return fmt.Sprintf("%s >= %s", f, args.add(cond.Value)), nil
	case store.OpLt:
		return fmt.Sprintf("%s < %s", f, args.add(cond.Value)), nil
	case store.OpLe:
		return fmt.Sprintf("%s <= %s", f, args.add(cond.Value)), nil
	case store.OpIn, store.OpNotIn:
		vals, ok := cond.Value.([]any)
		if !ok {
			return "", fmt.Errorf("%w: %s on %s needs a value list", store.ErrInvalidQuery, cond.Op, f)
		}
		if len(vals) == 0 {
			// Nothing is IN an empty set, everything is NOT IN it.
			if cond.Op == store.OpIn {
				return "1=0", nil
			}
			return "1=1", nil
		}
		ph := make([]string, len(vals))
		for i, v := range vals {
			ph[i] = args.add(v)
		}
		op := "IN"
		if cond.Op == store.OpNotIn {
			op = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", f, op, strings.Join(ph, ", ")), nil
	case store.OpBetween:
		r, ok := cond.Value.([2]any)
		if !ok {
			return "", fmt.Errorf("%w: between on %s needs two bounds", store.ErrInvalidQuery, f)
		}
		lo := args.add(r[0])
		hi := args.add(r[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", f, lo, hi), nil
	case store.OpPrefix:
		return fmt.Sprintf("%s LIKE %s", f, args.add(fmt.Sprintf("%s%%", cond.Value))), nil
	case store.OpSuffix:
		return fmt.Sprintf("%s LIKE %s", f, args.add(fmt.Sprintf("%%%s", cond.Value))), nil
	case store.OpContains:
		return fmt.Sprintf("%s LIKE %s", f, args.add(fmt.Sprintf("%%%s%%", cond.Value))), nil
	case store.OpLike:
		return fmt.Sprintf("%s LIKE %s", f, args.add(cond.Value)), nil
	case store.OpILike:
		if d.SupportsILike {
			return fmt.Sprintf("%s ILIKE %s", f, args.add(cond.Value)), nil
		}
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(%s)", f, args.add(cond.Value)), nil
	case store.OpIsNull:
		return fmt.Sprintf("%s IS NULL", f), nil
	case store.OpNotNull:
		return fmt.Sprintf("%s IS NOT NULL", f), nil
	default:
		return "", fmt.Errorf("%w: operator %q", store.ErrNotSupported, cond.Op)
	}
}
