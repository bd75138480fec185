package sqlstore

import (
	"fmt"
	"sort"
	"strings"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/sql/adapter"
)

// CompileMutation compiles a mutation for a given table to SQL and args.
// Columns are emitted in sorted order so the statement text is stable.
func CompileMutation(dialect adapter.Dialect, table string, m store.Mutation) (*CompiledSQL, error) {
	switch mt := m.(type) {
	case store.Insert:
		return compileInsert(dialect, table, mt)
	case store.Update:
		return compileUpdate(dialect, table, mt)
	case store.Delete:
		return compileDelete(dialect, table, mt)
	default:
		return nil, fmt.Errorf("%w: mutation %T", store.ErrNotSupported, m)
	}
}

func compileInsert(dialect adapter.Dialect, table string, m store.Insert) (*CompiledSQL, error) {
	if len(m.Values) == 0 {
		return nil, fmt.Errorf("%w: insert has no values", store.ErrInvalidQuery)
	}
	args := &argList{dialect: dialect}
	cols := sortedKeys(m.Values)
	ph := make([]string, len(cols))
	for i, c := range cols {
		ph[i] = args.add(m.Values[c])
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(ph, ", "))
	return &CompiledSQL{SQL: sql, Args: args.args}, nil
}

func compileUpdate(dialect adapter.Dialect, table string, m store.Update) (*CompiledSQL, error) {
	if len(m.Set) == 0 {
		return nil, fmt.Errorf("%w: update has no set values", store.ErrInvalidQuery)
	}
	if m.Where == nil {
		return nil, fmt.Errorf("%w: update without filter", store.ErrInvalidQuery)
	}
	args := &argList{dialect: dialect}
	setCols := sortedKeys(m.Set)
	setParts := make([]string, len(setCols))
	for i, c := range setCols {
		setParts[i] = fmt.Sprintf("%s = %s", c, args.add(m.Set[c]))
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(setParts, ", "))

	wsql, err := compileNode(dialect, m.Where, args)
	if err != nil {
		return nil, err
	}
	if wsql != "" {
		sql += " WHERE " + wsql
	}
	return &CompiledSQL{SQL: sql, Args: args.args}, nil
}

func compileDelete(dialect adapter.Dialect, table string, m store.Delete) (*CompiledSQL, error) {
	if m.Where == nil {
		return nil, fmt.Errorf("%w: delete without filter", store.ErrInvalidQuery)
	}
	args := &argList{dialect: dialect}
	sql := fmt.Sprintf("DELETE FROM %s", table)
	wsql, err := compileNode(dialect, m.Where, args)
	if err != nil {
		return nil, err
	}
	if wsql != "" {
		sql += " WHERE " + wsql
	}
	return &CompiledSQL{SQL: sql, Args: args.args}, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
