package kvstore

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	store "github.com/synergyfw/crmstore"
)

// matches evaluates a filter tree against a record's column values.
func matches(n store.Node, values map[string]any) (bool, error) {
	switch v := n.(type) {
	case nil:
		return true, nil
	case store.Condition:
		return matchCondition(v, values)
	case store.And:
		for _, ch := range v.Children {
			ok, err := matches(ch, values)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case store.Or:
		if len(v.Children) == 0 {
			return true, nil
		}
		for _, ch := range v.Children {
			ok, err := matches(ch, values)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unsupported filter node %T", store.ErrInvalidQuery, n)
	}
}

func matchCondition(c store.Condition, values map[string]any) (bool, error) {
	actual := values[c.Field]

	switch c.Op {
	case store.OpEq, store.OpNe, store.OpGt, store.OpGe, store.OpLt, store.OpLe:
		cmp, err := compare(actual, c.Value)
		if err != nil {
			return false, err
		}
		switch c.Op {
		case store.OpEq:
			return cmp == 0, nil
		case store.OpNe:
			return cmp != 0, nil
		case store.OpGt:
			return cmp > 0, nil
		case store.OpGe:
			return cmp >= 0, nil
		case store.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case store.OpIn, store.OpNotIn:
		vals, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("%w: %s on %s needs a value list", store.ErrInvalidQuery, c.Op, c.Field)
		}
		found := false
		for _, v := range vals {
			cmp, err := compare(actual, v)
			if err != nil {
				return false, err
			}
			if cmp == 0 {
				found = true
				break
			}
		}
		return found == (c.Op == store.OpIn), nil
	case store.OpBetween:
		r, ok := c.Value.([2]any)
		if !ok {
			return false, fmt.Errorf("%w: between on %s needs two bounds", store.ErrInvalidQuery, c.Field)
		}
		lo, err := compare(actual, r[0])
		if err != nil {
			return false, err
		}
		hi, err := compare(actual, r[1])
		if err != nil {
			return false, err
		}
		return lo >= 0 && hi <= 0, nil
	case store.OpPrefix:
		return strings.HasPrefix(fmt.Sprint(actual), fmt.Sprint(c.Value)), nil
	case store.OpSuffix:
		return strings.HasSuffix(fmt.Sprint(actual), fmt.Sprint(c.Value)), nil
	case store.OpContains:
		return strings.Contains(fmt.Sprint(actual), fmt.Sprint(c.Value)), nil
	case store.OpLike, store.OpILike:
		re, err := likePattern(fmt.Sprint(c.Value), c.Op == store.OpILike)
		if err != nil {
			return false, err
		}
		return re.MatchString(fmt.Sprint(actual)), nil
	case store.OpRegex:
		re, err := regexp.Compile(fmt.Sprint(c.Value))
		if err != nil {
			return false, fmt.Errorf("%w: %v", store.ErrQuerySyntax, err)
		}
		return re.MatchString(fmt.Sprint(actual)), nil
	case store.OpIsNull:
		return actual == nil, nil
	case store.OpNotNull:
		return actual != nil, nil
	default:
		return false, fmt.Errorf("%w: operator %q", store.ErrNotSupported, c.Op)
	}
}

// likePattern translates a SQL LIKE pattern (% and _) into a regexp.
func likePattern(pattern string, fold bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if fold {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			b.WriteString(".*")
		case '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrQuerySyntax, err)
	}
	return re, nil
}

// compare orders two column values. Numbers compare as decimals whatever
// their Go type.
func compare(a, b any) (int, error) {
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Cmp(db), nil
		}
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return strings.Compare(av, bv), nil
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv), nil
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0, nil
			case !av:
				return -1, nil
			default:
				return 1, nil
			}
		}
	case nil:
		if b == nil {
			return 0, nil
		}
		return -1, nil
	}
	return 0, fmt.Errorf("%w: cannot compare %T with %T", store.ErrInvalidQuery, a, b)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	default:
		return decimal.Decimal{}, false
	}
}

// sortRecords orders records by the query's terms, then by ID.
func sortRecords(recs []store.Record, orders []store.Order) error {
	var sortErr error
	sort.SliceStable(recs, func(i, j int) bool {
		vi, vj := recs[i].Values(), recs[j].Values()
		for _, o := range orders {
			cmp, err := compare(vi[o.Field], vj[o.Field])
			if err != nil {
				sortErr = err
				return false
			}
			if cmp != 0 {
				if o.Desc {
					return cmp > 0
				}
				return cmp < 0
			}
		}
		return recs[i].GetID() < recs[j].GetID()
	})
	return sortErr
}
