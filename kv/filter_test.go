package kvstore

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	store "github.com/synergyfw/crmstore"
	"github.com/synergyfw/crmstore/records"
)

func TestMatches(t *testing.T) {
	values := map[string]any{
		"name":       "Acme Corp",
		"stage_name": "Prospecting",
		"amount":     decimal.NewFromInt(50000),
		"close_date": time.Date(2024, 7, 17, 0, 0, 0, 0, time.UTC),
		"account_id": "a1",
		"deleted":    nil,
	}

	tests := []struct {
		name string
		node store.Node
		want bool
	}{
		{"nil filter", nil, true},
		{"eq", store.Eq("account_id", "a1"), true},
		{"ne", store.Ne("account_id", "a1"), false},
		{"int against decimal", store.Ge("amount", 50000), true},
		{"le", store.Le("amount", 50000), true},
		{"float against decimal", store.Lt("amount", 49999.5), false},
		{"time", store.Gt("close_date", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)), true},
		{"in", store.InStrings("stage_name", []string{"Qualification", "Prospecting"}), true},
		{"not in", store.NotIn("stage_name", "Prospecting"), false},
		{"between", store.Between("amount", 1, 50000), true},
		{"prefix", store.Prefix("name", "Acme"), true},
		{"like", store.Like("name", "A_me%"), true},
		{"ilike", store.Condition{Field: "name", Op: store.OpILike, Value: "acme%"}, true},
		{"like is case sensitive", store.Like("name", "acme%"), false},
		{"regex", store.Condition{Field: "name", Op: store.OpRegex, Value: "Corp$"}, true},
		{"is null", store.IsNull("deleted"), true},
		{"not null", store.NotNull("name"), true},
		{"and", store.AllOf(store.Eq("account_id", "a1"), store.Eq("name", "Other")), false},
		{"or", store.AnyOf(store.Eq("account_id", "x"), store.Eq("name", "Acme Corp")), true},
		{"empty or", store.Or{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := matches(tt.node, values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatches_Errors(t *testing.T) {
	values := map[string]any{"name": "Acme", "number_of_employees": 3}

	_, err := matches(store.Eq("name", 3), values)
	assert.ErrorIs(t, err, store.ErrInvalidQuery)

	_, err = matches(store.Condition{Field: "name", Op: store.OpIn, Value: "Acme"}, values)
	assert.ErrorIs(t, err, store.ErrInvalidQuery)

	_, err = matches(store.Condition{Field: "name", Op: store.OpRegex, Value: "("}, values)
	assert.ErrorIs(t, err, store.ErrQuerySyntax)

	_, err = matches(store.Condition{Field: "name", Op: "~~"}, values)
	assert.ErrorIs(t, err, store.ErrNotSupported)
}

func TestLikePattern(t *testing.T) {
	re, err := likePattern("50.0%", false)
	require.NoError(t, err)
	assert.True(t, re.MatchString("50.0 percent"))
	assert.False(t, re.MatchString("5000"))

	re, err = likePattern("case _", true)
	require.NoError(t, err)
	assert.True(t, re.MatchString("CASE 1"))
	assert.False(t, re.MatchString("case 10"))
}

func TestCompare(t *testing.T) {
	cmp, err := compare(decimal.RequireFromString("10.50"), 10.5)
	require.NoError(t, err)
	assert.Zero(t, cmp)

	cmp, err = compare("a", "b")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = compare(true, false)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = compare(nil, "x")
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	_, err = compare(time.Now(), "2024-01-01")
	assert.ErrorIs(t, err, store.ErrInvalidQuery)
}

func TestSortRecords(t *testing.T) {
	recs := []store.Record{
		&records.Account{Base: store.Base{ID: "3"}, Name: "B", NumberOfEmployees: 5},
		&records.Account{Base: store.Base{ID: "1"}, Name: "A", NumberOfEmployees: 5},
		&records.Account{Base: store.Base{ID: "2"}, Name: "C", NumberOfEmployees: 9},
	}

	require.NoError(t, sortRecords(recs, []store.Order{store.Desc("number_of_employees")}))
	ids := []string{recs[0].GetID(), recs[1].GetID(), recs[2].GetID()}
	assert.Equal(t, []string{"2", "1", "3"}, ids)

	require.NoError(t, sortRecords(recs, nil))
	assert.Equal(t, "1", recs[0].GetID())
}
