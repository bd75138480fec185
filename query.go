package store

// Operator represents a comparison operation in filters.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGe       Operator = "ge"
	OpLt       Operator = "lt"
	OpLe       Operator = "le"
	OpIn       Operator = "in"
	OpNotIn    Operator = "not_in"
	OpBetween  Operator = "between"
	OpPrefix   Operator = "prefix"   // string starts with
	OpSuffix   Operator = "suffix"   // string ends with
	OpContains Operator = "contains" // string contains
	OpLike     Operator = "like"     // SQL LIKE pattern
	OpILike    Operator = "ilike"    // case-insensitive LIKE
	OpRegex    Operator = "regex"    // regular expression match
	OpIsNull   Operator = "isnull"
	OpNotNull  Operator = "notnull"
)

// Node is an element of a filter tree: a Condition, And or Or.
type Node interface{ isNode() }

// Condition is a simple filter condition (field op value).
type Condition struct {
	Field string
	Op    Operator
	// Value can be a single value, []any for OpIn, or [2]any for OpBetween.
	Value any
}

func (Condition) isNode() {}

// And matches when every child matches.
type And struct{ Children []Node }

func (And) isNode() {}

// Or matches when any child matches.
type Or struct{ Children []Node }

func (Or) isNode() {}

// AllOf combines nodes with AND.
func AllOf(nodes ...Node) And { return And{Children: nodes} }

// AnyOf combines nodes with OR.
func AnyOf(nodes ...Node) Or { return Or{Children: nodes} }

// Query selects records of one type.
type Query struct {
	Filter  Node
	OrderBy []Order
	Limit   *int
	Offset  *int
}

// Where builds a query whose conditions are ANDed together.
func Where(conds ...Condition) Query {
	if len(conds) == 0 {
		return Query{}
	}
	nodes := make([]Node, len(conds))
	for i, c := range conds {
		nodes[i] = c
	}
	return Query{Filter: AllOf(nodes...)}
}

// WithLimit caps the number of results.
func (q Query) WithLimit(n int) Query {
	q.Limit = &n
	return q
}

// WithOffset skips the first n results.
func (q Query) WithOffset(n int) Query {
	q.Offset = &n
	return q
}

// WithOrder appends ordering terms.
func (q Query) WithOrder(orders ...Order) Query {
	q.OrderBy = append(append([]Order(nil), q.OrderBy...), orders...)
	return q
}

// Fields returns every field referenced by the filter and ordering.
func (q Query) Fields() []string {
	var fields []string
	var walk func(Node)
	walk = func(n Node) {
		switch v := n.(type) {
		case Condition:
			fields = append(fields, v.Field)
		case And:
			for _, c := range v.Children {
				walk(c)
			}
		case Or:
			for _, c := range v.Children {
				walk(c)
			}
		}
	}
	if q.Filter != nil {
		walk(q.Filter)
	}
	for _, o := range q.OrderBy {
		fields = append(fields, o.Field)
	}
	return fields
}

// Order defines ordering on a field.
type Order struct {
	Field string
	Desc  bool
}

// Helper functions for creating conditions
func Eq(field string, value any) Condition {
	return Condition{Field: field, Op: OpEq, Value: value}
}

func Ne(field string, value any) Condition {
	return Condition{Field: field, Op: OpNe, Value: value}
}

func Gt(field string, value any) Condition {
	return Condition{Field: field, Op: OpGt, Value: value}
}

func Ge(field string, value any) Condition {
	return Condition{Field: field, Op: OpGe, Value: value}
}

func Lt(field string, value any) Condition {
	return Condition{Field: field, Op: OpLt, Value: value}
}

func Le(field string, value any) Condition {
	return Condition{Field: field, Op: OpLe, Value: value}
}

func In(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpIn, Value: values}
}

func NotIn(field string, values ...any) Condition {
	return Condition{Field: field, Op: OpNotIn, Value: values}
}

func Between(field string, from, to any) Condition {
	return Condition{Field: field, Op: OpBetween, Value: [2]any{from, to}}
}

// InStrings is In for a string slice.
func InStrings(field string, values []string) Condition {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return Condition{Field: field, Op: OpIn, Value: vals}
}

func Prefix(field string, value string) Condition {
	return Condition{Field: field, Op: OpPrefix, Value: value}
}

func Contains(field string, value string) Condition {
	return Condition{Field: field, Op: OpContains, Value: value}
}

func Like(field string, pattern string) Condition {
	return Condition{Field: field, Op: OpLike, Value: pattern}
}

func IsNull(field string) Condition {
	return Condition{Field: field, Op: OpIsNull, Value: nil}
}

func NotNull(field string) Condition {
	return Condition{Field: field, Op: OpNotNull, Value: nil}
}

// Helper functions for creating orders
func Asc(field string) Order {
	return Order{Field: field, Desc: false}
}

func Desc(field string) Order {
	return Order{Field: field, Desc: true}
}
