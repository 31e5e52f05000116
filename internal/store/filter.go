package store

import (
	"fmt"
	"strings"
)

// Op is a comparison operator supported in filters.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpIn  Op = "IN"
)

// Cond compares one column against a value. Column names are checked
// against the table definition; values are always bound as parameters.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Cond  { return Cond{column, OpEq, v} }
func Ne(column string, v any) Cond  { return Cond{column, OpNe, v} }
func Gt(column string, v any) Cond  { return Cond{column, OpGt, v} }
func Gte(column string, v any) Cond { return Cond{column, OpGte, v} }
func Lt(column string, v any) Cond  { return Cond{column, OpLt, v} }

// In matches any of vs. An empty list matches nothing.
func In[T any](column string, vs ...T) Cond {
	vals := make([]any, len(vs))
	for i, v := range vs {
		vals[i] = v
	}
	return Cond{column, OpIn, vals}
}

// OrderKey orders results by one column.
type OrderKey struct {
	Column string
	Desc   bool
}

// Filter selects rows of one table. The zero Filter selects everything in
// the table's natural order.
type Filter struct {
	Conds []Cond
	Order []OrderKey
	Limit int
}

// Where returns a filter with conds combined by AND.
func Where(conds ...Cond) Filter {
	return Filter{Conds: conds}
}

// OrderBy returns a copy of f with an explicit order.
func (f Filter) OrderBy(keys ...OrderKey) Filter {
	f.Order = keys
	return f
}

// WithLimit returns a copy of f limited to n rows.
func (f Filter) WithLimit(n int) Filter {
	f.Limit = n
	return f
}

// compile renders f as a parameterized SELECT.
//
// Every query ends with id COLLATE BINARY ASC so that ties are broken the
// same way on every tier.
func (f Filter) compile(t *table) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	for _, c := range f.Conds {
		if !t.hasColumn(c.Column) {
			return "", nil, fmt.Errorf("filter: unknown column %q on %s", c.Column, t.name)
		}
		col := c.Column
		if t.nullable[col] {
			col = fmt.Sprintf("COALESCE(%s, '')", col)
		}
		switch c.Op {
		case OpEq, OpNe, OpGt, OpGte, OpLt:
			where = append(where, fmt.Sprintf("%s %s ?", col, c.Op))
			args = append(args, c.Value)
		case OpIn:
			vals, ok := c.Value.([]any)
			if !ok {
				return "", nil, fmt.Errorf("filter: IN on %q needs a list, got %T", c.Column, c.Value)
			}
			if len(vals) == 0 {
				where = append(where, "1 = 0")
				continue
			}
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
			where = append(where, fmt.Sprintf("%s IN (%s)", col, marks))
			args = append(args, vals...)
		default:
			return "", nil, fmt.Errorf("filter: unsupported operator %q", c.Op)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", t.selectList, t.name)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}

	order := t.orderBy
	if len(f.Order) > 0 {
		keys := make([]string, len(f.Order))
		for i, k := range f.Order {
			if !t.hasColumn(k.Column) {
				return "", nil, fmt.Errorf("filter: unknown order column %q on %s", k.Column, t.name)
			}
			dir := "ASC"
			if k.Desc {
				dir = "DESC"
			}
			keys[i] = k.Column + " " + dir
		}
		order = strings.Join(keys, ", ")
	}
	b.WriteString(" ORDER BY ")
	if order != "" {
		b.WriteString(order)
		b.WriteString(", ")
	}
	b.WriteString("id COLLATE BINARY ASC")

	if f.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, f.Limit)
	}
	return b.String(), args, nil
}
