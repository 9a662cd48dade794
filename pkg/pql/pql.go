// Package pql renders practice query language text.
//
// PQL looks like SQL with bracketed identifiers: columns are written
// [api.field] and tables [api]. The package only builds query strings; it does
// not parse or validate them.
package pql

import (
	"strconv"
	"strings"
)

// Ref renders a column reference, e.g. [patients.patient_id].
func Ref(api, field string) string {
	return "[" + api + "." + field + "]"
}

// Table renders a table reference, e.g. [patients].
func Table(api string) string {
	return "[" + api + "]"
}

// Refs renders a comma separated column list.
func Refs(api string, fields ...string) string {
	refs := make([]string, len(fields))
	for i, f := range fields {
		refs[i] = Ref(api, f)
	}
	return strings.Join(refs, ", ")
}

// Str renders a single-quoted string literal.
func Str(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Int renders an integer literal.
func Int(n int) string {
	return strconv.Itoa(n)
}

// Func renders an aggregate or scalar function call, e.g. SUM([a.b]).
func Func(name, arg string) string {
	return strings.ToUpper(name) + "(" + arg + ")"
}

// Cond is a boolean expression.
type Cond string

func Eq(col, lit string) Cond { return Cond(col + " = " + lit) }

func Gt(col, lit string) Cond { return Cond(col + " > " + lit) }

func Lt(col, lit string) Cond { return Cond(col + " < " + lit) }

func Between(col, lo, hi string) Cond { return Cond(col + " BETWEEN " + lo + " AND " + hi) }

func In(col string, lits ...string) Cond {
	return Cond(col + " IN (" + strings.Join(lits, ", ") + ")")
}

func Like(col, pattern string) Cond { return Cond(col + " LIKE " + Str(pattern)) }

func IsNotNull(col string) Cond { return Cond(col + " IS NOT NULL") }

// Exists wraps a subquery in EXISTS (...).
func Exists(sub *Query) Cond { return Cond("EXISTS (" + sub.String() + ")") }

// And joins conditions with AND.
func And(conds ...Cond) Cond {
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = string(c)
	}
	return Cond(strings.Join(parts, " AND "))
}

// Direction is an ORDER BY direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

type join struct {
	table string
	on    Cond
}

// Query is a SELECT statement under construction.
type Query struct {
	distinct bool
	columns  []string
	from     string
	joins    []join
	where    []Cond
	groupBy  []string
	having   Cond
	orderBy  string
	dir      Direction
	union    *Query
}

// Select starts a query projecting columns. No columns means *.
func Select(columns ...string) *Query {
	return &Query{columns: columns}
}

func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

func (q *Query) From(api string) *Query {
	q.from = Table(api)
	return q
}

func (q *Query) LeftJoin(api string, on Cond) *Query {
	q.joins = append(q.joins, join{table: Table(api), on: on})
	return q
}

// Where adds a condition. Multiple conditions are ANDed.
func (q *Query) Where(c Cond) *Query {
	q.where = append(q.where, c)
	return q
}

func (q *Query) GroupBy(cols ...string) *Query {
	q.groupBy = append(q.groupBy, cols...)
	return q
}

func (q *Query) Having(c Cond) *Query {
	q.having = c
	return q
}

func (q *Query) OrderBy(col string, dir Direction) *Query {
	q.orderBy = col
	q.dir = dir
	return q
}

func (q *Query) Union(other *Query) *Query {
	q.union = other
	return q
}

// String renders the query.
func (q *Query) String() string {
	var b strings.Builder

	b.WriteString("SELECT ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(q.columns) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(strings.Join(q.columns, ", "))
	}

	if q.from != "" {
		b.WriteString(" FROM ")
		b.WriteString(q.from)
	}
	for _, j := range q.joins {
		b.WriteString(" LEFT JOIN ")
		b.WriteString(j.table)
		b.WriteString(" ON ")
		b.WriteString(string(j.on))
	}
	if len(q.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(string(And(q.where...)))
	}
	if len(q.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(q.groupBy, ", "))
	}
	if q.having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(string(q.having))
	}
	if q.orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.orderBy)
		if q.dir != "" {
			b.WriteString(" ")
			b.WriteString(string(q.dir))
		}
	}
	if q.union != nil {
		b.WriteString(" UNION ")
		b.WriteString(q.union.String())
	}

	return b.String()
}
