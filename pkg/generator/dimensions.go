package generator

import (
	"fmt"
	"strings"

	"github.com/atomicdeploy/pql-testkit/pkg/pql"
	"github.com/atomicdeploy/pql-testkit/pkg/schema"
)

var aggregateFuncs = []string{"COUNT", "SUM", "AVG", "MAX", "MIN"}

var dimensions = map[Category]func(*builder){
	CategoryBasicSelect:  basicSelect,
	CategoryWhere:        where,
	CategoryAggregate:    aggregate,
	CategoryLike:         like,
	CategoryIn:           in,
	CategoryBetween:      between,
	CategoryOrderBy:      orderBy,
	CategoryDistinct:     distinct,
	CategorySelectAll:    selectAll,
	CategoryComplexWhere: complexWhere,
	CategoryJoin:         join,
	CategoryGroupBy:      groupBy,
	CategoryExists:       exists,
	CategoryUnion:        union,
}

// condition returns a filter suited to the field's type and a prose
// rendering of it for the expected result.
func (b *builder) condition(field string) (pql.Cond, string) {
	col := b.ref(field)
	switch b.api.TypeOf(field) {
	case schema.TypeString:
		return pql.Eq(col, pql.Str("example_value")), "equals 'example_value'"
	case schema.TypeNumeric, schema.TypeIdentifier:
		return pql.Gt(col, "0"), "is greater than 0"
	case schema.TypeDate:
		return pql.Gt(col, pql.Str("2024-01-01")), "is after 2024-01-01"
	case schema.TypeStatus:
		return pql.Eq(col, pql.Str("Active")), "equals 'Active'"
	default:
		return pql.IsNotNull(col), "is not null"
	}
}

func (b *builder) inValues(field string) []string {
	switch b.api.TypeOf(field) {
	case schema.TypeString:
		return []string{pql.Str("value1"), pql.Str("value2"), pql.Str("value3")}
	case schema.TypeStatus:
		return []string{pql.Str("Active"), pql.Str("Inactive"), pql.Str("Pending")}
	case schema.TypeDate:
		return []string{pql.Str("2024-01-01"), pql.Str("2024-06-30"), pql.Str("2024-12-31")}
	default:
		return []string{"1", "2", "3"}
	}
}

func basicSelect(b *builder) {
	fields := b.sample(b.api.Fields, projectionFields)
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = b.ref(f)
	}

	b.add(CategoryBasicSelect,
		fmt.Sprintf("Check basic SELECT query for %s API", b.api.Name),
		pql.Select(cols...).From(b.api.Name),
		b.opts.Limit,
		fmt.Sprintf("Should return %d selected fields (%s) from %s", len(fields), strings.Join(fields, ", "), b.api.Name),
		fields...)
}

func where(b *builder) {
	field := b.pick(b.whereFields())
	cond, prose := b.condition(field)

	b.add(CategoryWhere,
		fmt.Sprintf("Check WHERE clause with condition for %s API", b.api.Name),
		pql.Select(b.ref(field)).From(b.api.Name).Where(cond),
		b.opts.Limit,
		fmt.Sprintf("Should return records where %s %s", field, prose),
		field)
}

func aggregate(b *builder) {
	numeric := b.api.FieldsOf(schema.TypeNumeric)
	if len(numeric) == 0 {
		field := b.api.Fields[0]
		b.add(CategoryAggregate,
			fmt.Sprintf("Check COUNT aggregate function for %s API", b.api.Name),
			pql.Select(pql.Func("COUNT", b.ref(field))).From(b.api.Name),
			b.opts.Limit,
			fmt.Sprintf("Should return the number of %s records", b.api.Name),
			field)
		return
	}

	field := b.pick(numeric)
	for _, fn := range b.sample(aggregateFuncs, 2) {
		b.add(CategoryAggregate,
			fmt.Sprintf("Check %s aggregate function for %s API", fn, b.api.Name),
			pql.Select(pql.Func(fn, b.ref(field))).From(b.api.Name),
			b.opts.Limit,
			fmt.Sprintf("Should return %s of %s", fn, field),
			field)
	}

	b.add(CategoryAggregate,
		fmt.Sprintf("Check MIN and MAX aggregate functions for %s API", b.api.Name),
		pql.Select(pql.Func("MIN", b.ref(field)), pql.Func("MAX", b.ref(field))).From(b.api.Name),
		b.opts.Limit,
		fmt.Sprintf("Should return the smallest and largest %s", field),
		field)
}

func like(b *builder) {
	text := b.api.FieldsOf(schema.TypeString, schema.TypeStatus)
	if len(text) == 0 {
		return
	}
	field := b.pick(text)

	b.add(CategoryLike,
		fmt.Sprintf("Check LIKE operator for %s API", b.api.Name),
		pql.Select(b.ref(field)).From(b.api.Name).Where(pql.Like(b.ref(field), "%example%")),
		b.opts.Limit,
		fmt.Sprintf("Should return records where %s contains 'example'", field),
		field)
}

func in(b *builder) {
	field := b.pick(b.whereFields())

	b.add(CategoryIn,
		fmt.Sprintf("Check IN operator for %s API", b.api.Name),
		pql.Select(b.ref(field)).From(b.api.Name).Where(pql.In(b.ref(field), b.inValues(field)...)),
		b.opts.Limit,
		fmt.Sprintf("Should return records where %s is in the specified values", field),
		field)
}

func between(b *builder) {
	if numeric := b.api.FieldsOf(schema.TypeNumeric); len(numeric) > 0 {
		field := b.pick(numeric)
		b.add(CategoryBetween,
			fmt.Sprintf("Check BETWEEN operator for numeric field in %s API", b.api.Name),
			pql.Select(b.ref(field)).From(b.api.Name).Where(pql.Between(b.ref(field), "100", "1000")),
			b.opts.Limit,
			fmt.Sprintf("Should return records where %s is between 100 and 1000", field),
			field)
	}

	if dates := b.api.FieldsOf(schema.TypeDate); len(dates) > 0 {
		field := b.pick(dates)
		b.add(CategoryBetween,
			fmt.Sprintf("Check BETWEEN operator for date field in %s API", b.api.Name),
			pql.Select(b.ref(field)).From(b.api.Name).
				Where(pql.Between(b.ref(field), pql.Str("2024-01-01"), pql.Str("2024-12-31"))),
			b.opts.Limit,
			fmt.Sprintf("Should return records where %s is in 2024", field),
			field)
	}
}

func orderBy(b *builder) {
	if len(b.api.Fields) < 2 {
		return
	}
	shown := b.api.Fields[:2]
	field := b.pick(b.api.Fields)

	b.add(CategoryOrderBy,
		fmt.Sprintf("Check ORDER BY for %s API", b.api.Name),
		pql.Select(b.ref(shown[0]), b.ref(shown[1])).From(b.api.Name).OrderBy(b.ref(field), pql.Asc),
		b.opts.Limit,
		fmt.Sprintf("Should return records ordered by %s in ascending order", field),
		shown[0], shown[1], field)
}

func distinct(b *builder) {
	field := b.pick(b.api.Fields)

	b.add(CategoryDistinct,
		fmt.Sprintf("Check DISTINCT for %s API", b.api.Name),
		pql.Select(b.ref(field)).Distinct().From(b.api.Name),
		b.opts.Limit,
		fmt.Sprintf("Should return unique values of %s", field),
		field)
}

func selectAll(b *builder) {
	limit := selectAllLimit
	if b.opts.Limit < limit {
		limit = b.opts.Limit
	}

	b.add(CategorySelectAll,
		fmt.Sprintf("Check all fields can be selected from %s", b.api.Name),
		pql.Select().From(b.api.Name),
		limit,
		fmt.Sprintf("Should return all %d fields from %s", len(b.api.Fields), b.api.Name))
}

func complexWhere(b *builder) {
	candidates := b.whereFields()
	if len(candidates) < 2 {
		return
	}
	pair := b.sample(candidates, 2)
	c1, _ := b.condition(pair[0])
	c2, _ := b.condition(pair[1])

	b.add(CategoryComplexWhere,
		fmt.Sprintf("Check complex WHERE conditions for %s API", b.api.Name),
		pql.Select(b.ref(pair[0]), b.ref(pair[1])).From(b.api.Name).Where(c1).Where(c2),
		b.opts.Limit,
		fmt.Sprintf("Should return records meeting both conditions on %s and %s", pair[0], pair[1]),
		pair...)
}

func join(b *builder) {
	for i, r := range b.rel {
		if i == b.opts.MaxJoins {
			break
		}
		other := r.other
		b.add(CategoryJoin,
			fmt.Sprintf("Check LEFT JOIN between %s and %s on %s", b.api.Name, other.Name, r.key),
			pql.Select(b.ref(b.api.Fields[0]), pql.Ref(other.Name, other.Fields[0])).
				From(b.api.Name).
				LeftJoin(other.Name, pql.Eq(b.ref(r.key), pql.Ref(other.Name, r.key))),
			b.opts.Limit,
			fmt.Sprintf("Should return every %s record with matching %s data where %s matches", b.api.Name, other.Name, r.key),
			b.api.Fields[0], r.key)
	}
}

func groupBy(b *builder) {
	groups := b.api.FieldsOf(schema.TypeStatus)
	if len(groups) == 0 {
		groups = b.api.FieldsOf(schema.TypeIdentifier)
	}
	numeric := b.api.FieldsOf(schema.TypeNumeric)
	if len(groups) == 0 || len(numeric) == 0 {
		return
	}
	group := groups[0]
	field := b.pick(numeric)
	sum := pql.Func("SUM", b.ref(field))

	b.add(CategoryGroupBy,
		fmt.Sprintf("Check GROUP BY and HAVING for %s API", b.api.Name),
		pql.Select(b.ref(group), sum).From(b.api.Name).GroupBy(b.ref(group)).Having(pql.Gt(sum, "1000")),
		b.opts.Limit,
		fmt.Sprintf("Should return %s groups whose total %s exceeds 1000", group, field),
		group, field)
}

func exists(b *builder) {
	if len(b.rel) == 0 {
		return
	}
	r := b.rel[0]
	sub := pql.Select("1").From(r.other.Name).Where(pql.Eq(pql.Ref(r.other.Name, r.key), b.ref(r.key)))

	b.add(CategoryExists,
		fmt.Sprintf("Check EXISTS subquery for %s API against %s", b.api.Name, r.other.Name),
		pql.Select(b.ref(b.api.Fields[0])).From(b.api.Name).Where(pql.Exists(sub)),
		b.opts.Limit,
		fmt.Sprintf("Should return %s records that have at least one %s record with the same %s", b.api.Name, r.other.Name, r.key),
		b.api.Fields[0], r.key)
}

func union(b *builder) {
	if len(b.rel) == 0 {
		return
	}
	r := b.rel[0]

	b.add(CategoryUnion,
		fmt.Sprintf("Check UNION between %s and %s", b.api.Name, r.other.Name),
		pql.Select(b.ref(r.key)).From(b.api.Name).Union(pql.Select(pql.Ref(r.other.Name, r.key)).From(r.other.Name)),
		b.opts.Limit,
		fmt.Sprintf("Should return the distinct %s values found in %s or %s", r.key, b.api.Name, r.other.Name),
		r.key)
}
