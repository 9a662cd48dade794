package generator

import (
	"fmt"
	"strings"
)

// Category is one coverage dimension of a generated suite.
type Category string

const (
	CategoryBasicSelect  Category = "basic_select"
	CategoryWhere        Category = "where"
	CategoryAggregate    Category = "aggregate"
	CategoryLike         Category = "like"
	CategoryIn           Category = "in"
	CategoryBetween      Category = "between"
	CategoryOrderBy      Category = "order_by"
	CategoryDistinct     Category = "distinct"
	CategorySelectAll    Category = "select_all"
	CategoryComplexWhere Category = "complex_where"
	CategoryJoin         Category = "join"
	CategoryGroupBy      Category = "group_by_having"
	CategoryExists       Category = "exists"
	CategoryUnion        Category = "union"
)

// Categories lists every dimension in generation order.
var Categories = []Category{
	CategoryBasicSelect,
	CategoryWhere,
	CategoryAggregate,
	CategoryLike,
	CategoryIn,
	CategoryBetween,
	CategoryOrderBy,
	CategoryDistinct,
	CategorySelectAll,
	CategoryComplexWhere,
	CategoryJoin,
	CategoryGroupBy,
	CategoryExists,
	CategoryUnion,
}

// ParseCategory accepts a category name case-insensitively; dashes and
// underscores are interchangeable.
func ParseCategory(s string) (Category, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range Categories {
		if string(c) == norm {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// ParseCategories parses a list of category names.
func ParseCategories(names []string) ([]Category, error) {
	out := make([]Category, 0, len(names))
	for _, n := range names {
		c, err := ParseCategory(n)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
