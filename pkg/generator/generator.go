// Package generator synthesises PQL test cases from an API catalog.
//
// Every API is covered along a fixed list of dimensions (see Categories).
// Fields are chosen by their inferred type, and whatever random choice is made
// comes from a generator seeded per API, so a given catalog, seed and option
// set always yields the same cases.
package generator

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"strings"

	"github.com/atomicdeploy/pql-testkit/pkg/pql"
	"github.com/atomicdeploy/pql-testkit/pkg/schema"
)

// DefaultSeed is used when Options.Seed is zero.
const DefaultSeed int64 = 1

const (
	defaultMaxJoins  = 2
	selectAllLimit   = 10
	projectionFields = 3
)

// TestCase is one generated query with its expectation.
type TestCase struct {
	ID          string      `json:"id"`
	API         string      `json:"api"`
	Category    Category    `json:"category"`
	Description string      `json:"description"`
	Request     pql.Request `json:"request_body"`
	Expected    string      `json:"expected_results"`
	FieldsUsed  []string    `json:"fields_used,omitempty"`
}

// Suite is the output of one generation run.
type Suite struct {
	Seed  int64      `json:"seed"`
	APIs  []string   `json:"apis"`
	Total int        `json:"total_test_cases"`
	Cases []TestCase `json:"test_cases"`
}

// Options tune generation.
type Options struct {
	// Seed drives every random choice. Zero means DefaultSeed.
	Seed int64
	// Limit is the page size put in each request. Zero means pql.DefaultLimit.
	Limit int
	// Categories restricts output to the listed dimensions. Empty means all.
	Categories []Category
	// MaxJoins caps the number of join cases per API. Zero means 2.
	MaxJoins int
}

func (o Options) withDefaults() Options {
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Limit <= 0 {
		o.Limit = pql.DefaultLimit
	}
	if o.MaxJoins <= 0 {
		o.MaxJoins = defaultMaxJoins
	}
	return o
}

func (o Options) wants(c Category) bool {
	if len(o.Categories) == 0 {
		return true
	}
	for _, want := range o.Categories {
		if want == c {
			return true
		}
	}
	return false
}

// Generator builds test cases for APIs in a catalog. It holds no mutable
// state and is safe for concurrent use.
type Generator struct {
	catalog *schema.Catalog
	opts    Options
}

// New creates a generator over catalog.
func New(catalog *schema.Catalog, opts Options) *Generator {
	return &Generator{
		catalog: catalog,
		opts:    opts.withDefaults(),
	}
}

// Seed returns the effective seed.
func (g *Generator) Seed() int64 {
	return g.opts.Seed
}

// Generate builds a suite for the named APIs, or for every API in catalog
// order when none are given. Repeated names are generated once.
func (g *Generator) Generate(apis ...string) (*Suite, error) {
	if len(apis) == 0 {
		apis = g.catalog.Names()
	}

	suite := &Suite{
		Seed: g.opts.Seed,
		APIs: make([]string, 0, len(apis)),
	}

	seen := make(map[string]bool, len(apis))
	for _, name := range apis {
		if seen[name] {
			continue
		}
		seen[name] = true
		cases, err := g.GenerateAPI(name)
		if err != nil {
			return nil, err
		}
		suite.APIs = append(suite.APIs, name)
		suite.Cases = append(suite.Cases, cases...)
	}
	suite.Total = len(suite.Cases)

	return suite, nil
}

// GenerateAPI builds the cases for a single API. The result does not depend on
// which other APIs are generated alongside it.
func (g *Generator) GenerateAPI(name string) ([]TestCase, error) {
	api, err := g.catalog.Lookup(name)
	if err != nil {
		return nil, err
	}
	if len(api.Fields) == 0 {
		return nil, nil
	}

	b := &builder{
		api:  api,
		opts: g.opts,
		rng:  rand.New(rand.NewSource(apiSeed(g.opts.Seed, name))),
		rel:  g.relations(api),
	}
	for _, c := range Categories {
		if g.opts.wants(c) {
			dimensions[c](b)
		}
	}
	return b.cases, nil
}

func apiSeed(seed int64, api string) int64 {
	h := fnv.New64a()
	h.Write([]byte(api))
	return seed ^ int64(h.Sum64())
}

// relation links an API to another one through a shared identifier field.
type relation struct {
	other schema.API
	key   string
}

// relations lists the other APIs sharing an identifier with api, in catalog
// order. When several identifiers are shared, the one naming the other API
// (claims.patient_id for patients) is preferred.
func (g *Generator) relations(api schema.API) []relation {
	var out []relation
	ids := api.FieldsOf(schema.TypeIdentifier)
	if len(ids) == 0 {
		return nil
	}

	for _, other := range g.catalog.Items {
		if other.Name == api.Name {
			continue
		}
		var shared []string
		for _, id := range ids {
			if other.HasField(id) {
				shared = append(shared, id)
			}
		}
		if len(shared) == 0 {
			continue
		}

		key := shared[0]
		own := strings.TrimSuffix(other.Name, "s") + "_id"
		for _, s := range shared {
			if s == own {
				key = s
				break
			}
		}
		out = append(out, relation{other: other, key: key})
	}
	return out
}

// builder accumulates the cases of one API.
type builder struct {
	api   schema.API
	opts  Options
	rng   *rand.Rand
	rel   []relation
	cases []TestCase
}

func (b *builder) add(cat Category, desc string, q *pql.Query, limit int, expected string, fields ...string) {
	b.cases = append(b.cases, TestCase{
		ID:          fmt.Sprintf("TC_%s_%03d", strings.ToUpper(b.api.Name), len(b.cases)+1),
		API:         b.api.Name,
		Category:    cat,
		Description: desc,
		Request:     pql.Request{PQL: q.String(), Limit: limit, Offset: pql.DefaultOffset},
		Expected:    expected,
		FieldsUsed:  fields,
	})
}

func (b *builder) ref(field string) string {
	return pql.Ref(b.api.Name, field)
}

func (b *builder) pick(fields []string) string {
	return fields[b.rng.Intn(len(fields))]
}

// sample returns n distinct fields in random order.
func (b *builder) sample(fields []string, n int) []string {
	if n > len(fields) {
		n = len(fields)
	}
	perm := b.rng.Perm(len(fields))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = fields[perm[i]]
	}
	return out
}

// whereFields are the fields worth filtering on. Without any, the first
// three fields are used.
func (b *builder) whereFields() []string {
	fields := b.api.FieldsOf(schema.TypeIdentifier, schema.TypeStatus, schema.TypeDate, schema.TypeNumeric)
	if len(fields) > 0 {
		return fields
	}
	if len(b.api.Fields) > projectionFields {
		return b.api.Fields[:projectionFields]
	}
	return b.api.Fields
}
