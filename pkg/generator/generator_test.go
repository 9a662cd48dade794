package generator

import (
	"encoding/json"
	"regexp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/atomicdeploy/pql-testkit/pkg/schema"
)

func testCatalog(t testing.TB) *schema.Catalog {
	t.Helper()
	c, err := schema.NewCatalog(
		schema.API{Name: "patients", Fields: []string{"patient_id", "first_name", "status", "balance", "created_date"}},
		schema.API{Name: "claims", Fields: []string{"claim_id", "patient_id", "claim_status", "amount"}},
		schema.API{Name: "notes", Fields: []string{"body"}},
	)
	require.NoError(t, err)
	return c
}

func casesOf(cases []TestCase, cat Category) []TestCase {
	var out []TestCase
	for _, tc := range cases {
		if tc.Category == cat {
			out = append(out, tc)
		}
	}
	return out
}

func TestGenerateIsDeterministic(t *testing.T) {
	catalog := schema.Default()

	a, err := New(catalog, Options{Seed: 42}).Generate()
	require.NoError(t, err)
	b, err := New(catalog, Options{Seed: 42}).Generate()
	require.NoError(t, err)

	if diff := cmp.Diff(a.Cases, b.Cases); diff != "" {
		t.Errorf("same seed produced different cases (-first +second):\n%s", diff)
	}
	assert.Equal(t, int64(42), a.Seed)
	assert.Equal(t, len(a.Cases), a.Total)
	assert.Equal(t, catalog.Names(), a.APIs)
}

func TestSuiteSerializationIsStable(t *testing.T) {
	catalog := schema.Default()

	a, err := New(catalog, Options{Seed: 42}).Generate()
	require.NoError(t, err)
	b, err := New(catalog, Options{Seed: 42}).Generate()
	require.NoError(t, err)

	first, err := json.MarshalIndent(a, "", "  ")
	require.NoError(t, err)
	second, err := json.MarshalIndent(b, "", "  ")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestGenerateSkipsRepeatedAPIs(t *testing.T) {
	g := New(testCatalog(t), Options{})

	once, err := g.Generate("patients")
	require.NoError(t, err)
	twice, err := g.Generate("patients", "patients")
	require.NoError(t, err)

	assert.Equal(t, []string{"patients"}, twice.APIs)
	assert.Equal(t, once.Total, twice.Total)
	if diff := cmp.Diff(once.Cases, twice.Cases); diff != "" {
		t.Errorf("repeated api changed the suite (-once +twice):\n%s", diff)
	}
}

func TestGenerateDefaultSeed(t *testing.T) {
	g := New(testCatalog(t), Options{})
	assert.Equal(t, DefaultSeed, g.Seed())
}

func TestSubsetMatchesFullSuite(t *testing.T) {
	catalog := schema.Default()
	g := New(catalog, Options{Seed: 7})

	full, err := g.Generate()
	require.NoError(t, err)

	for _, name := range catalog.Names() {
		single, err := g.Generate(name)
		require.NoError(t, err)
		if diff := cmp.Diff(full.Filter(name), single.Cases); diff != "" {
			t.Errorf("%s: subset differs from full run (-full +subset):\n%s", name, diff)
		}
	}
}

func TestCaseIDsArePerAPI(t *testing.T) {
	suite, err := New(testCatalog(t), Options{}).Generate("claims", "patients")
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, tc := range suite.Cases {
		assert.False(t, seen[tc.ID], "duplicate id %s", tc.ID)
		seen[tc.ID] = true

		prefix := "TC_" + strings.ToUpper(tc.API) + "_"
		assert.True(t, strings.HasPrefix(tc.ID, prefix), tc.ID)
	}
	assert.Equal(t, "TC_CLAIMS_001", suite.Cases[0].ID)
	assert.Equal(t, "TC_PATIENTS_001", suite.Filter("patients")[0].ID)
}

func TestCategoryFilter(t *testing.T) {
	opts := Options{Categories: []Category{CategoryJoin, CategorySelectAll}}
	suite, err := New(testCatalog(t), opts).Generate()
	require.NoError(t, err)
	require.NotEmpty(t, suite.Cases)

	for _, tc := range suite.Cases {
		assert.Contains(t, opts.Categories, tc.Category)
	}
}

func TestUnknownAPI(t *testing.T) {
	_, err := New(testCatalog(t), Options{}).Generate("missing")
	assert.ErrorIs(t, err, schema.ErrUnknownAPI)
}

func TestEveryDimensionHasARule(t *testing.T) {
	for _, c := range Categories {
		assert.NotNil(t, dimensions[c], c)
	}
	assert.Len(t, dimensions, len(Categories))
}

func TestRelationalQueries(t *testing.T) {
	cases, err := New(testCatalog(t), Options{}).GenerateAPI("claims")
	require.NoError(t, err)

	joins := casesOf(cases, CategoryJoin)
	require.Len(t, joins, 1)
	assert.Equal(t,
		"SELECT [claims.claim_id], [patients.patient_id] FROM [claims] LEFT JOIN [patients] ON [claims.patient_id] = [patients.patient_id]",
		joins[0].Request.PQL)

	exists := casesOf(cases, CategoryExists)
	require.Len(t, exists, 1)
	assert.Equal(t,
		"SELECT [claims.claim_id] FROM [claims] WHERE EXISTS (SELECT 1 FROM [patients] WHERE [patients.patient_id] = [claims.patient_id])",
		exists[0].Request.PQL)

	unions := casesOf(cases, CategoryUnion)
	require.Len(t, unions, 1)
	assert.Equal(t,
		"SELECT [claims.patient_id] FROM [claims] UNION SELECT [patients.patient_id] FROM [patients]",
		unions[0].Request.PQL)
}

func TestGroupByAndSelectAll(t *testing.T) {
	cases, err := New(testCatalog(t), Options{Limit: 5}).GenerateAPI("patients")
	require.NoError(t, err)

	groups := casesOf(cases, CategoryGroupBy)
	require.Len(t, groups, 1)
	assert.Equal(t,
		"SELECT [patients.status], SUM([patients.balance]) FROM [patients] GROUP BY [patients.status] HAVING SUM([patients.balance]) > 1000",
		groups[0].Request.PQL)

	all := casesOf(cases, CategorySelectAll)
	require.Len(t, all, 1)
	assert.Equal(t, "SELECT * FROM [patients]", all[0].Request.PQL)
	assert.Equal(t, 5, all[0].Request.Limit)
	assert.Equal(t, "Should return all 5 fields from patients", all[0].Expected)

	between := casesOf(cases, CategoryBetween)
	require.Len(t, between, 2)
	assert.Equal(t, "SELECT [patients.balance] FROM [patients] WHERE [patients.balance] BETWEEN 100 AND 1000", between[0].Request.PQL)
	assert.Equal(t, "SELECT [patients.created_date] FROM [patients] WHERE [patients.created_date] BETWEEN '2024-01-01' AND '2024-12-31'", between[1].Request.PQL)
}

func TestSparseAPISkipsInapplicableDimensions(t *testing.T) {
	cases, err := New(testCatalog(t), Options{}).GenerateAPI("notes")
	require.NoError(t, err)

	for _, c := range []Category{CategoryJoin, CategoryExists, CategoryUnion, CategoryGroupBy, CategoryOrderBy, CategoryBetween, CategoryComplexWhere} {
		assert.Empty(t, casesOf(cases, c), c)
	}

	agg := casesOf(cases, CategoryAggregate)
	require.Len(t, agg, 1)
	assert.Equal(t, "SELECT COUNT([notes.body]) FROM [notes]", agg[0].Request.PQL)

	where := casesOf(cases, CategoryWhere)
	require.Len(t, where, 1)
	assert.Equal(t, "SELECT [notes.body] FROM [notes] WHERE [notes.body] IS NOT NULL", where[0].Request.PQL)
}

func TestSelectAllLimitCapped(t *testing.T) {
	cases, err := New(testCatalog(t), Options{}).GenerateAPI("claims")
	require.NoError(t, err)

	all := casesOf(cases, CategorySelectAll)
	require.Len(t, all, 1)
	assert.Equal(t, selectAllLimit, all[0].Request.Limit)
	for _, tc := range cases {
		if tc.Category != CategorySelectAll {
			assert.Equal(t, 50, tc.Request.Limit)
		}
		assert.Equal(t, 0, tc.Request.Offset)
	}
}

func TestSummarize(t *testing.T) {
	suite, err := New(testCatalog(t), Options{Categories: []Category{CategorySelectAll, CategoryDistinct}}).Generate()
	require.NoError(t, err)

	sum := Summarize(suite)
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, map[string]int{"patients": 2, "claims": 2, "notes": 2}, sum.ByAPI)
	assert.Equal(t, 3, sum.ByCategory[CategoryDistinct])
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory("Group-By-Having")
	require.NoError(t, err)
	assert.Equal(t, CategoryGroupBy, c)

	_, err = ParseCategory("full_outer_join")
	assert.Error(t, err)

	cs, err := ParseCategories([]string{"where", "UNION"})
	require.NoError(t, err)
	assert.Equal(t, []Category{CategoryWhere, CategoryUnion}, cs)
}

func TestGenerationProperties(t *testing.T) {
	catalog := schema.Default()
	names := catalog.Names()

	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64Range(1, 1<<40).Draw(t, "seed")
		api := rapid.SampledFrom(names).Draw(t, "api")
		g := New(catalog, Options{Seed: seed})

		first, err := g.GenerateAPI(api)
		if err != nil {
			t.Fatalf("generate %s: %v", api, err)
		}
		second, _ := g.GenerateAPI(api)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Fatalf("seed %d not reproducible:\n%s", seed, diff)
		}

		fields, _ := catalog.Lookup(api)
		for _, tc := range first {
			if !strings.Contains(tc.Request.PQL, "["+api+"]") {
				t.Fatalf("%s does not query %s: %s", tc.ID, api, tc.Request.PQL)
			}
			for _, f := range tc.FieldsUsed {
				if !fields.HasField(f) {
					t.Fatalf("%s uses unknown field %s", tc.ID, f)
				}
			}
		}
	})
}

func TestAggregateOnNumericField(t *testing.T) {
	cases, err := New(testCatalog(t), Options{}).GenerateAPI("patients")
	require.NoError(t, err)

	agg := casesOf(cases, CategoryAggregate)
	require.Len(t, agg, 3)

	single := regexp.MustCompile(`^SELECT (COUNT|SUM|AVG|MAX|MIN)\(\[patients\.balance\]\) FROM \[patients\]$`)
	var funcs []string
	for _, tc := range agg[:2] {
		m := single.FindStringSubmatch(tc.Request.PQL)
		require.NotNil(t, m, tc.Request.PQL)
		funcs = append(funcs, m[1])
	}
	assert.NotEqual(t, funcs[0], funcs[1], "aggregate functions should be distinct")
	assert.Equal(t, "SELECT MIN([patients.balance]), MAX([patients.balance]) FROM [patients]", agg[2].Request.PQL)
}

func TestLikeUsesTextField(t *testing.T) {
	cases, err := New(testCatalog(t), Options{}).GenerateAPI("patients")
	require.NoError(t, err)

	like := casesOf(cases, CategoryLike)
	require.Len(t, like, 1)
	assert.Contains(t, []string{
		"SELECT [patients.first_name] FROM [patients] WHERE [patients.first_name] LIKE '%example%'",
		"SELECT [patients.status] FROM [patients] WHERE [patients.status] LIKE '%example%'",
	}, like[0].Request.PQL)
}

func TestInValuesFollowFieldType(t *testing.T) {
	c, err := schema.NewCatalog(
		schema.API{Name: "visits", Fields: []string{"visit_status"}},
		schema.API{Name: "fees", Fields: []string{"fee"}},
		schema.API{Name: "contacts", Fields: []string{"email"}},
	)
	require.NoError(t, err)
	g := New(c, Options{})

	tests := []struct {
		api  string
		want string
	}{
		{"visits", "SELECT [visits.visit_status] FROM [visits] WHERE [visits.visit_status] IN ('Active', 'Inactive', 'Pending')"},
		{"fees", "SELECT [fees.fee] FROM [fees] WHERE [fees.fee] IN (1, 2, 3)"},
		{"contacts", "SELECT [contacts.email] FROM [contacts] WHERE [contacts.email] IN ('value1', 'value2', 'value3')"},
	}
	for _, tt := range tests {
		t.Run(tt.api, func(t *testing.T) {
			cases, err := g.GenerateAPI(tt.api)
			require.NoError(t, err)
			in := casesOf(cases, CategoryIn)
			require.Len(t, in, 1)
			assert.Equal(t, tt.want, in[0].Request.PQL)
		})
	}
}

func TestTwoFieldQueryShapes(t *testing.T) {
	c, err := schema.NewCatalog(schema.API{Name: "ledger", Fields: []string{"entry_status", "amount"}})
	require.NoError(t, err)
	cases, err := New(c, Options{Seed: 3}).GenerateAPI("ledger")
	require.NoError(t, err)

	tests := []struct {
		category Category
		oneOf    []string
	}{
		{CategoryComplexWhere, []string{
			"SELECT [ledger.entry_status], [ledger.amount] FROM [ledger] WHERE [ledger.entry_status] = 'Active' AND [ledger.amount] > 0",
			"SELECT [ledger.amount], [ledger.entry_status] FROM [ledger] WHERE [ledger.amount] > 0 AND [ledger.entry_status] = 'Active'",
		}},
		{CategoryOrderBy, []string{
			"SELECT [ledger.entry_status], [ledger.amount] FROM [ledger] ORDER BY [ledger.entry_status] ASC",
			"SELECT [ledger.entry_status], [ledger.amount] FROM [ledger] ORDER BY [ledger.amount] ASC",
		}},
		{CategoryDistinct, []string{
			"SELECT DISTINCT [ledger.entry_status] FROM [ledger]",
			"SELECT DISTINCT [ledger.amount] FROM [ledger]",
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			got := casesOf(cases, tt.category)
			require.Len(t, got, 1)
			assert.Contains(t, tt.oneOf, got[0].Request.PQL)
		})
	}

	compound := casesOf(cases, CategoryComplexWhere)[0]
	require.Len(t, compound.FieldsUsed, 2)
	assert.NotEqual(t, compound.FieldsUsed[0], compound.FieldsUsed[1])
}

func TestJoinsCappedByMaxJoins(t *testing.T) {
	c, err := schema.NewCatalog(
		schema.API{Name: "patients", Fields: []string{"patient_id", "first_name"}},
		schema.API{Name: "claims", Fields: []string{"claim_id", "patient_id"}},
		schema.API{Name: "visits", Fields: []string{"visit_id", "patient_id"}},
		schema.API{Name: "referrals", Fields: []string{"referral_id", "patient_id"}},
	)
	require.NoError(t, err)

	cases, err := New(c, Options{}).GenerateAPI("patients")
	require.NoError(t, err)
	joins := casesOf(cases, CategoryJoin)
	require.Len(t, joins, 2)
	assert.Contains(t, joins[0].Request.PQL, "LEFT JOIN [claims]")
	assert.Contains(t, joins[1].Request.PQL, "LEFT JOIN [visits]")

	cases, err = New(c, Options{MaxJoins: 3}).GenerateAPI("patients")
	require.NoError(t, err)
	assert.Len(t, casesOf(cases, CategoryJoin), 3)
}
