package generator

// Summary counts the cases of a suite.
type Summary struct {
	Total      int              `json:"total"`
	ByAPI      map[string]int   `json:"by_api"`
	ByCategory map[Category]int `json:"by_category"`
}

// Summarize counts cases per API and per category.
func Summarize(s *Suite) Summary {
	sum := Summary{
		ByAPI:      make(map[string]int),
		ByCategory: make(map[Category]int),
	}
	for _, api := range s.APIs {
		sum.ByAPI[api] = 0
	}
	for _, tc := range s.Cases {
		sum.Total++
		sum.ByAPI[tc.API]++
		sum.ByCategory[tc.Category]++
	}
	return sum
}

// Filter returns the cases of the named API.
func (s *Suite) Filter(api string) []TestCase {
	var out []TestCase
	for _, tc := range s.Cases {
		if tc.API == api {
			out = append(out, tc)
		}
	}
	return out
}
