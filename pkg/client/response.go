package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Value is a scalar the endpoint sends either as a string or a number.
type Value string

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Value(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*v = Value(n.String())
	return nil
}

// Int parses the value, returning 0 when it is empty or not a number.
func (v Value) Int() int {
	n, _ := strconv.Atoi(string(v))
	return n
}

// Response is the practice_query response envelope.
type Response struct {
	Offset        Value            `json:"offset"`
	Limit         Value            `json:"limit"`
	TotalCount    Value            `json:"total_count"`
	ExecutionTime Value            `json:"execution_time"`
	Pagination    map[string]any   `json:"pagination,omitempty"`
	Items         []map[string]any `json:"items"`
}

// Columns returns the sorted union of keys over all items.
func Columns(items []map[string]any) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		for k := range item {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
