package pql

import (
	"encoding/json"
	"fmt"
	"strconv"
)

const (
	DefaultLimit  = 50
	DefaultOffset = 0
)

// Request is the body posted to the practice_query endpoint. The platform
// expects limit and offset as JSON strings.
type Request struct {
	PQL    string `json:"pql"`
	Limit  int    `json:"limit,string"`
	Offset int    `json:"offset,string"`
}

// NewRequest builds a request with the default paging.
func NewRequest(query string) Request {
	return Request{PQL: query, Limit: DefaultLimit, Offset: DefaultOffset}
}

// UnmarshalJSON accepts limit and offset as either strings or numbers.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw struct {
		PQL    string      `json:"pql"`
		Limit  json.Number `json:"limit"`
		Offset json.Number `json:"offset"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	limit, err := pageValue(raw.Limit, DefaultLimit)
	if err != nil {
		return fmt.Errorf("invalid limit: %w", err)
	}
	offset, err := pageValue(raw.Offset, DefaultOffset)
	if err != nil {
		return fmt.Errorf("invalid offset: %w", err)
	}

	*r = Request{PQL: raw.PQL, Limit: limit, Offset: offset}
	return nil
}

func pageValue(n json.Number, def int) (int, error) {
	if n == "" {
		return def, nil
	}
	return strconv.Atoi(n.String())
}

// Validate rejects requests the endpoint would refuse outright.
func (r Request) Validate() error {
	if r.PQL == "" {
		return fmt.Errorf("pql is required")
	}
	if r.Limit <= 0 {
		return fmt.Errorf("limit must be positive, got %d", r.Limit)
	}
	if r.Offset < 0 {
		return fmt.Errorf("offset must not be negative, got %d", r.Offset)
	}
	return nil
}
