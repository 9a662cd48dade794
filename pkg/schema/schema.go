// Package schema models the practice API catalog: which APIs exist and which
// fields each one exposes. Field types are never declared by the platform, so
// they are inferred from field names (see Classify).
package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownAPI is returned when a caller asks for an API the catalog does not have.
var ErrUnknownAPI = errors.New("unknown api")

// API is a single queryable practice API and its ordered field list.
type API struct {
	Name       string               `json:"api_name" yaml:"api_name"`
	Fields     []string             `json:"api_fields" yaml:"api_fields"`
	FieldTypes map[string]FieldType `json:"field_types,omitempty" yaml:"field_types,omitempty"`
}

// TypeOf returns the semantic type of a field, honouring explicit overrides.
func (a API) TypeOf(field string) FieldType {
	if t, ok := a.FieldTypes[field]; ok && t.Valid() {
		return t
	}
	return Classify(field)
}

// HasField reports whether the API exposes field.
func (a API) HasField(field string) bool {
	for _, f := range a.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// FieldsOf returns the fields whose type is one of types, in declared order.
func (a API) FieldsOf(types ...FieldType) []string {
	var out []string
	for _, f := range a.Fields {
		t := a.TypeOf(f)
		for _, want := range types {
			if t == want {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// SharedFields returns the fields present in both a and b, in a's order.
func SharedFields(a, b API) []string {
	var out []string
	for _, f := range a.Fields {
		if b.HasField(f) {
			out = append(out, f)
		}
	}
	return out
}

// Catalog is the list of APIs returned by the platform's metadata endpoint.
type Catalog struct {
	Status  string `json:"status,omitempty" yaml:"status,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
	Items   []API  `json:"items" yaml:"items"`

	index map[string]int
}

// NewCatalog builds a catalog from items and validates it.
func NewCatalog(items ...API) (*Catalog, error) {
	c := &Catalog{Status: "Success", Message: "Success", Items: items}
	if err := c.reindex(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) reindex() error {
	c.index = make(map[string]int, len(c.Items))
	for i, api := range c.Items {
		if api.Name == "" {
			return fmt.Errorf("api at position %d has no name", i)
		}
		if _, dup := c.index[api.Name]; dup {
			return fmt.Errorf("duplicate api %q", api.Name)
		}
		for f, t := range api.FieldTypes {
			if !t.Valid() {
				return fmt.Errorf("api %q: field %q has invalid type %q", api.Name, f, t)
			}
		}
		c.index[api.Name] = i
	}
	return nil
}

// Names returns API names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.Items))
	for i, api := range c.Items {
		names[i] = api.Name
	}
	return names
}

// Lookup returns the named API.
func (c *Catalog) Lookup(name string) (API, error) {
	i, ok := c.index[name]
	if !ok {
		return API{}, fmt.Errorf("%w: %q", ErrUnknownAPI, name)
	}
	return c.Items[i], nil
}

// Fields returns the field list of the named API, or nil if it is unknown.
func (c *Catalog) Fields(name string) []string {
	api, err := c.Lookup(name)
	if err != nil {
		return nil
	}
	return api.Fields
}

// Len returns the number of APIs.
func (c *Catalog) Len() int {
	return len(c.Items)
}
