package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default_catalog.json
var defaultCatalogJSON []byte

// Format identifies the encoding of a catalog file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks a catalog format based on the file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported schema file type: %s (expected .json, .yaml or .yml)", ext)
	}
}

// Load reads a catalog from a JSON or YAML file.
func Load(path string) (*Catalog, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	return Parse(data, format)
}

// Parse decodes a catalog from raw bytes.
func Parse(data []byte, format Format) (*Catalog, error) {
	var c Catalog

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		if err := dec.Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to parse schema JSON: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("failed to parse schema YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema format: %q", format)
	}

	if err := c.reindex(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	return &c, nil
}

// Default returns the catalog bundled with the binary.
func Default() *Catalog {
	c, err := Parse(defaultCatalogJSON, FormatJSON)
	if err != nil {
		panic(fmt.Sprintf("schema: embedded catalog is invalid: %v", err))
	}
	return c
}

// LoadOrDefault loads path, or returns the embedded catalog when path is empty.
func LoadOrDefault(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
