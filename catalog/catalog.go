// Package catalog loads tenant experiment catalogs from YAML or JSON.
package catalog

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/eladnissenberg/variant-shopify-setup/types"
)

// Parse decodes and validates a catalog. JSON input works too, as a YAML
// subset.
//
// Parameters:
//   - data: Raw catalog bytes
//
// Returns:
//   - types.Catalog: The decoded catalog
//   - error: Wrapping types.ErrInvalidCatalog on malformed or inconsistent
//     input
func Parse(data []byte) (types.Catalog, error) {
	var c types.Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return types.Catalog{}, fmt.Errorf("%w: %w", types.ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return types.Catalog{}, err
	}

	return c, nil
}

// Load decodes and validates a catalog from r.
//
// Parameters:
//   - r: Catalog source
//
// Returns:
//   - types.Catalog: The decoded catalog
//   - error: Read error, or wrapping types.ErrInvalidCatalog
func Load(r io.Reader) (types.Catalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return types.Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	return Parse(data)
}

// LoadFile decodes and validates the catalog file at path.
//
// Parameters:
//   - path: Catalog file path
//
// Returns:
//   - types.Catalog: The decoded catalog
//   - error: Read error, or wrapping types.ErrInvalidCatalog
func LoadFile(path string) (types.Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Catalog{}, fmt.Errorf("read catalog file: %w", err)
	}

	return Parse(data)
}
