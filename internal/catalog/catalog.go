// Package catalog translates between the three naming schemes used for a
// supply item: the order layer's quantity column, the canonical product key
// listed in an order's manifest, and the inventory table's short name.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// ErrUnknownKey is returned when a name has no counterpart in the catalog.
// It indicates a data or configuration defect and must not be skipped.
var ErrUnknownKey = errors.New("unknown catalog key")

// Product is one catalog entry.
type Product struct {
	Key        string `yaml:"key"`
	OrderField string `yaml:"order_field"`
	Inventory  string `yaml:"inventory"`
	Display    string `yaml:"display"`
}

type catalogFile struct {
	Products []Product `yaml:"products"`
}

// Catalog holds the lookup tables. It is immutable after Load.
type Catalog struct {
	products     []Product
	byOrderField map[string]string
	byKey        map[string]Product
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// MustDefault is Default for package-level initialisation and tests.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded catalog is invalid: %v", err))
	}
	return c
}

// Open loads the catalog at path, or the embedded catalog when path is empty.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// LoadFile reads a catalog from a YAML file on disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses and validates a YAML catalog. Keys, order fields and inventory
// short names must each be unique and non-empty.
func Load(r io.Reader) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.Products) == 0 {
		return nil, errors.New("catalog has no products")
	}

	c := &Catalog{
		products:     make([]Product, 0, len(file.Products)),
		byOrderField: make(map[string]string, len(file.Products)),
		byKey:        make(map[string]Product, len(file.Products)),
	}
	shortNames := make(map[string]bool, len(file.Products))

	for i, p := range file.Products {
		if p.Key == "" || p.OrderField == "" || p.Inventory == "" {
			return nil, fmt.Errorf("products[%d]: key, order_field and inventory are required", i)
		}
		if _, dup := c.byKey[p.Key]; dup {
			return nil, fmt.Errorf("products[%d]: duplicate key %q", i, p.Key)
		}
		if _, dup := c.byOrderField[p.OrderField]; dup {
			return nil, fmt.Errorf("products[%d]: duplicate order_field %q", i, p.OrderField)
		}
		if shortNames[p.Inventory] {
			return nil, fmt.Errorf("products[%d]: duplicate inventory name %q", i, p.Inventory)
		}
		c.byKey[p.Key] = p
		c.byOrderField[p.OrderField] = p.Key
		shortNames[p.Inventory] = true
		c.products = append(c.products, p)
	}
	return c, nil
}

// Products returns the catalog entries in file order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// ToCanonicalKey maps an order-layer column name to its product key.
func (c *Catalog) ToCanonicalKey(orderField string) (string, error) {
	key, ok := c.byOrderField[orderField]
	if !ok {
		return "", fmt.Errorf("order field %q: %w", orderField, ErrUnknownKey)
	}
	return key, nil
}

// OrderFieldFor maps a product key to the order-layer column holding its quantity.
func (c *Catalog) OrderFieldFor(key string) (string, error) {
	p, ok := c.byKey[key]
	if !ok {
		return "", fmt.Errorf("product %q: %w", key, ErrUnknownKey)
	}
	return p.OrderField, nil
}

// ToInventoryShortName maps a product key to the inventory row's ShortDesc.
func (c *Catalog) ToInventoryShortName(key string) (string, error) {
	p, ok := c.byKey[key]
	if !ok {
		return "", fmt.Errorf("product %q: %w", key, ErrUnknownKey)
	}
	return p.Inventory, nil
}

// ToDisplayName returns the label for a product key, or the key itself when
// the catalog has no label. It never fails.
func (c *Catalog) ToDisplayName(key string) string {
	if p, ok := c.byKey[key]; ok && p.Display != "" {
		return p.Display
	}
	return key
}

// Has reports whether key is a known product key.
func (c *Catalog) Has(key string) bool {
	_, ok := c.byKey[key]
	return ok
}
