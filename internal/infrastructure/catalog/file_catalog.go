// Package catalog loads the product catalog used by the impact mapper.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"RegulatoryTracker/internal/domain"
)

type catalogFile struct {
	Products []domain.Product `yaml:"products"`
}

// FileCatalog serves products from a YAML file and can be reloaded in place.
type FileCatalog struct {
	path   string
	logger *slog.Logger

	mu       sync.RWMutex
	products []domain.Product
}

// Load reads the catalog at path. An empty path yields an empty catalog.
func Load(path string, logger *slog.Logger) (*FileCatalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &FileCatalog{path: path, logger: logger}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewStatic wraps an in-memory product list.
func NewStatic(products []domain.Product) *FileCatalog {
	return &FileCatalog{logger: slog.Default(), products: slices.Clone(products)}
}

// Reload re-reads the file. On error the previous products stay active.
func (c *FileCatalog) Reload() error {
	if c.path == "" {
		return nil
	}

	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("parse catalog: %w", err)
	}
	if err := validate(file.Products); err != nil {
		return err
	}

	c.mu.Lock()
	c.products = file.Products
	c.mu.Unlock()

	c.logger.Info("product catalog loaded", "path", c.path, "products", len(file.Products))
	return nil
}

// ListProducts returns a copy of the current products.
func (c *FileCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.products), nil
}

func validate(products []domain.Product) error {
	ids := make(map[string]struct{}, len(products))
	for i, p := range products {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("catalog entry %d: missing id", i)
		}
		if _, dup := ids[id]; dup {
			return fmt.Errorf("catalog entry %d: duplicate id %q", i, id)
		}
		ids[id] = struct{}{}
		if len(p.IdentifyingTerms) == 0 {
			return fmt.Errorf("catalog entry %q: no identifying terms", id)
		}
	}
	return nil
}
