// Package impact links documents to entries of the product catalog.
package impact

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// Mapper scores every catalog product against a document.
type Mapper struct {
	catalog       ports.ProductCatalog
	minConfidence float64

	mu       sync.RWMutex
	patterns map[string]*regexp.Regexp
}

// NewMapper creates a mapper that drops links below minConfidence.
func NewMapper(catalog ports.ProductCatalog, minConfidence float64) *Mapper {
	return &Mapper{
		catalog:       catalog,
		minConfidence: minConfidence,
		patterns:      make(map[string]*regexp.Regexp),
	}
}

// Map returns affected products ordered by confidence, then product id.
func (m *Mapper) Map(ctx context.Context, doc domain.RegulatoryDocument) ([]domain.ProductImpact, error) {
	products, err := m.catalog.ListProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	text := doc.Title + "\n" + doc.BodyText
	impacts := make([]domain.ProductImpact, 0)
	for _, p := range products {
		conf := m.confidence(p, text)
		if conf <= 0 || conf < m.minConfidence {
			continue
		}
		impacts = append(impacts, domain.ProductImpact{ProductID: p.ID, Name: p.Name, Confidence: conf})
	}

	sort.Slice(impacts, func(i, j int) bool {
		if impacts[i].Confidence != impacts[j].Confidence {
			return impacts[i].Confidence > impacts[j].Confidence
		}
		return impacts[i].ProductID < impacts[j].ProductID
	})
	return impacts, nil
}

// confidence is the share of the product's distinct terms found in text.
func (m *Mapper) confidence(p domain.Product, text string) float64 {
	seen := make(map[string]struct{}, len(p.IdentifyingTerms))
	matched := 0
	for _, term := range p.IdentifyingTerms {
		key := canonicalTerm(term)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if m.pattern(key).MatchString(text) {
			matched++
		}
	}
	if len(seen) == 0 {
		return 0
	}
	return float64(matched) / float64(len(seen))
}

func (m *Mapper) pattern(term string) *regexp.Regexp {
	m.mu.RLock()
	re, ok := m.patterns[term]
	m.mu.RUnlock()
	if ok {
		return re
	}

	words := strings.Fields(term)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	re = regexp.MustCompile(`(?i)(?:^|[^\pL\pN])` + strings.Join(words, `\s+`) + `(?:$|[^\pL\pN])`)

	m.mu.Lock()
	m.patterns[term] = re
	m.mu.Unlock()
	return re
}

func canonicalTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}
