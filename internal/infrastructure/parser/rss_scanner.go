package parser

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/scanner"
)

// RSSScanner reads RSS and Atom feeds.
type RSSScanner struct {
	client *http.Client
	now    func() time.Time
}

// NewRSSScanner wires an HTTP client; a nil client gets the given timeout.
func NewRSSScanner(client *http.Client, timeout time.Duration) *RSSScanner {
	return &RSSScanner{client: defaultClient(client, timeout), now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *RSSScanner) Name() string {
	return "rss"
}

// Scan fetches every endpoint and yields its entries in feed order.
// The "limit" option caps entries per endpoint.
func (s *RSSScanner) Scan(ctx context.Context, req scanner.Request) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		limit := req.IntOption("limit", 0)

		for _, ep := range req.Endpoints {
			feed, err := s.fetchFeed(ctx, ep.URL)
			if err != nil {
				yield(nil, &domain.FetchError{SourceID: req.SourceID, Endpoint: ep.Name, Err: err})
				return
			}

			fetchedAt := s.now().UTC()
			for i, item := range feed.Items {
				if limit > 0 && i >= limit {
					break
				}
				if item == nil {
					continue
				}
				entry := domain.RSSEntry{
					SourceID:    req.SourceID,
					GUID:        item.GUID,
					Link:        item.Link,
					Title:       item.Title,
					Description: item.Description,
					Content:     item.Content,
					Published:   firstNonEmpty(item.Published, item.Updated),
					FetchedAt:   fetchedAt,
				}
				if !yield(entry, nil) {
					return
				}
			}
		}
	}
}

func (s *RSSScanner) fetchFeed(ctx context.Context, target string) (*gofeed.Feed, error) {
	body, err := get(ctx, s.client, target)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	feed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
