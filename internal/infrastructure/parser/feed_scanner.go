package parser

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"
	"strings"
	"time"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/scanner"
)

// FeedScanner pages through JSON APIs that return a list of records, such
// as openFDA enforcement reports.
type FeedScanner struct {
	client *http.Client
	now    func() time.Time
}

// NewFeedScanner wires an HTTP client; a nil client gets the given timeout.
func NewFeedScanner(client *http.Client, timeout time.Duration) *FeedScanner {
	return &FeedScanner{client: defaultClient(client, timeout), now: time.Now}
}

// Name identifies the strategy inside the registry.
func (s *FeedScanner) Name() string {
	return "feed"
}

// Scan walks pages with skip/limit query parameters until a short page or
// the "maxPages" option is reached. Options "id", "title", "body", "date"
// and "url" name the record fields; "results" is the dotted path to the
// record list.
func (s *FeedScanner) Scan(ctx context.Context, req scanner.Request) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		var (
			pageSize = req.IntOption("pageSize", 100)
			maxPages = req.IntOption("maxPages", 1)
			path     = req.Option("results", "results")
		)

		for _, ep := range req.Endpoints {
			for page, skip := 0, 0; page < maxPages; page, skip = page+1, skip+pageSize {
				pageURL, err := buildPageURL(ep.URL, skip, pageSize)
				if err != nil {
					yield(nil, &domain.FetchError{SourceID: req.SourceID, Endpoint: ep.Name, Err: err})
					return
				}

				records, err := s.fetchPage(ctx, pageURL, path)
				if err != nil {
					yield(nil, &domain.FetchError{SourceID: req.SourceID, Endpoint: ep.Name, Err: err})
					return
				}

				fetchedAt := s.now().UTC()
				for _, rec := range records {
					if !yield(toRecord(req, rec, fetchedAt), nil) {
						return
					}
				}
				if len(records) < pageSize {
					break
				}
			}
		}
	}
}

func (s *FeedScanner) fetchPage(ctx context.Context, pageURL, path string) ([]map[string]any, error) {
	body, err := get(ctx, s.client, pageURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var payload any
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}

	list, ok := lookup(payload, path).([]any)
	if !ok {
		return nil, fmt.Errorf("feed has no record list at %q", path)
	}

	records := make([]map[string]any, 0, len(list))
	for _, v := range list {
		if rec, ok := v.(map[string]any); ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

func toRecord(req scanner.Request, rec map[string]any, fetchedAt time.Time) domain.FeedRecord {
	fields := make(map[string]string, len(rec))
	for k, v := range rec {
		if s, ok := scalar(v); ok {
			fields[k] = s
		}
	}

	field := func(option, def string) string {
		s, _ := scalar(lookup(rec, req.Option(option, def)))
		return s
	}

	return domain.FeedRecord{
		SourceID:  req.SourceID,
		ID:        field("id", "id"),
		URL:       field("url", "url"),
		Title:     field("title", "title"),
		Body:      field("body", "body"),
		Date:      field("date", "date"),
		Fields:    fields,
		FetchedAt: fetchedAt,
	}
}

// lookup follows a dotted path through nested JSON objects.
func lookup(v any, path string) any {
	if path == "" {
		return v
	}
	for _, part := range strings.Split(path, ".") {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = obj[part]
	}
	return v
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
