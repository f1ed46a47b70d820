// Package normalizer turns raw source items into canonical regulatory documents.
package normalizer

import (
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-shiori/go-readability"

	"RegulatoryTracker/internal/domain"
)

const (
	defaultMaxBodyRunes = 20000
	maxDerivedTitle     = 120
)

// Normalizer converts RawItem variants into RegulatoryDocument values.
type Normalizer struct {
	maxBodyRunes int
	now          func() time.Time
}

// Option customizes a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the fetch time used when the raw item carries none.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// New builds a normalizer; non-positive maxBodyRunes falls back to the default.
func New(maxBodyRunes int, opts ...Option) *Normalizer {
	if maxBodyRunes <= 0 {
		maxBodyRunes = defaultMaxBodyRunes
	}
	n := &Normalizer{maxBodyRunes: maxBodyRunes, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type fields struct {
	sourceID  string
	ref       string
	url       string
	title     string
	body      string
	published string
	fetchedAt time.Time
}

// Normalize maps a raw item to a document or returns *domain.NormalizationError.
func (n *Normalizer) Normalize(item domain.RawItem) (domain.RegulatoryDocument, error) {
	var f fields

	switch v := item.(type) {
	case domain.RSSEntry:
		f = fields{
			sourceID:  v.SourceID,
			ref:       firstNonEmpty(v.GUID, v.Link),
			url:       v.Link,
			title:     StripMarkup(v.Title),
			body:      StripMarkup(firstNonEmpty(v.Content, v.Description)),
			published: v.Published,
			fetchedAt: v.FetchedAt,
		}
	case domain.HTMLPage:
		title, body := extractPage(v)
		f = fields{
			sourceID:  v.SourceID,
			ref:       v.URL,
			url:       v.URL,
			title:     title,
			body:      body,
			published: v.Published,
			fetchedAt: v.FetchedAt,
		}
	case domain.FeedRecord:
		f = fields{
			sourceID:  v.SourceID,
			ref:       v.ID,
			url:       v.URL,
			title:     StripMarkup(v.Title),
			body:      StripMarkup(v.Body),
			published: v.Date,
			fetchedAt: v.FetchedAt,
		}
	case nil:
		return domain.RegulatoryDocument{}, &domain.NormalizationError{Reason: "nil item"}
	default:
		return domain.RegulatoryDocument{}, &domain.NormalizationError{SourceID: item.Source(), Reason: "unsupported item type"}
	}

	return n.build(f)
}

func (n *Normalizer) build(f fields) (domain.RegulatoryDocument, error) {
	f.sourceID = strings.TrimSpace(f.sourceID)
	f.ref = strings.TrimSpace(f.ref)

	if f.sourceID == "" {
		return domain.RegulatoryDocument{}, &domain.NormalizationError{Ref: f.ref, Reason: "missing source id"}
	}
	if f.body == "" {
		return domain.RegulatoryDocument{}, &domain.NormalizationError{SourceID: f.sourceID, Ref: f.ref, Reason: "empty body"}
	}
	if f.title == "" {
		f.title = deriveTitle(f.body)
	}

	body, truncated := truncateRunes(f.body, n.maxBodyRunes)

	doc := domain.RegulatoryDocument{
		SourceID:    f.sourceID,
		ExternalRef: f.ref,
		URL:         strings.TrimSpace(f.url),
		FetchedAt:   f.fetchedAt,
		Title:       f.title,
		BodyText:    body,
		Truncated:   truncated,
		PublishedAt: ParseDate(f.published),
	}
	if doc.FetchedAt.IsZero() {
		doc.FetchedAt = n.now().UTC()
	}

	refOrTitle := doc.RefOrTitle()
	if refOrTitle == "" {
		return domain.RegulatoryDocument{}, &domain.NormalizationError{SourceID: f.sourceID, Reason: "no usable key"}
	}
	doc.ContentHash = domain.ContentHashOf(doc.SourceID, refOrTitle, doc.BodyText)
	doc.Fingerprint = domain.FingerprintOf(doc.Title, doc.BodyText)

	return doc, nil
}

// extractPage prefers readability for full documents and falls back to
// boilerplate stripping when it finds nothing.
func extractPage(page domain.HTMLPage) (string, string) {
	title := StripMarkup(page.Title)

	if looksLikeDocument(page.HTML) {
		pageURL, _ := url.Parse(page.URL)
		if pageURL == nil {
			pageURL = &url.URL{}
		}
		article, err := readability.FromReader(strings.NewReader(page.HTML), pageURL)
		if err == nil {
			body := CollapseWhitespace(article.TextContent)
			if body != "" {
				if title == "" {
					title = CollapseWhitespace(article.Title)
				}
				return title, body
			}
		}
	}

	pageTitle, body := StripBoilerplate(page.HTML)
	if title == "" {
		title = pageTitle
	}
	return title, body
}

func looksLikeDocument(html string) bool {
	head := strings.ToLower(html[:min(len(html), 512)])
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype")
}

func deriveTitle(body string) string {
	end := strings.IndexAny(body, ".!?")
	candidate := body
	if end > 0 {
		candidate = body[:end]
	}
	candidate, cut := truncateRunes(strings.TrimSpace(candidate), maxDerivedTitle)
	if cut {
		candidate += "..."
	}
	return candidate
}

func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return strings.TrimSpace(s[:i]), true
		}
		count++
	}
	return s, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
