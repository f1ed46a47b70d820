package domain

import "time"

// RawItem is one unnormalized item produced by a source fetcher.
// The set of variants is closed: RSSEntry, HTMLPage and FeedRecord.
type RawItem interface {
	Source() string
	rawItem()
}

// RSSEntry is an item taken from an RSS or Atom feed.
type RSSEntry struct {
	SourceID    string
	GUID        string
	Link        string
	Title       string
	Description string
	Content     string
	Published   string
	FetchedAt   time.Time
}

// HTMLPage is a crawled page or listing fragment.
type HTMLPage struct {
	SourceID  string
	URL       string
	Title     string
	HTML      string
	Published string
	FetchedAt time.Time
}

// FeedRecord is a structured record from a JSON feed (openFDA style).
type FeedRecord struct {
	SourceID  string
	ID        string
	URL       string
	Title     string
	Body      string
	Date      string
	Fields    map[string]string
	FetchedAt time.Time
}

func (e RSSEntry) Source() string   { return e.SourceID }
func (p HTMLPage) Source() string   { return p.SourceID }
func (f FeedRecord) Source() string { return f.SourceID }

func (RSSEntry) rawItem()   {}
func (HTMLPage) rawItem()   {}
func (FeedRecord) rawItem() {}
