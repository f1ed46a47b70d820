package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
	"unicode"
)

// RegulatoryDocument is the canonical, source-independent form of a publication.
// Values are immutable once built by the normalizer.
type RegulatoryDocument struct {
	SourceID    string     `json:"source_id"`
	ExternalRef string     `json:"external_ref,omitempty"`
	URL         string     `json:"url,omitempty"`
	FetchedAt   time.Time  `json:"fetched_at"`
	Title       string     `json:"title"`
	BodyText    string     `json:"body_text"`
	Truncated   bool       `json:"truncated,omitempty"`
	ContentHash string     `json:"content_hash"`
	Fingerprint string     `json:"fingerprint"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// RefOrTitle returns the identifier used for keys and hashing.
func (d RegulatoryDocument) RefOrTitle() string {
	if ref := strings.TrimSpace(d.ExternalRef); ref != "" {
		return ref
	}
	return NormalizeTitle(d.Title)
}

// Key returns the history lookup key of the document.
func (d RegulatoryDocument) Key() HistoryKey {
	return HistoryKey{SourceID: d.SourceID, Ref: d.RefOrTitle()}
}

// ContentHashOf derives the revision identity of a document body.
// FetchedAt never participates.
func ContentHashOf(sourceID, refOrTitle, body string) string {
	return digest(sourceID, refOrTitle, body)
}

// FingerprintOf derives the source-independent identity of a document.
func FingerprintOf(title, body string) string {
	return digest(NormalizeTitle(title), body)
}

func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeTitle lowercases the title and collapses punctuation and whitespace runs.
func NormalizeTitle(title string) string {
	var b strings.Builder
	space := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}
