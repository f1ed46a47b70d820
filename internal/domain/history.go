package domain

import "time"

// HistoryKey identifies one logical publication inside a source.
type HistoryKey struct {
	SourceID string
	Ref      string
}

// String renders the key in its persisted form.
func (k HistoryKey) String() string {
	return k.SourceID + "|" + k.Ref
}

// HistoryEntry is the latest stored revision for a key. Revisions form an
// append-only chain with strictly increasing Revision. PredecessorHash names
// the content of revision-1; hashes repeat when content reverts, so the chain
// is walked by Revision.
type HistoryEntry struct {
	Key             HistoryKey         `json:"-"`
	ContentHash     string             `json:"content_hash"`
	Fingerprint     string             `json:"fingerprint"`
	PredecessorHash string             `json:"predecessor_hash,omitempty"`
	Revision        int                `json:"revision"`
	Status          ChangeStatus       `json:"status"`
	Document        RegulatoryDocument `json:"document"`
	LastSeenAt      time.Time          `json:"last_seen_at"`
}
