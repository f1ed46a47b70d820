// Package detector decides whether a normalized document is new, a revision,
// a cross-source duplicate or already known.
package detector

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"slices"
	"sync"
	"time"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

const (
	defaultSimilarityThreshold = 0.8
	defaultDiffWindowWords     = 2000
	defaultExcerptLines        = 40
	defaultLockStripes         = 256
	maxAttempts                = 2
)

// Config tunes diffing and lock striping.
type Config struct {
	SimilarityThreshold float64
	DiffWindowWords     int
	ExcerptLines        int
	LockStripes         int
}

// Detector classifies documents against a HistoryStore.
type Detector struct {
	store   ports.HistoryStore
	cfg     Config
	stripes []sync.Mutex
	now     func() time.Time
	logger  *slog.Logger
}

// New wires a detector; zero config values take defaults.
func New(store ports.HistoryStore, cfg Config, logger *slog.Logger) *Detector {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = defaultSimilarityThreshold
	}
	if cfg.DiffWindowWords <= 0 {
		cfg.DiffWindowWords = defaultDiffWindowWords
	}
	if cfg.ExcerptLines <= 0 {
		cfg.ExcerptLines = defaultExcerptLines
	}
	if cfg.LockStripes <= 0 {
		cfg.LockStripes = defaultLockStripes
	}
	return &Detector{
		store:   store,
		cfg:     cfg,
		stripes: make([]sync.Mutex, cfg.LockStripes),
		now:     time.Now,
		logger:  logger,
	}
}

// Detect compares doc with the stored history and records the outcome.
// At most one concurrent caller wins the write for a key; a caller that
// loses the compare-and-set twice is reported UNCHANGED against the winner.
// Callers sharing a fingerprint are serialized too, so of two sources
// mirroring the same content exactly one is NEW.
func (d *Detector) Detect(ctx context.Context, doc domain.RegulatoryDocument) (domain.ChangeRecord, error) {
	if d.store == nil {
		return domain.ChangeRecord{}, fmt.Errorf("history store is not configured")
	}

	key := doc.Key()
	unlock := d.lock(key.String(), "fingerprint:"+doc.Fingerprint)
	defer unlock()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		record, entry, expected, write, err := d.evaluate(ctx, key, doc)
		if err != nil {
			return domain.ChangeRecord{}, err
		}
		if !write {
			return record, nil
		}

		ok, err := d.store.CompareAndSet(ctx, key, expected, entry)
		if err != nil {
			return domain.ChangeRecord{}, fmt.Errorf("store %s: %w", key, err)
		}
		if ok {
			return record, nil
		}
		d.debug("history conflict", "key", key.String(), "attempt", attempt)
	}

	return d.loser(ctx, key)
}

func (d *Detector) evaluate(ctx context.Context, key domain.HistoryKey, doc domain.RegulatoryDocument) (domain.ChangeRecord, domain.HistoryEntry, string, bool, error) {
	current, found, err := d.store.Get(ctx, key)
	if err != nil {
		return domain.ChangeRecord{}, domain.HistoryEntry{}, "", false, fmt.Errorf("load history %s: %w", key, err)
	}

	entry := domain.HistoryEntry{
		Key:         key,
		ContentHash: doc.ContentHash,
		Fingerprint: doc.Fingerprint,
		Document:    doc,
		LastSeenAt:  d.now().UTC(),
	}

	if !found {
		entry.Revision = 1
		record := domain.ChangeRecord{Status: domain.StatusNew, Revision: 1}

		twin, dup, err := d.store.FindByFingerprint(ctx, doc.Fingerprint)
		if err != nil {
			return domain.ChangeRecord{}, domain.HistoryEntry{}, "", false, fmt.Errorf("fingerprint lookup: %w", err)
		}
		if dup && twin.Key != key {
			record.Status = domain.StatusDuplicate
			record.DuplicateOf = twin.Key.String()
		}
		entry.Status = record.Status
		return record, entry, "", true, nil
	}

	if current.ContentHash == doc.ContentHash {
		return domain.ChangeRecord{Status: domain.StatusUnchanged, Revision: current.Revision}, domain.HistoryEntry{}, "", false, nil
	}

	diff := compare(current.Document, doc, d.cfg)
	entry.PredecessorHash = current.ContentHash
	entry.Revision = current.Revision + 1
	entry.Status = domain.StatusUpdated

	record := domain.ChangeRecord{
		Status:          domain.StatusUpdated,
		PredecessorHash: current.ContentHash,
		DiffSummary:     diff.summary(),
		FieldsChanged:   diff.fields,
		Similarity:      diff.similarity,
		DiffExcerpt:     diff.excerpt,
		Revision:        entry.Revision,
	}
	return record, entry, current.ContentHash, true, nil
}

func (d *Detector) loser(ctx context.Context, key domain.HistoryKey) (domain.ChangeRecord, error) {
	winner, found, err := d.store.Get(ctx, key)
	if err != nil {
		return domain.ChangeRecord{}, fmt.Errorf("load winner %s: %w", key, err)
	}
	if d.logger != nil {
		d.logger.Warn("history conflict persisted, treating as unchanged", "key", key.String(), "error", domain.ErrStoreConflict)
	}
	record := domain.ChangeRecord{Status: domain.StatusUnchanged}
	if found {
		record.Revision = winner.Revision
	}
	return record, nil
}

// Recorded rebuilds the change that produced the latest stored revision of
// doc. It reports false when doc is not that revision or when the revision
// was not actionable (a DUPLICATE).
func (d *Detector) Recorded(ctx context.Context, doc domain.RegulatoryDocument) (domain.ChangeRecord, bool, error) {
	if d.store == nil {
		return domain.ChangeRecord{}, false, fmt.Errorf("history store is not configured")
	}

	key := doc.Key()
	current, found, err := d.store.Get(ctx, key)
	if err != nil {
		return domain.ChangeRecord{}, false, fmt.Errorf("load history %s: %w", key, err)
	}
	if !found || current.ContentHash != doc.ContentHash || !current.Status.Actionable() {
		return domain.ChangeRecord{}, false, nil
	}

	record := domain.ChangeRecord{
		Status:          current.Status,
		PredecessorHash: current.PredecessorHash,
		Revision:        current.Revision,
	}
	if current.Status != domain.StatusUpdated {
		return record, true, nil
	}

	// hashes can repeat along the chain (A -> B -> A), revisions cannot
	revs, err := d.store.Revisions(ctx, key)
	if err != nil {
		return domain.ChangeRecord{}, false, fmt.Errorf("load revisions %s: %w", key, err)
	}
	for _, rev := range revs {
		if rev.Revision == current.Revision-1 {
			diff := compare(rev.Document, doc, d.cfg)
			record.DiffSummary = diff.summary()
			record.FieldsChanged = diff.fields
			record.Similarity = diff.similarity
			record.DiffExcerpt = diff.excerpt
			break
		}
	}
	return record, true, nil
}

// lock takes the stripes for every name in ascending stripe order and
// returns the matching unlock.
func (d *Detector) lock(names ...string) func() {
	idx := make([]int, 0, len(names))
	for _, name := range names {
		h := fnv.New32a()
		_, _ = h.Write([]byte(name))
		idx = append(idx, int(h.Sum32()%uint32(len(d.stripes))))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		d.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			d.stripes[idx[j]].Unlock()
		}
	}
}

func (d *Detector) debug(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}
