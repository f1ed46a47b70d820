package ports

import (
	"context"
	"iter"
	"time"

	"RegulatoryTracker/internal/domain"
)

// SourceFetcher lazily yields raw items for one configured source.
// Errors yielded by the sequence are *domain.FetchError values.
type SourceFetcher interface {
	Sources() []string
	Fetch(ctx context.Context, sourceID string) iter.Seq2[domain.RawItem, error]
}

// Summarizer turns document text into a short summary. Failures wrap
// domain.ErrSummarizerUnavailable.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// HistoryStore keeps the latest revision per key plus its revision chain.
type HistoryStore interface {
	Get(ctx context.Context, key domain.HistoryKey) (domain.HistoryEntry, bool, error)
	// CompareAndSet writes entry only when the stored content hash equals
	// expectedHash; an empty expectedHash means the key must be absent.
	CompareAndSet(ctx context.Context, key domain.HistoryKey, expectedHash string, entry domain.HistoryEntry) (bool, error)
	FindByFingerprint(ctx context.Context, fingerprint string) (domain.HistoryEntry, bool, error)
	// Revisions returns every stored revision for key, oldest first.
	Revisions(ctx context.Context, key domain.HistoryKey) ([]domain.HistoryEntry, error)
}

// ProductCatalog exposes the read-only product list.
type ProductCatalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// Sink receives finished assessments. Failures are logged by the caller.
type Sink interface {
	Name() string
	Publish(ctx context.Context, assessment domain.Assessment) error
}

// AssessmentRepository persists assessments for the read surfaces.
type AssessmentRepository interface {
	// Save stores the assessment; a second save for the same key and
	// revision is a no-op and reports false.
	Save(ctx context.Context, assessment domain.Assessment) (bool, error)
	// Has reports whether an assessment exists for the key and revision.
	Has(ctx context.Context, key domain.HistoryKey, revision int) (bool, error)
	Get(ctx context.Context, id string) (domain.Assessment, error)
	ListRecent(ctx context.Context, query domain.RecentQuery) ([]domain.Assessment, error)
}

// Notifier streams text digests to chat channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
