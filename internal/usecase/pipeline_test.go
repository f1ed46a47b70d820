package usecase

import (
	"context"
	"errors"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegulatoryTracker/internal/classifier"
	"RegulatoryTracker/internal/detector"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/impact"
	"RegulatoryTracker/internal/infrastructure/catalog"
	"RegulatoryTracker/internal/infrastructure/storage"
	"RegulatoryTracker/internal/logging"
	"RegulatoryTracker/internal/metrics"
	"RegulatoryTracker/internal/normalizer"
	"RegulatoryTracker/internal/ports"
)

type fakeSource struct {
	order []string
	items map[string][]domain.RawItem
	errs  map[string]error
	// onYield runs after each yielded item
	onYield func()
}

func (f *fakeSource) Sources() []string { return f.order }

func (f *fakeSource) Fetch(_ context.Context, sourceID string) iter.Seq2[domain.RawItem, error] {
	return func(yield func(domain.RawItem, error) bool) {
		for _, item := range f.items[sourceID] {
			if !yield(item, nil) {
				return
			}
			if f.onYield != nil {
				f.onYield()
			}
		}
		if err := f.errs[sourceID]; err != nil {
			yield(nil, &domain.FetchError{SourceID: sourceID, Err: err})
		}
	}
}

type recordingSink struct {
	mu   sync.Mutex
	name string
	got  []domain.Assessment
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Publish(_ context.Context, a domain.Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
	return s.err
}

type recordingNotifier struct {
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

type harness struct {
	source   *fakeSource
	repo     *storage.MemoryAssessments
	history  *storage.MemoryHistory
	sink     *recordingSink
	notifier *recordingNotifier
	metrics  *metrics.Metrics
	deps     PipelineDeps
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		source:   &fakeSource{items: map[string][]domain.RawItem{}, errs: map[string]error{}},
		repo:     storage.NewMemoryAssessments(),
		history:  storage.NewMemoryHistory(),
		sink:     &recordingSink{name: "recorder"},
		notifier: &recordingNotifier{},
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
	products := catalog.NewStatic([]domain.Product{
		{ID: "cardiox-10", Name: "Cardiox", IdentifyingTerms: []string{"cardiox", "beta blocker"}},
	})
	h.deps = PipelineDeps{
		Source:      h.source,
		Normalizer:  normalizer.New(20000),
		Detector:    detector.New(h.history, detector.Config{}, logging.Nop()),
		Classifier:  classifier.New(classifier.MustDefault(), nil, 0, logging.Nop()),
		Mapper:      impact.NewMapper(products, 0.3),
		Repository:  h.repo,
		Sinks:       []ports.Sink{h.sink},
		Notifier:    h.notifier,
		Metrics:     h.metrics,
		Logger:      logging.Nop(),
		Concurrency: 4,
		SinkTimeout: time.Second,
	}
	return h
}

func (h *harness) add(source string, items ...domain.RawItem) {
	if _, ok := h.source.items[source]; !ok {
		h.source.order = append(h.source.order, source)
	}
	h.source.items[source] = append(h.source.items[source], items...)
}

func (h *harness) run(t *testing.T) domain.BatchSummary {
	t.Helper()
	summary, err := NewPipeline(h.deps).Run(context.Background())
	require.NoError(t, err)
	return summary
}

func (h *harness) recent(t *testing.T) []domain.Assessment {
	t.Helper()
	list, err := h.repo.ListRecent(context.Background(), domain.RecentQuery{})
	require.NoError(t, err)
	return list
}

func entry(source, guid, title, body string) domain.RSSEntry {
	return domain.RSSEntry{SourceID: source, GUID: guid, Title: title, Description: body}
}

var (
	recallEntry = entry("fda", "fda-1", "Mandatory recall of Cardiox",
		"The agency announced a mandatory recall of Cardiox beta blocker tablets after contamination was found.")
	draftEntry = entry("fda", "fda-2", "Draft Guidance on Labeling",
		"The agency issued a draft guidance describing labeling format for over the counter products.")
)

func TestRunAssessesNewDocuments(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry, draftEntry)

	summary := h.run(t)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.New)
	assert.Zero(t, summary.Failed)
	assert.False(t, summary.Cancelled)
	assert.NotEmpty(t, summary.RunID)

	list := h.recent(t)
	require.Len(t, list, 2)
	byRef := map[string]domain.Assessment{}
	for _, a := range list {
		byRef[a.Document.ExternalRef] = a
	}

	recall := byRef["fda-1"]
	assert.Equal(t, domain.RiskHigh, recall.RiskTier)
	assert.Equal(t, domain.StatusNew, recall.Change.Status)
	require.Len(t, recall.AffectedProducts, 1)
	assert.Equal(t, "cardiox-10", recall.AffectedProducts[0].ProductID)
	assert.Equal(t, domain.SummaryFromFallback, recall.SummarySource)
	assert.NotEmpty(t, recall.ID)

	draft := byRef["fda-2"]
	assert.Equal(t, domain.RiskLow, draft.RiskTier)
	assert.Contains(t, draft.ImpactAreas, domain.AreaLabeling)
	assert.NotNil(t, draft.AffectedProducts)
	assert.Empty(t, draft.AffectedProducts)

	assert.Len(t, h.sink.got, 2)
	require.Len(t, h.notifier.digests, 1)
	assert.Contains(t, h.notifier.digests[0], "[HIGH] Mandatory recall of Cardiox")

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.Items.WithLabelValues("fda", "NEW")))
}

func TestRunIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry, draftEntry)
	h.run(t)

	summary := h.run(t)
	assert.Equal(t, 2, summary.Unchanged)
	assert.Zero(t, summary.New)
	assert.Len(t, h.recent(t), 2)
	assert.Len(t, h.sink.got, 2)
	assert.Len(t, h.notifier.digests, 1)
}

func TestRunCrossSourceDuplicate(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry)
	for _, src := range []string{"ema", "mhra", "tga"} {
		mirror := recallEntry
		mirror.SourceID = src
		mirror.GUID = src + "-77"
		h.add(src, mirror)
	}

	summary := h.run(t)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 3, summary.Duplicate)
	assert.Len(t, h.recent(t), 1)
	assert.Len(t, h.sink.got, 1)
}

func TestRunDetectsUpdate(t *testing.T) {
	h := newHarness(t)
	h.add("fda", draftEntry)
	h.run(t)
	first := h.recent(t)[0]

	revised := draftEntry
	revised.Description = "The agency finalized the guidance describing labeling format for over the counter products."
	h.source.items["fda"] = []domain.RawItem{revised}

	summary := h.run(t)
	assert.Equal(t, 1, summary.Updated)

	list := h.recent(t)
	require.Len(t, list, 2)
	var updated domain.Assessment
	for _, a := range list {
		if a.Change.Status == domain.StatusUpdated {
			updated = a
		}
	}
	assert.Equal(t, first.Document.ContentHash, updated.Change.PredecessorHash)
	assert.Equal(t, 2, updated.Change.Revision)
}

func TestRunAssessesRevertedContent(t *testing.T) {
	h := newHarness(t)
	revised := draftEntry
	revised.Description = "The agency finalized the guidance describing labeling format for over the counter products."

	for _, item := range []domain.RSSEntry{draftEntry, revised, draftEntry} {
		h.source.items["fda"] = nil
		h.add("fda", item)
		h.run(t)
	}

	list := h.recent(t)
	require.Len(t, list, 3)
	revisions := map[int]domain.Assessment{}
	for _, a := range list {
		revisions[a.Change.Revision] = a
	}
	require.Contains(t, revisions, 3)
	assert.Equal(t, domain.StatusUpdated, revisions[3].Change.Status)
	assert.Equal(t, revisions[1].Document.ContentHash, revisions[3].Document.ContentHash)
	assert.Equal(t, revisions[2].Document.ContentHash, revisions[3].Change.PredecessorHash)
	assert.Len(t, h.sink.got, 3)
}

func TestRunRecoversAssessmentLostToPersistFailure(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry)
	healthy := h.deps.Repository
	h.deps.Repository = failingRepo{h.repo}

	first := h.run(t)
	assert.Equal(t, 1, first.Failed)
	assert.Empty(t, h.recent(t))

	h.deps.Repository = healthy
	second := h.run(t)
	assert.Equal(t, 1, second.New)
	assert.Zero(t, second.Failed)

	list := h.recent(t)
	require.Len(t, list, 1)
	assert.Equal(t, domain.StatusNew, list[0].Change.Status)
	assert.Equal(t, 1, list[0].Change.Revision)
	assert.Len(t, h.sink.got, 1)

	third := h.run(t)
	assert.Equal(t, 1, third.Unchanged)
	assert.Len(t, h.recent(t), 1)
}

func TestRunRecoversLostUpdateWithDiff(t *testing.T) {
	h := newHarness(t)
	h.add("fda", draftEntry)
	h.run(t)

	revised := draftEntry
	revised.Description = "The agency finalized the guidance describing labeling format for over the counter products."
	h.source.items["fda"] = []domain.RawItem{revised}
	healthy := h.deps.Repository
	h.deps.Repository = failingRepo{h.repo}
	h.run(t)

	h.deps.Repository = healthy
	summary := h.run(t)
	assert.Equal(t, 1, summary.Updated)

	var updated domain.Assessment
	for _, a := range h.recent(t) {
		if a.Change.Revision == 2 {
			updated = a
		}
	}
	assert.Equal(t, domain.StatusUpdated, updated.Change.Status)
	assert.NotEmpty(t, updated.Change.DiffSummary)
	assert.NotEmpty(t, updated.Change.DiffExcerpt)
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, domain.RegulatoryDocument) (domain.Classification, error) {
	return domain.Classification{}, errors.New("rules unavailable")
}

type failingMapper struct{}

func (failingMapper) Map(context.Context, domain.RegulatoryDocument) ([]domain.ProductImpact, error) {
	return nil, errors.New("catalog offline")
}

type failingRepo struct{ *storage.MemoryAssessments }

func (failingRepo) Save(context.Context, domain.Assessment) (bool, error) {
	return false, errors.New("disk full")
}

func TestRunRecordsItemFailuresByStage(t *testing.T) {
	cases := []struct {
		name  string
		setup func(h *harness)
		stage string
	}{
		{
			name:  "normalize",
			setup: func(h *harness) { h.add("fda", entry("fda", "x", "Title only", "   ")) },
			stage: domain.StageNormalize,
		},
		{
			name: "classify",
			setup: func(h *harness) {
				h.add("fda", recallEntry)
				h.deps.Classifier = failingClassifier{}
			},
			stage: domain.StageClassify,
		},
		{
			name: "map",
			setup: func(h *harness) {
				h.add("fda", recallEntry)
				h.deps.Mapper = failingMapper{}
			},
			stage: domain.StageMap,
		},
		{
			name: "persist",
			setup: func(h *harness) {
				h.add("fda", recallEntry)
				h.deps.Repository = failingRepo{h.repo}
			},
			stage: domain.StagePersist,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			tc.setup(h)

			summary := h.run(t)
			assert.Equal(t, 1, summary.Processed)
			assert.Equal(t, 1, summary.Failed)
			require.Len(t, summary.Failures, 1)
			assert.Equal(t, tc.stage, summary.Failures[0].Stage)
			assert.Equal(t, "fda", summary.Failures[0].SourceID)
			assert.Empty(t, h.sink.got)
			assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Failures.WithLabelValues(tc.stage)))
		})
	}
}

func TestRunContinuesAfterSourceError(t *testing.T) {
	h := newHarness(t)
	h.add("broken", recallEntry)
	h.source.errs["broken"] = errors.New("connection refused")
	h.add("fda", draftEntry)

	summary := h.run(t)
	assert.Equal(t, 2, summary.New)
	require.Len(t, summary.SourceErrors, 1)
	assert.Equal(t, "broken", summary.SourceErrors[0].SourceID)
	assert.Contains(t, summary.SourceErrors[0].Reason, "connection refused")
}

func TestSinkFailureDoesNotFailItem(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry)
	broken := &recordingSink{name: "broken", err: errors.New("503")}
	h.deps.Sinks = []ports.Sink{broken, h.sink}

	summary := h.run(t)
	assert.Equal(t, 1, summary.New)
	assert.Zero(t, summary.Failed)
	assert.Len(t, broken.got, 1)
	assert.Len(t, h.sink.got, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.SinkErrors.WithLabelValues("broken")))
}

type gaugeClassifier struct {
	inner   Classifier
	current atomic.Int32
	peak    atomic.Int32
}

func (g *gaugeClassifier) Classify(ctx context.Context, doc domain.RegulatoryDocument) (domain.Classification, error) {
	n := g.current.Add(1)
	defer g.current.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return g.inner.Classify(ctx, doc)
}

func TestRunBoundsConcurrency(t *testing.T) {
	h := newHarness(t)
	for i := range 12 {
		h.add("fda", entry("fda", "id-"+string(rune('a'+i)), "Safety notice "+string(rune('a'+i)),
			"Safety communication number "+string(rune('a'+i))+" for prescribers."))
	}
	gauge := &gaugeClassifier{inner: h.deps.Classifier}
	h.deps.Classifier = gauge
	h.deps.Concurrency = 3

	summary := h.run(t)
	assert.Equal(t, 12, summary.New)
	assert.LessOrEqual(t, gauge.peak.Load(), int32(3))
}

func TestRunCancellationStopsDispatch(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry, draftEntry, entry("fda", "fda-3", "Safety alert", "Serious adverse event reports."))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.source.onYield = cancel

	summary, err := NewPipeline(h.deps).Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.New)

	list := h.recent(t)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].Summary)
	assert.NotEmpty(t, list[0].ActionItems)
}

// blockingClassifier holds the first call until release is closed.
type blockingClassifier struct {
	inner   Classifier
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (c *blockingClassifier) Classify(ctx context.Context, doc domain.RegulatoryDocument) (domain.Classification, error) {
	c.once.Do(func() {
		close(c.started)
		<-c.release
	})
	return c.inner.Classify(ctx, doc)
}

func TestRunCancelledWhileWaitingForWorker(t *testing.T) {
	h := newHarness(t)
	h.add("fda", recallEntry, draftEntry)
	blocking := &blockingClassifier{
		inner:   h.deps.Classifier,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	h.deps.Classifier = blocking
	h.deps.Concurrency = 1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-blocking.started
		// let dispatch block on the busy worker before cancelling
		time.Sleep(20 * time.Millisecond)
		cancel()
		close(blocking.release)
	}()

	summary, err := NewPipeline(h.deps).Run(ctx)
	require.NoError(t, err)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, summary.Processed)
	assert.Len(t, h.recent(t), 1)
}

func TestRunRequiresDependencies(t *testing.T) {
	_, err := NewPipeline(PipelineDeps{}).Run(context.Background())
	assert.Error(t, err)

	h := newHarness(t)
	h.deps.Repository = nil
	_, err = NewPipeline(h.deps).Run(context.Background())
	assert.ErrorContains(t, err, "repository")
}

func TestBuildDigestMessageOrdersBySeverity(t *testing.T) {
	msg := buildDigestMessage([]domain.Assessment{
		{RiskTier: domain.RiskLow, Document: domain.RegulatoryDocument{Title: "low", SourceID: "s"}},
		{RiskTier: domain.RiskHigh, Document: domain.RegulatoryDocument{Title: "high", SourceID: "s", URL: "https://x"}},
	})
	assert.Regexp(t, `(?s)^2 regulatory change\(s\) detected.*\[HIGH\] high.*https://x.*\[LOW\] low`, msg)
	assert.Empty(t, buildDigestMessage(nil))
}
