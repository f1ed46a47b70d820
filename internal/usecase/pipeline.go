package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/metrics"
	"RegulatoryTracker/internal/ports"
)

// Normalizer turns a raw item into a canonical document.
type Normalizer interface {
	Normalize(item domain.RawItem) (domain.RegulatoryDocument, error)
}

// Detector decides whether a document is new, updated, a duplicate or unchanged.
type Detector interface {
	Detect(ctx context.Context, doc domain.RegulatoryDocument) (domain.ChangeRecord, error)
	// Recorded rebuilds the change of the latest stored revision of doc.
	Recorded(ctx context.Context, doc domain.RegulatoryDocument) (domain.ChangeRecord, bool, error)
}

// Classifier assigns risk and impact areas.
type Classifier interface {
	Classify(ctx context.Context, doc domain.RegulatoryDocument) (domain.Classification, error)
}

// Mapper links a document to catalog products.
type Mapper interface {
	Map(ctx context.Context, doc domain.RegulatoryDocument) ([]domain.ProductImpact, error)
}

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source      ports.SourceFetcher
	Normalizer  Normalizer
	Detector    Detector
	Classifier  Classifier
	Mapper      Mapper
	Repository  ports.AssessmentRepository
	Sinks       []ports.Sink
	Notifier    ports.Notifier
	Metrics     *metrics.Metrics
	Tracer      trace.Tracer
	Logger      *slog.Logger
	Concurrency int
	SinkTimeout time.Duration
	Clock       func() time.Time
}

// Pipeline implements the regulatory change workflow.
type Pipeline struct {
	source      ports.SourceFetcher
	normalizer  Normalizer
	detector    Detector
	classifier  Classifier
	mapper      Mapper
	repository  ports.AssessmentRepository
	sinks       []ports.Sink
	notifier    ports.Notifier
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
	concurrency int
	sinkTimeout time.Duration
	now         func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:      deps.Source,
		normalizer:  deps.Normalizer,
		detector:    deps.Detector,
		classifier:  deps.Classifier,
		mapper:      deps.Mapper,
		repository:  deps.Repository,
		sinks:       deps.Sinks,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		tracer:      deps.Tracer,
		logger:      deps.Logger,
		concurrency: deps.Concurrency,
		sinkTimeout: deps.SinkTimeout,
		now:         deps.Clock,
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("regtracker/pipeline")
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.concurrency <= 0 {
		p.concurrency = 1
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// batch collects per-item outcomes from concurrent workers.
type batch struct {
	mu          sync.Mutex
	summary     domain.BatchSummary
	assessments []domain.Assessment
}

func (b *batch) count(status domain.ChangeStatus) {
	b.mu.Lock()
	b.summary.Count(status)
	b.mu.Unlock()
}

func (b *batch) fail(f domain.ItemFailure) {
	b.mu.Lock()
	b.summary.Fail(f)
	b.mu.Unlock()
}

func (b *batch) sourceError(e domain.SourceError) {
	b.mu.Lock()
	b.summary.SourceErrors = append(b.summary.SourceErrors, e)
	b.mu.Unlock()
}

func (b *batch) assessed(a domain.Assessment) {
	b.mu.Lock()
	b.assessments = append(b.assessments, a)
	b.mu.Unlock()
}

// Run processes one batch across all sources. Per-item and per-source
// failures are reported in the summary; the error is reserved for a
// pipeline that cannot start. Cancelling ctx stops dispatching new items,
// while items already dispatched run to completion.
func (p *Pipeline) Run(ctx context.Context) (domain.BatchSummary, error) {
	if err := p.validate(); err != nil {
		return domain.BatchSummary{}, err
	}

	started := p.now()
	b := &batch{summary: domain.BatchSummary{RunID: uuid.NewString(), StartedAt: started.UTC()}}

	ctx, span := p.tracer.Start(ctx, "pipeline.batch",
		trace.WithAttributes(attribute.String("run_id", b.summary.RunID)))
	defer span.End()

	logger := p.logger.With("run_id", b.summary.RunID)
	logger.Info("batch started", "sources", len(p.source.Sources()), "concurrency", p.concurrency)

	work := context.WithoutCancel(ctx)
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)

dispatch:
	for _, sourceID := range p.source.Sources() {
		if ctx.Err() != nil {
			break
		}
		for item, err := range p.source.Fetch(ctx, sourceID) {
			if ctx.Err() != nil {
				break dispatch
			}
			if err != nil {
				logger.Warn("source fetch failed", "source", sourceID, "error", err)
				b.sourceError(domain.SourceError{SourceID: sourceID, Reason: err.Error()})
				p.metrics.IncSourceError(sourceID)
				break
			}
			g.Go(func() error {
				// g.Go blocks while every worker is busy
				if ctx.Err() != nil {
					return nil
				}
				p.process(work, logger, b, sourceID, item)
				return nil
			})
		}
	}
	_ = g.Wait()

	b.summary.Cancelled = ctx.Err() != nil
	b.summary.FinishedAt = p.now().UTC()
	p.metrics.ObserveBatch(b.summary.FinishedAt.Sub(b.summary.StartedAt))

	span.SetAttributes(
		attribute.Int("processed", b.summary.Processed),
		attribute.Int("failed", b.summary.Failed),
		attribute.Bool("cancelled", b.summary.Cancelled),
	)

	p.sendDigest(work, logger, b.assessments)

	logger.Info("batch finished",
		"processed", b.summary.Processed,
		"new", b.summary.New,
		"updated", b.summary.Updated,
		"unchanged", b.summary.Unchanged,
		"duplicate", b.summary.Duplicate,
		"failed", b.summary.Failed,
		"source_errors", len(b.summary.SourceErrors),
		"cancelled", b.summary.Cancelled,
	)
	return b.summary, nil
}

func (p *Pipeline) validate() error {
	switch {
	case p.source == nil:
		return fmt.Errorf("pipeline: source is not configured")
	case p.normalizer == nil || p.detector == nil:
		return fmt.Errorf("pipeline: normalizer and detector are required")
	case p.classifier == nil || p.mapper == nil:
		return fmt.Errorf("pipeline: classifier and mapper are required")
	case p.repository == nil:
		return fmt.Errorf("pipeline: assessment repository is required")
	}
	return nil
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, b *batch, sourceID string, item domain.RawItem) {
	ref := refOf(item)
	ctx, span := p.tracer.Start(ctx, "pipeline.item", trace.WithAttributes(
		attribute.String("source", sourceID),
		attribute.String("ref", ref),
	))
	defer span.End()

	fail := func(stage string, err error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		logger.Warn("item failed", "source", sourceID, "ref", ref, "stage", stage, "error", err)
		b.fail(domain.ItemFailure{SourceID: sourceID, Ref: ref, Stage: stage, Reason: err.Error()})
		p.metrics.IncFailure(stage)
	}

	start := p.now()
	doc, err := p.normalizer.Normalize(item)
	p.metrics.ObserveStage(domain.StageNormalize, p.now().Sub(start))
	if err != nil {
		fail(domain.StageNormalize, err)
		return
	}
	ref = doc.RefOrTitle()

	start = p.now()
	change, err := p.detector.Detect(ctx, doc)
	p.metrics.ObserveStage(domain.StageDetect, p.now().Sub(start))
	if err != nil {
		fail(domain.StageDetect, err)
		return
	}
	recovered := false
	if change.Status == domain.StatusUnchanged {
		replay, ok, err := p.unassessed(ctx, doc, change)
		if err != nil {
			fail(domain.StagePersist, err)
			return
		}
		if ok {
			logger.Info("re-assessing revision without a stored assessment",
				"source", sourceID, "ref", ref, "revision", replay.Revision)
			change, recovered = replay, true
		}
	}
	span.SetAttributes(attribute.String("status", string(change.Status)))

	if !change.Status.Actionable() {
		b.count(change.Status)
		p.metrics.IncItem(sourceID, string(change.Status))
		return
	}

	assessment, err := p.assess(ctx, doc, change)
	if err != nil {
		var se *stageError
		if errors.As(err, &se) {
			fail(se.stage, se.err)
		} else {
			fail(domain.StageClassify, err)
		}
		return
	}

	start = p.now()
	saved, err := p.repository.Save(ctx, assessment)
	p.metrics.ObserveStage(domain.StagePersist, p.now().Sub(start))
	if err != nil {
		fail(domain.StagePersist, err)
		return
	}

	status := change.Status
	if recovered && !saved {
		status = domain.StatusUnchanged
	}
	b.count(status)
	p.metrics.IncItem(sourceID, string(status))
	if !saved {
		logger.Debug("assessment already stored", "source", sourceID, "ref", ref)
		return
	}

	p.metrics.IncAssessment(string(assessment.RiskTier), assessment.SummarySource == domain.SummaryFromFallback)
	b.assessed(assessment)
	p.publish(ctx, logger, assessment)
}

// unassessed returns the recorded change when history already holds doc as
// its latest actionable revision but no assessment was stored for it, which
// happens when an earlier run failed after detection.
func (p *Pipeline) unassessed(ctx context.Context, doc domain.RegulatoryDocument, change domain.ChangeRecord) (domain.ChangeRecord, bool, error) {
	has, err := p.repository.Has(ctx, doc.Key(), change.Revision)
	if err != nil || has {
		return domain.ChangeRecord{}, false, err
	}
	return p.detector.Recorded(ctx, doc)
}

// assess runs the classifier and the mapper concurrently and assembles the
// assessment once both have finished.
func (p *Pipeline) assess(ctx context.Context, doc domain.RegulatoryDocument, change domain.ChangeRecord) (domain.Assessment, error) {
	var (
		cls      domain.Classification
		products []domain.ProductImpact
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := p.now()
		defer func() { p.metrics.ObserveStage(domain.StageClassify, p.now().Sub(start)) }()

		c, err := p.classifier.Classify(gctx, doc)
		if err != nil {
			return &stageError{stage: domain.StageClassify, err: err}
		}
		cls = c
		return nil
	})
	g.Go(func() error {
		start := p.now()
		defer func() { p.metrics.ObserveStage(domain.StageMap, p.now().Sub(start)) }()

		m, err := p.mapper.Map(gctx, doc)
		if err != nil {
			return &stageError{stage: domain.StageMap, err: err}
		}
		products = m
		return nil
	})
	if err := g.Wait(); err != nil {
		return domain.Assessment{}, err
	}
	if products == nil {
		products = []domain.ProductImpact{}
	}

	return domain.Assessment{
		ID:               uuid.NewString(),
		Document:         doc,
		Change:           change,
		RiskTier:         cls.Tier,
		RiskScore:        cls.Score,
		Indicators:       cls.Indicators,
		ImpactAreas:      cls.Areas,
		AffectedProducts: products,
		ActionItems:      cls.ActionItems,
		Summary:          cls.Summary,
		SummarySource:    cls.SummarySource,
		CreatedAt:        p.now().UTC(),
	}, nil
}

func (p *Pipeline) publish(ctx context.Context, logger *slog.Logger, a domain.Assessment) {
	for _, sink := range p.sinks {
		sctx, cancel := withTimeout(ctx, p.sinkTimeout)
		err := sink.Publish(sctx, a)
		cancel()
		if err != nil {
			logger.Warn("sink publish failed", "sink", sink.Name(), "assessment", a.ID, "error", err)
			p.metrics.IncSinkError(sink.Name())
		}
	}
}

func (p *Pipeline) sendDigest(ctx context.Context, logger *slog.Logger, assessments []domain.Assessment) {
	if p.notifier == nil || len(assessments) == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(assessments)); err != nil {
		logger.Warn("digest publish failed", "error", err)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func refOf(item domain.RawItem) string {
	switch v := item.(type) {
	case domain.RSSEntry:
		return firstNonEmpty(v.GUID, v.Link, v.Title)
	case domain.HTMLPage:
		return firstNonEmpty(v.URL, v.Title)
	case domain.FeedRecord:
		return firstNonEmpty(v.ID, v.URL, v.Title)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
