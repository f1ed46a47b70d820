package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"RegulatoryTracker/internal/classifier"
	"RegulatoryTracker/internal/config"
	"RegulatoryTracker/internal/detector"
	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/impact"
	"RegulatoryTracker/internal/infrastructure/api"
	"RegulatoryTracker/internal/infrastructure/archive"
	"RegulatoryTracker/internal/infrastructure/catalog"
	"RegulatoryTracker/internal/infrastructure/kafka"
	"RegulatoryTracker/internal/infrastructure/llm"
	"RegulatoryTracker/internal/infrastructure/mcp"
	"RegulatoryTracker/internal/infrastructure/ml"
	"RegulatoryTracker/internal/infrastructure/parser"
	"RegulatoryTracker/internal/infrastructure/scheduler"
	"RegulatoryTracker/internal/infrastructure/search"
	"RegulatoryTracker/internal/infrastructure/storage"
	"RegulatoryTracker/internal/infrastructure/telegram"
	"RegulatoryTracker/internal/logging"
	"RegulatoryTracker/internal/metrics"
	"RegulatoryTracker/internal/normalizer"
	"RegulatoryTracker/internal/ports"
	"RegulatoryTracker/internal/scanner"
	"RegulatoryTracker/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	repo      ports.AssessmentRepository
	registry  *prometheus.Registry
	closers   []func() error
}

// New builds every adapter the configuration enables. Optional integrations
// (summarizers, sinks) are skipped when their settings are empty.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger}

	history, repo, err := a.buildStorage(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.repo = repo

	rules := classifier.MustDefault()
	if path := cfg.Classifier.RulesPath; path != "" {
		if rules, err = classifier.LoadRules(path); err != nil {
			a.Close()
			return nil, fmt.Errorf("load classifier rules: %w", err)
		}
	}

	summarizer, err := a.buildSummarizer(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	products, err := catalog.Load(cfg.Impact.CatalogPath, baseLogger.With("component", "catalog"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load product catalog: %w", err)
	}

	sinks, err := a.buildSinks(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	var notifier ports.Notifier
	if tg := cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		notifier = telegram.NewNotifier(tg)
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a.pipeline = usecase.NewPipeline(usecase.PipelineDeps{
		Source:     parser.NewStrategySource(a.buildRegistry(), cfg.Sites, baseLogger.With("component", "source")),
		Normalizer: normalizer.New(cfg.Normalizer.MaxBodyRunes),
		Detector: detector.New(history, detector.Config{
			SimilarityThreshold: cfg.Detector.SimilarityThreshold,
			DiffWindowWords:     cfg.Detector.DiffWindowWords,
			ExcerptLines:        cfg.Detector.ExcerptLines,
			LockStripes:         cfg.Detector.LockStripes,
		}, baseLogger.With("component", "detector")),
		Classifier:  classifier.New(rules, summarizer, cfg.Pipeline.SummarizerTimeout, baseLogger.With("component", "classifier")),
		Mapper:      impact.NewMapper(products, cfg.Impact.MinConfidence),
		Repository:  repo,
		Sinks:       sinks,
		Notifier:    notifier,
		Metrics:     metrics.New(a.registry),
		Logger:      baseLogger.With("component", "pipeline"),
		Concurrency: cfg.Pipeline.Concurrency,
		SinkTimeout: cfg.Pipeline.SinkTimeout,
	})

	a.scheduler = usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Scheduler.Interval, cfg.Scheduler.Location()),
		a.pipeline,
		baseLogger.With("component", "scheduler"),
	)

	return a, nil
}

// RunOnce executes a single batch and returns its summary.
func (a *Application) RunOnce(ctx context.Context) (domain.BatchSummary, error) {
	return a.pipeline.Run(ctx)
}

// Serve runs batches on the configured interval and exposes the HTTP API
// until ctx is cancelled.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	server := api.New(a.repo, a.scheduler, a.registry, a.logger.With("component", "api"))
	serveErr := server.Serve(ctx, a.cfg.HTTP.Addr)

	stopErr := a.scheduler.Stop(context.WithoutCancel(ctx))
	return errors.Join(serveErr, stopErr)
}

// MCPServer exposes the assessment store as MCP tools.
func (a *Application) MCPServer() (*mcp.Server, error) {
	return mcp.NewServer(mcp.Config{Name: a.cfg.MCP.Name, Version: a.cfg.MCP.Version}, a.repo)
}

// Close releases database, cache and broker connections.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) buildStorage(ctx context.Context) (ports.HistoryStore, ports.AssessmentRepository, error) {
	var (
		db      *sql.DB
		dialect storage.Dialect
		repo    ports.AssessmentRepository
	)

	if strings.EqualFold(a.cfg.Database.Driver, "memory") {
		repo = storage.NewMemoryAssessments()
	} else {
		var err error
		db, dialect, err = storage.Open(a.cfg.Database.Driver, a.cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := storage.Migrate(ctx, db); err != nil {
			return nil, nil, err
		}
		repo = storage.NewSQLAssessments(db, dialect)
	}

	switch backend := strings.ToLower(a.cfg.History.Backend); backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return storage.NewRedisHistory(client, a.cfg.Redis.KeyPrefix), repo, nil
	case "memory":
		return storage.NewMemoryHistory(), repo, nil
	case "", "sql":
		if db == nil {
			a.logger.Warn("sql history requested without a database, keeping history in memory")
			return storage.NewMemoryHistory(), repo, nil
		}
		return storage.NewSQLHistory(db, dialect), repo, nil
	default:
		return nil, nil, fmt.Errorf("unsupported history backend %q", backend)
	}
}

// buildSummarizer prefers the chat model, then the inference service. A nil
// summarizer makes the classifier use its extractive fallback.
func (a *Application) buildSummarizer(ctx context.Context) (ports.Summarizer, error) {
	if a.cfg.ChatGPT.APIKey != "" {
		s, err := llm.NewSummarizer(ctx, a.cfg.ChatGPT)
		if err != nil {
			return nil, fmt.Errorf("init chat summarizer: %w", err)
		}
		return s, nil
	}
	if a.cfg.ML.InferenceURL != "" {
		return ml.NewClient(a.cfg.ML.InferenceURL, a.cfg.ML.APIKey), nil
	}
	a.logger.Info("no summarizer configured, using extractive summaries")
	return nil, nil
}

func (a *Application) buildSinks(ctx context.Context) ([]ports.Sink, error) {
	var sinks []ports.Sink

	if tg := a.cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		sinks = append(sinks, telegram.NewNotifier(tg))
	}

	if len(a.cfg.Elasticsearch.Addresses) > 0 {
		s, err := search.New(a.cfg.Elasticsearch)
		if err != nil {
			return nil, fmt.Errorf("init search sink: %w", err)
		}
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure search index: %w", err)
		}
		sinks = append(sinks, s)
	}

	if a.cfg.Archive.Endpoint != "" {
		s, err := archive.New(a.cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("init archive sink: %w", err)
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure archive bucket: %w", err)
		}
		sinks = append(sinks, s)
	}

	if len(a.cfg.Kafka.Brokers) > 0 {
		s, err := kafka.New(a.cfg.Kafka)
		if err != nil {
			return nil, fmt.Errorf("init kafka sink: %w", err)
		}
		a.closers = append(a.closers, func() error { s.Close(); return nil })
		sinks = append(sinks, s)
	}

	for _, s := range sinks {
		a.logger.Info("sink enabled", "sink", s.Name())
	}
	return sinks, nil
}

func (a *Application) buildRegistry() *scanner.Registry {
	timeout := a.cfg.Pipeline.FetchTimeout
	registry := scanner.NewRegistry()
	registry.Register(parser.NewRSSScanner(nil, timeout))
	registry.Register(parser.NewHTMLScanner(timeout))
	registry.Register(parser.NewFeedScanner(nil, timeout))
	return registry
}
