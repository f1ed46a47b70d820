// Package api serves assessments, manual runs and metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// Runner triggers a pipeline batch.
type Runner interface {
	RunOnce(ctx context.Context) (domain.BatchSummary, bool)
	Last() (domain.BatchSummary, bool)
}

// Server wires read endpoints to the assessment repository.
type Server struct {
	repo     ports.AssessmentRepository
	runner   Runner
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	now      func() time.Time
}

// New constructs the HTTP surface. runner and gatherer may be nil, which
// disables POST /runs and /metrics respectively.
func New(repo ports.AssessmentRepository, runner Runner, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{repo: repo, runner: runner, gatherer: gatherer, logger: logger, now: time.Now}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/assessments", func(r chi.Router) {
		r.Use(middleware.Timeout(15 * time.Second))
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
	})
	if s.runner != nil {
		r.Post("/runs", s.handleRun)
		r.Get("/runs/last", s.handleLastRun)
	}
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleList handles GET /assessments?days=&risk=&source=&area=&limit=.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	days, err := intParam(q.Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	query, err := domain.NewRecentQuery(s.now(), days, q.Get("risk"), q.Get("source"), q.Get("area"), limit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.repo.ListRecent(r.Context(), query)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "list assessments failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	if list == nil {
		list = []domain.Assessment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(list), "assessments": list})
}

// handleGet handles GET /assessments/{id}.
func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	a, err := s.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, domain.ErrNotFound) {
		writeError(w, http.StatusNotFound, "assessment not found")
		return
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "get assessment failed",
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleRun handles POST /runs; the batch runs to completion even if the
// client disconnects.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	summary, ran := s.runner.RunOnce(context.WithoutCancel(r.Context()))
	if !ran {
		writeError(w, http.StatusConflict, "a batch is already running")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	summary, ok := s.runner.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "no completed batch yet")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		errCh <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "addr", addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-errCh
}
