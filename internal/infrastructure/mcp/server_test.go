package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/infrastructure/storage"
)

var fixedNow = time.Date(2025, 11, 10, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	repo := storage.NewMemoryAssessments()
	for _, a := range []domain.Assessment{
		{
			ID: "recall", RiskTier: domain.RiskHigh, CreatedAt: fixedNow.Add(-time.Hour),
			Document: domain.RegulatoryDocument{SourceID: "fda", ExternalRef: "r1", ContentHash: "h1"},
		},
		{
			ID: "guidance", RiskTier: domain.RiskLow, CreatedAt: fixedNow.Add(-3 * time.Hour),
			Document: domain.RegulatoryDocument{SourceID: "ema", ExternalRef: "g1", ContentHash: "h2"},
		},
	} {
		if _, err := repo.Save(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	s, err := NewServer(Config{Name: "regtracker", Version: "test"}, repo)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	s.now = func() time.Time { return fixedNow }
	return s
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestNewServerRequiresRepository(t *testing.T) {
	if _, err := NewServer(Config{Name: "x"}, nil); err == nil {
		t.Fatal("expected error for nil repository")
	}
}

func TestRecentChanges(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	res, err := s.recentHandler(context.Background(), call(map[string]any{}))
	if err != nil || res.IsError {
		t.Fatalf("unexpected failure: %v %s", err, textOf(t, res))
	}
	var all []domain.Assessment
	if err := json.Unmarshal([]byte(textOf(t, res)), &all); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(all) != 2 || all[0].ID != "recall" {
		t.Fatalf("unexpected list: %+v", all)
	}

	res, _ = s.recentHandler(context.Background(), call(map[string]any{"risk": "high", "days": float64(1)}))
	var high []domain.Assessment
	if err := json.Unmarshal([]byte(textOf(t, res)), &high); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(high) != 1 || high[0].ID != "recall" {
		t.Fatalf("risk filter broken: %+v", high)
	}

	res, _ = s.recentHandler(context.Background(), call(map[string]any{"source": "nowhere"}))
	if got := textOf(t, res); got != "[]" {
		t.Fatalf("expected empty JSON array, got %s", got)
	}
}

func TestRecentChangesRejectsBadFilter(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	res, err := s.recentHandler(context.Background(), call(map[string]any{"risk": "catastrophic"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for unknown risk tier")
	}
}

func TestGetAssessment(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	res, _ := s.getHandler(context.Background(), call(map[string]any{"id": "guidance"}))
	if res.IsError {
		t.Fatalf("unexpected error: %s", textOf(t, res))
	}
	var a domain.Assessment
	if err := json.Unmarshal([]byte(textOf(t, res)), &a); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if a.Document.SourceID != "ema" {
		t.Fatalf("wrong assessment: %+v", a)
	}

	res, _ = s.getHandler(context.Background(), call(map[string]any{"id": "missing"}))
	if !res.IsError {
		t.Fatal("expected not-found error")
	}

	res, _ = s.getHandler(context.Background(), call(map[string]any{}))
	if !res.IsError {
		t.Fatal("expected missing id error")
	}
}
