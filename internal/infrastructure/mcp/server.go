// Package mcp exposes recent regulatory assessments as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"RegulatoryTracker/internal/domain"
	"RegulatoryTracker/internal/ports"
)

// Config holds MCP server identity.
type Config struct {
	Name    string
	Version string
}

// Server wraps the MCP server with the assessment repository.
type Server struct {
	mcpServer *server.MCPServer
	repo      ports.AssessmentRepository
	now       func() time.Time
}

// NewServer registers the query tools.
func NewServer(config Config, repo ports.AssessmentRepository) (*Server, error) {
	if repo == nil {
		return nil, errors.New("mcp: assessment repository is required")
	}

	mcpServer := server.NewMCPServer(
		config.Name,
		config.Version,
		server.WithToolCapabilities(true),
	)

	s := &Server{
		mcpServer: mcpServer,
		repo:      repo,
		now:       time.Now,
	}

	recentTool := mcp.NewTool("recent_changes",
		mcp.WithDescription("List recent regulatory change assessments, newest first."),
		mcp.WithNumber("days",
			mcp.Description(fmt.Sprintf("Look-back window in days (default: %d)", domain.DefaultRecentDays)),
		),
		mcp.WithString("risk",
			mcp.Description("Minimum risk tier: HIGH, MEDIUM or LOW"),
		),
		mcp.WithString("source",
			mcp.Description("Only assessments from this source"),
		),
		mcp.WithString("area",
			mcp.Description("Only assessments touching this impact area, e.g. LABELING"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", domain.DefaultRecentLimit, domain.MaxRecentLimit)),
		),
	)
	mcpServer.AddTool(recentTool, s.recentHandler)

	getTool := mcp.NewTool("get_assessment",
		mcp.WithDescription("Get a single assessment by ID"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Assessment ID"),
		),
	)
	mcpServer.AddTool(getTool, s.getHandler)

	return s, nil
}

func (s *Server) recentHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := domain.NewRecentQuery(
		s.now(),
		req.GetInt("days", 0),
		req.GetString("risk", ""),
		req.GetString("source", ""),
		req.GetString("area", ""),
		req.GetInt("limit", 0),
	)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	list, err := s.repo.ListRecent(ctx, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	if list == nil {
		list = []domain.Assessment{}
	}

	result, err := json.Marshal(list)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

func (s *Server) getHandler(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id parameter is required"), nil
	}

	a, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("assessment not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("get assessment failed: %v", err)), nil
	}

	result, err := json.Marshal(a)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal assessment: %v", err)), nil
	}
	return mcp.NewToolResultText(string(result)), nil
}

// ServeStdio starts the MCP server using stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
