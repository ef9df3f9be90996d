// Package mcptool exposes the monitoring core as MCP tools so agent
// runtimes can manage competitors, trigger captures, and read history.
package mcptool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pagewatch/pagewatch/internal/capture"
	"github.com/pagewatch/pagewatch/internal/store"
	"github.com/pagewatch/pagewatch/internal/version"
)

// Tools wires the MCP tool handlers to the core.
type Tools struct {
	store  *store.Store
	orch   *capture.Orchestrator
	engine *version.Engine
}

// New creates the tool set.
func New(s *store.Store, o *capture.Orchestrator, e *version.Engine) *Tools {
	return &Tools{store: s, orch: o, engine: e}
}

// RegisterMCP registers all pagewatch tools on an MCP server.
func (t *Tools) RegisterMCP(srv *mcp.Server) {
	t.registerCompetitorsTool(srv)
	t.registerCaptureTool(srv)
	t.registerVersionsTool(srv)
	t.registerPageTool(srv)
	t.registerAlertsTool(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// addTool wraps a typed endpoint with argument decoding and JSON result
// framing.
func addTool[Req any](srv *mcp.Server, tool *mcp.Tool, endpoint func(context.Context, *Req) (any, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var r Req
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				var res mcp.CallToolResult
				res.SetError(fmt.Errorf("invalid arguments: %w", err))
				return &res, nil
			}
		}

		resp, err := endpoint(ctx, &r)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

// --- competitors ---

type competitorsReq struct {
	URL            string `json:"url,omitempty"`
	Name           string `json:"name,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	CheckIntervalS int    `json:"check_interval_s,omitempty"`
}

func (t *Tools) registerCompetitorsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagewatch_competitors",
		Description: "List monitored competitor pages, or add one by passing url.",
		InputSchema: inputSchema(map[string]any{
			"url":              map[string]any{"type": "string", "description": "URL to start monitoring (omit to list)"},
			"name":             map[string]any{"type": "string", "description": "Display name"},
			"user_id":          map[string]any{"type": "string", "description": "Owning user"},
			"check_interval_s": map[string]any{"type": "integer", "description": "Capture cadence in seconds, min 300"},
		}, nil),
	}

	addTool(srv, tool, func(ctx context.Context, r *competitorsReq) (any, error) {
		if r.URL == "" {
			return t.store.ListCompetitors(ctx)
		}
		c := &store.Competitor{
			UserID:            r.UserID,
			Name:              r.Name,
			URL:               r.URL,
			MonitoringEnabled: true,
			CheckIntervalS:    r.CheckIntervalS,
		}
		if err := t.store.InsertCompetitor(ctx, c); err != nil {
			return nil, err
		}
		return c, nil
	})
}

// --- capture ---

type captureReq struct {
	CompetitorID string `json:"competitor_id"`
}

func (t *Tools) registerCaptureTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagewatch_capture",
		Description: "Capture a competitor page now and report whether it changed.",
		InputSchema: inputSchema(map[string]any{
			"competitor_id": map[string]any{"type": "string", "description": "Competitor to capture"},
		}, []string{"competitor_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *captureReq) (any, error) {
		return t.orch.Capture(ctx, r.CompetitorID, capture.Options{IsManualCheck: true})
	})
}

// --- versions ---

type versionsReq struct {
	CompetitorID string `json:"competitor_id"`
}

func (t *Tools) registerVersionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagewatch_versions",
		Description: "List the recorded versions of a competitor page, newest first.",
		InputSchema: inputSchema(map[string]any{
			"competitor_id": map[string]any{"type": "string", "description": "Competitor to inspect"},
		}, []string{"competitor_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *versionsReq) (any, error) {
		return t.store.ListSnapshots(ctx, r.CompetitorID, true)
	})
}

// --- page ---

type pageReq struct {
	CompetitorID string `json:"competitor_id"`
	Version      int    `json:"version"`
}

func (t *Tools) registerPageTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagewatch_page",
		Description: "Reconstruct the full HTML of one recorded version of a competitor page.",
		InputSchema: inputSchema(map[string]any{
			"competitor_id": map[string]any{"type": "string", "description": "Competitor to inspect"},
			"version":       map[string]any{"type": "integer", "description": "Version number"},
		}, []string{"competitor_id", "version"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *pageReq) (any, error) {
		html, err := t.engine.Reconstruct(ctx, r.CompetitorID, r.Version)
		if err != nil {
			return nil, err
		}
		return map[string]any{"version": r.Version, "html": html}, nil
	})
}

// --- alerts ---

type alertsReq struct {
	CompetitorID string `json:"competitor_id"`
	Status       string `json:"status,omitempty"`
	Limit        int    `json:"limit,omitempty"`
}

func (t *Tools) registerAlertsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "pagewatch_alerts",
		Description: "List change alerts for a competitor, newest first.",
		InputSchema: inputSchema(map[string]any{
			"competitor_id": map[string]any{"type": "string", "description": "Competitor to inspect"},
			"status":        map[string]any{"type": "string", "description": "Filter: unread, read, or archived"},
			"limit":         map[string]any{"type": "integer", "description": "Max alerts to return"},
		}, []string{"competitor_id"}),
	}

	addTool(srv, tool, func(ctx context.Context, r *alertsReq) (any, error) {
		return t.store.ListAlerts(ctx, r.CompetitorID, r.Status, r.Limit)
	})
}
