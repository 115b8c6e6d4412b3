// Package mcp implements the Model Context Protocol server for openclaw-sentinel.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ajitpratap0/openclaw-sentinel/internal/digest"
	"github.com/ajitpratap0/openclaw-sentinel/internal/models"
	"github.com/ajitpratap0/openclaw-sentinel/internal/pipeline"
	"github.com/ajitpratap0/openclaw-sentinel/internal/store"
)

const (
	// defaultListLimit is the default number of changes or alerts returned.
	defaultListLimit = 20

	// maxListLimit bounds list tool results.
	maxListLimit = 200
)

// Service is the orchestration surface the tools trigger.
type Service interface {
	RunCycle(ctx context.Context, since time.Time) (*pipeline.CycleReport, error)
	BuildDigest(ctx context.Context, now time.Time) (*digest.Digest, error)
	Status(ctx context.Context) (*pipeline.Status, error)
}

// Server wraps an MCPServer with openclaw-sentinel dependencies.
type Server struct {
	mcp    *mcpserver.MCPServer
	st     store.Store
	svc    Service
	logger *slog.Logger
	now    func() time.Time
}

// NewServer creates a new MCP server. If st or svc are nil, the
// corresponding tool calls return an error result instead of panicking.
func NewServer(st store.Store, svc Service, version string, logger *slog.Logger) *Server {
	s := &Server{
		st:     st,
		svc:    svc,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	mcpSrv := mcpserver.NewMCPServer(
		"openclaw-sentinel",
		version,
		mcpserver.WithToolCapabilities(true),
	)

	mcpSrv.AddTool(buildListChangesTool(), s.handleListChanges)
	mcpSrv.AddTool(buildGetChangeTool(), s.handleGetChange)
	mcpSrv.AddTool(buildDigestTool(), s.handleDigest)
	mcpSrv.AddTool(buildListAlertsTool(), s.handleListAlerts)
	mcpSrv.AddTool(buildRunCycleTool(), s.handleRunCycle)
	mcpSrv.AddTool(buildStatusTool(), s.handleStatus)

	s.mcp = mcpSrv
	return s
}

// MCPServer returns the underlying mcp-go MCPServer for use with ServeStdio.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcp
}

// HandleListChanges is the exported handler for the "list_changes" tool.
// It is exposed for direct testing without the mcp-go transport layer.
func (s *Server) HandleListChanges(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListChanges(ctx, req)
}

// HandleGetChange is the exported handler for the "get_change" tool.
func (s *Server) HandleGetChange(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleGetChange(ctx, req)
}

// HandleDigest is the exported handler for the "account_digest" tool.
func (s *Server) HandleDigest(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleDigest(ctx, req)
}

// HandleListAlerts is the exported handler for the "list_alerts" tool.
func (s *Server) HandleListAlerts(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleListAlerts(ctx, req)
}

// HandleRunCycle is the exported handler for the "run_cycle" tool.
func (s *Server) HandleRunCycle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleRunCycle(ctx, req)
}

// HandleStatus is the exported handler for the "account_status" tool.
func (s *Server) HandleStatus(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	return s.handleStatus(ctx, req)
}

// --- helpers ---

// toolResultJSON marshals v to JSON and returns it as a tool text result.
func toolResultJSON(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshaling result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// sinceArg reads a lookback such as "72h" and returns the matching start time.
func (s *Server) sinceArg(req mcpgo.CallToolRequest) (*time.Time, error) {
	v := req.GetString("since", "")
	if v == "" {
		return nil, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid since %q: use a positive duration such as 72h", v)
	}
	t := s.now().Add(-d)
	return &t, nil
}

func limitArg(req mcpgo.CallToolRequest) int {
	limit := req.GetInt("limit", defaultListLimit)
	if limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// --- tool definitions ---

func buildListChangesTool() mcpgo.Tool {
	return mcpgo.NewTool("list_changes",
		mcpgo.WithDescription("List detected account changes (stakeholders, programs, risks, timelines, external events) with significance scores."),
		mcpgo.WithString("since",
			mcpgo.Description("Only changes within this lookback, e.g. 72h or 168h"),
		),
		mcpgo.WithNumber("min_score",
			mcpgo.Description("Minimum significance score 0-100 (75 and above is CRITICAL)"),
		),
		mcpgo.WithString("type",
			mcpgo.Description("Entity type: stakeholder, program, risk, timeline, governance, or external_event"),
		),
		mcpgo.WithBoolean("unsent",
			mcpgo.Description("Only changes that have not been alerted yet"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 20)"),
		),
	)
}

func buildGetChangeTool() mcpgo.Tool {
	return mcpgo.NewTool("get_change",
		mcpgo.WithDescription("Get one change record by ID, including previous and new values and the rationale."),
		mcpgo.WithString("id",
			mcpgo.Required(),
			mcpgo.Description("The change ID"),
		),
	)
}

func buildDigestTool() mcpgo.Tool {
	return mcpgo.NewTool("account_digest",
		mcpgo.WithDescription("Build the executive digest for the trailing week: status, momentum, risks, opportunities and actions."),
		mcpgo.WithString("format",
			mcpgo.Description("text (default) for the rendered message, json for the structured sections"),
		),
	)
}

func buildListAlertsTool() mcpgo.Tool {
	return mcpgo.NewTool("list_alerts",
		mcpgo.WithDescription("List alerts that were delivered, newest first."),
		mcpgo.WithString("since",
			mcpgo.Description("Only alerts within this lookback, e.g. 24h"),
		),
		mcpgo.WithNumber("limit",
			mcpgo.Description("Maximum number of results (default: 20)"),
		),
	)
}

func buildRunCycleTool() mcpgo.Tool {
	return mcpgo.NewTool("run_cycle",
		mcpgo.WithDescription("Run a monitoring cycle now: ingest all sources, detect changes and deliver alerts."),
		mcpgo.WithString("since",
			mcpgo.Description("Source lookback, e.g. 72h (default: each source's own lookback)"),
		),
	)
}

func buildStatusTool() mcpgo.Tool {
	return mcpgo.NewTool("account_status",
		mcpgo.WithDescription("Get the latest cycle and counts of stored cycles, changes and alerts."),
	)
}

// --- tool handlers ---

func (s *Server) handleListChanges(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	since, err := s.sinceArg(req)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	filter := store.ChangeFilter{
		Since:      since,
		UnsentOnly: req.GetBool("unsent", false),
		Order:      store.OrderScore,
		Limit:      limitArg(req),
	}
	if minScore := req.GetInt("min_score", -1); minScore >= 0 {
		if minScore > 100 {
			return mcpgo.NewToolResultError("min_score must be between 0 and 100"), nil
		}
		filter.MinScore = &minScore
	}
	if t := req.GetString("type", ""); t != "" {
		et := models.EntityType(t)
		if !et.IsKnown() {
			return mcpgo.NewToolResultErrorf("invalid type %q: must be one of stakeholder, program, risk, timeline, governance, external_event", t), nil
		}
		filter.EntityType = &et
	}

	changes, err := s.st.ListChanges(ctx, filter)
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing changes failed: %s", err.Error()), nil
	}
	if changes == nil {
		changes = []models.ChangeRecord{}
	}
	return toolResultJSON(map[string]any{"changes": changes, "count": len(changes)})
}

func (s *Server) handleGetChange(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	id := req.GetString("id", "")
	if id == "" {
		return mcpgo.NewToolResultError("id is required"), nil
	}
	c, err := s.st.GetChange(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return mcpgo.NewToolResultErrorf("change %s not found", id), nil
		}
		return mcpgo.NewToolResultErrorf("get change failed: %s", err.Error()), nil
	}
	return toolResultJSON(c)
}

func (s *Server) handleDigest(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}
	d, err := s.svc.BuildDigest(ctx, s.now())
	if err != nil {
		return mcpgo.NewToolResultErrorf("building digest failed: %s", err.Error()), nil
	}
	switch req.GetString("format", "text") {
	case "json":
		return toolResultJSON(d)
	case "text":
		return mcpgo.NewToolResultText(d.Text), nil
	default:
		return mcpgo.NewToolResultError("format must be text or json"), nil
	}
}

func (s *Server) handleListAlerts(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.st == nil {
		return mcpgo.NewToolResultError("store is unavailable"), nil
	}
	since, err := s.sinceArg(req)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	history, err := s.st.ListAlertHistory(ctx, store.HistoryFilter{Since: since, Limit: limitArg(req)})
	if err != nil {
		return mcpgo.NewToolResultErrorf("listing alerts failed: %s", err.Error()), nil
	}
	if history == nil {
		history = []models.AlertHistoryRecord{}
	}
	return toolResultJSON(map[string]any{"alerts": history, "count": len(history)})
}

func (s *Server) handleRunCycle(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}
	since, err := s.sinceArg(req)
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	var from time.Time
	if since != nil {
		from = *since
	}

	report, err := s.svc.RunCycle(ctx, from)
	if err != nil {
		return mcpgo.NewToolResultErrorf("cycle failed: %s", err.Error()), nil
	}
	s.logger.Info("mcp: cycle completed", "cycle_id", report.Cycle.ID, "changes", len(report.Changes))

	return toolResultJSON(map[string]any{
		"cycle_id": report.Cycle.ID,
		"status":   report.Cycle.Status,
		"entities": report.Cycle.EntityCount,
		"changes":  len(report.Changes),
		"alerts":   len(report.Alerts),
		"runs":     report.Cycle.Runs,
	})
}

func (s *Server) handleStatus(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	if s.svc == nil {
		return mcpgo.NewToolResultError("pipeline is unavailable"), nil
	}
	st, err := s.svc.Status(ctx)
	if err != nil {
		return mcpgo.NewToolResultErrorf("status failed: %s", err.Error()), nil
	}
	return toolResultJSON(st)
}
