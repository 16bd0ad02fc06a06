// Package mcp provides an MCP (Model Context Protocol) server that lets an
// assistant inspect recorded sessions and recovery state without touching
// the session files.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/observability"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// Server exposes read-only recorder queries as MCP tools.
type Server struct {
	server        *gomcp.Server
	logsRoot      string
	scanner       core.SessionScanner
	reconstructor core.StateReconstructor
	metricsCalc   observability.MetricsCalculator
	alertEngine   observability.AlertEngine
}

// NewServer creates a new MCP server. metricsCalc and alertEngine may be nil
// if the event log could not be opened.
func NewServer(logsRoot string, scanner core.SessionScanner, reconstructor core.StateReconstructor, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}
	if scanner == nil {
		scanner = core.DefaultScanner
	}
	if reconstructor == nil {
		reconstructor = core.NewStateReconstructor(nil)
	}

	s := &Server{
		logsRoot:      logsRoot,
		scanner:       scanner,
		reconstructor: reconstructor,
		metricsCalc:   metricsCalc,
		alertEngine:   alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "moly", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listSessionsInput struct {
	Status string `json:"status,omitempty" jsonschema:"filter by classification (COMPLETE, INCOMPLETE, UNREADABLE)"`
}

type sessionOutput struct {
	Status          string   `json:"status"`
	ParticipantID   string   `json:"participant_id,omitempty"`
	SessionInfoPath string   `json:"session_info_path,omitempty"`
	Dir             string   `json:"dir"`
	StartedAt       string   `json:"started_at,omitempty"`
	EndedAt         string   `json:"ended_at,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Error           string   `json:"error,omitempty"`
}

type listSessionsOutput struct {
	Sessions []sessionOutput `json:"sessions"`
	Count    int             `json:"count"`
}

type checkRecoveryInput struct{}

type checkRecoveryOutput struct {
	Found     bool                  `json:"found"`
	Candidate string                `json:"candidate,omitempty"`
	State     *models.RecoveryState `json:"state,omitempty"`
	Summary   string                `json:"summary,omitempty"`
	Digest    string                `json:"digest,omitempty"`
	Error     string                `json:"error,omitempty"`
}

type inspectSessionInput struct {
	SessionInfoPath string `json:"session_info_path" jsonschema:"required,path to a session_info JSON file"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type getAlertsInput struct{}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_sessions",
		Description: "List recorded sessions under the logs root with their COMPLETE, INCOMPLETE or UNREADABLE classification, most recent first.",
	}, s.handleListSessions)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "check_recovery",
		Description: "Find the most recent interrupted session and replay it. Reports where it would resume; never modifies any file.",
	}, s.handleCheckRecovery)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "inspect_session",
		Description: "Replay one session from its session_info file and return the reconstructed state.",
	}, s.handleInspectSession)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get recorder metrics from the operational event log: sessions started, resumed, finalized, replay failures, dropped events and write errors.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts (unreadable sessions, stale incomplete sessions, dropped events, write errors).",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListSessions(_ context.Context, _ *gomcp.CallToolRequest, input listSessionsInput) (*gomcp.CallToolResult, listSessionsOutput, error) {
	if input.Status != "" {
		switch models.SessionStatus(input.Status) {
		case models.SessionComplete, models.SessionIncomplete, models.SessionUnreadable:
		default:
			return errorResult(fmt.Sprintf("invalid status %q: must be one of COMPLETE, INCOMPLETE, UNREADABLE", input.Status)), listSessionsOutput{}, nil
		}
	}

	result, err := s.scanner.Scan(s.logsRoot)
	if err != nil {
		return errorResult(fmt.Sprintf("scanning %s: %s", s.logsRoot, err)), listSessionsOutput{}, nil
	}

	out := listSessionsOutput{Sessions: []sessionOutput{}}
	for _, rec := range result.Records {
		if input.Status != "" && string(rec.Status) != input.Status {
			continue
		}
		out.Sessions = append(out.Sessions, recordToOutput(rec))
	}
	out.Count = len(out.Sessions)
	return nil, out, nil
}

func (s *Server) handleCheckRecovery(_ context.Context, _ *gomcp.CallToolRequest, _ checkRecoveryInput) (*gomcp.CallToolResult, checkRecoveryOutput, error) {
	result, err := s.scanner.Scan(s.logsRoot)
	if err != nil {
		return errorResult(fmt.Sprintf("scanning %s: %s", s.logsRoot, err)), checkRecoveryOutput{}, nil
	}
	candidate, ok := result.Latest()
	if !ok {
		return nil, checkRecoveryOutput{Found: false}, nil
	}

	out := checkRecoveryOutput{Found: true, Candidate: candidate.Paths.SessionInfoPath}
	state, err := s.reconstructor.Reconstruct(candidate)
	if err != nil {
		// Recovery would fall back to a fresh session.
		out.Error = err.Error()
		return nil, out, nil
	}
	fillState(&out, state)
	return nil, out, nil
}

func (s *Server) handleInspectSession(_ context.Context, _ *gomcp.CallToolRequest, input inspectSessionInput) (*gomcp.CallToolResult, checkRecoveryOutput, error) {
	if input.SessionInfoPath == "" {
		return errorResult("session_info_path is required"), checkRecoveryOutput{}, nil
	}
	state, err := s.reconstructor.ReconstructFile(input.SessionInfoPath)
	if err != nil {
		return errorResult(fmt.Sprintf("replaying %s: %s", input.SessionInfoPath, err)), checkRecoveryOutput{}, nil
	}
	out := checkRecoveryOutput{Found: true, Candidate: input.SessionInfoPath}
	fillState(&out, state)
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, observability.Metrics, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log could not be opened)"), emptyMetrics(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := ParseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetrics(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetrics(), nil
	}
	return nil, *metrics, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, _ getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log could not be opened)"), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate()
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func recordToOutput(rec models.SessionRecord) sessionOutput {
	out := sessionOutput{
		Status:          string(rec.Status),
		SessionInfoPath: rec.Paths.SessionInfoPath,
		Dir:             rec.Paths.Dir,
		Error:           rec.Error,
	}
	if rec.Info != nil {
		out.ParticipantID = rec.Info.ParticipantID
		out.StartedAt = rec.Info.SessionStartTime.Time().UTC().Format(time.RFC3339)
		if rec.Info.SessionEndTime != nil {
			out.EndedAt = rec.Info.SessionEndTime.Time().UTC().Format(time.RFC3339)
		}
		out.DurationSeconds = rec.Info.SessionDurationSeconds
	}
	return out
}

func fillState(out *checkRecoveryOutput, state *models.RecoveryState) {
	out.State = state
	out.Summary = core.DescribeState(state)
	if digest, err := core.StateDigest(state); err == nil {
		out.Digest = digest
	}
}

func emptyMetrics() observability.Metrics {
	return observability.Metrics{
		ReplayFailuresByKind: make(map[string]int),
		Decisions:            make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time in the past.
func ParseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if num < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q: must not be negative", s)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	case 'm':
		return now.Add(-time.Duration(num) * time.Minute), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d, h or m)", string(suffix))
	}
}
