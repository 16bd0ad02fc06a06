package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/observability"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// --- Fake implementations ---

type fakeMetricsCalculator struct {
	metrics *observability.Metrics
	since   time.Time
}

func (f *fakeMetricsCalculator) Calculate(since time.Time) (*observability.Metrics, error) {
	f.since = since
	return f.metrics, nil
}

type fakeAlertEngine struct {
	alerts []observability.Alert
}

func (f *fakeAlertEngine) Evaluate() ([]observability.Alert, error) {
	return f.alerts, nil
}

type fakeReconstructor struct {
	state *models.RecoveryState
	err   error
	calls int
}

func (f *fakeReconstructor) Reconstruct(models.IncompleteSession) (*models.RecoveryState, error) {
	f.calls++
	return f.state, f.err
}

func (f *fakeReconstructor) ReconstructFile(string) (*models.RecoveryState, error) {
	f.calls++
	return f.state, f.err
}

func staticScanner(res *storage.ScanResult, err error) core.SessionScanner {
	return core.ScannerFunc(func(string) (*storage.ScanResult, error) { return res, err })
}

// --- Test helpers ---

func sampleScan() *storage.ScanResult {
	start := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	end := models.NewSessionTime(start.Add(30 * time.Minute))
	dur := 1800.0
	incomplete := models.SessionInfo{ParticipantID: "P002", SessionStartTime: models.NewSessionTime(start.Add(time.Hour))}
	return &storage.ScanResult{
		Records: []models.SessionRecord{
			{Status: models.SessionIncomplete, Paths: models.SessionPaths{Dir: "/logs/P002", SessionInfoPath: "/logs/P002/b.json"}, Info: &incomplete},
			{Status: models.SessionComplete, Paths: models.SessionPaths{Dir: "/logs/P001", SessionInfoPath: "/logs/P001/a.json"}, Info: &models.SessionInfo{
				ParticipantID: "P001", SessionStartTime: models.NewSessionTime(start), SessionEndTime: &end, SessionDurationSeconds: &dur,
			}},
			{Status: models.SessionUnreadable, Paths: models.SessionPaths{Dir: "/logs/P003"}, Error: "format_error"},
		},
		Incomplete: []models.IncompleteSession{{Info: incomplete, Paths: models.SessionPaths{Dir: "/logs/P002", SessionInfoPath: "/logs/P002/b.json"}}},
	}
}

func sampleState() *models.RecoveryState {
	rem := 42.0
	return &models.RecoveryState{
		ParticipantID:             "P002",
		ResumeScreen:              models.ScreenDescriptiveTask,
		PromptIndex:               1,
		CompletedResponseCount:    1,
		CompletedPrompts:          []int{0},
		PartialText:               "half an answer",
		PartialTextWordCount:      3,
		CountdownRemainingSeconds: &rem,
	}
}

// callTool connects a client to the server over in-memory transports and
// calls a tool.
func callTool(t *testing.T, srv *Server, toolName string, args map[string]any) *gomcp.CallToolResult {
	t.Helper()

	ctx := context.Background()
	client := gomcp.NewClient(&gomcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	t1, t2 := gomcp.NewInMemoryTransports()

	go func() {
		_ = srv.MCPServer().Run(ctx, t1)
	}()

	session, err := client.Connect(ctx, t2, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer session.Close()

	result, err := session.CallTool(ctx, &gomcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("call tool %s: %v", toolName, err)
	}
	return result
}

// decode reads the tool output from either the text content or the
// structured content.
func decode(t *testing.T, result *gomcp.CallToolResult, out any) {
	t.Helper()
	text := extractText(result)
	if err := json.Unmarshal([]byte(text), out); err == nil {
		return
	}
	if result.StructuredContent == nil {
		t.Fatalf("no decodable output (text was: %s)", text)
	}
	data, _ := json.Marshal(result.StructuredContent)
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshalling structured output: %v", err)
	}
}

func extractText(result *gomcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*gomcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// --- Tests ---

func TestListSessions(t *testing.T) {
	srv := NewServer("/logs", staticScanner(sampleScan(), nil), &fakeReconstructor{}, nil, nil, "test")

	result := callTool(t, srv, "list_sessions", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out listSessionsOutput
	decode(t, result, &out)
	if out.Count != 3 {
		t.Fatalf("expected 3 sessions, got %d", out.Count)
	}
	if out.Sessions[0].ParticipantID != "P002" || out.Sessions[0].Status != "INCOMPLETE" {
		t.Errorf("first session = %+v", out.Sessions[0])
	}
	if out.Sessions[1].EndedAt == "" || out.Sessions[1].DurationSeconds == nil || *out.Sessions[1].DurationSeconds != 1800 {
		t.Errorf("complete session = %+v", out.Sessions[1])
	}
	if out.Sessions[2].Error == "" {
		t.Errorf("unreadable session should carry an error: %+v", out.Sessions[2])
	}
}

func TestListSessionsFiltered(t *testing.T) {
	srv := NewServer("/logs", staticScanner(sampleScan(), nil), &fakeReconstructor{}, nil, nil, "test")

	var out listSessionsOutput
	decode(t, callTool(t, srv, "list_sessions", map[string]any{"status": "COMPLETE"}), &out)
	if out.Count != 1 || out.Sessions[0].ParticipantID != "P001" {
		t.Errorf("filtered = %+v", out)
	}

	result := callTool(t, srv, "list_sessions", map[string]any{"status": "bogus"})
	if !result.IsError {
		t.Error("expected error for invalid status")
	}
}

func TestListSessionsScanError(t *testing.T) {
	srv := NewServer("/logs", staticScanner(nil, errors.New("permission denied")), &fakeReconstructor{}, nil, nil, "test")
	if result := callTool(t, srv, "list_sessions", map[string]any{}); !result.IsError {
		t.Error("expected error result when the scan fails")
	}
}

func TestCheckRecovery(t *testing.T) {
	rec := &fakeReconstructor{state: sampleState()}
	srv := NewServer("/logs", staticScanner(sampleScan(), nil), rec, nil, nil, "test")

	result := callTool(t, srv, "check_recovery", map[string]any{})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out checkRecoveryOutput
	decode(t, result, &out)
	if !out.Found || out.Candidate != "/logs/P002/b.json" {
		t.Errorf("output = %+v", out)
	}
	if out.State == nil || out.State.PromptIndex != 1 {
		t.Errorf("state = %+v", out.State)
	}
	if out.Summary == "" || len(out.Digest) != 64 {
		t.Errorf("summary %q digest %q", out.Summary, out.Digest)
	}
}

func TestCheckRecoveryNothingToResume(t *testing.T) {
	rec := &fakeReconstructor{}
	srv := NewServer("/logs", staticScanner(&storage.ScanResult{}, nil), rec, nil, nil, "test")

	var out checkRecoveryOutput
	decode(t, callTool(t, srv, "check_recovery", map[string]any{}), &out)
	if out.Found {
		t.Errorf("expected nothing found, got %+v", out)
	}
	if rec.calls != 0 {
		t.Error("reconstructor should not run without a candidate")
	}
}

func TestCheckRecoveryReplayFailure(t *testing.T) {
	rec := &fakeReconstructor{err: errors.New("recovery_ambiguity: replay: unknown screen")}
	srv := NewServer("/logs", staticScanner(sampleScan(), nil), rec, nil, nil, "test")

	var out checkRecoveryOutput
	decode(t, callTool(t, srv, "check_recovery", map[string]any{}), &out)
	if !out.Found || out.State != nil || out.Error == "" {
		t.Errorf("output = %+v", out)
	}
}

func TestInspectSession(t *testing.T) {
	rec := &fakeReconstructor{state: sampleState()}
	srv := NewServer("/logs", nil, rec, nil, nil, "test")

	var out checkRecoveryOutput
	decode(t, callTool(t, srv, "inspect_session", map[string]any{"session_info_path": "/logs/P002/b.json"}), &out)
	if out.State == nil || out.State.ParticipantID != "P002" {
		t.Errorf("output = %+v", out)
	}

	rec.err = errors.New("format_error")
	rec.state = nil
	if result := callTool(t, srv, "inspect_session", map[string]any{"session_info_path": "/x.json"}); !result.IsError {
		t.Error("expected error result for a failing replay")
	}
}

func TestGetMetrics(t *testing.T) {
	calc := &fakeMetricsCalculator{metrics: &observability.Metrics{
		SessionsStarted:      4,
		SessionsResumed:      1,
		DroppedEvents:        7,
		Decisions:            map[string]int{"resume": 1},
		ReplayFailuresByKind: map[string]int{},
	}}
	srv := NewServer("/logs", nil, nil, calc, nil, "test")

	result := callTool(t, srv, "get_metrics", map[string]any{"since": "30d"})
	if result.IsError {
		t.Fatalf("expected success, got error: %s", extractText(result))
	}
	var out observability.Metrics
	decode(t, result, &out)
	if out.SessionsStarted != 4 || out.DroppedEvents != 7 || out.Decisions["resume"] != 1 {
		t.Errorf("metrics = %+v", out)
	}
	if age := time.Since(calc.since); age < 29*24*time.Hour || age > 31*24*time.Hour {
		t.Errorf("since = %v", calc.since)
	}
}

func TestGetMetricsUnavailable(t *testing.T) {
	srv := NewServer("/logs", nil, nil, nil, nil, "test")
	if result := callTool(t, srv, "get_metrics", map[string]any{}); !result.IsError {
		t.Error("expected error when metrics are unavailable")
	}
}

func TestGetMetricsBadSince(t *testing.T) {
	srv := NewServer("/logs", nil, nil, &fakeMetricsCalculator{metrics: &observability.Metrics{}}, nil, "test")
	if result := callTool(t, srv, "get_metrics", map[string]any{"since": "7w"}); !result.IsError {
		t.Error("expected error for unsupported suffix")
	}
}

func TestGetAlerts(t *testing.T) {
	engine := &fakeAlertEngine{alerts: []observability.Alert{{
		ID:          "writer-errors",
		Condition:   "writer_errors",
		Severity:    observability.SeverityHigh,
		Message:     "2 log write failures",
		TriggeredAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}}}
	srv := NewServer("/logs", nil, nil, nil, engine, "test")

	var out getAlertsOutput
	decode(t, callTool(t, srv, "get_alerts", map[string]any{}), &out)
	if out.Count != 1 || out.Alerts[0].Severity != "high" || out.Alerts[0].TriggeredAt != "2025-01-15T10:00:00Z" {
		t.Errorf("alerts = %+v", out)
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
		approx  time.Duration
	}{
		{"7d", false, 7 * 24 * time.Hour},
		{"24h", false, 24 * time.Hour},
		{"90m", false, 90 * time.Minute},
		{"d", true, 0},
		{"xd", true, 0},
		{"-1d", true, 0},
		{"3w", true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSince(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSince(%q) error = %v", tt.in, err)
			}
			if err != nil {
				return
			}
			if age := time.Since(got); age < tt.approx-time.Minute || age > tt.approx+time.Minute {
				t.Errorf("ParseSince(%q) = %v ago, want about %v", tt.in, age, tt.approx)
			}
		})
	}
}
