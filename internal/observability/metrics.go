package observability

import (
	"fmt"
	"time"
)

// Metrics holds counters derived from the operational event log.
type Metrics struct {
	SessionsStarted          int            `json:"sessions_started"`
	SessionsResumed          int            `json:"sessions_resumed"`
	SessionsFinalized        int            `json:"sessions_finalized"`
	FreshAfterFailedRecovery int            `json:"fresh_after_failed_recovery"`
	ReplaysCompleted         int            `json:"replays_completed"`
	ReplaysFailed            int            `json:"replays_failed"`
	ReplayFailuresByKind     map[string]int `json:"replay_failures_by_kind"`
	Decisions                map[string]int `json:"decisions"`
	UnreadableSessions       int            `json:"unreadable_sessions"`
	SkippedLines             int            `json:"skipped_lines"`
	DroppedEvents            int            `json:"dropped_events"`
	WriterErrors             int            `json:"writer_errors"`
	EventCount               int            `json:"event_count"`
	OldestEvent              *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent              *time.Time     `json:"newest_event,omitempty"`
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator creates a MetricsCalculator that reads from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates every event at or after since.
func (mc *metricsCalculator) Calculate(since time.Time) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		ReplayFailuresByKind: make(map[string]int),
		Decisions:            make(map[string]int),
	}
	m.EventCount = len(events)

	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "session.started":
			m.SessionsStarted++
		case "session.resumed":
			m.SessionsResumed++
		case "session.finalized":
			m.SessionsFinalized++
		case "replay.completed":
			m.ReplaysCompleted++
			m.SkippedLines += intField(event.Data, "skipped_action_lines") + intField(event.Data, "skipped_response_lines")
		case "replay.failed":
			m.ReplaysFailed++
			if kind, ok := event.Data["kind"].(string); ok && kind != "" {
				m.ReplayFailuresByKind[kind]++
			}
		case "recovery.decision":
			decision, _ := event.Data["decision"].(string)
			if decision == "" {
				continue
			}
			m.Decisions[decision]++
			if decision == "replay_failed" || decision == "resume_failed" {
				m.FreshAfterFailedRecovery++
			}
		case "scan.unreadable":
			m.UnreadableSessions++
		case "writer.dropped":
			m.DroppedEvents++
		case "writer.error":
			m.WriterErrors++
		}
	}

	return m, nil
}

// intField reads a numeric data field. JSON numbers decode as float64.
func intField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}
