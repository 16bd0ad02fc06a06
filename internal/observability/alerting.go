package observability

import (
	"fmt"
	"sort"
	"time"

	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts fire.
type AlertThresholds struct {
	StaleIncompleteDays   int           `yaml:"stale_incomplete_days" json:"stale_incomplete_days"`
	MaxDroppedEvents      int           `yaml:"max_dropped_events" json:"max_dropped_events"`
	MaxUnreadableSessions int           `yaml:"max_unreadable_sessions" json:"max_unreadable_sessions"`
	Window                time.Duration `yaml:"-" json:"window"`
}

// DefaultAlertThresholds returns the default thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		StaleIncompleteDays:   7,
		MaxDroppedEvents:      50,
		MaxUnreadableSessions: 0,
		Window:                24 * time.Hour,
	}
}

// ThresholdsFromConfig converts the alerts section of the configuration.
func ThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	th := DefaultAlertThresholds()
	th.StaleIncompleteDays = cfg.StaleIncompleteDays
	th.MaxDroppedEvents = cfg.MaxDroppedEvents
	th.MaxUnreadableSessions = cfg.MaxUnreadableSessions
	return th
}

// ScanFunc classifies the sessions under a logs root.
type ScanFunc func(logsRoot string) (*storage.ScanResult, error)

// AlertEngine evaluates alert conditions.
type AlertEngine interface {
	Evaluate() ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	scan       ScanFunc
	logsRoot   string
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates an AlertEngine over the event log and the session
// files under logsRoot. A nil scan uses storage.Scan.
func NewAlertEngine(eventLog EventLog, scan ScanFunc, logsRoot string, thresholds AlertThresholds) AlertEngine {
	if scan == nil {
		scan = storage.Scan
	}
	if thresholds.Window <= 0 {
		thresholds.Window = DefaultAlertThresholds().Window
	}
	return &alertEngine{
		eventLog:   eventLog,
		scan:       scan,
		logsRoot:   logsRoot,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate checks all alert conditions and returns the triggered alerts,
// session file alerts first.
func (ae *alertEngine) Evaluate() ([]Alert, error) {
	now := ae.now()
	var alerts []Alert

	result, err := ae.scan(ae.logsRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning sessions: %w", err)
	}
	alerts = append(alerts, ae.checkUnreadable(result, now)...)
	alerts = append(alerts, ae.checkStaleIncomplete(result, now)...)

	droppedAlerts, err := ae.checkDropped(now)
	if err != nil {
		return nil, fmt.Errorf("checking dropped events: %w", err)
	}
	alerts = append(alerts, droppedAlerts...)

	errorAlerts, err := ae.checkWriterErrors(now)
	if err != nil {
		return nil, fmt.Errorf("checking writer errors: %w", err)
	}
	alerts = append(alerts, errorAlerts...)

	return alerts, nil
}

// checkUnreadable fires once the number of unreadable session directories
// exceeds the threshold, with one alert per directory.
func (ae *alertEngine) checkUnreadable(result *storage.ScanResult, now time.Time) []Alert {
	if len(result.Unreadable) <= ae.thresholds.MaxUnreadableSessions {
		return nil
	}
	var alerts []Alert
	for _, rec := range result.Unreadable {
		where := rec.Paths.SessionInfoPath
		if where == "" {
			where = rec.Paths.Dir
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("unreadable-%s", where),
			Condition:   "session_unreadable",
			Severity:    SeverityHigh,
			Message:     fmt.Sprintf("session files at %s cannot be read: %s", where, rec.Error),
			TriggeredAt: now,
		})
	}
	return alerts
}

// checkStaleIncomplete reports incomplete sessions older than the threshold.
// The most recent incomplete session is the recovery candidate and is
// excluded; older ones will never be resumed automatically.
func (ae *alertEngine) checkStaleIncomplete(result *storage.ScanResult, now time.Time) []Alert {
	if len(result.Incomplete) < 2 {
		return nil
	}
	threshold := time.Duration(ae.thresholds.StaleIncompleteDays) * 24 * time.Hour
	var alerts []Alert
	for _, s := range result.Incomplete[1:] {
		started := s.Info.SessionStartTime.Time()
		if now.Sub(started) <= threshold {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          fmt.Sprintf("stale-%s", s.Paths.SessionInfoPath),
			Condition:   "incomplete_session_stale",
			Severity:    SeverityMedium,
			Message:     fmt.Sprintf("session for %s started %s is still incomplete after more than %d days", s.Info.ParticipantID, started.Format("2006-01-02 15:04"), ae.thresholds.StaleIncompleteDays),
			TriggeredAt: now,
		})
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
	return alerts
}

func (ae *alertEngine) checkDropped(now time.Time) ([]Alert, error) {
	since := now.Add(-ae.thresholds.Window)
	events, err := ae.eventLog.Read(EventFilter{Type: "writer.dropped", Since: &since})
	if err != nil {
		return nil, err
	}
	if len(events) <= ae.thresholds.MaxDroppedEvents {
		return nil, nil
	}
	return []Alert{{
		ID:          "dropped-events",
		Condition:   "dropped_events_exceeded",
		Severity:    SeverityMedium,
		Message:     fmt.Sprintf("%d events dropped under backpressure in the last %s, exceeding the maximum of %d", len(events), ae.thresholds.Window, ae.thresholds.MaxDroppedEvents),
		TriggeredAt: now,
	}}, nil
}

func (ae *alertEngine) checkWriterErrors(now time.Time) ([]Alert, error) {
	since := now.Add(-ae.thresholds.Window)
	events, err := ae.eventLog.Read(EventFilter{Type: "writer.error", Since: &since})
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	last, _ := events[len(events)-1].Data["error"].(string)
	return []Alert{{
		ID:          "writer-errors",
		Condition:   "writer_errors",
		Severity:    SeverityHigh,
		Message:     fmt.Sprintf("%d log write failures in the last %s (latest: %s)", len(events), ae.thresholds.Window, last),
		TriggeredAt: now,
	}}, nil
}
