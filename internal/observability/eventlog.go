package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventLogFileName is the operational event log kept in the logs root.
const EventLogFileName = ".moly_events.jsonl"

// Event levels.
const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Event is one line of the operational event log.
type Event struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"` // INFO, WARN, ERROR
	Type    string         `json:"type"`  // e.g. "session.started", "writer.dropped"
	Message string         `json:"msg"`
	Data    map[string]any `json:"data,omitempty"`
}

// EventFilter specifies criteria for reading events. Zero fields match
// everything.
type EventFilter struct {
	Since         *time.Time
	Until         *time.Time
	Type          string
	Level         string
	ParticipantID string
}

// EventLog defines the interface for writing and reading events.
type EventLog interface {
	Write(event Event) error
	Read(filter EventFilter) ([]Event, error)
	Path() string
	Close() error
}

type jsonlEventLog struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// EventLogPath returns the event log location for a logs root.
func EventLogPath(logsRoot string) string {
	return filepath.Join(logsRoot, EventLogFileName)
}

// NewJSONLEventLog opens (creating if needed) the JSONL event log at path.
// Existing content is never truncated.
func NewJSONLEventLog(path string) (EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating event log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}
	return &jsonlEventLog{
		path: path,
		file: f,
	}, nil
}

// NewEvent builds an event of the given type stamped now, with the level
// and message derived from the type.
func NewEvent(eventType string, data map[string]any) Event {
	return Event{
		Time:    time.Now().UTC(),
		Level:   LevelFor(eventType),
		Type:    eventType,
		Message: MessageFor(eventType),
		Data:    data,
	}
}

// LevelFor maps an event type to its level.
func LevelFor(eventType string) string {
	switch eventType {
	case "writer.error", "replay.failed":
		return LevelError
	case "writer.dropped", "scan.unreadable":
		return LevelWarn
	default:
		return LevelInfo
	}
}

// MessageFor returns the human-readable message stored with an event type.
func MessageFor(eventType string) string {
	switch eventType {
	case "scan.completed":
		return "logs root scanned"
	case "scan.unreadable":
		return "session files could not be read"
	case "replay.completed":
		return "interrupted session replayed"
	case "replay.failed":
		return "interrupted session could not be replayed"
	case "recovery.decision":
		return "recovery decision made"
	case "session.started":
		return "session started"
	case "session.resumed":
		return "session resumed"
	case "session.finalized":
		return "session finalized"
	case "writer.dropped":
		return "event dropped under backpressure"
	case "writer.error":
		return "log write failed"
	default:
		return eventType
	}
}

// Write appends a JSON-encoded event followed by a newline to the log file.
// The line is written with a single call so concurrent processes appending
// to the same file do not interleave within a line.
func (l *jsonlEventLog) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return fmt.Errorf("writing event: event log closed")
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}
	data = append(data, '\n')

	if _, err := l.file.Write(data); err != nil {
		return fmt.Errorf("writing event: %w", err)
	}
	return nil
}

// Read returns the events matching filter in file order.
func (l *jsonlEventLog) Read(filter EventFilter) ([]Event, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening event log for reading: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			var event Event
			if err := json.Unmarshal(line, &event); err == nil && matchesEventFilter(event, filter) {
				events = append(events, event)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("reading event log: %w", readErr)
		}
	}
	return events, nil
}

func (l *jsonlEventLog) Path() string {
	return l.path
}

// Close closes the underlying log file. Calling it twice is harmless.
func (l *jsonlEventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("closing event log: %w", err)
	}
	return nil
}

func matchesEventFilter(event Event, filter EventFilter) bool {
	if filter.Since != nil && event.Time.Before(*filter.Since) {
		return false
	}
	if filter.Until != nil && event.Time.After(*filter.Until) {
		return false
	}
	if filter.Type != "" && event.Type != filter.Type {
		return false
	}
	if filter.Level != "" && event.Level != filter.Level {
		return false
	}
	if filter.ParticipantID != "" {
		if pid, _ := event.Data["participant_id"].(string); pid != filter.ParticipantID {
			return false
		}
	}
	return true
}
