package models

import "time"

// SessionInfo is the JSON document stored in session_info_{timestamp}.json.
// SessionEndTime is only present once the session has been finalized; its
// absence is what marks a session as interrupted.
type SessionInfo struct {
	ParticipantID          string         `json:"participant_id"`
	SessionStartTime       SessionTime    `json:"session_start_time"`
	SessionEndTime         *SessionTime   `json:"session_end_time,omitempty"`
	SessionDurationSeconds *float64       `json:"session_duration_seconds,omitempty"`
	SessionDurationMinutes *float64       `json:"session_duration_minutes,omitempty"`
	ApplicationVersion     string         `json:"application_version"`
	Configuration          map[string]any `json:"configuration"`
	FileStructure          FileStructure  `json:"file_structure"`
	TaskSelection          *TaskSelection `json:"task_selection,omitempty"`
}

// FileStructure lists the base names of the files that belong to a session.
type FileStructure struct {
	ActionsLog           string `json:"actions_log"`
	DescriptiveResponses string `json:"descriptive_responses"`
	SessionInfo          string `json:"session_info"`
	TechLog              string `json:"tech_log,omitempty"`
}

// TaskSelection records which task a participant was assigned or chose.
type TaskSelection struct {
	SelectedTask       string         `json:"selected_task"`
	SelectionMode      string         `json:"selection_mode"`
	TaskDescription    string         `json:"task_description"`
	SelectionTimestamp SessionTime    `json:"selection_timestamp"`
	TaskDistribution   map[string]int `json:"task_distribution_at_selection,omitempty"`
}

// Complete reports whether the session was finalized.
func (i SessionInfo) Complete() bool {
	return i.SessionEndTime != nil
}

// SessionPaths are the absolute or root-relative paths of a session's files.
type SessionPaths struct {
	Dir             string `json:"dir"`
	SessionInfoPath string `json:"session_info_path"`
	ActionsLogPath  string `json:"actions_log_path"`
	ResponsesPath   string `json:"responses_log_path"`
}

// Session is one participant run. It is owned by the writer that has its
// files open; other components receive copies.
type Session struct {
	Info    SessionInfo
	Paths   SessionPaths
	Resumed bool
}

// ParticipantID returns the participant the session belongs to.
func (s Session) ParticipantID() string {
	return s.Info.ParticipantID
}

// StartTime returns the immutable session start.
func (s Session) StartTime() time.Time {
	return s.Info.SessionStartTime.Time()
}

// SessionStatus classifies a session found on disk.
type SessionStatus string

const (
	SessionComplete   SessionStatus = "COMPLETE"
	SessionIncomplete SessionStatus = "INCOMPLETE"
	SessionUnreadable SessionStatus = "UNREADABLE"
)

// SessionRecord is the scanner's view of one SessionInfo file.
type SessionRecord struct {
	Status SessionStatus `json:"status"`
	Paths  SessionPaths  `json:"paths"`
	Info   *SessionInfo  `json:"info,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// IncompleteSession is a recovery candidate: a readable SessionInfo without
// an end time.
type IncompleteSession struct {
	Info  SessionInfo  `json:"info"`
	Paths SessionPaths `json:"paths"`
}

// StartUnix is the ordering key used to pick the most recent candidate.
func (s IncompleteSession) StartUnix() float64 {
	return s.Info.SessionStartTime.UnixTimestamp
}
