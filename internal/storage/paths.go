package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// SessionTimestampLayout is the layout of the timestamp suffix shared by the
// three files of a session.
const SessionTimestampLayout = "20060102_150405"

const (
	sessionInfoPrefix = "session_info_"
	sessionInfoSuffix = ".json"
	actionsPrefix     = "actions_"
	responsesPrefix   = "descriptive_responses_"
	jsonlSuffix       = ".jsonl"
)

// ValidateParticipantID rejects IDs that cannot be used as a directory name
// under the logs root.
func ValidateParticipantID(id string) error {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return fmt.Errorf("participant ID must not be empty")
	}
	if trimmed != id {
		return fmt.Errorf("participant ID %q has surrounding whitespace", id)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("participant ID %q is not a valid directory name", id)
	}
	return nil
}

// SessionPathsFor returns the paths of a session identified by a timestamp
// suffix.
func SessionPathsFor(logsRoot, participantID, stamp string) models.SessionPaths {
	dir := filepath.Join(logsRoot, participantID)
	return models.SessionPaths{
		Dir:             dir,
		SessionInfoPath: filepath.Join(dir, sessionInfoPrefix+stamp+sessionInfoSuffix),
		ActionsLogPath:  filepath.Join(dir, actionsPrefix+stamp+jsonlSuffix),
		ResponsesPath:   filepath.Join(dir, responsesPrefix+stamp+jsonlSuffix),
	}
}

// NewSessionPaths derives paths for a fresh session started at t. If a
// session with the same second-resolution stamp already exists for the
// participant, a numeric suffix is appended so nothing is overwritten.
func NewSessionPaths(logsRoot, participantID string, t time.Time) models.SessionPaths {
	base := t.Format(SessionTimestampLayout)
	stamp := base
	for n := 1; ; n++ {
		paths := SessionPathsFor(logsRoot, participantID, stamp)
		if _, err := os.Stat(paths.SessionInfoPath); os.IsNotExist(err) {
			return paths
		}
		stamp = fmt.Sprintf("%s_%d", base, n)
	}
}

// SessionStamp extracts the timestamp suffix from a session_info file name.
func SessionStamp(sessionInfoPath string) (string, bool) {
	name := filepath.Base(sessionInfoPath)
	if !strings.HasPrefix(name, sessionInfoPrefix) || !strings.HasSuffix(name, sessionInfoSuffix) {
		return "", false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, sessionInfoPrefix), sessionInfoSuffix)
	return stamp, stamp != ""
}

// PathsFromSessionInfo resolves the sibling log files of a SessionInfo file.
// Names recorded in file_structure win; otherwise they are derived from the
// timestamp suffix of the SessionInfo file name.
func PathsFromSessionInfo(sessionInfoPath string, info *models.SessionInfo) models.SessionPaths {
	dir := filepath.Dir(sessionInfoPath)
	paths := models.SessionPaths{
		Dir:             dir,
		SessionInfoPath: sessionInfoPath,
	}
	if stamp, ok := SessionStamp(sessionInfoPath); ok {
		paths.ActionsLogPath = filepath.Join(dir, actionsPrefix+stamp+jsonlSuffix)
		paths.ResponsesPath = filepath.Join(dir, responsesPrefix+stamp+jsonlSuffix)
	}
	if info != nil {
		if name := localName(info.FileStructure.ActionsLog); name != "" {
			paths.ActionsLogPath = filepath.Join(dir, name)
		}
		if name := localName(info.FileStructure.DescriptiveResponses); name != "" {
			paths.ResponsesPath = filepath.Join(dir, name)
		}
	}
	return paths
}

// FileStructureFor returns the file_structure block for a session's paths.
func FileStructureFor(paths models.SessionPaths) models.FileStructure {
	return models.FileStructure{
		ActionsLog:           filepath.Base(paths.ActionsLogPath),
		DescriptiveResponses: filepath.Base(paths.ResponsesPath),
		SessionInfo:          filepath.Base(paths.SessionInfoPath),
	}
}

// localName accepts only a bare file name so a tampered file_structure
// cannot point outside the session directory.
func localName(name string) string {
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return ""
	}
	return name
}
