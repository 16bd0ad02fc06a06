package core

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// Phase is a state of the recovery controller.
type Phase string

const (
	PhaseStartup          Phase = "startup"
	PhaseScanning         Phase = "scanning"
	PhaseNoneFound        Phase = "none_found"
	PhaseFound            Phase = "found"
	PhaseAwaitingDecision Phase = "awaiting_decision"
	PhaseResumed          Phase = "resumed"
	PhaseFresh            Phase = "fresh"
)

// ControllerOptions configures a RecoveryController.
type ControllerOptions struct {
	LogsRoot           string
	ApplicationVersion string
	Study              models.StudyConfig
	InstanceID         string
	Clock              func() time.Time
	Scanner            SessionScanner
	Reconstructor      StateReconstructor
	Opener             WriterOpener
	WriterOptions      []storage.WriterOption
	EventLogger        EventLogger
}

// RecoveryController runs the startup decision once per process:
//
//	startup -> scanning -> none_found -> fresh
//	startup -> scanning -> found -> awaiting_decision -> resumed | fresh
//	startup -> scanning -> found -> fresh             (replay failed)
//
// Nothing it does is fatal: every failure routes to a fresh session and is
// reported through Warnings.
type RecoveryController interface {
	// Check scans the logs root and replays the most recent interrupted
	// session. It returns the state awaiting a decision, or nil when the
	// controller went straight to fresh.
	Check() *models.RecoveryState

	// Resume reopens the interrupted session's files and writes the
	// APPLICATION_REOPENED and SESSION_RESUMED audit actions. If the files
	// cannot be reopened the controller falls back to fresh and the error
	// is returned.
	Resume() (storage.Writer, error)

	// StartFresh opens a new session. A pending recovery warning is written
	// into the new session's actions log.
	StartFresh(participantID string, study models.StudyConfig) (storage.Writer, error)

	Phase() Phase
	History() []Phase
	State() *models.RecoveryState
	Candidate() (models.IncompleteSession, bool)
	Warnings() []string
}

type recoveryController struct {
	opts ControllerOptions

	mu        sync.Mutex
	phase     Phase
	history   []Phase
	state     *models.RecoveryState
	candidate *models.IncompleteSession
	warnings  []string
	opened    bool
}

// NewRecoveryController creates a controller in the startup phase. Nil
// collaborators default to the filesystem implementations.
func NewRecoveryController(opts ControllerOptions) RecoveryController {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Scanner == nil {
		opts.Scanner = DefaultScanner
	}
	if opts.Reconstructor == nil {
		opts.Reconstructor = NewStateReconstructor(opts.EventLogger)
	}
	if opts.Opener == nil {
		opts.Opener = DefaultWriterOpener
	}
	if opts.ApplicationVersion == "" {
		opts.ApplicationVersion = DefaultConfig().ApplicationVersion
	}
	return &recoveryController{
		opts:    opts,
		phase:   PhaseStartup,
		history: []Phase{PhaseStartup},
	}
}

func (c *recoveryController) enter(p Phase) {
	c.phase = p
	c.history = append(c.history, p)
}

func (c *recoveryController) warn(msg string) {
	c.warnings = append(c.warnings, msg)
}

func (c *recoveryController) Check() *models.RecoveryState {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseStartup {
		return c.state
	}
	c.enter(PhaseScanning)

	result, err := c.opts.Scanner.Scan(c.opts.LogsRoot)
	if err != nil {
		c.warn(fmt.Sprintf("could not scan %s for interrupted sessions: %v", c.opts.LogsRoot, err))
		result = &storage.ScanResult{}
	}
	for _, u := range result.Unreadable {
		c.logEvent("scan.unreadable", map[string]any{
			"session_info": u.Paths.SessionInfoPath,
			"dir":          u.Paths.Dir,
			"error":        u.Error,
		})
	}
	counts := result.Counts()
	c.logEvent("scan.completed", map[string]any{
		"logs_root":  c.opts.LogsRoot,
		"complete":   counts[models.SessionComplete],
		"incomplete": counts[models.SessionIncomplete],
		"unreadable": len(result.Unreadable),
	})

	candidate, ok := result.Latest()
	if !ok {
		c.enter(PhaseNoneFound)
		c.enter(PhaseFresh)
		c.logDecision("none_found")
		return nil
	}
	c.candidate = &candidate
	c.enter(PhaseFound)

	state, err := c.opts.Reconstructor.Reconstruct(candidate)
	if err != nil {
		c.warn(fmt.Sprintf("could not recover session %s (%s): %v",
			candidate.Info.ParticipantID, candidate.Paths.SessionInfoPath, err))
		c.enter(PhaseFresh)
		c.logDecision("replay_failed")
		return nil
	}
	c.state = state
	c.enter(PhaseAwaitingDecision)
	return state
}

func (c *recoveryController) Resume() (storage.Writer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.phase != PhaseAwaitingDecision || c.state == nil {
		return nil, fmt.Errorf("resume not possible in phase %s", c.phase)
	}

	info := c.candidate.Info
	session := models.Session{
		Info:    info,
		Paths:   c.state.TargetFilePaths,
		Resumed: true,
	}
	w, err := c.opts.Opener.OpenWriter(session, c.opts.WriterOptions...)
	if err != nil {
		c.warn(fmt.Sprintf("could not reopen session %s: %v", session.Paths.SessionInfoPath, err))
		c.enter(PhaseFresh)
		c.logDecision("resume_failed")
		return nil, fmt.Errorf("reopening interrupted session: %w", err)
	}
	c.enter(PhaseResumed)
	c.opened = true
	c.logDecision("resume")

	now := c.opts.Clock()
	reopened := models.ActionEvent{
		ActionType: models.ActionApplicationReopened,
		Details: models.TextDetails(fmt.Sprintf("Application reopened after interruption; last session started %s",
			info.SessionStartTime.Local)),
		Screen: string(models.ScreenRecovery),
	}
	resumed := models.ActionEvent{
		ActionType: models.ActionSessionResumed,
		Details:    resumeDetails(c.state, now),
		Screen:     string(models.ScreenRecovery),
	}
	for _, ev := range []models.ActionEvent{reopened, resumed} {
		if err := w.AppendAction(ev); err != nil {
			c.warn(fmt.Sprintf("could not record %s: %v", ev.ActionType, err))
			c.logEvent("writer.error", map[string]any{
				"action_type": string(ev.ActionType),
				"error":       err.Error(),
			})
		}
	}

	c.logEvent("session.resumed", map[string]any{
		"participant_id": info.ParticipantID,
		"session_info":   session.Paths.SessionInfoPath,
		"resume_screen":  string(c.state.ResumeScreen),
		"prompt_index":   c.state.PromptIndex,
		"instance_id":    c.opts.InstanceID,
	})
	return w, nil
}

// resumeDetails records where the session picked up.
func resumeDetails(state *models.RecoveryState, now time.Time) models.Details {
	payload := map[string]any{
		"resume_screen":            string(state.ResumeScreen),
		"prompt_index":             state.PromptIndex,
		"completed_response_count": state.CompletedResponseCount,
		"partial_text_word_count":  state.PartialTextWordCount,
		"downtime_seconds":         math.Round((models.UnixSeconds(now)-lastKnownUnix(state))*1000) / 1000,
	}
	if state.CountdownRemainingSeconds != nil {
		payload["countdown_remaining_seconds"] = *state.CountdownRemainingSeconds
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return models.TextDetails(fmt.Sprintf("Session resumed on %s", state.ResumeScreen))
	}
	return models.RawDetails(data)
}

func lastKnownUnix(state *models.RecoveryState) float64 {
	if state.LastEventUnix > 0 {
		return state.LastEventUnix
	}
	return state.OriginalSessionStart.UnixTimestamp
}

func (c *recoveryController) StartFresh(participantID string, study models.StudyConfig) (storage.Writer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case PhaseStartup, PhaseFresh:
		if c.opened {
			return nil, fmt.Errorf("a session is already active")
		}
	case PhaseAwaitingDecision:
		c.enter(PhaseFresh)
		c.logDecision("fresh")
	default:
		return nil, fmt.Errorf("cannot start a fresh session in phase %s", c.phase)
	}
	if c.phase == PhaseStartup {
		c.enter(PhaseFresh)
	}

	if err := storage.ValidateParticipantID(participantID); err != nil {
		return nil, err
	}

	start := c.opts.Clock()
	paths := storage.NewSessionPaths(c.opts.LogsRoot, participantID, start)
	session := models.Session{
		Info: models.SessionInfo{
			ParticipantID:      participantID,
			SessionStartTime:   models.NewSessionTime(start),
			ApplicationVersion: c.opts.ApplicationVersion,
			Configuration:      study.Snapshot(),
			FileStructure:      storage.FileStructureFor(paths),
		},
		Paths: paths,
	}
	w, err := c.opts.Opener.OpenWriter(session, c.opts.WriterOptions...)
	if err != nil {
		return nil, fmt.Errorf("starting session for %s: %w", participantID, err)
	}
	c.opened = true

	for _, msg := range c.warnings {
		ev := models.ActionEvent{
			ActionType: models.ActionRecoveryWarning,
			Details:    models.TextDetails(msg),
			Screen:     string(models.ScreenRecovery),
		}
		if err := w.AppendAction(ev); err != nil {
			c.logEvent("writer.error", map[string]any{
				"action_type": string(ev.ActionType),
				"error":       err.Error(),
			})
		}
	}

	c.logEvent("session.started", map[string]any{
		"participant_id": participantID,
		"session_info":   paths.SessionInfoPath,
		"warnings":       len(c.warnings),
		"instance_id":    c.opts.InstanceID,
	})
	return w, nil
}

func (c *recoveryController) logDecision(decision string) {
	data := map[string]any{"decision": decision}
	if c.candidate != nil {
		data["participant_id"] = c.candidate.Info.ParticipantID
		data["session_info"] = c.candidate.Paths.SessionInfoPath
	}
	c.logEvent("recovery.decision", data)
}

func (c *recoveryController) logEvent(eventType string, data map[string]any) {
	if c.opts.EventLogger != nil {
		_ = c.opts.EventLogger.LogEvent(eventType, data)
	}
}

func (c *recoveryController) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

func (c *recoveryController) History() []Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Phase(nil), c.history...)
}

func (c *recoveryController) State() *models.RecoveryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *recoveryController) Candidate() (models.IncompleteSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.candidate == nil {
		return models.IncompleteSession{}, false
	}
	return *c.candidate, true
}

func (c *recoveryController) Warnings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.warnings...)
}
