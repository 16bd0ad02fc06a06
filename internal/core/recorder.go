package core

import (
	"fmt"
	"sync"
	"time"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// Recorder is what screens and other collaborators log through. It owns at
// most one active session writer. Every method is safe for concurrent use
// and none of them panics or exits: failures come back as errors the caller
// may surface as a warning or ignore.
type Recorder interface {
	// CheckForRecovery looks for an interrupted session. It returns the
	// state to present to the participant, or nil if there is nothing to
	// resume.
	CheckForRecovery() *models.RecoveryState
	// ConfirmResume continues the interrupted session found by
	// CheckForRecovery.
	ConfirmResume() (models.Session, error)
	// StartFresh declines recovery (if any) and starts a new session.
	StartFresh(participantID string, study models.StudyConfig) (models.Session, error)
	// BeginSession starts a new session when no recovery decision is pending.
	BeginSession(participantID string, study models.StudyConfig) (models.Session, error)
	// EndSession logs APPLICATION_EXIT, finalizes and closes the session.
	EndSession(screen string) error
	// Abandon closes the session files without finalizing, leaving the
	// session incomplete for the next launch to recover.
	Abandon() error

	LogAction(actionType models.ActionType, details models.Details, screen string) error
	PostAction(actionType models.ActionType, details models.Details, screen string) bool
	LogResponse(promptIndex int, promptText, responseText string) error

	LogScreenTransition(screen models.Screen) error
	LogScreenDisplayed(screen models.Screen) error
	LogPartialText(text string, countdownRemaining *float64, promptIndex int) bool
	LogCountdownState(remaining, total float64, screen models.Screen) error
	LogSentenceCompleted(sentence string) error
	LogCrash(reason string, screen string) error
	RecordTaskSelection(selection models.TaskSelection) error

	Session() (models.Session, bool)
	Controller() RecoveryController
	Stats() storage.WriterStats
}

type recorder struct {
	controller RecoveryController
	events     EventLogger
	clock      func() time.Time

	mu     sync.RWMutex
	writer storage.Writer
	study  models.StudyConfig
}

// RecorderOption configures a Recorder.
type RecorderOption func(*recorder)

// WithRecorderClock sets the clock used for the session end time.
func WithRecorderClock(clock func() time.Time) RecorderOption {
	return func(r *recorder) { r.clock = clock }
}

// NewRecorder creates a Recorder around a recovery controller. study is
// used for gating optional actions until a session provides its own.
func NewRecorder(controller RecoveryController, study models.StudyConfig, events EventLogger, opts ...RecorderOption) Recorder {
	r := &recorder{
		controller: controller,
		events:     events,
		clock:      time.Now,
		study:      study,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *recorder) Controller() RecoveryController {
	return r.controller
}

func (r *recorder) CheckForRecovery() *models.RecoveryState {
	return r.controller.Check()
}

func (r *recorder) ConfirmResume() (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		return models.Session{}, fmt.Errorf("a session is already active")
	}
	w, err := r.controller.Resume()
	if err != nil {
		return models.Session{}, err
	}
	r.writer = w
	r.study = studyFromSnapshot(w.Session().Info.Configuration, r.study)
	return w.Session(), nil
}

func (r *recorder) StartFresh(participantID string, study models.StudyConfig) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer != nil {
		return models.Session{}, fmt.Errorf("a session is already active")
	}
	w, err := r.controller.StartFresh(participantID, study)
	if err != nil {
		return models.Session{}, err
	}
	r.writer = w
	r.study = study
	return w.Session(), nil
}

func (r *recorder) BeginSession(participantID string, study models.StudyConfig) (models.Session, error) {
	if r.controller.Phase() == PhaseAwaitingDecision {
		return models.Session{}, fmt.Errorf("an interrupted session is awaiting a resume or start-fresh decision")
	}
	session, err := r.StartFresh(participantID, study)
	if err != nil {
		return session, err
	}
	_ = r.LogAction(models.ActionParticipantIDSubmitted, models.TextDetails("Participant ID: "+participantID), string(models.ScreenParticipantID))
	return session, nil
}

func (r *recorder) EndSession(screen string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return errNoSession("end session")
	}
	w := r.writer

	exitErr := w.AppendAction(models.ActionEvent{
		ActionType: models.ActionApplicationExit,
		Details:    models.TextDetails("Application closed normally"),
		Screen:     screen,
	})
	if exitErr != nil {
		r.logEvent("writer.error", map[string]any{"action_type": string(models.ActionApplicationExit), "error": exitErr.Error()})
	}

	if err := w.Finalize(r.clock()); err != nil {
		r.logEvent("writer.error", map[string]any{"op": "finalize", "error": err.Error()})
		_ = w.Close()
		r.writer = nil
		return fmt.Errorf("finalizing session: %w", err)
	}
	session := w.Session()
	stats := w.Stats()
	closeErr := w.Close()
	r.writer = nil

	data := map[string]any{
		"participant_id":    session.ParticipantID(),
		"session_info":      session.Paths.SessionInfoPath,
		"resumed":           session.Resumed,
		"actions_written":   stats.ActionsWritten,
		"responses_written": stats.ResponsesWritten,
		"dropped":           stats.Dropped,
		"write_errors":      stats.Errors,
	}
	if d := session.Info.SessionDurationSeconds; d != nil {
		data["duration_seconds"] = *d
	}
	r.logEvent("session.finalized", data)

	if closeErr != nil {
		return closeErr
	}
	return nil
}

func (r *recorder) Abandon() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}

func (r *recorder) active(op string) (storage.Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.writer == nil {
		return nil, errNoSession(op)
	}
	return r.writer, nil
}

func errNoSession(op string) error {
	return molyerrors.New(molyerrors.KindSessionClosed, op, "", fmt.Errorf("no active session"))
}

func (r *recorder) LogAction(actionType models.ActionType, details models.Details, screen string) error {
	w, err := r.active("log action")
	if err != nil {
		return err
	}
	return w.AppendAction(models.ActionEvent{ActionType: actionType, Details: details, Screen: screen})
}

func (r *recorder) PostAction(actionType models.ActionType, details models.Details, screen string) bool {
	w, err := r.active("post action")
	if err != nil {
		return false
	}
	return w.PostAction(models.ActionEvent{ActionType: actionType, Details: details, Screen: screen})
}

func (r *recorder) LogResponse(promptIndex int, promptText, responseText string) error {
	w, err := r.active("log response")
	if err != nil {
		return err
	}
	if promptIndex < 0 {
		return fmt.Errorf("prompt index must not be negative, got %d", promptIndex)
	}
	return w.AppendResponse(models.NewResponseEvent(promptIndex, promptText, responseText))
}

func (r *recorder) LogScreenTransition(screen models.Screen) error {
	return r.LogAction(models.ActionScreenTransition, models.TextDetails("Transitioning to "+string(screen)), string(screen))
}

func (r *recorder) LogScreenDisplayed(screen models.Screen) error {
	return r.LogAction(models.ActionScreenDisplayed, models.TextDetails(string(screen)+" screen displayed and ready"), string(screen))
}

// LogPartialText queues a snapshot of the descriptive task text box. It
// takes the asynchronous path, so under sustained backpressure the
// snapshot may be dropped; false is returned in that case.
func (r *recorder) LogPartialText(text string, countdownRemaining *float64, promptIndex int) bool {
	return r.PostAction(models.ActionPartialTextUpdate,
		models.NewPartialTextDetails(text, countdownRemaining, promptIndex),
		string(models.ScreenDescriptiveTask))
}

func (r *recorder) LogCountdownState(remaining, total float64, screen models.Screen) error {
	return r.LogAction(models.ActionCountdownState, models.NewCountdownStateDetails(remaining, total), string(screen))
}

// LogSentenceCompleted is a no-op unless descriptive_line_logging is on.
func (r *recorder) LogSentenceCompleted(sentence string) error {
	r.mu.RLock()
	enabled := r.study.DescriptiveLineLogging
	r.mu.RUnlock()
	if !enabled {
		return nil
	}
	return r.LogAction(models.ActionSentenceCompleted, models.NewSentenceDetails(sentence), string(models.ScreenDescriptiveTask))
}

func (r *recorder) LogCrash(reason string, screen string) error {
	return r.LogAction(models.ActionApplicationCrash, models.TextDetails("Application terminated unexpectedly: "+reason), screen)
}

func (r *recorder) RecordTaskSelection(selection models.TaskSelection) error {
	w, err := r.active("record task selection")
	if err != nil {
		return err
	}
	if err := w.RecordTaskSelection(selection); err != nil {
		return err
	}
	return w.AppendAction(models.ActionEvent{
		ActionType: models.ActionTaskAssignment,
		Details:    models.TextDetails(fmt.Sprintf("Assigned task: %s (%s)", selection.SelectedTask, selection.SelectionMode)),
		Screen:     string(models.ScreenContentPerformance),
	})
}

func (r *recorder) Session() (models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.writer == nil {
		return models.Session{}, false
	}
	return r.writer.Session(), true
}

func (r *recorder) Stats() storage.WriterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.writer == nil {
		return storage.WriterStats{}
	}
	return r.writer.Stats()
}

func (r *recorder) logEvent(eventType string, data map[string]any) {
	if r.events != nil {
		_ = r.events.LogEvent(eventType, data)
	}
}

// studyFromSnapshot restores the study flags recorded in a SessionInfo
// configuration snapshot, keeping fallback values for missing keys.
func studyFromSnapshot(snapshot map[string]any, fallback models.StudyConfig) models.StudyConfig {
	cfg := fallback
	boolKey := func(key string, dst *bool) {
		if v, ok := snapshot[key].(bool); ok {
			*dst = v
		}
	}
	intKey := func(key string, dst *int) {
		switch v := snapshot[key].(type) {
		case float64:
			*dst = int(v)
		case int:
			*dst = v
		}
	}
	boolKey("developer_mode", &cfg.DeveloperMode)
	boolKey("focus_mode", &cfg.FocusMode)
	boolKey("descriptive_line_logging", &cfg.DescriptiveLineLogging)
	boolKey("countdown_enabled", &cfg.CountdownEnabled)
	intKey("descriptive_countdown_minutes", &cfg.DescriptiveCountdownMinutes)
	intKey("stroop_countdown_minutes", &cfg.StroopCountdownMinutes)
	intKey("math_countdown_minutes", &cfg.MathCountdownMinutes)
	intKey("relaxation_countdown_minutes", &cfg.RelaxationCountdownMinutes)
	intKey("descriptive_prompt_count", &cfg.DescriptivePromptCount)
	if v, ok := snapshot["task_selection_mode"].(string); ok {
		cfg.TaskSelectionMode = v
	}
	return cfg
}
