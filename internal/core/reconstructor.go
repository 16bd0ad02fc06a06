package core

import (
	"fmt"
	"sort"
	"strings"

	molyerrors "github.com/valter-silva-au/moly-recorder/internal/errors"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// StateReconstructor replays an interrupted session into a RecoveryState.
// Replay only reads; running it twice on unchanged files gives identical
// results.
type StateReconstructor interface {
	Reconstruct(candidate models.IncompleteSession) (*models.RecoveryState, error)
	ReconstructFile(sessionInfoPath string) (*models.RecoveryState, error)
}

type reconstructor struct {
	eventLogger EventLogger
}

// NewStateReconstructor creates a StateReconstructor. eventLogger may be nil.
func NewStateReconstructor(eventLogger EventLogger) StateReconstructor {
	return &reconstructor{eventLogger: eventLogger}
}

func (r *reconstructor) Reconstruct(candidate models.IncompleteSession) (*models.RecoveryState, error) {
	return r.ReconstructFile(candidate.Paths.SessionInfoPath)
}

func (r *reconstructor) ReconstructFile(sessionInfoPath string) (*models.RecoveryState, error) {
	state, err := Replay(sessionInfoPath)
	if err != nil {
		r.logEvent("replay.failed", map[string]any{
			"session_info": sessionInfoPath,
			"kind":         string(molyerrors.KindOf(err)),
			"error":        err.Error(),
		})
		return nil, err
	}
	r.logEvent("replay.completed", map[string]any{
		"session_info":           sessionInfoPath,
		"participant_id":         state.ParticipantID,
		"resume_screen":          string(state.ResumeScreen),
		"prompt_index":           state.PromptIndex,
		"completed_responses":    state.CompletedResponseCount,
		"actions":                state.ActionCount,
		"skipped_action_lines":   state.SkippedActionLines,
		"skipped_response_lines": state.SkippedResponseLines,
	})
	return state, nil
}

func (r *reconstructor) logEvent(eventType string, data map[string]any) {
	if r.eventLogger != nil {
		_ = r.eventLogger.LogEvent(eventType, data)
	}
}

// screenTracker holds the sub-state gathered while the participant is on
// one screen. It is discarded whenever the screen changes.
type screenTracker struct {
	screen             models.Screen
	partial            *models.PartialTextDetails
	countdownRemaining *float64
	countdownTotal     *float64
	// countdownAt is the timestamp of the event countdownRemaining came from.
	countdownAt float64
}

func (t *screenTracker) enter(screen models.Screen) {
	if screen == t.screen {
		return
	}
	*t = screenTracker{screen: screen}
}

// applies reports whether an event tagged with screen belongs to the
// current screen. Events written without a screen name are attributed to
// whatever screen is active.
func (t *screenTracker) applies(screen string) bool {
	return screen == string(t.screen) || screen == "" || screen == "unknown"
}

// Replay reads the SessionInfo at sessionInfoPath and its sibling logs and
// derives the resume point. Unparseable log lines are skipped and counted.
// A malformed SessionInfo is a FormatError, an unreadable log an IOError,
// and an incoherent log a RecoveryAmbiguityError.
func Replay(sessionInfoPath string) (*models.RecoveryState, error) {
	info, err := storage.ReadSessionInfo(sessionInfoPath)
	if err != nil {
		return nil, err
	}
	paths := storage.PathsFromSessionInfo(sessionInfoPath, info)

	var tracker screenTracker
	var lastUnix float64
	actionStats, err := storage.ReadActions(paths.ActionsLogPath, func(ev models.ActionEvent) {
		if ev.Timestamp.Unix > lastUnix {
			lastUnix = ev.Timestamp.Unix
		}
		switch {
		case ev.ActionType.IsScreenChange():
			if screen := eventScreen(ev); screen != "" {
				tracker.enter(screen)
			}
		case ev.ActionType == models.ActionPartialTextUpdate:
			if !tracker.applies(ev.Screen) {
				return
			}
			if p, ok := ev.PartialText(); ok {
				tracker.partial = &p
				if p.CountdownRemaining != nil {
					v := *p.CountdownRemaining
					tracker.countdownRemaining = &v
					tracker.countdownAt = ev.Timestamp.Unix
				}
			}
		case ev.ActionType == models.ActionCountdownState:
			if !tracker.applies(ev.Screen) {
				return
			}
			if c, ok := ev.CountdownState(); ok {
				remaining, total := c.RemainingSeconds, c.TotalSeconds
				tracker.countdownRemaining = &remaining
				tracker.countdownAt = ev.Timestamp.Unix
				if total > 0 {
					tracker.countdownTotal = &total
				}
			}
		}
	})
	if err != nil {
		return nil, err
	}

	// answered maps each prompt index to the time of its latest response.
	answered := map[int]float64{}
	var badIndex *int
	responseStats, err := storage.ReadResponses(paths.ResponsesPath, func(ev models.ResponseEvent) {
		if ev.Timestamp.Unix > lastUnix {
			lastUnix = ev.Timestamp.Unix
		}
		if ev.PromptIndex < 0 && badIndex == nil {
			idx := ev.PromptIndex
			badIndex = &idx
		}
		if at, ok := answered[ev.PromptIndex]; !ok || ev.Timestamp.Unix > at {
			answered[ev.PromptIndex] = ev.Timestamp.Unix
		}
	})
	if err != nil {
		return nil, err
	}
	if badIndex != nil {
		return nil, molyerrors.Ambiguity(paths.ResponsesPath, "negative prompt index %d", *badIndex)
	}

	resume := tracker.screen
	if resume == models.ScreenNone {
		resume = models.ScreenParticipantID
	}
	if !resume.Known() {
		return nil, molyerrors.Ambiguity(paths.ActionsLogPath, "unknown resume screen %q", resume)
	}

	completed := make([]int, 0, len(answered))
	for idx := range answered {
		completed = append(completed, idx)
	}
	sort.Ints(completed)

	state := &models.RecoveryState{
		ParticipantID:          info.ParticipantID,
		ResumeScreen:           resume,
		OriginalSessionStart:   info.SessionStartTime,
		CompletedResponseCount: len(completed),
		CompletedPrompts:       completed,
		TargetFilePaths:        paths,
		Configuration:          info.Configuration,
		LastEventUnix:          lastUnix,
		ActionCount:            actionStats.Parsed,
		SkippedActionLines:     actionStats.Skipped,
		SkippedResponseLines:   responseStats.Skipped,
	}

	if resume == models.ScreenDescriptiveTask {
		state.PromptIndex = state.CompletedResponseCount
		if tracker.partial != nil {
			idx := tracker.partial.CurrentPromptIndex
			maxAnswered := -1
			if len(completed) > 0 {
				maxAnswered = completed[len(completed)-1]
			}
			if idx < 0 {
				return nil, molyerrors.Ambiguity(paths.ActionsLogPath, "negative current prompt index %d", idx)
			}
			if idx > maxAnswered+1 {
				return nil, molyerrors.Ambiguity(paths.ActionsLogPath,
					"partial text is on prompt %d but prompt %d has no response", idx, maxAnswered+1)
			}
			if submittedAt, done := answered[idx]; done {
				// The draft was submitted and nothing was typed on the next
				// prompt yet. Its countdown is stale unless a later snapshot
				// replaced it.
				tracker.partial = nil
				if tracker.countdownAt <= submittedAt {
					tracker.countdownRemaining = nil
					tracker.countdownTotal = nil
				}
			} else {
				state.PromptIndex = idx
			}
		}
	}

	if tracker.partial != nil {
		state.PartialText = tracker.partial.TextContent
		state.PartialTextWordCount = tracker.partial.WordCount
		if state.PartialTextWordCount == 0 {
			state.PartialTextWordCount = models.WordCount(state.PartialText)
		}
	}

	if resume.HasCountdown() && tracker.countdownRemaining != nil {
		state.CountdownRemainingSeconds = tracker.countdownRemaining
		state.CountdownTotalSeconds = tracker.countdownTotal
		if state.CountdownTotalSeconds == nil {
			if total, ok := configuredCountdownSeconds(info.Configuration, resume); ok && total >= *state.CountdownRemainingSeconds {
				state.CountdownTotalSeconds = &total
			}
		}
	}

	return state, nil
}

// eventScreen returns the screen a screen-change event moved to. Events
// written with an empty or "unknown" screen name carry it in their details
// instead ("Transitioning to X", "X screen displayed and ready").
func eventScreen(ev models.ActionEvent) models.Screen {
	if ev.Screen != "" && ev.Screen != "unknown" {
		return models.Screen(ev.Screen)
	}
	text := strings.TrimSpace(ev.Text())
	if rest, ok := strings.CutPrefix(text, "Transitioning to "); ok {
		if fields := strings.Fields(rest); len(fields) > 0 {
			return models.Screen(fields[0])
		}
	}
	if head, _, ok := strings.Cut(text, " screen displayed"); ok && head != "" && !strings.ContainsAny(head, " \t") {
		return models.Screen(head)
	}
	return models.ScreenNone
}

// configuredCountdownSeconds reads the timer length for screen from a
// configuration snapshot. Values decoded from JSON are float64; values
// built in memory may be int.
func configuredCountdownSeconds(cfg map[string]any, screen models.Screen) (float64, bool) {
	key := screen.CountdownConfigKey()
	if key == "" || cfg == nil {
		return 0, false
	}
	var minutes float64
	switch v := cfg[key].(type) {
	case float64:
		minutes = v
	case int:
		minutes = float64(v)
	case int64:
		minutes = float64(v)
	default:
		return 0, false
	}
	if minutes <= 0 {
		return 0, false
	}
	return minutes * 60, true
}

// DescribeState renders a one-line summary of a recovery state for prompts
// and logs.
func DescribeState(state *models.RecoveryState) string {
	if !state.Found() {
		return "no interrupted session"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "participant %s on %s", state.ParticipantID, state.ResumeScreen)
	if state.ResumeScreen == models.ScreenDescriptiveTask {
		fmt.Fprintf(&b, ", prompt %d (%d answered)", state.PromptIndex+1, state.CompletedResponseCount)
	}
	if state.CountdownRemainingSeconds != nil {
		fmt.Fprintf(&b, ", %.0fs left", *state.CountdownRemainingSeconds)
	}
	if state.PartialTextWordCount > 0 {
		fmt.Fprintf(&b, ", %d words drafted", state.PartialTextWordCount)
	}
	return b.String()
}
