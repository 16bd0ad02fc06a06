package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

func resetSimulateFlags(t *testing.T) {
	t.Helper()
	p, s, r, pa, rem, m := simParticipant, simScreen, simResponses, simPartial, simRemaining, simMinutesAgo
	t.Cleanup(func() {
		simParticipant, simScreen, simResponses, simPartial, simRemaining, simMinutesAgo = p, s, r, pa, rem, m
	})
	simParticipant, simScreen, simResponses = "RECOVERY_TEST", string(models.ScreenDescriptiveTask), 0
	simPartial, simRemaining, simMinutesAgo = "one two", 180, 2
}

func TestSimulateCrashCmd_WritesRecoverableSession(t *testing.T) {
	root := useLogsRoot(t)
	resetSimulateFlags(t)
	simResponses = 2
	simPartial = "a draft in progress"
	simRemaining = 75

	var out bytes.Buffer
	simulateCrashCmd.SetOut(&out)
	defer simulateCrashCmd.SetOut(nil)
	if err := simulateCrashCmd.RunE(simulateCrashCmd, nil); err != nil {
		t.Fatalf("simulate-crash: %v", err)
	}
	if !strings.Contains(out.String(), "Wrote interrupted session for RECOVERY_TEST on descriptive_task") {
		t.Errorf("output = %q", out.String())
	}

	res, err := storage.Scan(root)
	if err != nil {
		t.Fatal(err)
	}
	latest, ok := res.Latest()
	if !ok {
		t.Fatal("expected an incomplete session")
	}
	state, err := core.Replay(latest.Paths.SessionInfoPath)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if state.ResumeScreen != models.ScreenDescriptiveTask || state.PromptIndex != 2 || state.CompletedResponseCount != 2 {
		t.Errorf("state = %+v", state)
	}
	if state.PartialText != "a draft in progress" {
		t.Errorf("partial = %q", state.PartialText)
	}
}

func TestSimulateCrashCmd_Validation(t *testing.T) {
	useLogsRoot(t)
	resetSimulateFlags(t)

	simScreen = "lobby"
	if err := simulateCrashCmd.RunE(simulateCrashCmd, nil); err == nil || !strings.Contains(err.Error(), "unknown screen") {
		t.Errorf("unknown screen: %v", err)
	}

	simScreen = string(models.ScreenStroop)
	simResponses = -1
	if err := simulateCrashCmd.RunE(simulateCrashCmd, nil); err == nil || !strings.Contains(err.Error(), "must not be negative") {
		t.Errorf("negative responses: %v", err)
	}

	simResponses = 0
	simParticipant = "../x"
	if err := simulateCrashCmd.RunE(simulateCrashCmd, nil); err == nil {
		t.Error("expected participant ID validation error")
	}
}

func TestSimulateCrashCmd_NotInitialized(t *testing.T) {
	orig := LogsRoot
	defer func() { LogsRoot = orig }()
	LogsRoot = ""
	if err := simulateCrashCmd.RunE(simulateCrashCmd, nil); err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestWriteCrashFixture_Screens(t *testing.T) {
	tests := []struct {
		screen      models.Screen
		wantActions int
	}{
		// Participant ID only.
		{models.ScreenParticipantID, 1},
		// Participant ID, prestudy and consent pairs.
		{models.ScreenConsent, 5},
		// Through stroop plus a countdown snapshot.
		{models.ScreenStroop, 12},
		// Task selection is walked through only when it is the target.
		{models.ScreenTaskSelection, 17},
		{models.ScreenPostStudyRest, 17},
	}
	for _, tt := range tests {
		t.Run(string(tt.screen), func(t *testing.T) {
			root := useLogsRoot(t)
			session, err := writeCrashFixture(root, crashFixture{
				Participant: "FX",
				Screen:      tt.screen,
				Remaining:   30,
				Start:       time.Unix(1_700_000_000, 0),
				Study:       core.DefaultConfig().Study,
			})
			if err != nil {
				t.Fatal(err)
			}
			actions := actionsOf(t, session.Paths.ActionsLogPath)
			if len(actions) != tt.wantActions {
				t.Fatalf("actions = %d, want %d", len(actions), tt.wantActions)
			}
			state, err := core.Replay(session.Paths.SessionInfoPath)
			if err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if state.ResumeScreen != tt.screen {
				t.Errorf("resume screen = %s, want %s", state.ResumeScreen, tt.screen)
			}
		})
	}
}

func TestWriteCrashFixture_CountdownTotal(t *testing.T) {
	root := useLogsRoot(t)
	session, err := writeCrashFixture(root, crashFixture{
		Participant: "FX2",
		Screen:      models.ScreenStroop,
		Remaining:   30,
		Start:       time.Unix(1_700_000_000, 0),
		Study:       core.DefaultConfig().Study,
	})
	if err != nil {
		t.Fatal(err)
	}
	actions := actionsOf(t, session.Paths.ActionsLogPath)
	cd, ok := actions[len(actions)-1].CountdownState()
	if !ok {
		t.Fatalf("last action = %+v", actions[len(actions)-1])
	}
	if cd.RemainingSeconds != 30 || cd.TotalSeconds != 180 {
		t.Errorf("countdown = %+v", cd)
	}
}
