package cli

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

func sampleRecoveryState() *models.RecoveryState {
	remaining := 42.0
	return &models.RecoveryState{
		ParticipantID:             "P400",
		ResumeScreen:              models.ScreenDescriptiveTask,
		OriginalSessionStart:      models.SessionTime{Local: "2026-03-01 10:00:00.000"},
		PromptIndex:               1,
		CompletedResponseCount:    1,
		PartialText:               "half an answer",
		PartialTextWordCount:      3,
		CountdownRemainingSeconds: &remaining,
	}
}

func TestLinePrompt(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    decision
		wantErr bool
	}{
		{"resume by number", "1\n", decisionResume, false},
		{"fresh by number", "2\n", decisionFresh, false},
		{"fresh by letter", "f\n", decisionFresh, false},
		{"retry after invalid", "9\nabc\n1\n", decisionResume, false},
		{"cancel", "q\n", decisionCancel, false},
		{"no trailing newline", "2", decisionFresh, false},
		{"eof", "", decisionCancel, true},
		{"invalid then eof", "7", decisionCancel, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := linePrompt(sampleRecoveryState(), strings.NewReader(tt.input), &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("decision = %s, want %s", got, tt.want)
			}
			if !strings.Contains(out.String(), "participant P400") {
				t.Errorf("prompt does not describe the session:\n%s", out.String())
			}
		})
	}
}

func TestPromptDecision_NonTerminalUsesLinePrompt(t *testing.T) {
	got, err := promptDecision(sampleRecoveryState(), strings.NewReader("1\n"), &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if got != decisionResume {
		t.Errorf("decision = %s", got)
	}
}

func TestRecoveryPromptModel_Keys(t *testing.T) {
	m := newRecoveryPromptModel(sampleRecoveryState())
	if m.Init() != nil {
		t.Error("Init should not start any command")
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if got := next.(recoveryPromptModel).choice; got != decisionFresh {
		t.Errorf("down+enter = %s, want fresh", got)
	}
	if cmd == nil {
		t.Error("enter should quit")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("r")})
	if got := next.(recoveryPromptModel).choice; got != decisionResume {
		t.Errorf("r = %s, want resume", got)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyUp})
	if next.(recoveryPromptModel).cursor != 0 {
		t.Error("cursor must not move above the first option")
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if got := next.(recoveryPromptModel).choice; got != decisionCancel {
		t.Errorf("esc = %s, want cancel", got)
	}
}

func TestRecoveryPromptModel_View(t *testing.T) {
	view := newRecoveryPromptModel(sampleRecoveryState()).View()
	for _, want := range []string{"Interrupted session found", "P400", "descriptive_task", "2 (1 answered)", "42s", "3 words", "Resume the interrupted session"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func resetRecoverFlags(t *testing.T) {
	t.Helper()
	r, f, p := recoverResume, recoverFresh, recoverParticipant
	t.Cleanup(func() { recoverResume, recoverFresh, recoverParticipant = r, f, p })
	recoverResume, recoverFresh, recoverParticipant = false, false, ""
}

func TestRecoverCmd_ResumeFlag(t *testing.T) {
	root := useLogsRoot(t)
	resetRecoverFlags(t)
	crashed := crashedSession(t, root, "P401")
	recoverResume = true

	var out bytes.Buffer
	recoverCmd.SetOut(&out)
	defer recoverCmd.SetOut(nil)
	if err := recoverCmd.RunE(recoverCmd, nil); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !strings.Contains(out.String(), "Resumed session for P401 on descriptive_task") {
		t.Errorf("output = %q", out.String())
	}

	actions := actionsOf(t, crashed.Paths.ActionsLogPath)
	n := len(actions)
	if actions[n-2].ActionType != models.ActionApplicationReopened || actions[n-1].ActionType != models.ActionSessionResumed {
		t.Errorf("last actions = %s, %s", actions[n-2].ActionType, actions[n-1].ActionType)
	}
	info, err := storage.ReadSessionInfo(crashed.Paths.SessionInfoPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.Complete() {
		t.Error("recover must leave the session open")
	}
}

func TestRecoverCmd_PromptedFresh(t *testing.T) {
	root := useLogsRoot(t)
	resetRecoverFlags(t)
	crashed := crashedSession(t, root, "P402")
	recoverParticipant = "P403"

	var out bytes.Buffer
	recoverCmd.SetIn(strings.NewReader("2\n"))
	recoverCmd.SetOut(&out)
	defer func() {
		recoverCmd.SetIn(nil)
		recoverCmd.SetOut(nil)
	}()
	if err := recoverCmd.RunE(recoverCmd, nil); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !strings.Contains(out.String(), "Started new session for P403") {
		t.Errorf("output = %q", out.String())
	}

	for _, ev := range actionsOf(t, crashed.Paths.ActionsLogPath) {
		if ev.ActionType == models.ActionSessionResumed {
			t.Error("declined session must not be resumed")
		}
	}
	res, _ := storage.Scan(root)
	if res.Counts()[models.SessionIncomplete] != 2 {
		t.Errorf("counts = %v, want both sessions incomplete", res.Counts())
	}
}

func TestRecoverCmd_Cancel(t *testing.T) {
	root := useLogsRoot(t)
	resetRecoverFlags(t)
	crashed := crashedSession(t, root, "P404")
	before := actionsOf(t, crashed.Paths.ActionsLogPath)

	var out bytes.Buffer
	recoverCmd.SetIn(strings.NewReader("q\n"))
	recoverCmd.SetOut(&out)
	defer func() {
		recoverCmd.SetIn(nil)
		recoverCmd.SetOut(nil)
	}()
	if err := recoverCmd.RunE(recoverCmd, nil); err != nil {
		t.Fatalf("recover: %v", err)
	}
	if !strings.Contains(out.String(), "Cancelled") {
		t.Errorf("output = %q", out.String())
	}
	if after := actionsOf(t, crashed.Paths.ActionsLogPath); len(after) != len(before) {
		t.Error("cancel must not touch the interrupted session")
	}
}

func TestRecoverCmd_LockHeld(t *testing.T) {
	root := useLogsRoot(t)
	resetRecoverFlags(t)
	lock, err := storage.AcquireInstanceLock(root)
	if err != nil {
		t.Fatal(err)
	}
	defer lock.Release()

	err = recoverCmd.RunE(recoverCmd, nil)
	if err != storage.ErrInstanceRunning {
		t.Errorf("want ErrInstanceRunning, got %v", err)
	}
}
