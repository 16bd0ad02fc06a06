package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

func readActions(t *testing.T, path string) []models.ActionEvent {
	t.Helper()
	var out []models.ActionEvent
	if _, err := storage.ReadActions(path, func(ev models.ActionEvent) { out = append(out, ev) }); err != nil {
		t.Fatalf("ReadActions: %v", err)
	}
	return out
}

func newTestController(root string, now time.Time, events EventLogger) RecoveryController {
	return NewRecoveryController(ControllerOptions{
		LogsRoot:      root,
		Study:         DefaultConfig().Study,
		InstanceID:    "test-instance",
		Clock:         func() time.Time { return now },
		WriterOptions: []storage.WriterOption{storage.WithSyncEachWrite(false), storage.WithClock(func() time.Time { return now })},
		EventLogger:   events,
	})
}

func TestController_NoLogsDirGoesFresh(t *testing.T) {
	root := filepath.Join(t.TempDir(), "logs")
	events := &fakeEventLogger{}
	c := newTestController(root, time.Unix(5000, 0), events)

	if state := c.Check(); state != nil {
		t.Fatalf("expected no candidate, got %+v", state)
	}
	want := []Phase{PhaseStartup, PhaseScanning, PhaseNoneFound, PhaseFresh}
	if !reflect.DeepEqual(c.History(), want) {
		t.Errorf("history = %v, want %v", c.History(), want)
	}
	if len(c.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", c.Warnings())
	}

	w, err := c.StartFresh("P001", DefaultConfig().Study)
	if err != nil {
		t.Fatalf("StartFresh: %v", err)
	}
	defer w.Close()
	if !strings.HasPrefix(w.Session().Paths.Dir, root) {
		t.Errorf("session outside logs root: %s", w.Session().Paths.Dir)
	}
	if events.count("session.started") != 1 || events.count("scan.completed") != 1 {
		t.Errorf("events = %v", events.types())
	}

	if _, err := c.StartFresh("P001", DefaultConfig().Study); err == nil {
		t.Error("second StartFresh should fail")
	}
}

func TestController_ResumeWritesAuditEvents(t *testing.T) {
	root := t.TempDir()
	session := newFixture(t, root, "P002", time.Unix(1000, 0)).
		tick(10 * time.Second).
		screen(models.ScreenDescriptiveTask).
		tick(90 * time.Second).
		response(0).
		partial("half written", 1, floatPtr(120)).
		crash()

	events := &fakeEventLogger{}
	c := newTestController(root, time.Unix(1500, 0), events)
	state := c.Check()
	if state == nil {
		t.Fatalf("expected a recovery state, warnings: %v", c.Warnings())
	}
	if c.Phase() != PhaseAwaitingDecision {
		t.Fatalf("phase = %s", c.Phase())
	}
	if cand, ok := c.Candidate(); !ok || cand.Paths.SessionInfoPath != session.Paths.SessionInfoPath {
		t.Fatalf("candidate = %+v", cand)
	}

	w, err := c.Resume()
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if c.Phase() != PhaseResumed {
		t.Errorf("phase = %s", c.Phase())
	}

	actions := readActions(t, session.Paths.ActionsLogPath)
	n := len(actions)
	if n < 2 {
		t.Fatalf("expected audit actions, got %d lines", n)
	}
	reopened, resumed := actions[n-2], actions[n-1]
	if reopened.ActionType != models.ActionApplicationReopened || resumed.ActionType != models.ActionSessionResumed {
		t.Fatalf("last actions = %s, %s", reopened.ActionType, resumed.ActionType)
	}
	for _, ev := range []models.ActionEvent{reopened, resumed} {
		if ev.Screen != "recovery" {
			t.Errorf("%s screen = %q", ev.ActionType, ev.Screen)
		}
		if ev.SessionDurationSeconds != 500 {
			t.Errorf("%s duration = %v, want 500", ev.ActionType, ev.SessionDurationSeconds)
		}
	}

	info, err := storage.ReadSessionInfo(session.Paths.SessionInfoPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.SessionStartTime != session.Info.SessionStartTime {
		t.Error("session start must survive resume unchanged")
	}
	if events.count("session.resumed") != 1 || events.count("replay.completed") != 1 {
		t.Errorf("events = %v", events.types())
	}
}

func TestController_DeclineStartsFreshAndLeavesOldSession(t *testing.T) {
	root := t.TempDir()
	old := newFixture(t, root, "P003", time.Unix(1000, 0)).screen(models.ScreenStroop).crash()
	before, _ := os.ReadFile(old.Paths.ActionsLogPath)

	c := newTestController(root, time.Unix(9000, 0), nil)
	if c.Check() == nil {
		t.Fatal("expected candidate")
	}
	w, err := c.StartFresh("P004", DefaultConfig().Study)
	if err != nil {
		t.Fatalf("StartFresh: %v", err)
	}
	defer w.Close()

	if c.Phase() != PhaseFresh {
		t.Errorf("phase = %s", c.Phase())
	}
	if _, err := c.Resume(); err == nil {
		t.Error("resume after choosing fresh must fail")
	}
	after, _ := os.ReadFile(old.Paths.ActionsLogPath)
	if string(before) != string(after) {
		t.Error("declined session must not be modified")
	}
	if w.Session().Paths.SessionInfoPath == old.Paths.SessionInfoPath {
		t.Error("fresh session must use new files")
	}
}

func TestController_AmbiguityFallsBackWithWarningInNewLog(t *testing.T) {
	root := t.TempDir()
	bad := newFixture(t, root, "P005", time.Unix(1000, 0)).
		screen(models.ScreenDescriptiveTask).
		partial("text", 4, nil).
		crash()
	before, _ := os.ReadFile(bad.Paths.ActionsLogPath)

	events := &fakeEventLogger{}
	c := newTestController(root, time.Unix(2000, 0), events)
	if state := c.Check(); state != nil {
		t.Fatalf("expected fallback, got state %+v", state)
	}
	want := []Phase{PhaseStartup, PhaseScanning, PhaseFound, PhaseFresh}
	if !reflect.DeepEqual(c.History(), want) {
		t.Errorf("history = %v, want %v", c.History(), want)
	}
	if len(c.Warnings()) != 1 {
		t.Fatalf("warnings = %v", c.Warnings())
	}

	w, err := c.StartFresh("P005", DefaultConfig().Study)
	if err != nil {
		t.Fatal(err)
	}
	fresh := w.Session()
	_ = w.Close()

	actions := readActions(t, fresh.Paths.ActionsLogPath)
	if len(actions) != 1 || actions[0].ActionType != models.ActionRecoveryWarning {
		t.Fatalf("expected a RECOVERY_WARNING in the new log, got %+v", actions)
	}
	if !strings.Contains(actions[0].Text(), "recovery_ambiguity") {
		t.Errorf("warning text = %q", actions[0].Text())
	}
	after, _ := os.ReadFile(bad.Paths.ActionsLogPath)
	if string(before) != string(after) {
		t.Error("the corrupted session's log must not be touched")
	}
	if events.count("replay.failed") != 1 {
		t.Errorf("events = %v", events.types())
	}
}

func TestController_ScanFailureIsNotFatal(t *testing.T) {
	c := NewRecoveryController(ControllerOptions{
		LogsRoot: t.TempDir(),
		Scanner: ScannerFunc(func(string) (*storage.ScanResult, error) {
			return nil, fmt.Errorf("permission denied")
		}),
		WriterOptions: []storage.WriterOption{storage.WithSyncEachWrite(false)},
	})
	if c.Check() != nil {
		t.Fatal("expected no state")
	}
	if c.Phase() != PhaseFresh || len(c.Warnings()) != 1 {
		t.Errorf("phase = %s, warnings = %v", c.Phase(), c.Warnings())
	}
}

type failingOpener struct{ calls int }

func (f *failingOpener) OpenWriter(models.Session, ...storage.WriterOption) (storage.Writer, error) {
	f.calls++
	return nil, fmt.Errorf("disk full")
}

func TestController_ResumeOpenFailureRoutesFresh(t *testing.T) {
	root := t.TempDir()
	newFixture(t, root, "P006", time.Unix(1000, 0)).screen(models.ScreenConsent).crash()

	opener := &failingOpener{}
	c := NewRecoveryController(ControllerOptions{LogsRoot: root, Opener: opener})
	if c.Check() == nil {
		t.Fatal("expected candidate")
	}
	if _, err := c.Resume(); err == nil {
		t.Fatal("expected resume error")
	}
	if c.Phase() != PhaseFresh {
		t.Errorf("phase = %s, want fresh", c.Phase())
	}
	if _, err := c.StartFresh("P006", DefaultConfig().Study); err == nil {
		t.Error("expected StartFresh to report the opener failure")
	}
	if opener.calls != 2 {
		t.Errorf("opener calls = %d", opener.calls)
	}
}

func TestController_StartFreshRejectsBadParticipant(t *testing.T) {
	c := newTestController(t.TempDir(), time.Unix(1, 0), nil)
	c.Check()
	if _, err := c.StartFresh("../escape", DefaultConfig().Study); err == nil {
		t.Error("expected participant ID validation error")
	}
}

func TestController_FreshSessionInfoContents(t *testing.T) {
	root := t.TempDir()
	c := newTestController(root, time.Unix(1_700_000_000, 0), nil)
	c.Check()
	study := DefaultConfig().Study
	study.DeveloperMode = true
	w, err := c.StartFresh("P007", study)
	if err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	raw, err := os.ReadFile(w.Session().Paths.SessionInfoPath)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"participant_id", "session_start_time", "application_version", "configuration", "file_structure"} {
		if _, ok := doc[key]; !ok {
			t.Errorf("SessionInfo missing %s", key)
		}
	}
	if _, ok := doc["session_end_time"]; ok {
		t.Error("session_end_time must be absent until finalize")
	}
	cfg := doc["configuration"].(map[string]any)
	if cfg["developer_mode"] != true {
		t.Errorf("configuration snapshot = %v", cfg)
	}
}
