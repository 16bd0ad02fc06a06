package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

func TestReadActions_SkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "actions_1.jsonl")
	content := strings.Join([]string{
		`{"timestamp":{"local":"","utc":"","unix":1},"participant_id":"P1","action_type":"SCREEN_TRANSITION","details":"Transitioning to stroop","screen":"stroop","session_duration_seconds":1}`,
		`{"timestamp":{"local":"","utc":"","unix":2},"participant_id":"P1","action_type":"KEY_PR`,
		``,
		`not json at all`,
		`{"participant_id":"P1"}`,
		`{"timestamp":{"local":"","utc":"","unix":3},"participant_id":"P1","action_type":"COUNTDOWN_STATE","details":{"remaining_seconds":30,"total_seconds":180,"percentage_complete":83.3},"screen":"stroop","session_duration_seconds":3}`,
		`{"timestamp":{"local":"","utc":"","unix":4},"participant_id":"P1","action_type":"KEY_PRESS","details":"x","screen":"stroop"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var got []models.ActionEvent
	stats, err := ReadActions(path, func(ev models.ActionEvent) { got = append(got, ev) })
	if err != nil {
		t.Fatalf("ReadActions: %v", err)
	}
	if stats.Parsed != 2 || stats.Skipped != 4 {
		t.Errorf("stats = %+v, want 2 parsed / 4 skipped", stats)
	}
	if len(got) != 2 || got[0].ActionType != models.ActionScreenTransition {
		t.Fatalf("unexpected events: %+v", got)
	}
	cd, ok := got[1].CountdownState()
	if !ok || cd.RemainingSeconds != 30 || cd.TotalSeconds != 180 {
		t.Errorf("countdown details = %+v, %v", cd, ok)
	}
}

func TestReadResponses_MissingFileIsEmpty(t *testing.T) {
	stats, err := ReadResponses(filepath.Join(t.TempDir(), "nope.jsonl"), func(models.ResponseEvent) {
		t.Error("callback should not run")
	})
	if err != nil {
		t.Fatalf("missing file should read as empty: %v", err)
	}
	if stats != (LineStats{}) {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReadResponses_RequiresPromptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptive_responses_1.jsonl")
	content := `{"prompt_index":0,"prompt_text":"a","response_text":"b"}
{"prompt_text":"no index"}
{"prompt_index":"one"}
{"prompt_index":1,"prompt_text":"c","response_text":"d"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	var idx []int
	stats, err := ReadResponses(path, func(ev models.ResponseEvent) { idx = append(idx, ev.PromptIndex) })
	if err != nil {
		t.Fatal(err)
	}
	if stats.Parsed != 2 || stats.Skipped != 2 {
		t.Errorf("stats = %+v", stats)
	}
	if len(idx) != 2 || idx[0] != 0 || idx[1] != 1 {
		t.Errorf("indices = %v", idx)
	}
}
