package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestActionEvent_DecodeDetailsByType(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Details
	}{
		{
			name: "plain text",
			line: `{"action_type":"KEY_PRESS","details":"a","screen":"stroop"}`,
			want: TextDetails("a"),
		},
		{
			name: "partial text",
			line: `{"action_type":"PARTIAL_TEXT_UPDATE","details":{"text_content":"hi there","text_length":8,"word_count":2,"current_prompt_index":1,"countdown_remaining":null}}`,
			want: PartialTextDetails{TextContent: "hi there", TextLength: 8, WordCount: 2, CurrentPromptIndex: 1},
		},
		{
			name: "countdown",
			line: `{"action_type":"COUNTDOWN_STATE","details":{"remaining_seconds":30,"total_seconds":60,"percentage_complete":50}}`,
			want: CountdownStateDetails{RemainingSeconds: 30, TotalSeconds: 60, PercentageComplete: 50},
		},
		{
			name: "sentence",
			line: `{"action_type":"SENTENCE_COMPLETED","details":{"sentence":"Hi.","word_count":1,"character_count":3}}`,
			want: SentenceDetails{Sentence: "Hi.", WordCount: 1, CharacterCount: 3},
		},
		{
			name: "missing details",
			line: `{"action_type":"BUTTON_PRESS"}`,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev ActionEvent
			if err := json.Unmarshal([]byte(tt.line), &ev); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			got, _ := json.Marshal(ev.Details)
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Errorf("details = %s, want %s", got, want)
			}
		})
	}
}

func TestActionEvent_UnknownShapesStayRaw(t *testing.T) {
	line := `{"action_type":"COUNTDOWN_STATE","details":{"remaining_seconds":3,"extra":true},"screen":"stroop"}`
	var ev ActionEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.Details.(RawDetails); !ok {
		t.Fatalf("details = %T, want RawDetails", ev.Details)
	}
	if c, ok := ev.CountdownState(); !ok || c.RemainingSeconds != 3 {
		t.Errorf("CountdownState() = %+v, %v; extra keys must not hide the snapshot", c, ok)
	}
	out, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"details":{"remaining_seconds":3,"extra":true}`) {
		t.Errorf("raw details not preserved: %s", out)
	}
}

func TestActionEvent_RawDetailsAccessors(t *testing.T) {
	line := `{"action_type":"PARTIAL_TEXT_UPDATE","details":{"text_content":"half a draft","word_count":3,"current_prompt_index":1,"countdown_remaining":44,"cursor":5},"screen":"descriptive_task"}`
	var ev ActionEvent
	if err := json.Unmarshal([]byte(line), &ev); err != nil {
		t.Fatal(err)
	}
	if _, ok := ev.Details.(RawDetails); !ok {
		t.Fatalf("details = %T, want RawDetails", ev.Details)
	}
	p, ok := ev.PartialText()
	if !ok || p.TextContent != "half a draft" || p.CurrentPromptIndex != 1 || p.CountdownRemaining == nil || *p.CountdownRemaining != 44 {
		t.Errorf("PartialText() = %+v, %v", p, ok)
	}

	tests := []struct {
		name string
		ev   ActionEvent
	}{
		{"partial without text_content", ActionEvent{ActionType: ActionPartialTextUpdate, Details: RawDetails(`{"cursor":5}`)}},
		{"countdown without remaining_seconds", ActionEvent{ActionType: ActionCountdownState, Details: RawDetails(`{"total_seconds":60}`)}},
		{"raw array", ActionEvent{ActionType: ActionCountdownState, Details: RawDetails(`[1,2]`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, okP := tt.ev.PartialText()
			_, okC := tt.ev.CountdownState()
			if okP || okC {
				t.Errorf("accessors accepted %s", tt.ev.Details)
			}
		})
	}
}

func TestActionEvent_LegacyStringPayloads(t *testing.T) {
	partial := ActionEvent{
		ActionType: ActionPartialTextUpdate,
		Details:    TextDetails(`{"text_content":"old format","current_prompt_index":2}`),
	}
	p, ok := partial.PartialText()
	if !ok || p.TextContent != "old format" || p.CurrentPromptIndex != 2 {
		t.Errorf("PartialText() = %+v, %v", p, ok)
	}

	countdown := ActionEvent{
		ActionType: ActionCountdownState,
		Details:    TextDetails(`{"remaining_seconds":12.5,"total_seconds":60}`),
	}
	c, ok := countdown.CountdownState()
	if !ok || c.RemainingSeconds != 12.5 || c.TotalSeconds != 60 {
		t.Errorf("CountdownState() = %+v, %v", c, ok)
	}

	if _, ok := (ActionEvent{ActionType: ActionKeyPress, Details: TextDetails("{}")}).PartialText(); ok {
		t.Error("PartialText on a KEY_PRESS should be false")
	}
}

func TestMarshalDetails(t *testing.T) {
	if b, _ := MarshalDetails(nil); string(b) != `""` {
		t.Errorf("nil details = %s", b)
	}
	if b, _ := MarshalDetails(RawDetails(nil)); string(b) != "null" {
		t.Errorf("empty raw = %s", b)
	}
	if _, err := MarshalDetails(RawDetails("{bad")); err == nil {
		t.Error("invalid raw JSON should be rejected")
	}
}

func TestDetailsConstructors(t *testing.T) {
	rem := 42.0
	p := NewPartialTextDetails("héllo  wörld ", &rem, 1)
	if p.TextLength != 13 || p.WordCount != 2 || *p.CountdownRemaining != 42 {
		t.Errorf("partial = %+v", p)
	}

	c := NewCountdownStateDetails(15, 60)
	if c.PercentageComplete != 75 {
		t.Errorf("percentage = %v", c.PercentageComplete)
	}
	if NewCountdownStateDetails(5, 0).PercentageComplete != 0 {
		t.Error("zero total should give 0 percent")
	}

	s := NewSentenceDetails("  The cat sat.  ")
	if s.Sentence != "The cat sat." || s.WordCount != 3 || s.CharacterCount != 12 {
		t.Errorf("sentence = %+v", s)
	}

	r := NewResponseEvent(0, "p", "two words")
	if r.WordCount != 2 || r.CharacterCount != 9 {
		t.Errorf("response = %+v", r)
	}
}

func TestTimestamps_MillisecondPrecision(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 891_234_567, time.UTC)
	et := NewEventTime(ts)
	if et.Unix != float64(ts.UnixMilli())/1000 {
		t.Errorf("unix = %v", et.Unix)
	}
	if et.UTC != "2025-03-04 05:06:07.891" {
		t.Errorf("utc = %q", et.UTC)
	}
	if got := et.Time(); !got.Equal(ts.Truncate(time.Millisecond)) {
		t.Errorf("Time() = %v, want %v", got, ts.Truncate(time.Millisecond))
	}
	st := NewSessionTime(ts)
	if st.UnixTimestamp != et.Unix || !st.Time().Equal(et.Time()) {
		t.Errorf("session time = %+v", st)
	}
}
