package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ActionType identifies what kind of occurrence an ActionEvent records.
type ActionType string

const (
	ActionScreenTransition       ActionType = "SCREEN_TRANSITION"
	ActionScreenDisplayed        ActionType = "SCREEN_DISPLAYED"
	ActionKeyPress               ActionType = "KEY_PRESS"
	ActionButtonPress            ActionType = "BUTTON_PRESS"
	ActionPartialTextUpdate      ActionType = "PARTIAL_TEXT_UPDATE"
	ActionCountdownState         ActionType = "COUNTDOWN_STATE"
	ActionSentenceCompleted      ActionType = "SENTENCE_COMPLETED"
	ActionParticipantIDSubmitted ActionType = "PARTICIPANT_ID_SUBMITTED"
	ActionTaskAssignment         ActionType = "TASK_ASSIGNMENT"
	ActionApplicationReopened    ActionType = "APPLICATION_REOPENED"
	ActionSessionResumed         ActionType = "SESSION_RESUMED"
	ActionRecoveryWarning        ActionType = "RECOVERY_WARNING"
	ActionApplicationCrash       ActionType = "APPLICATION_CRASH"
	ActionApplicationExit        ActionType = "APPLICATION_EXIT"
)

// IsScreenChange reports whether the action marks the participant arriving
// on a screen.
func (t ActionType) IsScreenChange() bool {
	return t == ActionScreenTransition || t == ActionScreenDisplayed
}

// Droppable reports whether events of this type may be discarded by the
// writer under sustained backpressure. Only high-frequency snapshots of
// in-progress text qualify; a later snapshot supersedes an earlier one.
func (t ActionType) Droppable() bool {
	return t == ActionPartialTextUpdate
}

// Details is the payload of an ActionEvent. The concrete type is selected by
// the event's action_type when decoding:
//
//	PARTIAL_TEXT_UPDATE  PartialTextDetails
//	COUNTDOWN_STATE      CountdownStateDetails
//	SENTENCE_COMPLETED   SentenceDetails
//	any type, string     TextDetails
//	anything else        RawDetails
type Details interface {
	isDetails()
}

// TextDetails is a free-form string payload.
type TextDetails string

// PartialTextDetails is a snapshot of the descriptive task text box.
type PartialTextDetails struct {
	TextContent        string   `json:"text_content"`
	TextLength         int      `json:"text_length"`
	WordCount          int      `json:"word_count"`
	CurrentPromptIndex int      `json:"current_prompt_index"`
	CountdownRemaining *float64 `json:"countdown_remaining"`
}

// CountdownStateDetails is a periodic countdown timer snapshot.
type CountdownStateDetails struct {
	RemainingSeconds   float64 `json:"remaining_seconds"`
	TotalSeconds       float64 `json:"total_seconds"`
	PercentageComplete float64 `json:"percentage_complete"`
}

// SentenceDetails records a sentence finished in the descriptive task.
type SentenceDetails struct {
	Sentence       string `json:"sentence"`
	WordCount      int    `json:"word_count"`
	CharacterCount int    `json:"character_count"`
}

// RawDetails holds any structured payload without a dedicated type. It is
// re-emitted byte for byte.
type RawDetails json.RawMessage

func (TextDetails) isDetails()           {}
func (PartialTextDetails) isDetails()    {}
func (CountdownStateDetails) isDetails() {}
func (SentenceDetails) isDetails()       {}
func (RawDetails) isDetails()            {}

// NewPartialTextDetails builds a partial text snapshot with derived counts.
func NewPartialTextDetails(text string, countdownRemaining *float64, promptIndex int) PartialTextDetails {
	return PartialTextDetails{
		TextContent:        text,
		TextLength:         utf8.RuneCountInString(text),
		WordCount:          WordCount(text),
		CurrentPromptIndex: promptIndex,
		CountdownRemaining: countdownRemaining,
	}
}

// NewCountdownStateDetails builds a countdown snapshot. Percentage is 0 when
// total is not positive.
func NewCountdownStateDetails(remaining, total float64) CountdownStateDetails {
	pct := 0.0
	if total > 0 {
		pct = (total - remaining) / total * 100
	}
	return CountdownStateDetails{
		RemainingSeconds:   remaining,
		TotalSeconds:       total,
		PercentageComplete: pct,
	}
}

// NewSentenceDetails builds a sentence payload from untrimmed input.
func NewSentenceDetails(sentence string) SentenceDetails {
	s := strings.TrimSpace(sentence)
	return SentenceDetails{
		Sentence:       s,
		WordCount:      WordCount(s),
		CharacterCount: utf8.RuneCountInString(s),
	}
}

// WordCount counts whitespace-separated words.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// ActionEvent is one line of the actions log.
type ActionEvent struct {
	Timestamp              EventTime  `json:"timestamp"`
	ParticipantID          string     `json:"participant_id"`
	ActionType             ActionType `json:"action_type"`
	Details                Details    `json:"details"`
	Screen                 string     `json:"screen"`
	SessionDurationSeconds float64    `json:"session_duration_seconds"`
}

type actionWire struct {
	Timestamp              EventTime       `json:"timestamp"`
	ParticipantID          string          `json:"participant_id"`
	ActionType             ActionType      `json:"action_type"`
	Details                json.RawMessage `json:"details"`
	Screen                 string          `json:"screen"`
	SessionDurationSeconds float64         `json:"session_duration_seconds"`
}

// MarshalJSON encodes the event with its details payload inlined.
func (e ActionEvent) MarshalJSON() ([]byte, error) {
	raw, err := MarshalDetails(e.Details)
	if err != nil {
		return nil, err
	}
	return json.Marshal(actionWire{
		Timestamp:              e.Timestamp,
		ParticipantID:          e.ParticipantID,
		ActionType:             e.ActionType,
		Details:                raw,
		Screen:                 e.Screen,
		SessionDurationSeconds: e.SessionDurationSeconds,
	})
}

// UnmarshalJSON decodes the event, selecting the details type from
// action_type.
func (e *ActionEvent) UnmarshalJSON(data []byte) error {
	var w actionWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*e = ActionEvent{
		Timestamp:              w.Timestamp,
		ParticipantID:          w.ParticipantID,
		ActionType:             w.ActionType,
		Details:                DecodeDetails(w.ActionType, w.Details),
		Screen:                 w.Screen,
		SessionDurationSeconds: w.SessionDurationSeconds,
	}
	return nil
}

// MarshalDetails encodes a details payload. A nil payload is written as an
// empty string.
func MarshalDetails(d Details) ([]byte, error) {
	switch v := d.(type) {
	case nil:
		return []byte(`""`), nil
	case RawDetails:
		if len(v) == 0 {
			return []byte("null"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("raw details are not valid JSON")
		}
		return []byte(v), nil
	default:
		return json.Marshal(v)
	}
}

// DecodeDetails turns a raw details payload into its typed form. It never
// fails: payloads that do not match the expected shape are kept as
// RawDetails so they survive a rewrite unchanged.
func DecodeDetails(t ActionType, raw json.RawMessage) Details {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return TextDetails(s)
		}
	}
	if trimmed[0] == '{' {
		switch t {
		case ActionPartialTextUpdate:
			var d PartialTextDetails
			if decodeStrict(trimmed, &d) == nil {
				return d
			}
		case ActionCountdownState:
			var d CountdownStateDetails
			if decodeStrict(trimmed, &d) == nil {
				return d
			}
		case ActionSentenceCompleted:
			var d SentenceDetails
			if decodeStrict(trimmed, &d) == nil {
				return d
			}
		}
	}
	cp := make([]byte, len(trimmed))
	copy(cp, trimmed)
	return RawDetails(cp)
}

func decodeStrict(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

// Text returns the details as plain text, or "" for structured payloads.
func (e ActionEvent) Text() string {
	if s, ok := e.Details.(TextDetails); ok {
		return string(s)
	}
	return ""
}

// PartialText returns the partial text snapshot carried by the event. Legacy
// logs that stored the snapshot as a JSON-encoded string are accepted too, as
// are objects with extra keys.
func (e ActionEvent) PartialText() (PartialTextDetails, bool) {
	if e.ActionType != ActionPartialTextUpdate {
		return PartialTextDetails{}, false
	}
	switch d := e.Details.(type) {
	case PartialTextDetails:
		return d, true
	case TextDetails:
		var p PartialTextDetails
		if err := json.Unmarshal([]byte(d), &p); err == nil {
			return p, true
		}
	case RawDetails:
		var p PartialTextDetails
		if decodeLenient(d, "text_content", &p) {
			return p, true
		}
	}
	return PartialTextDetails{}, false
}

// CountdownState returns the countdown snapshot carried by the event. Older
// logs stored it as a JSON-encoded string; both forms decode, and so do
// objects with extra keys.
func (e ActionEvent) CountdownState() (CountdownStateDetails, bool) {
	if e.ActionType != ActionCountdownState {
		return CountdownStateDetails{}, false
	}
	switch d := e.Details.(type) {
	case CountdownStateDetails:
		return d, true
	case TextDetails:
		var c CountdownStateDetails
		if err := json.Unmarshal([]byte(d), &c); err == nil {
			return c, true
		}
	case RawDetails:
		var c CountdownStateDetails
		if decodeLenient(d, "remaining_seconds", &c) {
			return c, true
		}
	}
	return CountdownStateDetails{}, false
}

// decodeLenient decodes an object that carries at least the required key,
// ignoring keys target does not know.
func decodeLenient(raw RawDetails, required string, target any) bool {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return false
	}
	if _, ok := keys[required]; !ok {
		return false
	}
	return json.Unmarshal(raw, target) == nil
}
