// Package ingest decodes the newline-delimited JSON commands a headless host
// sends to the recorder on stdin and applies them to a session.
package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// Command names.
const (
	CmdAction        = "action"
	CmdResponse      = "response"
	CmdPartialText   = "partial_text"
	CmdCountdown     = "countdown"
	CmdScreen        = "screen"
	CmdSentence      = "sentence"
	CmdTaskSelection = "task_selection"
	CmdEnd           = "end"
)

// Command is one input line. Which fields apply depends on Cmd:
//
//	{"cmd":"action","action_type":"KEY_PRESS","details":"a","screen":"stroop"}
//	{"cmd":"response","prompt_index":0,"prompt_text":"...","response_text":"..."}
//	{"cmd":"partial_text","text":"...","prompt_index":1,"countdown_remaining":42}
//	{"cmd":"countdown","remaining":30,"total":60,"screen":"math_task"}
//	{"cmd":"screen","screen":"consent"}
//	{"cmd":"sentence","text":"The cat sat."}
//	{"cmd":"task_selection","selection":{"selected_task":"math","selection_mode":"random_assigned"}}
//	{"cmd":"end","screen":"poststudy"}
type Command struct {
	Cmd                string                `json:"cmd"`
	ActionType         string                `json:"action_type,omitempty"`
	Details            json.RawMessage       `json:"details,omitempty"`
	Screen             string                `json:"screen,omitempty"`
	PromptIndex        *int                  `json:"prompt_index,omitempty"`
	PromptText         string                `json:"prompt_text,omitempty"`
	ResponseText       string                `json:"response_text,omitempty"`
	Text               string                `json:"text,omitempty"`
	CountdownRemaining *float64              `json:"countdown_remaining,omitempty"`
	Remaining          *float64              `json:"remaining,omitempty"`
	Total              float64               `json:"total,omitempty"`
	Selection          *models.TaskSelection `json:"selection,omitempty"`
}

// Parse decodes a JSON value into a new T. Empty input yields the zero value.
func Parse[T any](data []byte) (*T, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		var zero T
		return &zero, nil
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing command JSON: %w", err)
	}
	return &result, nil
}

// Validate checks that the fields Cmd needs are present.
func (c Command) Validate() error {
	switch c.Cmd {
	case CmdAction:
		if c.ActionType == "" {
			return fmt.Errorf("action: action_type is required")
		}
	case CmdResponse:
		if c.PromptIndex == nil {
			return fmt.Errorf("response: prompt_index is required")
		}
		if *c.PromptIndex < 0 {
			return fmt.Errorf("response: prompt_index must not be negative")
		}
	case CmdPartialText:
		if c.PromptIndex != nil && *c.PromptIndex < 0 {
			return fmt.Errorf("partial_text: prompt_index must not be negative")
		}
	case CmdCountdown:
		if c.Remaining == nil {
			return fmt.Errorf("countdown: remaining is required")
		}
		if c.Screen == "" {
			return fmt.Errorf("countdown: screen is required")
		}
	case CmdScreen:
		if !models.Screen(c.Screen).Known() {
			return fmt.Errorf("screen: unknown screen %q", c.Screen)
		}
	case CmdSentence:
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("sentence: text is required")
		}
	case CmdTaskSelection:
		if c.Selection == nil || c.Selection.SelectedTask == "" {
			return fmt.Errorf("task_selection: selection.selected_task is required")
		}
	case CmdEnd:
	case "":
		return fmt.Errorf("cmd is required")
	default:
		return fmt.Errorf("unknown cmd %q", c.Cmd)
	}
	return nil
}

// ActionDetails converts the raw details field into a typed payload.
func (c Command) ActionDetails() models.Details {
	return models.DecodeDetails(models.ActionType(c.ActionType), c.Details)
}
