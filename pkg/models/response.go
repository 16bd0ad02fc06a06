package models

import "unicode/utf8"

// ResponseEvent is one line of the descriptive responses log. PromptIndex is
// 0-based.
type ResponseEvent struct {
	Timestamp              EventTime `json:"timestamp"`
	ParticipantID          string    `json:"participant_id"`
	PromptIndex            int       `json:"prompt_index"`
	PromptText             string    `json:"prompt_text"`
	ResponseText           string    `json:"response_text"`
	WordCount              int       `json:"word_count"`
	CharacterCount         int       `json:"character_count"`
	SessionDurationSeconds float64   `json:"session_duration_seconds"`
}

// NewResponseEvent builds a response with derived counts. Timestamp, participant
// and duration are stamped by the writer.
func NewResponseEvent(promptIndex int, promptText, responseText string) ResponseEvent {
	return ResponseEvent{
		PromptIndex:    promptIndex,
		PromptText:     promptText,
		ResponseText:   responseText,
		WordCount:      WordCount(responseText),
		CharacterCount: utf8.RuneCountInString(responseText),
	}
}
