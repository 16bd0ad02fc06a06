package models

// Screen names a step of the study workflow. The values match the screen
// field written into the actions log.
type Screen string

const (
	ScreenNone               Screen = ""
	ScreenParticipantID      Screen = "participant_id"
	ScreenPrestudy           Screen = "prestudy"
	ScreenConsent            Screen = "consent"
	ScreenRelaxation         Screen = "relaxation"
	ScreenDescriptiveTask    Screen = "descriptive_task"
	ScreenStroop             Screen = "stroop"
	ScreenMathTask           Screen = "math_task"
	ScreenContentPerformance Screen = "content_performance"
	ScreenTaskSelection      Screen = "task_selection"
	ScreenPostStudyRest      Screen = "post_study_rest"
	ScreenPoststudy          Screen = "poststudy"

	// ScreenRecovery is only used as the screen of the audit events written
	// when a session is resumed.
	ScreenRecovery Screen = "recovery"
)

// Workflow lists the study screens in the order a participant moves through
// them. ScreenTaskSelection is only shown in self_selection mode.
var Workflow = []Screen{
	ScreenParticipantID,
	ScreenPrestudy,
	ScreenConsent,
	ScreenRelaxation,
	ScreenDescriptiveTask,
	ScreenStroop,
	ScreenMathTask,
	ScreenContentPerformance,
	ScreenTaskSelection,
	ScreenPostStudyRest,
	ScreenPoststudy,
}

var knownScreens = map[Screen]bool{
	ScreenParticipantID:      true,
	ScreenPrestudy:           true,
	ScreenConsent:            true,
	ScreenRelaxation:         true,
	ScreenDescriptiveTask:    true,
	ScreenStroop:             true,
	ScreenMathTask:           true,
	ScreenContentPerformance: true,
	ScreenTaskSelection:      true,
	ScreenPostStudyRest:      true,
	ScreenPoststudy:          true,
}

// countdownConfigKeys maps screens with a timer to the configuration key
// holding its length in minutes.
var countdownConfigKeys = map[Screen]string{
	ScreenDescriptiveTask: "descriptive_countdown_minutes",
	ScreenStroop:          "stroop_countdown_minutes",
	ScreenMathTask:        "math_countdown_minutes",
	ScreenRelaxation:      "relaxation_countdown_minutes",
}

// Known reports whether s is a workflow screen a session can resume on.
func (s Screen) Known() bool {
	return knownScreens[s]
}

// HasCountdown reports whether the screen runs a countdown timer.
func (s Screen) HasCountdown() bool {
	_, ok := countdownConfigKeys[s]
	return ok
}

// CountdownConfigKey returns the configuration key for the screen's timer
// length, or "" if the screen has none.
func (s Screen) CountdownConfigKey() string {
	return countdownConfigKeys[s]
}

// RecoveryState is the result of replaying an interrupted session.
type RecoveryState struct {
	ParticipantID          string      `json:"participant_id"`
	ResumeScreen           Screen      `json:"resume_screen"`
	OriginalSessionStart   SessionTime `json:"original_session_start"`
	PromptIndex            int         `json:"prompt_index"`
	CompletedResponseCount int         `json:"completed_response_count"`
	CompletedPrompts       []int       `json:"completed_prompts"`
	PartialText            string      `json:"partial_text"`
	PartialTextWordCount   int         `json:"partial_text_word_count"`

	CountdownRemainingSeconds *float64 `json:"countdown_remaining_seconds,omitempty"`
	CountdownTotalSeconds     *float64 `json:"countdown_total_seconds,omitempty"`

	TargetFilePaths SessionPaths   `json:"target_file_paths"`
	Configuration   map[string]any `json:"configuration,omitempty"`

	// LastEventUnix is the newest timestamp found in either log.
	LastEventUnix float64 `json:"last_event_unix,omitempty"`

	ActionCount          int `json:"action_count"`
	SkippedActionLines   int `json:"skipped_action_lines"`
	SkippedResponseLines int `json:"skipped_response_lines"`
}

// Found reports whether the state describes an actual interrupted session.
func (r *RecoveryState) Found() bool {
	return r != nil && r.ResumeScreen != ScreenNone
}
