package models

// StudyConfig holds the study settings that are copied into every
// SessionInfo for audit.
type StudyConfig struct {
	DeveloperMode               bool   `yaml:"developer_mode" mapstructure:"developer_mode"`
	FocusMode                   bool   `yaml:"focus_mode" mapstructure:"focus_mode"`
	DescriptiveLineLogging      bool   `yaml:"descriptive_line_logging" mapstructure:"descriptive_line_logging"`
	CountdownEnabled            bool   `yaml:"countdown_enabled" mapstructure:"countdown_enabled"`
	DescriptiveCountdownMinutes int    `yaml:"descriptive_countdown_minutes" mapstructure:"descriptive_countdown_minutes"`
	StroopCountdownMinutes      int    `yaml:"stroop_countdown_minutes" mapstructure:"stroop_countdown_minutes"`
	MathCountdownMinutes        int    `yaml:"math_countdown_minutes" mapstructure:"math_countdown_minutes"`
	RelaxationCountdownMinutes  int    `yaml:"relaxation_countdown_minutes" mapstructure:"relaxation_countdown_minutes"`
	TaskSelectionMode           string `yaml:"task_selection_mode" mapstructure:"task_selection_mode"`
	DescriptivePromptCount      int    `yaml:"descriptive_prompt_count" mapstructure:"descriptive_prompt_count"`
}

// Snapshot flattens the study settings into the configuration mapping
// written to SessionInfo.
func (c StudyConfig) Snapshot() map[string]any {
	return map[string]any{
		"developer_mode":                c.DeveloperMode,
		"focus_mode":                    c.FocusMode,
		"descriptive_line_logging":      c.DescriptiveLineLogging,
		"countdown_enabled":             c.CountdownEnabled,
		"descriptive_countdown_minutes": c.DescriptiveCountdownMinutes,
		"stroop_countdown_minutes":      c.StroopCountdownMinutes,
		"math_countdown_minutes":        c.MathCountdownMinutes,
		"relaxation_countdown_minutes":  c.RelaxationCountdownMinutes,
		"task_selection_mode":           c.TaskSelectionMode,
		"descriptive_prompt_count":      c.DescriptivePromptCount,
	}
}

// WriterConfig tunes the durable log writer.
type WriterConfig struct {
	QueueSize     int  `yaml:"queue_size" mapstructure:"queue_size"`
	SyncEachWrite bool `yaml:"sync_each_write" mapstructure:"sync_each_write"`
}

// AlertConfig holds thresholds for operational alerts.
type AlertConfig struct {
	StaleIncompleteDays   int `yaml:"stale_incomplete_days" mapstructure:"stale_incomplete_days"`
	MaxDroppedEvents      int `yaml:"max_dropped_events" mapstructure:"max_dropped_events"`
	MaxUnreadableSessions int `yaml:"max_unreadable_sessions" mapstructure:"max_unreadable_sessions"`
}

// SlackConfig holds the Slack webhook used for alert notifications.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// NotificationConfig controls whether alerts are pushed anywhere.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled" mapstructure:"enabled"`
	Slack   SlackConfig `yaml:"slack" mapstructure:"slack"`
}

// AppConfig is the full contents of .molyconfig.
type AppConfig struct {
	LogsRoot           string             `yaml:"logs_root" mapstructure:"logs_root"`
	ApplicationVersion string             `yaml:"application_version" mapstructure:"application_version"`
	Study              StudyConfig        `yaml:"study" mapstructure:"study"`
	Writer             WriterConfig       `yaml:"writer" mapstructure:"writer"`
	Alerts             AlertConfig        `yaml:"alerts" mapstructure:"alerts"`
	Notifications      NotificationConfig `yaml:"notifications" mapstructure:"notifications"`
}
