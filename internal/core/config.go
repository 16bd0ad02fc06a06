// Package core contains the recording and recovery logic: configuration,
// replay of interrupted sessions, the recovery decision state machine and
// the recorder facade screens log through.
package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// ConfigFileName is the YAML configuration file in the base path.
const ConfigFileName = ".molyconfig"

// ConfigurationManager loads and validates the recorder configuration.
type ConfigurationManager interface {
	LoadConfig() (*models.AppConfig, error)
	ValidateConfig(cfg *models.AppConfig) error
	// LogsRoot returns the absolute logs root for cfg.
	LogsRoot(cfg *models.AppConfig) string
	// WriteDefaultConfig creates .molyconfig with default values. It refuses
	// to replace an existing file unless force is set.
	WriteDefaultConfig(force bool) (string, error)
}

type viperConfigManager struct {
	basePath string
}

// NewConfigurationManager creates a ConfigurationManager that reads
// .molyconfig from basePath.
func NewConfigurationManager(basePath string) ConfigurationManager {
	return &viperConfigManager{basePath: basePath}
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *models.AppConfig {
	return &models.AppConfig{
		LogsRoot:           "logs",
		ApplicationVersion: "1.0",
		Study: models.StudyConfig{
			DeveloperMode:               false,
			FocusMode:                   true,
			DescriptiveLineLogging:      true,
			CountdownEnabled:            true,
			DescriptiveCountdownMinutes: 1,
			StroopCountdownMinutes:      3,
			MathCountdownMinutes:        1,
			RelaxationCountdownMinutes:  1,
			TaskSelectionMode:           "random_assigned",
			DescriptivePromptCount:      2,
		},
		Writer: models.WriterConfig{
			QueueSize:     256,
			SyncEachWrite: true,
		},
		Alerts: models.AlertConfig{
			StaleIncompleteDays:   7,
			MaxDroppedEvents:      50,
			MaxUnreadableSessions: 0,
		},
	}
}

// LoadConfig reads .molyconfig. A missing file yields the defaults; keys
// absent from the file keep their default values.
func (cm *viperConfigManager) LoadConfig() (*models.AppConfig, error) {
	def := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	if path := filepath.Join(cm.basePath, ConfigFileName); fileExists(path) {
		v.SetConfigFile(path)
	} else {
		// Also accepts .molyconfig.yaml and friends.
		v.SetConfigName(ConfigFileName)
		v.AddConfigPath(cm.basePath)
	}

	v.SetDefault("logs_root", def.LogsRoot)
	v.SetDefault("application_version", def.ApplicationVersion)
	v.SetDefault("study.developer_mode", def.Study.DeveloperMode)
	v.SetDefault("study.focus_mode", def.Study.FocusMode)
	v.SetDefault("study.descriptive_line_logging", def.Study.DescriptiveLineLogging)
	v.SetDefault("study.countdown_enabled", def.Study.CountdownEnabled)
	v.SetDefault("study.descriptive_countdown_minutes", def.Study.DescriptiveCountdownMinutes)
	v.SetDefault("study.stroop_countdown_minutes", def.Study.StroopCountdownMinutes)
	v.SetDefault("study.math_countdown_minutes", def.Study.MathCountdownMinutes)
	v.SetDefault("study.relaxation_countdown_minutes", def.Study.RelaxationCountdownMinutes)
	v.SetDefault("study.task_selection_mode", def.Study.TaskSelectionMode)
	v.SetDefault("study.descriptive_prompt_count", def.Study.DescriptivePromptCount)
	v.SetDefault("writer.queue_size", def.Writer.QueueSize)
	v.SetDefault("writer.sync_each_write", def.Writer.SyncEachWrite)
	v.SetDefault("alerts.stale_incomplete_days", def.Alerts.StaleIncompleteDays)
	v.SetDefault("alerts.max_dropped_events", def.Alerts.MaxDroppedEvents)
	v.SetDefault("alerts.max_unreadable_sessions", def.Alerts.MaxUnreadableSessions)
	v.SetDefault("notifications.enabled", def.Notifications.Enabled)
	v.SetDefault("notifications.slack.webhook_url", def.Notifications.Slack.WebhookURL)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading %s: %w", ConfigFileName, err)
		}
	}

	var cfg models.AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ConfigFileName, err)
	}
	return &cfg, nil
}

// ValidateConfig rejects values the recorder cannot work with.
func (cm *viperConfigManager) ValidateConfig(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}
	if strings.TrimSpace(cfg.LogsRoot) == "" {
		return fmt.Errorf("logs_root must not be empty")
	}
	if cfg.Writer.QueueSize < 1 {
		return fmt.Errorf("writer.queue_size must be at least 1, got %d", cfg.Writer.QueueSize)
	}
	minutes := map[string]int{
		"study.descriptive_countdown_minutes": cfg.Study.DescriptiveCountdownMinutes,
		"study.stroop_countdown_minutes":      cfg.Study.StroopCountdownMinutes,
		"study.math_countdown_minutes":        cfg.Study.MathCountdownMinutes,
		"study.relaxation_countdown_minutes":  cfg.Study.RelaxationCountdownMinutes,
	}
	for key, val := range minutes {
		if val < 0 {
			return fmt.Errorf("%s must not be negative, got %d", key, val)
		}
	}
	if cfg.Study.DescriptivePromptCount < 0 {
		return fmt.Errorf("study.descriptive_prompt_count must not be negative, got %d", cfg.Study.DescriptivePromptCount)
	}
	if cfg.Alerts.StaleIncompleteDays < 0 || cfg.Alerts.MaxDroppedEvents < 0 || cfg.Alerts.MaxUnreadableSessions < 0 {
		return fmt.Errorf("alert thresholds must not be negative")
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL == "" {
		return fmt.Errorf("notifications.enabled requires notifications.slack.webhook_url")
	}
	return nil
}

func (cm *viperConfigManager) LogsRoot(cfg *models.AppConfig) string {
	root := cfg.LogsRoot
	if root == "" {
		root = DefaultConfig().LogsRoot
	}
	if filepath.IsAbs(root) {
		return root
	}
	return filepath.Join(cm.basePath, root)
}

func (cm *viperConfigManager) WriteDefaultConfig(force bool) (string, error) {
	path := filepath.Join(cm.basePath, ConfigFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return path, fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
