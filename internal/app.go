// Package internal provides the App struct that wires all components of the
// recorder together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/moly-recorder/internal/cli"
	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/observability"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// HomeEnvVar overrides the base path lookup.
const HomeEnvVar = "MOLY_HOME"

// App holds all service dependencies of the recorder.
type App struct {
	BasePath string
	LogsRoot string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.AppConfig

	// Recovery services
	Scanner       core.SessionScanner
	Reconstructor core.StateReconstructor
	WriterOptions []storage.WriterOption

	// Observability
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier

	events core.EventLogger
}

// NewApp creates and wires all components. basePath is the directory holding
// .molyconfig; the logs root is resolved relative to it.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	cfg, err := app.ConfigMgr.LoadConfig()
	if err != nil {
		// Non-fatal: an unreadable config file behaves like a missing one.
		cfg = core.DefaultConfig()
	}
	if err := app.ConfigMgr.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", core.ConfigFileName, err)
	}
	app.Config = cfg
	app.LogsRoot = app.ConfigMgr.LogsRoot(cfg)

	// --- Observability ---
	app.EventLog, err = observability.NewJSONLEventLog(observability.EventLogPath(app.LogsRoot))
	if err != nil {
		// Non-fatal: disable observability if log can't be created.
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.events = &eventLogAdapter{log: app.EventLog}
		app.AlertEngine = observability.NewAlertEngine(app.EventLog, storage.Scan, app.LogsRoot, observability.ThresholdsFromConfig(cfg.Alerts))
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}
	if cfg.Notifications.Enabled && cfg.Notifications.Slack.WebhookURL != "" {
		app.Notifier = observability.NewSlackNotifier(cfg.Notifications.Slack.WebhookURL)
	}

	// --- Recovery services ---
	app.Scanner = core.DefaultScanner
	app.Reconstructor = core.NewStateReconstructor(app.events)
	app.WriterOptions = []storage.WriterOption{
		storage.WithQueueSize(cfg.Writer.QueueSize),
		storage.WithSyncEachWrite(cfg.Writer.SyncEachWrite),
	}
	if app.events != nil {
		app.WriterOptions = append(app.WriterOptions,
			storage.WithErrorHandler(app.logWriterError),
			storage.WithDropHandler(app.logDropped),
		)
	}

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.LogsRoot = app.LogsRoot
	cli.AppConfig = cfg
	cli.ConfigMgr = app.ConfigMgr
	cli.Scanner = app.Scanner
	cli.Reconstructor = app.Reconstructor
	cli.WriterOptions = app.WriterOptions
	cli.LockLogsRoot = app.LockLogsRoot
	cli.NewRecorder = app.NewRecorder

	cli.EventLog = app.EventLog
	cli.AlertEngine = app.AlertEngine
	cli.MetricsCalc = app.MetricsCalc
	cli.Notifier = app.Notifier

	return app, nil
}

// LockLogsRoot takes the single-instance lock on the logs root.
func (a *App) LockLogsRoot() (*storage.InstanceLock, error) {
	return storage.AcquireInstanceLock(a.LogsRoot)
}

// NewRecorder builds a recovery controller and recorder for one process run.
func (a *App) NewRecorder(instanceID string) core.Recorder {
	controller := core.NewRecoveryController(core.ControllerOptions{
		LogsRoot:           a.LogsRoot,
		ApplicationVersion: a.Config.ApplicationVersion,
		Study:              a.Config.Study,
		InstanceID:         instanceID,
		Scanner:            a.Scanner,
		Reconstructor:      a.Reconstructor,
		WriterOptions:      a.WriterOptions,
		EventLogger:        a.events,
	})
	return core.NewRecorder(controller, a.Config.Study, a.events)
}

func (a *App) logWriterError(err error) {
	_ = a.events.LogEvent("writer.error", map[string]any{"error": err.Error()}) // Non-fatal.
}

func (a *App) logDropped(ev models.ActionEvent) {
	_ = a.events.LogEvent("writer.dropped", map[string]any{
		"action_type": string(ev.ActionType),
		"screen":      ev.Screen,
	})
}

// Close releases resources held by the App, such as the event log file handle.
// It is safe to call Close on an App whose EventLog is nil.
func (a *App) Close() error {
	if a.EventLog != nil {
		return a.EventLog.Close()
	}
	return nil
}

// ResolveBasePath determines the directory holding .molyconfig.
// It checks MOLY_HOME, then walks up from the current directory, then falls
// back to the current directory.
func ResolveBasePath() string {
	if home := os.Getenv(HomeEnvVar); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}

// eventLogAdapter adapts observability.EventLog to core.EventLogger.
type eventLogAdapter struct {
	log observability.EventLog
}

func (a *eventLogAdapter) LogEvent(eventType string, data map[string]any) error {
	return a.log.Write(observability.NewEvent(eventType, data))
}
