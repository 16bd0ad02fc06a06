package cli

import (
	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/observability"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// Configuration and recording services, set during app initialization in
// app.go.
var (
	BasePath  string
	LogsRoot  string
	AppConfig *models.AppConfig
	ConfigMgr core.ConfigurationManager

	Scanner       core.SessionScanner
	Reconstructor core.StateReconstructor

	// LockLogsRoot takes the single-instance lock on the logs root. Every
	// command that writes session files holds it for its whole run.
	LockLogsRoot func() (*storage.InstanceLock, error)

	// NewRecorder builds a recorder whose controller records instanceID in
	// its events. Callers must hold the instance lock.
	NewRecorder func(instanceID string) core.Recorder

	// WriterOptions are used for writers opened outside a recorder.
	WriterOptions []storage.WriterOption
)

// Observability service instances, set during app initialization in app.go.
var (
	EventLog    observability.EventLog
	AlertEngine observability.AlertEngine
	MetricsCalc observability.MetricsCalculator
	Notifier    observability.Notifier
)

// studyConfig returns the configured study settings, or the defaults when
// no configuration was loaded.
func studyConfig() models.StudyConfig {
	if AppConfig != nil {
		return AppConfig.Study
	}
	return core.DefaultConfig().Study
}

func scanner() core.SessionScanner {
	if Scanner != nil {
		return Scanner
	}
	return core.DefaultScanner
}

func reconstructor() core.StateReconstructor {
	if Reconstructor != nil {
		return Reconstructor
	}
	return core.NewStateReconstructor(nil)
}
