package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

var (
	simParticipant string
	simScreen      string
	simResponses   int
	simPartial     string
	simRemaining   float64
	simMinutesAgo  int
)

// simulateClock is the current time for simulate-crash. Tests replace it.
var simulateClock = time.Now

// crashFixture describes an interrupted session to write.
type crashFixture struct {
	Participant string
	Screen      models.Screen
	Responses   int
	Partial     string
	Remaining   float64
	Start       time.Time
	Study       models.StudyConfig
}

var simulateCrashCmd = &cobra.Command{
	Use:   "simulate-crash",
	Short: "Write an interrupted session for recovery testing",
	Long: `Write a session that looks like the application died part way through:
SessionInfo without an end time, screen changes up to --screen, and on the
descriptive task some answered prompts, a countdown and a draft being typed.

The next 'moly recover' or 'moly run' offers to resume it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if LogsRoot == "" {
			return fmt.Errorf("logs root not initialized")
		}
		screen := models.Screen(simScreen)
		if !screen.Known() {
			return fmt.Errorf("unknown screen %q", simScreen)
		}
		if simResponses < 0 || simMinutesAgo < 0 || simRemaining < 0 {
			return fmt.Errorf("--responses, --remaining and --minutes-ago must not be negative")
		}

		return withInstanceLock(func(string) error {
			session, err := writeCrashFixture(LogsRoot, crashFixture{
				Participant: simParticipant,
				Screen:      screen,
				Responses:   simResponses,
				Partial:     simPartial,
				Remaining:   simRemaining,
				Start:       simulateClock().Add(-time.Duration(simMinutesAgo) * time.Minute),
				Study:       studyConfig(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote interrupted session for %s on %s\n", simParticipant, screen)
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", session.Paths.SessionInfoPath)
			return nil
		})
	},
}

// writeCrashFixture writes fx under logsRoot and closes it without
// finalizing. Event times are spread from fx.Start.
func writeCrashFixture(logsRoot string, fx crashFixture) (models.Session, error) {
	if err := storage.ValidateParticipantID(fx.Participant); err != nil {
		return models.Session{}, err
	}
	now := fx.Start
	paths := storage.NewSessionPaths(logsRoot, fx.Participant, fx.Start)
	session := models.Session{
		Info: models.SessionInfo{
			ParticipantID:      fx.Participant,
			SessionStartTime:   models.NewSessionTime(fx.Start),
			ApplicationVersion: applicationVersion(),
			Configuration:      fx.Study.Snapshot(),
			FileStructure:      storage.FileStructureFor(paths),
		},
		Paths: paths,
	}
	opts := append(append([]storage.WriterOption{}, WriterOptions...), storage.WithClock(func() time.Time { return now }))
	w, err := storage.OpenWriter(session, opts...)
	if err != nil {
		return models.Session{}, err
	}

	var writeErr error
	action := func(gap time.Duration, ev models.ActionEvent) {
		if writeErr != nil {
			return
		}
		now = now.Add(gap)
		writeErr = w.AppendAction(ev)
	}

	action(time.Second, models.ActionEvent{
		ActionType: models.ActionParticipantIDSubmitted,
		Details:    models.TextDetails("Participant ID: " + fx.Participant),
		Screen:     string(models.ScreenParticipantID),
	})
	for _, screen := range models.Workflow[1:] {
		if fx.Screen == models.ScreenParticipantID {
			break
		}
		if screen == models.ScreenTaskSelection && fx.Screen != screen && fx.Study.TaskSelectionMode != "self_selection" {
			continue
		}
		action(10*time.Second, models.ActionEvent{
			ActionType: models.ActionScreenTransition,
			Details:    models.TextDetails("Transitioning to " + string(screen)),
			Screen:     string(screen),
		})
		action(time.Second, models.ActionEvent{
			ActionType: models.ActionScreenDisplayed,
			Details:    models.TextDetails(string(screen) + " screen displayed and ready"),
			Screen:     string(screen),
		})
		if screen == fx.Screen {
			break
		}
	}

	if fx.Screen.HasCountdown() {
		total := fx.Remaining
		if minutes, ok := fx.Study.Snapshot()[fx.Screen.CountdownConfigKey()].(int); ok && float64(minutes*60) > total {
			total = float64(minutes * 60)
		}
		action(5*time.Second, models.ActionEvent{
			ActionType: models.ActionCountdownState,
			Details:    models.NewCountdownStateDetails(fx.Remaining, total),
			Screen:     string(fx.Screen),
		})
	}

	if fx.Screen == models.ScreenDescriptiveTask {
		for i := 0; i < fx.Responses && writeErr == nil; i++ {
			now = now.Add(30 * time.Second)
			writeErr = w.AppendResponse(models.NewResponseEvent(i, fmt.Sprintf("Prompt %d", i+1), fmt.Sprintf("Answer to prompt %d.", i+1)))
		}
		remaining := fx.Remaining
		words := strings.Fields(fx.Partial)
		for n := 1; n <= len(words); n++ {
			text := strings.Join(words[:n], " ")
			r := remaining
			action(3*time.Second, models.ActionEvent{
				ActionType: models.ActionPartialTextUpdate,
				Details:    models.NewPartialTextDetails(text, &r, fx.Responses),
				Screen:     string(models.ScreenDescriptiveTask),
			})
			if remaining >= 3 {
				remaining -= 3
			}
		}
	}

	final := w.Session()
	if err := w.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	if writeErr != nil {
		return final, fmt.Errorf("writing interrupted session: %w", writeErr)
	}
	return final, nil
}

func applicationVersion() string {
	if AppConfig != nil && AppConfig.ApplicationVersion != "" {
		return AppConfig.ApplicationVersion
	}
	return "1.0"
}

func init() {
	simulateCrashCmd.Flags().StringVar(&simParticipant, "participant", "RECOVERY_TEST", "Participant ID")
	simulateCrashCmd.Flags().StringVar(&simScreen, "screen", string(models.ScreenDescriptiveTask), "Screen the session was on")
	simulateCrashCmd.Flags().IntVar(&simResponses, "responses", 0, "Descriptive prompts already answered")
	simulateCrashCmd.Flags().StringVar(&simPartial, "partial", "The image shows a beautiful landscape with mountains", "Draft text being typed")
	simulateCrashCmd.Flags().Float64Var(&simRemaining, "remaining", 180, "Countdown seconds left")
	simulateCrashCmd.Flags().IntVar(&simMinutesAgo, "minutes-ago", 2, "How long ago the session started")
	_ = simulateCrashCmd.RegisterFlagCompletionFunc("screen", completeScreens)
	rootCmd.AddCommand(simulateCrashCmd)
}
