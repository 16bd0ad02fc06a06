package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/observability"
	"github.com/valter-silva-au/moly-recorder/internal/storage"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

var finalizeNow bool

// finalizeClock is the time used by finalize --now.
var finalizeClock = time.Now

var finalizeCmd = &cobra.Command{
	Use:   "finalize <session_info.json>",
	Short: "Mark an interrupted session as complete",
	Long: `Finalize an interrupted session that was left for manual review.

An APPLICATION_EXIT action is appended and the end time and duration are
written into SessionInfo. The end time is the newest event in the session's
logs, so downtime is not counted; --now uses the current time instead.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		return withInstanceLock(func(instanceID string) error {
			info, err := storage.ReadSessionInfo(path)
			if err != nil {
				return err
			}
			if info.Complete() {
				return fmt.Errorf("session %s is already finalized", path)
			}

			end := finalizeClock()
			if !finalizeNow {
				state, err := core.Replay(path)
				switch {
				case err != nil:
					fmt.Fprintf(cmd.ErrOrStderr(), "Warning: could not replay session (%v); using the current time\n", err)
				case state.LastEventUnix > 0:
					end = models.FromUnixSeconds(state.LastEventUnix)
				default:
					end = info.SessionStartTime.Time()
				}
			}

			session := models.Session{Info: *info, Paths: storage.PathsFromSessionInfo(path, info), Resumed: true}
			opts := append(append([]storage.WriterOption{}, WriterOptions...), storage.WithClock(func() time.Time { return end }))
			w, err := storage.OpenWriter(session, opts...)
			if err != nil {
				return err
			}
			exitErr := w.AppendAction(models.ActionEvent{
				ActionType: models.ActionApplicationExit,
				Details:    models.TextDetails("Session finalized manually after interruption"),
				Screen:     string(models.ScreenRecovery),
			})
			if exitErr != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: recording APPLICATION_EXIT: %v\n", exitErr)
			}
			if err := w.Finalize(end); err != nil {
				_ = w.Close()
				return fmt.Errorf("finalizing session: %w", err)
			}
			final := w.Session()
			if err := w.Close(); err != nil {
				return err
			}

			data := map[string]any{
				"participant_id": final.ParticipantID(),
				"session_info":   path,
				"manual":         true,
				"instance_id":    instanceID,
			}
			if d := final.Info.SessionDurationSeconds; d != nil {
				data["duration_seconds"] = *d
			}
			if EventLog != nil {
				_ = EventLog.Write(observability.NewEvent("session.finalized", data)) // Non-fatal.
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Finalized %s\n", path)
			if d := final.Info.SessionDurationSeconds; d != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  duration %s\n", formatSeconds(*d))
			}
			return nil
		})
	},
}

func init() {
	finalizeCmd.Flags().BoolVar(&finalizeNow, "now", false, "Use the current time as the end time")
	finalizeCmd.ValidArgsFunction = completeSessionInfo(true)
	rootCmd.AddCommand(finalizeCmd)
}
