package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	recoverResume      bool
	recoverFresh       bool
	recoverParticipant string
)

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Decide what happens to an interrupted session",
	Long: `Look for the most recent interrupted session and decide whether to resume
it or start a new one.

Resuming reopens the session's files and records APPLICATION_REOPENED and
SESSION_RESUMED. Starting fresh leaves the interrupted session untouched for
manual review. Without --resume or --fresh the decision is asked for: with a
menu on a terminal, or as a numbered choice read from stdin otherwise.

The session is left open (not finalized) so a host can continue it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewRecorder == nil {
			return fmt.Errorf("recorder not initialized")
		}
		return withInstanceLock(func(instanceID string) error {
			rec := NewRecorder(instanceID)
			defer func() { _ = rec.Abandon() }()

			outcome, err := openSession(rec, openRequest{
				resume:      recoverResume,
				fresh:       recoverFresh,
				participant: recoverParticipant,
				prompt:      true,
				in:          cmd.InOrStdin(),
				out:         cmd.OutOrStdout(),
				errOut:      cmd.ErrOrStderr(),
			})
			if errors.Is(err, errCancelled) {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled; nothing was changed.")
				return nil
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if outcome.Decision == decisionResume {
				fmt.Fprintf(out, "Resumed session for %s on %s\n", outcome.Session.ParticipantID(), outcome.State.ResumeScreen)
			} else {
				fmt.Fprintf(out, "Started new session for %s\n", outcome.Session.ParticipantID())
			}
			fmt.Fprintf(out, "  %s\n", outcome.Session.Paths.SessionInfoPath)
			return nil
		})
	},
}

func init() {
	recoverCmd.Flags().BoolVar(&recoverResume, "resume", false, "Resume the interrupted session without asking")
	recoverCmd.Flags().BoolVar(&recoverFresh, "fresh", false, "Start a new session without asking")
	recoverCmd.Flags().StringVar(&recoverParticipant, "participant", "", "Participant ID for a new session (defaults to the interrupted session's)")
	_ = recoverCmd.RegisterFlagCompletionFunc("participant", completeParticipants)
	rootCmd.AddCommand(recoverCmd)
}
