package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/internal/ingest"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

var (
	runParticipant string
	runResume      bool
	runFresh       bool
)

// runSignals is the set of signals that interrupt a run. Tests replace it.
var runSignals = func() (<-chan os.Signal, func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch, func() { signal.Stop(ch) }
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Record a session from commands on stdin",
	Long: `Run a headless recorder. The most recent interrupted session is resumed
(unless --fresh is given); otherwise a new session is started for
--participant. Commands are then read from stdin, one JSON object per line:

  {"cmd":"screen","screen":"descriptive_task"}
  {"cmd":"response","prompt_index":0,"prompt_text":"...","response_text":"..."}
  {"cmd":"partial_text","text":"...","prompt_index":1,"countdown_remaining":42}
  {"cmd":"countdown","remaining":42,"total":60,"screen":"stroop"}
  {"cmd":"action","action_type":"KEY_PRESS","details":"a","screen":"stroop"}
  {"cmd":"sentence","text":"..."}
  {"cmd":"task_selection","selection":{"selected_task":"math","selection_mode":"random_assigned"}}
  {"cmd":"end","screen":"poststudy"}

An end command finalizes the session. SIGINT, SIGTERM or stdin closing
before end records APPLICATION_CRASH and leaves the session incomplete, so
the next run resumes it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if NewRecorder == nil {
			return fmt.Errorf("recorder not initialized")
		}
		return withInstanceLock(func(instanceID string) error {
			rec := NewRecorder(instanceID)
			defer func() { _ = rec.Abandon() }()

			errOut := cmd.ErrOrStderr()
			outcome, err := openSession(rec, openRequest{
				resume:      runResume,
				fresh:       runFresh,
				participant: runParticipant,
				errOut:      errOut,
			})
			if err != nil {
				return err
			}

			sink := newScreenTrackingSink(rec, models.ScreenParticipantID)
			if outcome.Decision == decisionResume {
				sink.setScreen(outcome.State.ResumeScreen)
				fmt.Fprintf(errOut, "Resumed %s on %s\n", outcome.Session.ParticipantID(), core.DescribeState(outcome.State))
			} else {
				fmt.Fprintf(errOut, "Recording new session for %s\n", outcome.Session.ParticipantID())
			}
			fmt.Fprintf(errOut, "  %s\n", outcome.Session.Paths.SessionInfoPath)

			return recordFromInput(rec, sink, cmd.InOrStdin(), cmd.OutOrStdout(), errOut)
		})
	},
}

type dispatchOutcome struct {
	result ingest.Result
	err    error
}

// recordFromInput feeds in to the recorder until an end command, EOF or an
// interrupting signal.
func recordFromInput(rec core.Recorder, sink *screenTrackingSink, in io.Reader, out, errOut io.Writer) error {
	sigCh, stopSignals := runSignals()
	defer stopSignals()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The dispatcher may still be blocked reading after an interrupt; it
	// must not write to errOut once we have returned.
	var (
		errMu       sync.Mutex
		interrupted bool
	)
	disp := ingest.NewDispatcher(sink)
	disp.OnError = func(le *ingest.LineError) {
		errMu.Lock()
		defer errMu.Unlock()
		if !interrupted {
			fmt.Fprintf(errOut, "Warning: %v\n", le)
		}
	}

	done := make(chan dispatchOutcome, 1)
	go func() {
		res, err := disp.Run(ctx, in)
		done <- dispatchOutcome{result: res, err: err}
	}()

	select {
	case sig := <-sigCh:
		cancel()
		errMu.Lock()
		interrupted = true
		errMu.Unlock()
		crash(rec, sink, sig.String())
		return fmt.Errorf("interrupted by %s; session left incomplete", sig)
	case d := <-done:
		res := d.result
		fmt.Fprintf(out, "Applied %d command(s), %d dropped, %d rejected\n", res.Applied, res.Dropped, len(res.Errors))
		if d.err != nil {
			crash(rec, sink, "input error")
			return d.err
		}
		if !res.Ended {
			crash(rec, sink, "input closed")
			return fmt.Errorf("input ended without an end command; session left incomplete")
		}
		fmt.Fprintln(out, "Session complete.")
		return nil
	}
}

func crash(rec core.Recorder, sink *screenTrackingSink, reason string) {
	_ = rec.LogCrash(reason, string(sink.screen()))
	_ = rec.Abandon()
}

// screenTrackingSink remembers the last screen entered so a crash can be
// recorded against it.
type screenTrackingSink struct {
	core.Recorder

	mu      sync.Mutex
	current models.Screen
}

func newScreenTrackingSink(rec core.Recorder, initial models.Screen) *screenTrackingSink {
	return &screenTrackingSink{Recorder: rec, current: initial}
}

func (s *screenTrackingSink) LogScreenTransition(screen models.Screen) error {
	s.setScreen(screen)
	return s.Recorder.LogScreenTransition(screen)
}

func (s *screenTrackingSink) setScreen(screen models.Screen) {
	s.mu.Lock()
	s.current = screen
	s.mu.Unlock()
}

func (s *screenTrackingSink) screen() models.Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func init() {
	runCmd.Flags().StringVar(&runParticipant, "participant", "", "Participant ID for a new session")
	runCmd.Flags().BoolVar(&runResume, "resume", false, "Resume the interrupted session (the default when one exists)")
	runCmd.Flags().BoolVar(&runFresh, "fresh", false, "Start a new session even if one was interrupted")
	_ = runCmd.RegisterFlagCompletionFunc("participant", completeParticipants)
	rootCmd.AddCommand(runCmd)
}
