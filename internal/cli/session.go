package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// errCancelled is returned when the operator cancels the recovery prompt.
var errCancelled = errors.New("cancelled")

// openRequest describes how a command wants the recovery decision made.
type openRequest struct {
	resume      bool
	fresh       bool
	participant string
	// prompt allows asking the operator when neither resume nor fresh is
	// forced. Without it an interrupted session is resumed.
	prompt bool

	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// openOutcome reports what openSession did.
type openOutcome struct {
	Session  models.Session
	State    *models.RecoveryState
	Decision decision
}

// openSession runs the recovery check on rec and opens the session the
// decision calls for. A resume that fails falls back to a new session.
func openSession(rec core.Recorder, req openRequest) (openOutcome, error) {
	if req.resume && req.fresh {
		return openOutcome{}, fmt.Errorf("--resume and --fresh are mutually exclusive")
	}

	state := rec.CheckForRecovery()
	printWarnings(req.errOut, rec.Controller().Warnings())
	out := openOutcome{State: state, Decision: decisionFresh}

	if state != nil {
		d := decisionResume
		switch {
		case req.resume:
		case req.fresh:
			d = decisionFresh
		case req.prompt:
			var err error
			d, err = promptDecision(state, req.in, req.out)
			if err != nil {
				return out, err
			}
		}
		if d == decisionCancel {
			return out, errCancelled
		}
		if d == decisionResume {
			session, err := rec.ConfirmResume()
			if err == nil {
				out.Session = session
				out.Decision = decisionResume
				return out, nil
			}
			// Non-fatal: the controller has already moved to fresh.
			fmt.Fprintf(req.errOut, "Warning: %v; starting a new session\n", err)
		}
	}

	participant := req.participant
	if participant == "" && state != nil {
		participant = state.ParticipantID
	}
	if participant == "" {
		return out, fmt.Errorf("--participant is required to start a new session")
	}

	session, err := rec.StartFresh(participant, studyConfig())
	if err != nil {
		return out, fmt.Errorf("starting session: %w", err)
	}
	if err := rec.LogAction(models.ActionParticipantIDSubmitted, models.TextDetails("Participant ID: "+participant), string(models.ScreenParticipantID)); err != nil {
		fmt.Fprintf(req.errOut, "Warning: recording participant ID: %v\n", err)
	}
	out.Session = session
	return out, nil
}

func printWarnings(w io.Writer, warnings []string) {
	if w == nil {
		return
	}
	for _, msg := range warnings {
		fmt.Fprintf(w, "Warning: %s\n", msg)
	}
}
