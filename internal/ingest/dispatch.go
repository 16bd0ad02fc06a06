package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// Sink receives decoded commands. core.Recorder satisfies it.
type Sink interface {
	LogAction(actionType models.ActionType, details models.Details, screen string) error
	LogResponse(promptIndex int, promptText, responseText string) error
	LogScreenTransition(screen models.Screen) error
	LogScreenDisplayed(screen models.Screen) error
	LogPartialText(text string, countdownRemaining *float64, promptIndex int) bool
	LogCountdownState(remaining, total float64, screen models.Screen) error
	LogSentenceCompleted(sentence string) error
	RecordTaskSelection(selection models.TaskSelection) error
	EndSession(screen string) error
}

// LineError reports a line that could not be decoded or applied.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Result summarizes a Dispatch run.
type Result struct {
	Applied int
	Dropped int
	Errors  []*LineError
	Ended   bool
}

// Dispatcher applies commands read from a stream to a Sink.
type Dispatcher struct {
	sink Sink
	// OnError is called for each line that fails; nil ignores failures.
	OnError func(*LineError)
}

// NewDispatcher creates a Dispatcher for sink.
func NewDispatcher(sink Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Run reads commands from r until EOF, an end command, or ctx is done.
// A bad line is reported and skipped; it never stops the run. The returned
// error is only set for read failures and context cancellation.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader) (Result, error) {
	var res Result
	br := bufio.NewReader(r)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		line, readErr := br.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			lineNo++
			done, err := d.apply(line, &res)
			if err != nil {
				le := &LineError{Line: lineNo, Err: err}
				res.Errors = append(res.Errors, le)
				if d.OnError != nil {
					d.OnError(le)
				}
			}
			if done {
				return res, nil
			}
		} else if len(line) > 0 {
			lineNo++
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return res, nil
			}
			return res, fmt.Errorf("reading commands: %w", readErr)
		}
	}
}

// apply handles one line. done is true after an end command.
func (d *Dispatcher) apply(line []byte, res *Result) (done bool, err error) {
	cmd, err := Parse[Command](line)
	if err != nil {
		return false, err
	}
	if err := cmd.Validate(); err != nil {
		return false, err
	}

	switch cmd.Cmd {
	case CmdAction:
		err = d.sink.LogAction(models.ActionType(cmd.ActionType), cmd.ActionDetails(), cmd.Screen)
	case CmdResponse:
		err = d.sink.LogResponse(*cmd.PromptIndex, cmd.PromptText, cmd.ResponseText)
	case CmdPartialText:
		idx := 0
		if cmd.PromptIndex != nil {
			idx = *cmd.PromptIndex
		}
		if !d.sink.LogPartialText(cmd.Text, cmd.CountdownRemaining, idx) {
			res.Dropped++
			return false, nil
		}
	case CmdCountdown:
		err = d.sink.LogCountdownState(*cmd.Remaining, cmd.Total, models.Screen(cmd.Screen))
	case CmdScreen:
		screen := models.Screen(cmd.Screen)
		if err = d.sink.LogScreenTransition(screen); err == nil {
			err = d.sink.LogScreenDisplayed(screen)
		}
	case CmdSentence:
		err = d.sink.LogSentenceCompleted(cmd.Text)
	case CmdTaskSelection:
		err = d.sink.RecordTaskSelection(*cmd.Selection)
	case CmdEnd:
		res.Ended = true
		if err := d.sink.EndSession(cmd.Screen); err != nil {
			return true, err
		}
		res.Applied++
		return true, nil
	}
	if err != nil {
		return false, err
	}
	res.Applied++
	return false, nil
}
