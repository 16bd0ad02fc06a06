package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

// decision is the operator's answer to a pending recovery.
type decision int

const (
	decisionResume decision = iota
	decisionFresh
	decisionCancel
)

func (d decision) String() string {
	switch d {
	case decisionResume:
		return "resume"
	case decisionFresh:
		return "fresh"
	default:
		return "cancel"
	}
}

var promptOptions = []struct {
	label string
	value decision
}{
	{"Resume the interrupted session", decisionResume},
	{"Start a new session (the old one is kept for review)", decisionFresh},
}

// isInteractive reports whether in and out are both terminals.
func isInteractive(in io.Reader, out io.Writer) bool {
	fin, ok := in.(*os.File)
	if !ok {
		return false
	}
	fout, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isTerminal(fin.Fd()) && isTerminal(fout.Fd())
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// promptDecision asks whether to resume state. On a terminal it runs a
// small TUI; otherwise it reads a numbered choice line by line.
func promptDecision(state *models.RecoveryState, in io.Reader, out io.Writer) (decision, error) {
	if isInteractive(in, out) {
		p := tea.NewProgram(newRecoveryPromptModel(state), tea.WithInput(in), tea.WithOutput(out))
		final, err := p.Run()
		if err != nil {
			return decisionCancel, fmt.Errorf("running recovery prompt: %w", err)
		}
		return final.(recoveryPromptModel).choice, nil
	}
	return linePrompt(state, in, out)
}

func linePrompt(state *models.RecoveryState, in io.Reader, out io.Writer) (decision, error) {
	fmt.Fprintf(out, "\nInterrupted session found: %s\n", core.DescribeState(state))
	fmt.Fprintf(out, "  started %s\n\n", state.OriginalSessionStart.Local)
	for i, opt := range promptOptions {
		fmt.Fprintf(out, "  %d) %s\n", i+1, opt.label)
	}
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "Select [1-%d] (or 'q' to cancel): ", len(promptOptions))
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err != nil && input == "" {
			if err == io.EOF {
				return decisionCancel, fmt.Errorf("no decision entered")
			}
			return decisionCancel, fmt.Errorf("reading input: %w", err)
		}

		switch strings.ToLower(input) {
		case "q":
			return decisionCancel, nil
		case "1", "r", "resume":
			return decisionResume, nil
		case "2", "f", "fresh":
			return decisionFresh, nil
		}
		fmt.Fprintf(out, "  Invalid selection. Enter a number between 1 and %d.\n", len(promptOptions))
		if err != nil {
			return decisionCancel, fmt.Errorf("no decision entered")
		}
	}
}

type recoveryPromptModel struct {
	state  *models.RecoveryState
	cursor int
	choice decision
}

func newRecoveryPromptModel(state *models.RecoveryState) recoveryPromptModel {
	return recoveryPromptModel{state: state, choice: decisionCancel}
}

func (m recoveryPromptModel) Init() tea.Cmd {
	return nil
}

func (m recoveryPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "q", "esc", "ctrl+c":
		m.choice = decisionCancel
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(promptOptions)-1 {
			m.cursor++
		}
	case "r":
		m.choice = decisionResume
		return m, tea.Quit
	case "f":
		m.choice = decisionFresh
		return m, tea.Quit
	case "enter":
		m.choice = promptOptions[m.cursor].value
		return m, tea.Quit
	}
	return m, nil
}

func (m recoveryPromptModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(" Interrupted session found "))
	b.WriteString("\n\n")

	s := m.state
	var details strings.Builder
	row := func(label, value string) {
		details.WriteString(labelStyle.Render(fmt.Sprintf("%-18s", label)))
		details.WriteString(value)
		details.WriteString("\n")
	}
	row("Participant", s.ParticipantID)
	row("Started", s.OriginalSessionStart.Local)
	row("Screen", string(s.ResumeScreen))
	if s.ResumeScreen == models.ScreenDescriptiveTask {
		row("Prompt", fmt.Sprintf("%d (%d answered)", s.PromptIndex+1, s.CompletedResponseCount))
	}
	if s.CountdownRemainingSeconds != nil {
		row("Time left", fmt.Sprintf("%.0fs", *s.CountdownRemainingSeconds))
	}
	if s.PartialTextWordCount > 0 {
		row("Draft", fmt.Sprintf("%d words", s.PartialTextWordCount))
	}
	if s.SkippedActionLines+s.SkippedResponseLines > 0 {
		row("Skipped lines", warningStyle.Render(fmt.Sprintf("%d", s.SkippedActionLines+s.SkippedResponseLines)))
	}
	b.WriteString(panelStyle.Render(strings.TrimRight(details.String(), "\n")))
	b.WriteString("\n\n")

	for i, opt := range promptOptions {
		if i == m.cursor {
			b.WriteString(selectedStyle.Render("> " + opt.label))
		} else {
			b.WriteString("  " + opt.label)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("up/down: move | enter: select | r: resume | f: fresh | q: cancel"))
	b.WriteString("\n")
	return b.String()
}
