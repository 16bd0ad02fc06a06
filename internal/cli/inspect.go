package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/moly-recorder/internal/core"
	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

var inspectFormat string

// inspectReport is what inspect prints: the replayed state and its digest.
type inspectReport struct {
	Summary string                `json:"summary"`
	Digest  string                `json:"digest"`
	State   *models.RecoveryState `json:"state"`
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <session_info.json>",
	Short: "Replay one session and print its recovery state",
	Long: `Replay the logs of one session and print the state recovery would resume
from. The session files are only read, never modified.

The digest is a sha256 over the canonical JSON of the state; replaying
unchanged logs always yields the same digest.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := reconstructor().ReconstructFile(args[0])
		if err != nil {
			return fmt.Errorf("replaying %s: %w", args[0], err)
		}
		digest, err := core.StateDigest(state)
		if err != nil {
			return err
		}
		report := inspectReport{Summary: core.DescribeState(state), Digest: digest, State: state}
		return writeInspectReport(cmd.OutOrStdout(), report, inspectFormat)
	},
}

func writeInspectReport(w io.Writer, report inspectReport, format string) error {
	switch strings.ToLower(format) {
	case "", "text":
		s := report.State
		fmt.Fprintf(w, "%s\n\n", report.Summary)
		fmt.Fprintf(w, "  %-22s %s\n", "Participant:", s.ParticipantID)
		fmt.Fprintf(w, "  %-22s %s\n", "Session started:", s.OriginalSessionStart.Local)
		fmt.Fprintf(w, "  %-22s %s\n", "Resume screen:", s.ResumeScreen)
		fmt.Fprintf(w, "  %-22s %d\n", "Prompt index:", s.PromptIndex)
		fmt.Fprintf(w, "  %-22s %d\n", "Responses completed:", s.CompletedResponseCount)
		if s.CountdownRemainingSeconds != nil {
			fmt.Fprintf(w, "  %-22s %.1fs\n", "Countdown remaining:", *s.CountdownRemainingSeconds)
		}
		if s.PartialText != "" {
			fmt.Fprintf(w, "  %-22s %q\n", "Partial text:", s.PartialText)
		}
		fmt.Fprintf(w, "  %-22s %d (%d/%d lines skipped)\n", "Actions replayed:",
			s.ActionCount, s.SkippedActionLines, s.SkippedResponseLines)
		fmt.Fprintf(w, "  %-22s %s\n", "Digest:", report.Digest)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		// Go through JSON so the YAML keys match the log field names.
		raw, err := json.Marshal(report)
		if err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("encoding report: %w", err)
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encoding report as YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q (use text, json or yaml)", format)
	}
}

func init() {
	inspectCmd.Flags().StringVar(&inspectFormat, "format", "text", "Output format: text, json or yaml")
	inspectCmd.ValidArgsFunction = completeSessionInfo(false)
	_ = inspectCmd.RegisterFlagCompletionFunc("format", completeInspectFormats)
	rootCmd.AddCommand(inspectCmd)
}
