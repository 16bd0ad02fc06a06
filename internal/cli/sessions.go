package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/valter-silva-au/moly-recorder/pkg/models"
)

var (
	sessionsAll  bool
	sessionsJSON bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions in the logs root",
	Long: `List the sessions found under the logs root with their classification.

By default only INCOMPLETE and UNREADABLE sessions are shown; --all includes
COMPLETE sessions too. The first INCOMPLETE row is the session recovery
would offer to resume.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if LogsRoot == "" {
			return fmt.Errorf("logs root not initialized")
		}
		result, err := scanner().Scan(LogsRoot)
		if err != nil {
			return fmt.Errorf("scanning %s: %w", LogsRoot, err)
		}

		records := make([]models.SessionRecord, 0, len(result.Records))
		for _, rec := range result.Records {
			if sessionsAll || rec.Status != models.SessionComplete {
				records = append(records, rec)
			}
		}

		out := cmd.OutOrStdout()
		if sessionsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}

		writeSessionsTable(out, records, terminalWidth(out))
		counts := result.Counts()
		fmt.Fprintf(out, "%d complete, %d incomplete, %d unreadable\n",
			counts[models.SessionComplete], counts[models.SessionIncomplete], counts[models.SessionUnreadable])
		return nil
	},
}

func writeSessionsTable(w io.Writer, records []models.SessionRecord, width int) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	if width > 0 {
		tw.SetAllowedRowLength(width)
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 60},
	})
	tw.AppendHeader(table.Row{"Status", "Participant", "Started", "Duration", "Session Info"})

	for _, rec := range records {
		participant, started, duration := "-", "-", "-"
		if rec.Info != nil {
			participant = rec.Info.ParticipantID
			started = rec.Info.SessionStartTime.Local
			if rec.Info.SessionDurationSeconds != nil {
				duration = formatSeconds(*rec.Info.SessionDurationSeconds)
			}
		}
		path := rec.Paths.SessionInfoPath
		if rec.Error != "" {
			path += "\n" + rec.Error
		}
		tw.AppendRow(table.Row{string(rec.Status), participant, started, duration, path})
	}
	if len(records) == 0 {
		tw.AppendRow(table.Row{"-", "(no sessions)", "-", "-", "-"})
	}
	tw.Render()
}

func formatSeconds(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// terminalWidth returns the width of w when it is a terminal, else 0.
func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
		return width
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if v, err := strconv.Atoi(cols); err == nil && v > 0 {
			return v
		}
	}
	return 0
}

func init() {
	sessionsCmd.Flags().BoolVar(&sessionsAll, "all", false, "Include complete sessions")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "Output sessions as JSON")
	rootCmd.AddCommand(sessionsCmd)
}
