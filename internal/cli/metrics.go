package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	metricsJSON  bool
	metricsSince string
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Display recording and recovery metrics",
	Long: `Display aggregated metrics derived from the operational event log.

Metrics include sessions started, resumed and finalized, recovery decisions,
replay failures by kind, unreadable sessions, skipped log lines, dropped
events and writer errors.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if MetricsCalc == nil {
			return fmt.Errorf("metrics calculator not initialized (event log may be unavailable)")
		}

		sinceTime, err := parseSinceDuration(metricsSince)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}

		metrics, err := MetricsCalc.Calculate(sinceTime)
		if err != nil {
			return fmt.Errorf("calculating metrics: %w", err)
		}

		if metricsJSON {
			data, err := json.MarshalIndent(metrics, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting metrics as JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Metrics (since %s)\n\n", sinceTime.Format("2006-01-02"))
		fmt.Printf("  %-30s %d\n", "Events recorded:", metrics.EventCount)
		fmt.Printf("  %-30s %d\n", "Sessions started:", metrics.SessionsStarted)
		fmt.Printf("  %-30s %d\n", "Sessions resumed:", metrics.SessionsResumed)
		fmt.Printf("  %-30s %d\n", "Sessions finalized:", metrics.SessionsFinalized)
		fmt.Printf("  %-30s %d\n", "Fresh after failed recovery:", metrics.FreshAfterFailedRecovery)
		fmt.Printf("  %-30s %d\n", "Replays completed:", metrics.ReplaysCompleted)
		fmt.Printf("  %-30s %d\n", "Replays failed:", metrics.ReplaysFailed)
		fmt.Printf("  %-30s %d\n", "Unreadable sessions seen:", metrics.UnreadableSessions)
		fmt.Printf("  %-30s %d\n", "Skipped log lines:", metrics.SkippedLines)
		fmt.Printf("  %-30s %d\n", "Dropped events:", metrics.DroppedEvents)
		fmt.Printf("  %-30s %d\n", "Writer errors:", metrics.WriterErrors)

		printCounts("Recovery decisions:", metrics.Decisions)
		printCounts("Replay failures by kind:", metrics.ReplayFailuresByKind)

		if metrics.OldestEvent != nil {
			fmt.Printf("\n  %-30s %s\n", "Oldest event:", metrics.OldestEvent.Format(time.RFC3339))
		}
		if metrics.NewestEvent != nil {
			fmt.Printf("  %-30s %s\n", "Newest event:", metrics.NewestEvent.Format(time.RFC3339))
		}

		return nil
	},
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("\n  %s\n", title)
	for _, k := range keys {
		fmt.Printf("    %-26s %d\n", k+":", counts[k])
	}
}

// parseSinceDuration parses a human-friendly duration string like "7d", "30d",
// or "24h" and returns the corresponding time in the past.
func parseSinceDuration(s string) (time.Time, error) {
	now := time.Now().UTC()
	s = strings.TrimSpace(s)
	if s == "" {
		return now.AddDate(0, 0, -7), nil
	}

	if strings.HasSuffix(s, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil || days < 0 {
			return time.Time{}, fmt.Errorf("invalid day duration %q", s)
		}
		return now.AddDate(0, 0, -days), nil
	}

	if strings.HasSuffix(s, "h") {
		hours, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil || hours < 0 {
			return time.Time{}, fmt.Errorf("invalid hour duration %q", s)
		}
		return now.Add(-time.Duration(hours) * time.Hour), nil
	}

	return time.Time{}, fmt.Errorf("unsupported duration format %q (use e.g. 7d, 30d, 24h)", s)
}

func init() {
	metricsCmd.Flags().BoolVar(&metricsJSON, "json", false, "Output metrics as JSON")
	metricsCmd.Flags().StringVar(&metricsSince, "since", "7d", "Time window for metrics (e.g. 7d, 30d, 24h)")
	rootCmd.AddCommand(metricsCmd)
}
