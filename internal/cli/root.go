package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

var rootCmd = &cobra.Command{
	Use:   "moly",
	Short: "Moly - durable session recording with crash recovery",
	Long: `Moly records study sessions as append-only logs that survive crashes,
power loss and forced quits.

On startup it looks for the most recent interrupted session, replays its
logs to work out where the participant was, and offers to resume it. The
commands here run a headless recorder, inspect sessions on disk and report
on the health of the logs root.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("moly %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// withInstanceLock runs fn while holding the logs root lock.
func withInstanceLock(fn func(instanceID string) error) error {
	if LockLogsRoot == nil {
		return fmt.Errorf("logs root not initialized")
	}
	lock, err := LockLogsRoot()
	if err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()
	return fn(lock.InstanceID)
}
