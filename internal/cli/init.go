package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/moly-recorder/internal/core"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default .molyconfig",
	Long: `Write a .molyconfig with every setting at its default value.

Without a path the file goes into the current base path. An existing
.molyconfig is left alone unless --force is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := ConfigMgr
		if len(args) > 0 {
			absPath, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolving path: %w", err)
			}
			mgr = core.NewConfigurationManager(absPath)
		}
		if mgr == nil {
			return fmt.Errorf("configuration manager not initialized")
		}

		path, err := mgr.WriteDefaultConfig(initForce)
		if err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .molyconfig")
	rootCmd.AddCommand(initCmd)
}
