package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

var completionInstall bool

// shellCompletion describes how to generate and install one shell's script.
type shellCompletion struct {
	hints []string
	gen   func(w io.Writer) error
	// target returns the install location under home, or "" when the shell
	// has no automatic install.
	target func(home string) string
	after  []string
}

var shellCompletions = map[string]shellCompletion{
	"bash": {
		hints: []string{
			`#   eval "$(moly completion bash)"`,
			"#   moly completion bash --install",
		},
		gen: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "bash-completion", "completions", "moly")
		},
		after: []string{"Restart your shell to load them."},
	},
	"zsh": {
		hints: []string{
			`#   eval "$(moly completion zsh)"`,
			"#   moly completion zsh --install",
		},
		gen: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_moly")
		},
		after: []string{
			"Ensure the directory is in your fpath, then run:",
			"  autoload -Uz compinit && compinit",
		},
	},
	"fish": {
		hints: []string{
			"#   moly completion fish | source",
			"#   moly completion fish --install",
		},
		gen: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		target: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions", "moly.fish")
		},
		after: []string{"Completions will be available in new fish sessions."},
	},
	"powershell": {
		hints: []string{
			"#   moly completion powershell | Out-String | Invoke-Expression",
			"# Add the line above to your PowerShell profile to keep it.",
		},
		gen: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
	},
}

func supportedShells() []string {
	shells := make([]string, 0, len(shellCompletions))
	for name := range shellCompletions {
		shells = append(shells, name)
	}
	sort.Strings(shells)
	return shells
}

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for moly",
	Long: `Print or install tab-completions for moly commands, flags and session
files.

Supported shells: bash, zsh, fish, powershell

  moly completion bash             print the script
  moly completion bash --install   write it into your shell's completion dir`,
	ValidArgs: supportedShells(),
	Args:      cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		sc, ok := shellCompletions[args[0]]
		if !ok {
			return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", args[0])
		}
		if completionInstall {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("detecting home directory: %w", err)
			}
			return installCompletion(cmd.OutOrStdout(), sc, home)
		}

		// Hints go to stderr so the script can be piped.
		hints := cmd.ErrOrStderr()
		fmt.Fprintln(hints, "# To load completions:")
		for _, line := range sc.hints {
			fmt.Fprintln(hints, line)
		}
		return sc.gen(cmd.OutOrStdout())
	},
}

func installCompletion(out io.Writer, sc shellCompletion, home string) error {
	if sc.target == nil {
		return fmt.Errorf("automatic install is not supported for this shell; print the script and add it to your profile")
	}
	target := sc.target(home)
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}

	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}
	writeErr := sc.gen(f)
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}

	fmt.Fprintf(out, "Completions installed to %s\n", target)
	for _, line := range sc.after {
		fmt.Fprintln(out, line)
	}
	return nil
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false, "Install completions into your shell's completion directory")

	// Replace Cobra's default completion command.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}
