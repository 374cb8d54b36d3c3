package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

var completionInstall bool

// shellCompletion describes how one shell loads otk's completion script.
type shellCompletion struct {
	generate func(w io.Writer) error
	// session is the one-liner that loads the script in the current shell.
	session string
	// target returns the install path under home; nil means no --install.
	target func(home string) string
	// after is printed once the script is installed.
	after func(target string) []string
}

var shells = map[string]shellCompletion{
	"bash": {
		generate: func(w io.Writer) error { return rootCmd.GenBashCompletionV2(w, true) },
		session:  `eval "$(otk completion bash)"`,
		target: func(home string) string {
			// User-local path read by bash-completion >= 2.0.
			return filepath.Join(home, ".local", "share", "bash-completion", "completions", "otk")
		},
		after: func(target string) []string {
			return []string{"Restart your shell or run: source " + target}
		},
	},
	"zsh": {
		generate: func(w io.Writer) error { return rootCmd.GenZshCompletion(w) },
		session:  `eval "$(otk completion zsh)"`,
		target: func(home string) string {
			return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_otk")
		},
		after: func(target string) []string {
			return []string{
				"Ensure this directory is in your fpath. Add to ~/.zshrc if needed:",
				fmt.Sprintf("  fpath=(%s $fpath)", filepath.Dir(target)),
				"  autoload -Uz compinit && compinit",
			}
		},
	},
	"fish": {
		generate: func(w io.Writer) error { return rootCmd.GenFishCompletion(w, true) },
		session:  "otk completion fish | source",
		target: func(home string) string {
			return filepath.Join(home, ".config", "fish", "completions", "otk.fish")
		},
		after: func(string) []string {
			return []string{"Completions will be available in new fish sessions automatically."}
		},
	},
	"powershell": {
		generate: func(w io.Writer) error { return rootCmd.GenPowerShellCompletionWithDesc(w) },
		session:  "otk completion powershell | Out-String | Invoke-Expression",
	},
}

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for otk",
	Long: `Set up shell tab-completions for otk commands, flags, and arguments.
Task and project IDs are completed from the hierarchies you viewed recently.

Supported shells: bash, zsh, fish, powershell

Quick install:

  otk completion bash --install
  otk completion zsh --install
  otk completion fish --install

Or print the script to stdout and load it yourself:

  eval "$(otk completion bash)"
  otk completion powershell | Out-String | Invoke-Expression`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your user completion directory")

	// Replace Cobra's default completion command with ours.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	name := args[0]
	shell, ok := shells[name]
	if !ok {
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", name)
	}

	if completionInstall {
		return installCompletion(cmd.OutOrStdout(), name, shell)
	}

	// Hints go to stderr so eval "$(otk completion bash)" sees only the script.
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, "# To load completions in your current session:")
	fmt.Fprintf(w, "#   %s\n", shell.session)
	if shell.target != nil {
		fmt.Fprintf(w, "# To install permanently:\n#   otk completion %s --install\n", name)
	}
	return shell.generate(cmd.OutOrStdout())
}

// installCompletion writes the script to the shell's user completion
// directory, replacing any previous version atomically.
func installCompletion(out io.Writer, name string, shell shellCompletion) error {
	if shell.target == nil {
		return fmt.Errorf("automatic install is not supported for %s; run 'otk completion %s' and add the output to your profile", name, name)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target := shell.target(home)

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	var script bytes.Buffer
	if err := shell.generate(&script); err != nil {
		return fmt.Errorf("generating %s completion: %w", name, err)
	}
	if err := atomic.WriteFile(target, &script); err != nil {
		return fmt.Errorf("writing completion file %s: %w", target, err)
	}

	fmt.Fprintf(out, "%s completions installed to %s\n", strings.ToUpper(name[:1])+name[1:], target)
	for _, line := range shell.after(target) {
		fmt.Fprintln(out, line)
	}
	return nil
}
