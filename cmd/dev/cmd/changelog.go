package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// scopes used in commit subjects, e.g. "fix(air): ...".
var scopes = []string{"air", "environment", "i2c", "adapter", "sim", "monitor", "metrics", "server", "config", "cli", "dev"}

type changelogOpts struct {
	next   string
	tag    string
	output string
}

func (o changelogOpts) args() []string {
	output := o.output
	if output == "" {
		output = "CHANGELOG.md"
	}
	args := []string{"--output", output}
	if o.next != "" {
		args = append(args, "--next-tag", o.next)
	}
	if o.tag != "" {
		args = append(args, o.tag)
	}
	return args
}

func ChangelogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changelog",
		Short: "Generate CHANGELOG.md from conventional commits",
		Long: fmt.Sprintf(`Generates the changelog with git-chglog:
  go install github.com/git-chglog/git-chglog/cmd/git-chglog@latest

Commit subjects follow "<type>(<scope>): <description>", with scope one of
%v.`, scopes),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts changelogOpts
			opts.next, _ = cmd.Flags().GetString("next")
			opts.tag, _ = cmd.Flags().GetString("tag")
			opts.output, _ = cmd.Flags().GetString("output")

			if _, err := exec.LookPath("git-chglog"); err != nil {
				return fmt.Errorf("git-chglog not installed: %w", err)
			}
			slog.InfoContext(cmd.Context(), "generating changelog", "args", opts.args())
			run := exec.CommandContext(cmd.Context(), "git-chglog", opts.args()...)
			run.Stdout = os.Stdout
			run.Stderr = os.Stderr
			if err := run.Run(); err != nil {
				return fmt.Errorf("failed to generate changelog: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("next", "", "tag of the upcoming release (e.g. v0.3.0)")
	cmd.Flags().String("tag", "", "only generate the entry for this tag")
	cmd.Flags().String("output", "CHANGELOG.md", "output file")
	return cmd
}
