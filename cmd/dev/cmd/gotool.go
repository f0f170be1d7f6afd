package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

// packages covers the whole module except the dev tool itself.
const packages = "./..."

// goRun runs the go tool with the given extra environment, streaming its
// output to the terminal.
func goRun(ctx context.Context, env []string, args ...string) error {
	slog.InfoContext(ctx, "running go", "args", strings.Join(args, " "), "env", env)
	run := exec.CommandContext(ctx, "go", args...)
	run.Env = append(os.Environ(), env...)
	run.Stdin = os.Stdin
	run.Stdout = os.Stdout
	run.Stderr = os.Stderr
	if err := run.Run(); err != nil {
		return fmt.Errorf("go %s: %w", args[0], err)
	}
	return nil
}

// testOpts describes one go test invocation.
type testOpts struct {
	race     bool
	short    bool
	tags     []string
	run      string
	count    int
	packages []string
}

func (o testOpts) args() []string {
	args := []string{"test"}
	if o.race {
		args = append(args, "-race")
	}
	if o.short {
		args = append(args, "-short")
	}
	if len(o.tags) > 0 {
		args = append(args, "-tags", strings.Join(o.tags, ","))
	}
	if o.run != "" {
		args = append(args, "-run", o.run)
	}
	if o.count > 0 {
		args = append(args, fmt.Sprintf("-count=%d", o.count))
	}
	if len(o.packages) == 0 {
		return append(args, packages)
	}
	return append(args, o.packages...)
}

// env returns the environment the run needs: the race detector is cgo based.
func (o testOpts) env() []string {
	if o.race {
		return []string{"CGO_ENABLED=1"}
	}
	return nil
}
