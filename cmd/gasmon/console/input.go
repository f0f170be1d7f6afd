package console

import (
	"context"
	"log/slog"

	"github.com/chzyer/readline"
)

// OnInput calls stop as soon as a line (or EOF, or ^C) is read from the
// terminal. The returned function releases the terminal.
func OnInput(ctx context.Context, stop func()) (func(), error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}
	go func() {
		_, err := rl.Readline()
		slog.DebugContext(ctx, "input received; stopping", "error", err)
		stop()
	}()
	return func() {
		_ = rl.Close()
	}, nil
}
