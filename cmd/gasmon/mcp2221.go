package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/gasmon/adapter"
	"github.com/mklimuk/gasmon/cmd/gasmon/console"
	"github.com/mklimuk/gasmon/snsctx"
)

var mcp2221Flags = []cli.Flag{
	&cli.IntFlag{
		Name:  "id",
		Usage: "index of the bridge when more than one is connected",
		Value: -1,
	},
}

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "MCP2221 USB to I2C bridge maintenance",
	Subcommands: cli.Commands{
		&mcp2221StatusCmd,
		&mcp2221ReleaseCmd,
	},
}

var mcp2221StatusCmd = cli.Command{
	Name:  "status",
	Usage: "print the bridge I2C engine status",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.Status(ctx)
		})
	},
}

var mcp2221ReleaseCmd = cli.Command{
	Name:  "release",
	Usage: "cancel the current transfer and free the bus",
	Flags: mcp2221Flags,
	Action: func(c *cli.Context) error {
		return withMCP2221(c, func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
			return a.ReleaseBus(ctx)
		})
	},
}

func withMCP2221(c *cli.Context, fn func(context.Context, *adapter.MCP2221) (*adapter.MCP2221Status, error)) error {
	a := adapter.NewMCP2221(adapter.HIDOpener(c.Int("id")))
	defer func() {
		_ = a.Close()
	}()
	ctx := snsctx.SetVerbose(c.Context, c.Bool("verbose"))
	status, err := fn(ctx, a)
	if err != nil {
		return console.Exit(1, "adapter communication error: %s", console.Red(err))
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	if err := enc.Encode(status); err != nil {
		return console.Exit(1, "encoding error: %s", console.Red(err))
	}
	return nil
}
