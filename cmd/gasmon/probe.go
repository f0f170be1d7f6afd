package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gasmon/air"
	"github.com/mklimuk/gasmon/cmd/gasmon/console"
	"github.com/mklimuk/gasmon/environment"
	"github.com/mklimuk/gasmon/snsctx"
)

const probeRetries = 2

var knownDevices = []struct {
	name    string
	address byte
}{
	{"SCD30", air.SCD30Address},
	{"AHT10", environment.AHT10Address},
	{"SGP30", air.SGP30Address},
}

var busCmd = cli.Command{
	Name:  "bus",
	Usage: "bus diagnostics",
	Subcommands: cli.Commands{
		&busProbeCmd,
	},
}

var busProbeCmd = cli.Command{
	Name:  "probe",
	Usage: "check which supported sensors acknowledge their address",
	Flags: busFlags,
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx := snsctx.SetVerbose(c.Context, cfg.Verbose)
		bus, closeBus, err := openBus(ctx, cfg)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() {
			if err := closeBus(); err != nil {
				console.Errorf("error closing bus: %s", err)
			}
		}()

		w := tabwriter.NewWriter(os.Stdout, 12, 0, 1, ' ', 0)
		_, _ = fmt.Fprintf(w, "DEVICE\tADDRESS\tSTATUS\n")
		for _, dev := range knownDevices {
			status := console.Green("present")
			if err := bus.Probe(ctx, dev.address, probeRetries); err != nil {
				status = console.Red("absent")
			}
			_, _ = fmt.Fprintf(w, "%s\t%#02x\t%s\n", dev.name, dev.address, status)
		}
		return w.Flush()
	},
}
