package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/cmd/gasmon/console"
	"github.com/mklimuk/gasmon/i2c"
	"github.com/mklimuk/gasmon/metrics"
	"github.com/mklimuk/gasmon/monitor"
	"github.com/mklimuk/gasmon/pkg/config"
	"github.com/mklimuk/gasmon/server"
	"github.com/mklimuk/gasmon/snsctx"
)

const renderInterval = 100 * time.Millisecond

var monitorCmd = cli.Command{
	Name:  "monitor",
	Usage: "sample the sensors continuously and display the latest reading",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:    "sensors",
			Aliases: []string{"s"},
			Usage:   "sensor set: co2 (SCD30) or voc (AHT10 + SGP30)",
			EnvVars: []string{"GASMON_SENSORS"},
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "serve /metrics and /snapshot on this address",
			EnvVars: []string{"GASMON_METRICS_ADDR"},
		},
	}, busFlags...),
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "configuration error: %s", console.Red(err))
		}
		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx = snsctx.SetVerbose(ctx, cfg.Verbose)

		bus, closeBus, err := openBus(ctx, cfg)
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		defer func() {
			if err := closeBus(); err != nil {
				console.Errorf("error closing bus: %s", err)
			}
		}()

		set := sensorSet(cfg, bus)
		slot := monitor.NewSlot(set.Variant())
		exporter := metrics.NewExporter()
		worker := monitor.New(set, i2c.NewHandle(), monitor.Tee(slot, exporter))
		if err := worker.Start(ctx); err != nil {
			return console.Exit(1, "could not start worker: %s", console.Red(err))
		}
		defer func() {
			if err := worker.Close(); err != nil {
				console.Errorf("error closing worker: %s", err)
			}
		}()

		serverErr := make(chan error, 1)
		if cfg.MetricsAddr != "" {
			go func() {
				serverErr <- server.Run(ctx, &server.ServerOpts{
					Addr:    cfg.MetricsAddr,
					Slot:    slot,
					Worker:  worker,
					Metrics: exporter.Handler(),
				})
			}()
		}

		release, err := console.OnInput(ctx, stop)
		if err != nil {
			slog.WarnContext(ctx, "terminal input unavailable; stop with ^C", "error", err)
		} else {
			defer release()
		}

		renderLoop(ctx, slot, serverErr)
		console.Infof("%s stopping", console.PictoStop)
		// the worker must exit before the bus is closed
		worker.Stop()
		return nil
	},
}

func sensorSet(cfg config.Config, bus gasmon.I2CBus) monitor.SensorSet {
	if cfg.Sensors == config.SensorsVOC {
		return monitor.NewVOCSet(bus)
	}
	return monitor.NewCO2Set(bus)
}

// renderLoop redraws the screen whenever the slot changes until ctx is done
// or the status server fails.
func renderLoop(ctx context.Context, slot *monitor.Slot, serverErr <-chan error) {
	out := termenv.NewOutput(os.Stdout)
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()
	var shown monitor.Snapshot
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-serverErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				console.Errorf("status server stopped: %s", err)
			}
			serverErr = nil
		case <-ticker.C:
			snap := slot.Read()
			if !first && snap == shown {
				continue
			}
			first = false
			shown = snap
			out.ClearScreen()
			console.Print(console.Render(snap))
		}
	}
}
