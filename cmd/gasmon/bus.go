package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/raspi"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/gasmon"
	"github.com/mklimuk/gasmon/adapter"
	"github.com/mklimuk/gasmon/i2c"
	"github.com/mklimuk/gasmon/pkg/config"
	"github.com/mklimuk/gasmon/sim"
)

var busFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the YAML configuration file",
		Value:   "gasmon.yaml",
		EnvVars: []string{"GASMON_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "adapter",
		Aliases: []string{"a"},
		Usage:   "bus adapter: generic, mcp2221, gobot or sim",
		EnvVars: []string{"GASMON_ADAPTER"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"d"},
		Usage:   "bus name (generic) or bus number (gobot)",
		EnvVars: []string{"GASMON_DEVICE"},
	},
	&cli.IntFlag{
		Name:    "speed",
		Usage:   "bus clock in kHz",
		EnvVars: []string{"GASMON_SPEED_KHZ"},
	},
}

// loadConfig reads the config file and applies the flags set on the command
// line or in the environment on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"), !c.IsSet("config"))
	if err != nil {
		return cfg, err
	}
	if c.IsSet("adapter") {
		cfg.Adapter = c.String("adapter")
	}
	if c.IsSet("device") {
		cfg.Device = c.String("device")
	}
	if c.IsSet("speed") {
		cfg.SpeedKHz = c.Int("speed")
	}
	if c.IsSet("sensors") {
		cfg.Sensors = c.String("sensors")
	}
	if c.IsSet("metrics-addr") {
		cfg.MetricsAddr = c.String("metrics-addr")
	}
	cfg.Verbose = cfg.Verbose || c.Bool("verbose")
	return cfg, cfg.Validate()
}

type closeFunc func() error

// openBus opens the transport selected by cfg.
func openBus(ctx context.Context, cfg config.Config) (gasmon.I2CBus, closeFunc, error) {
	slog.DebugContext(ctx, "opening bus", "adapter", cfg.Adapter, "device", cfg.Device, "speed_khz", cfg.SpeedKHz)
	switch cfg.Adapter {
	case config.AdapterMCP2221:
		ad := adapter.NewMCP2221(adapter.HIDOpener(-1))
		if err := ad.Init(ctx, cfg.SpeedKHz); err != nil {
			_ = ad.Close()
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		return ad, ad.Close, nil
	case config.AdapterGobot:
		busNr := -1
		if cfg.Device != "" {
			n, err := strconv.Atoi(cfg.Device)
			if err != nil {
				return nil, nil, fmt.Errorf("gobot bus must be a number, got %q", cfg.Device)
			}
			busNr = n
		}
		pi := raspi.NewAdaptor()
		if err := pi.Connect(); err != nil {
			return nil, nil, fmt.Errorf("could not connect raspi adaptor: %w", err)
		}
		bus := i2c.NewGobotBus(pi, busNr)
		return bus, func() error {
			if err := bus.Close(); err != nil {
				return err
			}
			return pi.Finalize()
		}, nil
	case config.AdapterSim:
		return sim.NewBus(), func() error { return nil }, nil
	default:
		bus, err := i2c.NewGenericBus(cfg.Device)
		if err != nil {
			return nil, nil, fmt.Errorf("adapter initialization error: %w", err)
		}
		if cfg.SpeedKHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.SpeedKHz) * physic.KiloHertz); err != nil {
				_ = bus.Close()
				return nil, nil, err
			}
		}
		return bus, bus.Close, nil
	}
}
