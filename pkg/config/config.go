// Package config holds the application configuration and the build metadata
// injected by the dev tool.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Build metadata, set with -ldflags "-X github.com/mklimuk/gasmon/pkg/config.Version=..."
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

const (
	AdapterGeneric = "generic"
	AdapterMCP2221 = "mcp2221"
	AdapterGobot   = "gobot"
	AdapterSim     = "sim"
)

const (
	SensorsCO2 = "co2"
	SensorsVOC = "voc"
)

type Config struct {
	// Adapter selects the bus transport: generic, mcp2221, gobot or sim.
	Adapter string `yaml:"adapter"`
	// Device is the periph bus name for the generic adapter (e.g. /dev/i2c-1)
	// and the bus number for gobot. Empty means the default bus.
	Device string `yaml:"device"`
	// SpeedKHz is the bus clock. Zero keeps the adapter default.
	SpeedKHz int `yaml:"speed_khz"`
	// Sensors selects the sensor set: co2 (SCD30) or voc (AHT10 + SGP30).
	Sensors string `yaml:"sensors"`
	// MetricsAddr enables the status HTTP server when set (e.g. ":9100").
	MetricsAddr string `yaml:"metrics_addr"`
	Verbose     bool   `yaml:"verbose"`
}

func Default() Config {
	return Config{
		Adapter:  AdapterGeneric,
		SpeedKHz: 100,
		Sensors:  SensorsCO2,
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error
// when optional is set.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("could not read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Adapter {
	case AdapterGeneric, AdapterMCP2221, AdapterGobot, AdapterSim:
	default:
		return fmt.Errorf("unknown adapter %q", c.Adapter)
	}
	switch c.Sensors {
	case SensorsCO2, SensorsVOC:
	default:
		return fmt.Errorf("unknown sensor set %q", c.Sensors)
	}
	if c.SpeedKHz < 0 {
		return fmt.Errorf("bus speed must not be negative, got %d kHz", c.SpeedKHz)
	}
	return nil
}
