package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gasmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "adapter: mcp2221\nsensors: voc\nmetrics_addr: \":9100\"\n")
	cfg, err := Load(path, false)
	require.NoError(t, err)
	assert.Equal(t, Config{Adapter: AdapterMCP2221, Sensors: SensorsVOC, SpeedKHz: 100, MetricsAddr: ":9100"}, cfg)
}

func TestLoad_Missing(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")
	cfg, err := Load(missing, true)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(missing, false)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"adapter", "adapter: serial\n"},
		{"sensors", "sensors: pm25\n"},
		{"speed", "speed_khz: -1\n"},
		{"yaml", "adapter: [\n"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.content), false)
			assert.Error(t, err)
		})
	}
}
