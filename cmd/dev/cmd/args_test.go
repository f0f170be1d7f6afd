package cmd

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestOpts(t *testing.T) {
	tests := []struct {
		name     string
		given    testOpts
		expected []string
		env      []string
	}{
		{
			"defaults to the whole module",
			testOpts{},
			[]string{"test", "./..."},
			nil,
		},
		{
			"race enables cgo",
			testOpts{race: true, count: 1},
			[]string{"test", "-race", "-count=1", "./..."},
			[]string{"CGO_ENABLED=1"},
		},
		{
			"simulated scenarios",
			testOpts{race: true, run: simScenarios, count: 5, packages: []string{"./monitor/..."}},
			[]string{"test", "-race", "-run", simScenarios, "-count=5", "./monitor/..."},
			[]string{"CGO_ENABLED=1"},
		},
		{
			"short with tags",
			testOpts{short: true, tags: []string{"hardware", "debug"}},
			[]string{"test", "-short", "-tags", "hardware,debug", "./..."},
			nil,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, test.given.args())
			assert.Equal(t, test.env, test.given.env())
		})
	}
}

func TestHardwareTests(t *testing.T) {
	opts, err := hardwareTests("generic")
	require.NoError(t, err)
	assert.Equal(t, []string{"test", "-tags", "hardware", "-run", "Hardware", "-count=1", "./i2c/..."}, opts.args())

	opts, err = hardwareTests("mcp2221")
	require.NoError(t, err)
	assert.Equal(t, []string{"./adapter/..."}, opts.packages)

	_, err = hardwareTests("sim")
	assert.Error(t, err)
}

func TestResolveTarget(t *testing.T) {
	p, err := resolveTarget("pi")
	require.NoError(t, err)
	assert.Equal(t, platform{"linux", "arm64"}, p)
	if runtime.GOOS != "linux" || runtime.GOARCH != "arm64" {
		assert.Equal(t, "dist/gasmon-linux-arm64", binaryName(p))
	}

	p, err = resolveTarget("native")
	require.NoError(t, err)
	assert.Equal(t, "dist/gasmon", binaryName(p))

	_, err = resolveTarget("esp32")
	assert.Error(t, err)
}

func TestChangelogOpts(t *testing.T) {
	assert.Equal(t, []string{"--output", "CHANGELOG.md"}, changelogOpts{}.args())
	assert.Equal(t,
		[]string{"--output", "CHANGES.md", "--next-tag", "v0.2.0", "v0.1.0"},
		changelogOpts{output: "CHANGES.md", next: "v0.2.0", tag: "v0.1.0"}.args())
}

func TestSimArgs(t *testing.T) {
	assert.Equal(t,
		[]string{"run", "./cmd/gasmon", "monitor", "--adapter", "sim", "--sensors", "voc", "--metrics-addr", ":9100"},
		simArgs("voc", ":9100"))
	assert.NotContains(t, simArgs("co2", ""), "--metrics-addr")
}
