package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

// simScenarios are the worker tests that run the full acquisition loop on
// the simulated bus, plus the slow AHT10 busy timeout.
const simScenarios = "TestWorker|TestAHT10_StaysBusy|TestAHT10_InitOnSimulatedBus"

// hardwareTag enables tests that need a real bus and attached sensors.
const hardwareTag = "hardware"

func TestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run unit tests (with the race detector by default)",
		Long: `Runs go test over the module. The acquisition worker, the bus handle and
the measurement slot are shared between goroutines, so the race detector is on
unless --race=false is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			race, _ := cmd.Flags().GetBool("race")
			short, _ := cmd.Flags().GetBool("short")
			run, _ := cmd.Flags().GetString("run")
			opts := testOpts{race: race, short: short, run: run, count: 1, packages: args}
			if err := goRun(cmd.Context(), opts.env(), opts.args()...); err != nil {
				return fmt.Errorf("unit tests failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Bool("race", true, "enable the race detector")
	cmd.Flags().Bool("short", false, "skip slow tests (AHT10 busy timeout)")
	cmd.Flags().String("run", "", "only run tests matching this regexp")
	return cmd
}

func LintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Run go vet and the linters",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := goRun(cmd.Context(), nil, "vet", "-tags", hardwareTag, packages); err != nil {
				return fmt.Errorf("vet failed: %w", err)
			}
			if err := test.Lint(); err != nil {
				return fmt.Errorf("failed to run linting: %w", err)
			}
			return nil
		},
	}
	return cmd
}

func IntegrationTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "integration-test",
		Short: "Run the simulated bus scenarios and, optionally, hardware tests",
		Long: `Without flags, runs the worker scenarios on the simulated bus several times
with the race detector, since they depend on goroutine scheduling.

With --hardware, also runs the tests tagged "hardware" against the bus given
with --adapter and --device. The sensors must be attached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			count, _ := cmd.Flags().GetInt("count")
			sim := testOpts{
				race:     true,
				run:      simScenarios,
				count:    count,
				packages: []string{"./monitor/...", "./environment/..."},
			}
			if err := goRun(cmd.Context(), sim.env(), sim.args()...); err != nil {
				return fmt.Errorf("simulated bus scenarios failed: %w", err)
			}

			hardware, _ := cmd.Flags().GetBool("hardware")
			if !hardware {
				return nil
			}
			adapter, _ := cmd.Flags().GetString("adapter")
			device, _ := cmd.Flags().GetString("device")
			hw, err := hardwareTests(adapter)
			if err != nil {
				return err
			}
			env := append(hw.env(), "GASMON_DEVICE="+device)
			if err := goRun(cmd.Context(), env, hw.args()...); err != nil {
				return fmt.Errorf("hardware tests failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().Int("count", 5, "how many times to repeat the simulated scenarios")
	cmd.Flags().Bool("hardware", false, "also run tests against attached sensors")
	cmd.Flags().String("adapter", "generic", "bus used by hardware tests: generic or mcp2221")
	cmd.Flags().String("device", "", "periph bus name for the generic adapter (e.g. /dev/i2c-1)")
	return cmd
}

// hardwareTests selects the tagged tests for the adapter under test.
func hardwareTests(adapter string) (testOpts, error) {
	opts := testOpts{tags: []string{hardwareTag}, run: "Hardware", count: 1}
	switch adapter {
	case "generic":
		opts.packages = []string{"./i2c/..."}
	case "mcp2221":
		opts.packages = []string{"./adapter/..."}
	default:
		return testOpts{}, fmt.Errorf("no hardware tests for adapter %q", adapter)
	}
	return opts, nil
}
