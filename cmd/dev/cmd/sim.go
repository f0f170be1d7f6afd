package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// SimCmd runs the monitor against the simulated bus so the UI and the status
// server can be exercised without hardware.
func SimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "Run gasmon monitor on the simulated bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			sensors, _ := cmd.Flags().GetString("sensors")
			addr, _ := cmd.Flags().GetString("metrics-addr")
			if err := goRun(cmd.Context(), nil, simArgs(sensors, addr)...); err != nil {
				return fmt.Errorf("simulated monitor failed: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("sensors", "co2", "sensor set to simulate (co2 or voc)")
	cmd.Flags().String("metrics-addr", ":9100", "status server address; empty disables it")
	return cmd
}

func simArgs(sensors, addr string) []string {
	args := []string{"run", "./cmd/gasmon", "monitor", "--adapter", "sim", "--sensors", sensors}
	if addr != "" {
		args = append(args, "--metrics-addr", addr)
	}
	return args
}
