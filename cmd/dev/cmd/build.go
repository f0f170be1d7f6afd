package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gophertribe/devtool/build"
)

type platform struct {
	os   string
	arch string
}

// targets gasmon is deployed on. The Pi builds talk to the sensors through
// /dev/i2c-N (generic adapter) or the gobot raspi adaptor.
var targets = map[string]platform{
	"native": {runtime.GOOS, runtime.GOARCH},
	"pi":     {"linux", "arm64"},
	"pi32":   {"linux", "arm"},
}

func resolveTarget(name string) (platform, error) {
	p, ok := targets[name]
	if !ok {
		return platform{}, fmt.Errorf("unknown target %q (native, pi, pi32)", name)
	}
	return p, nil
}

func binaryName(p platform) string {
	if p.os == runtime.GOOS && p.arch == runtime.GOARCH {
		return "dist/gasmon"
	}
	return fmt.Sprintf("dist/gasmon-%s-%s", p.os, p.arch)
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the gasmon binary",
		Long: `Builds ./cmd/gasmon with the version injected into pkg/config.

The MCP2221 adapter needs cgo (hidapi). A cross build with --cgo therefore runs
inside the gobuild container. Without --cgo the binary is cross compiled
natively and supports the generic, gobot and sim adapters only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("target")
			version, _ := cmd.Flags().GetString("version")
			cgo, _ := cmd.Flags().GetBool("cgo")
			p, err := resolveTarget(target)
			if err != nil {
				return err
			}

			native := p.os == runtime.GOOS && p.arch == runtime.GOARCH
			if native || !cgo {
				return build.GoBuild(binaryName(p), "./cmd/gasmon", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "github.com/mklimuk/gasmon/pkg/config",
					EnableCgo:     cgo,
					Arch:          p.arch,
					OS:            p.os,
				})
			}

			noCache, _ := cmd.Flags().GetBool("no-cache")
			// the container runs this tool for its own platform
			inner := []string{"build", "--target", "native", "--version", version, "--cgo"}
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", p.os, p.arch), inner, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   "gophertribe/gobuild:1.25-bookworm",
			})
		},
	}
	cmd.Flags().String("target", "native", "native, pi (linux/arm64) or pi32 (linux/arm)")
	cmd.Flags().String("version", "latest", "version injected into the binary")
	cmd.Flags().Bool("cgo", true, "enable cgo (required by the MCP2221 adapter)")
	cmd.Flags().Bool("no-cache", false, "do not use the docker build cache")
	return cmd
}
