package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"labrunner/internal/simulator"
	"labrunner/pkg/logging"

	"github.com/spf13/cobra"
)

type simulateOptions struct {
	transport   string
	addr        string
	speed       float64
	timingsFile string

	preinstalled bool
	downloaded   []string
	stuckApps    []string
	brokenModels []string
	unhealthy    bool
}

// completeTransportFlag provides shell completion for the transport flag
func completeTransportFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{"http", "stdio"}, cobra.ShellCompDirectiveDefault
}

func newSimulateCmd() *cobra.Command {
	o := &simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Serve a simulated AI Lab over the automation bridge protocol",
		Long: `The simulate command serves an in-memory AI Lab as an MCP server. It
answers the same tools a real automation bridge exposes, starts real HTTP
inference endpoints for model services, and moves deployed recipes through
STARTING, RUNNING and UNKNOWN on a configurable clock.

Faults can be injected to exercise the failure paths of the runner.

Example usage:
  labrunner simulate                                   # http://127.0.0.1:8765/mcp
  labrunner simulate --speed 0.1                       # ten times faster
  labrunner simulate --stuck-app chatbot --unhealthy   # inject faults
  labrunner simulate --transport stdio                 # for MCP clients`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if o.transport != "http" && o.transport != "stdio" {
				return fmt.Errorf("invalid transport '%s', must be 'http' or 'stdio'", o.transport)
			}
			if o.speed < 0 {
				return fmt.Errorf("--speed must not be negative, got %v", o.speed)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.run(cmd)
		},
	}

	cmd.Flags().StringVar(&o.transport, "transport", "http", "Transport to serve on (http or stdio)")
	cmd.Flags().StringVar(&o.addr, "addr", "127.0.0.1:8765", "Listen address for the http transport")
	cmd.Flags().Float64Var(&o.speed, "speed", 1, "Multiplier applied to every simulated delay")
	cmd.Flags().StringVar(&o.timingsFile, "timings", "", "YAML file overriding the simulated delays")
	cmd.Flags().BoolVar(&o.preinstalled, "preinstalled", false, "Start with the extension installed and ACTIVE")
	cmd.Flags().StringSliceVar(&o.downloaded, "downloaded", nil, "Models that start out downloaded")
	cmd.Flags().StringSliceVar(&o.stuckApps, "stuck-app", nil, "Recipe IDs whose apps never leave STARTING")
	cmd.Flags().StringSliceVar(&o.brokenModels, "broken-model", nil, "Models whose downloads never complete")
	cmd.Flags().BoolVar(&o.unhealthy, "unhealthy", false, "Make every inference endpoint answer 503")

	_ = cmd.RegisterFlagCompletionFunc("transport", completeTransportFlag)
	return cmd
}

func (o *simulateOptions) labOptions() ([]simulator.Option, error) {
	timings := simulator.DefaultTimings()
	if o.timingsFile != "" {
		var err error
		if timings, err = simulator.LoadTimings(o.timingsFile); err != nil {
			return nil, err
		}
	}

	opts := []simulator.Option{simulator.WithTimings(timings.Scale(o.speed))}
	if o.preinstalled {
		opts = append(opts, simulator.WithPreinstalledExtension())
	}
	if len(o.downloaded) > 0 {
		opts = append(opts, simulator.WithDownloadedModels(o.downloaded...))
	}
	if len(o.stuckApps) > 0 {
		opts = append(opts, simulator.WithStuckApps(o.stuckApps...))
	}
	if len(o.brokenModels) > 0 {
		opts = append(opts, simulator.WithBrokenModels(o.brokenModels...))
	}
	if o.unhealthy {
		opts = append(opts, simulator.WithUnhealthyServices())
	}
	return opts, nil
}

func (o *simulateOptions) run(cmd *cobra.Command) error {
	opts, err := o.labOptions()
	if err != nil {
		return err
	}
	sim, err := simulator.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create simulated lab: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	defer func() {
		if err := sim.Close(context.Background()); err != nil {
			logging.Warn("Simulator", "Failed to close simulated lab: %v", err)
		}
	}()

	mcpServer := sim.MCPServer(rootCmd.Version)
	if o.transport == "stdio" {
		logging.Info("Simulator", "Serving automation bridge on stdio")
		err := simulator.ServeStdio(ctx, mcpServer, cmd.InOrStdin(), cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Simulated AI Lab listening on http://%s%s (Ctrl+C to stop)\n", o.addr, simulator.EndpointPath)
	return simulator.ServeHTTP(ctx, mcpServer, o.addr)
}
