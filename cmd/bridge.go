package cmd

import (
	"context"
	"errors"
	"fmt"

	"labrunner/internal/config"
	"labrunner/internal/mcpdriver"
	"labrunner/internal/simulator"
	"labrunner/pkg/logging"

	"github.com/mark3labs/mcp-go/client"
	"github.com/spf13/cobra"
)

// bridgeFlags selects the automation bridge a command drives.
type bridgeFlags struct {
	endpoint string
	simulate bool
	speed    float64
	// preinstall starts the simulated lab with an active extension.
	preinstall bool
}

func (b *bridgeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&b.endpoint, "bridge", "", "Automation bridge MCP endpoint (overrides "+config.EnvBridge+")")
	cmd.Flags().BoolVar(&b.simulate, "simulate", false, "Drive an in-process simulated AI Lab instead of a bridge")
	cmd.Flags().Float64Var(&b.speed, "sim-speed", 1, "Multiplier applied to simulated delays (0 makes them immediate)")
}

var errNoBridge = errors.New("no automation bridge configured: use --bridge, set " + config.EnvBridge + " or pass --simulate")

// openApplication connects the driver. The returned cleanup releases what
// the driver does not own and must be called once the driver is closed.
func (b *bridgeFlags) openApplication(ctx context.Context, settings config.Settings) (*mcpdriver.Driver, func(), error) {
	opts := []mcpdriver.Option{mcpdriver.WithClientVersion(rootCmd.Version)}

	if !b.simulate {
		endpoint := settings.Bridge.Endpoint
		if b.endpoint != "" {
			endpoint = b.endpoint
		}
		if endpoint == "" {
			return nil, nil, errNoBridge
		}
		driver, err := mcpdriver.Connect(ctx, endpoint, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to automation bridge %s: %w", endpoint, err)
		}
		return driver, func() {}, nil
	}

	if b.speed < 0 {
		return nil, nil, fmt.Errorf("--sim-speed must not be negative, got %v", b.speed)
	}
	simOpts := []simulator.Option{simulator.WithTimings(simulator.DefaultTimings().Scale(b.speed))}
	if settings.Extension.Preinstalled || b.preinstall {
		simOpts = append(simOpts, simulator.WithPreinstalledExtension())
	}
	sim, err := simulator.New(simOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create simulated lab: %w", err)
	}
	cleanup := func() {
		if err := sim.Close(context.Background()); err != nil {
			logging.Warn("CLI", "Failed to close simulated lab: %v", err)
		}
	}

	c, err := client.NewInProcessClient(sim.MCPServer(rootCmd.Version))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to create in-process client: %w", err)
	}
	driver, err := mcpdriver.New(ctx, c, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	logging.Info("CLI", "Driving simulated AI Lab (speed %v)", b.speed)
	return driver, cleanup, nil
}
