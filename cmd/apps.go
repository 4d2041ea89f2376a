package cmd

import (
	"fmt"

	"labrunner/internal/config"
	"labrunner/internal/render"

	"github.com/spf13/cobra"
)

func newAppsCmd() *cobra.Command {
	var (
		bridge bridgeFlags
		plain  bool
	)
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "List the AI applications AI Lab is running",
		Long: `The apps command opens the running applications page over the
automation bridge and prints one row per deployed recipe. The name cell
carries a PORT/PORTS badge for the ports the application exposes.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}

			ctx := cmd.Context()
			driver, cleanup, err := bridge.openApplication(ctx, settings)
			if err != nil {
				return err
			}
			defer cleanup()
			defer driver.Close()

			recipes, err := driver.OpenRecipesCatalog(ctx)
			if err != nil {
				return fmt.Errorf("failed to open recipes catalog: %w", err)
			}
			catalog, err := recipes.Recipes(ctx)
			if err != nil {
				return fmt.Errorf("failed to list recipes: %w", err)
			}

			running, err := driver.OpenRunningApps(ctx)
			if err != nil {
				return fmt.Errorf("failed to open running apps: %w", err)
			}
			apps, err := running.Applications(ctx)
			if err != nil {
				return fmt.Errorf("failed to list applications: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), render.AppsTable(apps, catalog, !plain))
			return nil
		},
	}

	bridge.preinstall = true
	bridge.register(cmd)
	cmd.Flags().BoolVar(&plain, "plain", false, "Print without colors or badge styling")
	return cmd
}
