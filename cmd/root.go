package cmd

import (
	"fmt"
	"os"

	"labrunner/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	debug    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "labrunner",
	Short: "Run end-to-end lifecycle tests against the AI Lab extension",
	Long: `labrunner drives the AI Lab desktop extension through an automation
bridge and checks the lifecycle of every model in a test matrix: download,
inference service create/probe/delete, recipe deploy/stop/delete and
model deletion.

It can also serve a simulated AI Lab over the same bridge protocol, which
is useful for trying out matrices and reporters without a desktop session.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. failed cases, unreachable bridge)
	SilenceUsage:      true,
	PersistentPreRunE: initLogging,
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "labrunner version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

// initLogging sets up CLI logging on stderr. The run command switches to
// TUI logging itself when --tui is set.
func initLogging(cmd *cobra.Command, args []string) error {
	level, err := resolveLogLevel()
	if err != nil {
		return err
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())
	return nil
}

func resolveLogLevel() (logging.LogLevel, error) {
	if debug {
		return logging.LevelDebug, nil
	}
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return level, fmt.Errorf("invalid --log-level: %w", err)
	}
	return level, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (same as --log-level=debug)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newAppsCmd())
	rootCmd.AddCommand(newSimulateCmd())
	rootCmd.AddCommand(newVersionCmd())
}
