package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"labrunner/internal/config"
	"labrunner/internal/matrix"
	"labrunner/internal/workflow"

	"github.com/spf13/cobra"
)

type plannedCase struct {
	Model  string           `json:"model"`
	Phases []workflow.Phase `json:"phases"`
}

func newPlanCmd() *cobra.Command {
	var (
		matrixPath string
		models     []string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the phases each test case would run",
		Long: `The plan command loads the test matrix the same way run does and prints
the ordered phases of every case without touching AI Lab.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := matrixPath
			if path == "" {
				settings, err := config.LoadConfig()
				if err != nil {
					return fmt.Errorf("failed to load configuration: %w", err)
				}
				path = settings.Matrix
			}

			m, err := matrix.LoadOrDefault(path)
			if err != nil {
				return err
			}
			m = m.Filter(models)

			planned := make([]plannedCase, 0, len(m.Cases))
			for _, tc := range m.Cases {
				planned = append(planned, plannedCase{Model: tc.Model, Phases: workflow.Plan(tc)})
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(planned)
			}

			if len(planned) == 0 {
				fmt.Fprintln(out, "No test cases selected.")
				return nil
			}
			for _, p := range planned {
				names := make([]string, len(p.Phases))
				for i, phase := range p.Phases {
					names[i] = phase.String()
				}
				fmt.Fprintf(out, "%s (%d phases)\n  %s\n", p.Model, len(p.Phases), strings.Join(names, " → "))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&matrixPath, "matrix", "m", "", "Test matrix file (.yaml or .toml); defaults to the built-in matrix")
	cmd.Flags().StringSliceVar(&models, "model", nil, "Only show cases for these models (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the plan as JSON")
	return cmd
}
