package workflow

import (
	"labrunner/internal/matrix"
)

// Plan returns the phases of tc in execution order:
//
//	Download, CreateService, HealthCheck, DeleteService,
//	DeployRecipe(r1), DeleteRecipe(r1), ..., DeleteModel
//
// The three service phases are left out when the model has no service.
func Plan(tc matrix.TestCase) []Phase {
	phases := make([]Phase, 0, 5+2*len(tc.Recipes))
	phases = append(phases, Phase{Kind: PhaseDownload})

	if tc.HasService {
		phases = append(phases,
			Phase{Kind: PhaseCreateService},
			Phase{Kind: PhaseHealthCheck},
			Phase{Kind: PhaseDeleteService},
		)
	}

	for _, recipe := range tc.Recipes {
		phases = append(phases,
			Phase{Kind: PhaseDeployRecipe, Recipe: recipe},
			Phase{Kind: PhaseDeleteRecipe, Recipe: recipe},
		)
	}

	return append(phases, Phase{Kind: PhaseDeleteModel})
}
