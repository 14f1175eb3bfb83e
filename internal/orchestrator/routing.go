package orchestrator

import "github.com/mpataki/trek/internal/models"

// Route decides the next stage from already stored state. Routes must not
// modify state.
type Route func(state *models.ExecutionState) models.StageID

// routes holds one rule per runnable stage. Selection and enrichment repeat
// until their output is present.
var routes = [models.NumStages]Route{
	models.StageSelection: func(s *models.ExecutionState) models.StageID {
		if sel := s.StageOutputs.Selection(); sel != nil && sel.SelectedCity != "" {
			return models.StageEnrichment
		}
		return models.StageSelection
	},
	models.StageEnrichment: func(s *models.ExecutionState) models.StageID {
		if local := s.StageOutputs.Enrichment(); local != nil && local.Insights != nil {
			return models.StageScheduling
		}
		return models.StageEnrichment
	},
	models.StageScheduling: func(*models.ExecutionState) models.StageID {
		return models.StageEnd
	},
}

// Next returns the stage that follows state.CurrentStage.
func Next(state *models.ExecutionState) models.StageID {
	if !state.CurrentStage.Runnable() {
		return models.StageEnd
	}
	return routes[state.CurrentStage](state)
}
