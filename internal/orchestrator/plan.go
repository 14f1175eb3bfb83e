package orchestrator

import "github.com/mpataki/trek/internal/models"

// BuildPlan folds a completed run into the caller-facing plan.
func BuildPlan(state *models.ExecutionState) *models.Plan {
	sel := state.StageOutputs.Selection()
	local := state.StageOutputs.Enrichment()
	itin := state.StageOutputs.Scheduling()

	plan := &models.Plan{
		Success: state.IsComplete,
		Orchestration: models.Orchestration{
			Steps:           state.Step,
			ToolCalls:       len(state.ToolCalls),
			ExecutionTimeMs: state.Elapsed().Milliseconds(),
		},
		Itinerary: models.PlanItinerary{
			Destination: state.Input.Destination,
		},
		WorkflowData: models.WorkflowData{
			CityAnalysis:    sel,
			LocalInsights:   local,
			TravelLogistics: itin,
			ToolResults:     state.ToolCalls,
		},
	}
	for _, id := range state.StageOutputs.Keys() {
		plan.Orchestration.StagesExecuted = append(plan.Orchestration.StagesExecuted, id.String())
	}

	if sel != nil {
		plan.Recommendations = sel.Alternatives
		if sel.SelectedCity != "" {
			plan.Itinerary.Destination = sel.SelectedCity
		}
	}
	if local != nil {
		plan.Itinerary.LocalInsights = local.Insights
	}
	if itin != nil {
		plan.Itinerary.Schedule = itin.Schedule
		plan.Itinerary.Budget = itin.TotalBudget
	}
	if plan.WorkflowData.ToolResults == nil {
		plan.WorkflowData.ToolResults = []models.ToolCallRecord{}
	}
	return plan
}
