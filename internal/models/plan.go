package models

// Plan is the caller-facing result of one pipeline run, shared by the
// synchronous and asynchronous paths.
type Plan struct {
	Success         bool                 `json:"success"`
	Orchestration   Orchestration        `json:"orchestration"`
	Recommendations []CityRecommendation `json:"recommendations"`
	Itinerary       PlanItinerary        `json:"itinerary"`
	WorkflowData    WorkflowData         `json:"workflow_data"`
}

type Orchestration struct {
	Steps           int      `json:"steps"`
	StagesExecuted  []string `json:"stages_executed"`
	ToolCalls       int      `json:"tool_calls"`
	ExecutionTimeMs int64    `json:"execution_time_ms"`
}

type PlanItinerary struct {
	Destination   string         `json:"destination"`
	LocalInsights []LocalInsight `json:"localInsights"`
	Schedule      []DaySchedule  `json:"schedule"`
	Budget        BudgetSummary  `json:"budget"`
}

type WorkflowData struct {
	CityAnalysis    *CityAnalysis    `json:"city_analysis,omitempty"`
	LocalInsights   *LocalAnalysis   `json:"local_insights,omitempty"`
	TravelLogistics *Itinerary       `json:"travel_logistics,omitempty"`
	ToolResults     []ToolCallRecord `json:"tool_results"`
}
