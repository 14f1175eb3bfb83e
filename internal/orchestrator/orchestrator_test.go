package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/stages"
	"github.com/mpataki/trek/internal/tools"
)

var seoul = models.Preferences{
	Destination: "Seoul, South Korea",
	Budget:      "luxury",
	StartDate:   "2025-10-01",
	EndDate:     "2025-10-10",
	Travelers:   "4",
	Interests:   "Food, shopping, Luxury, culture",
}

func testConfig() Config {
	return Config{RecursionLimit: 150, Timeout: 5 * time.Second, ToolsEnabled: true}
}

func stageOpts() stages.Options {
	return stages.Options{Now: func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }}
}

func defaultInvoker(extra ...tools.Tool) *tools.Invoker {
	ts := append([]tools.Tool{
		&tools.SearchTool{Backend: tools.StaticSearch{}, MaxResults: 5},
		tools.NewCalculator(nil),
	}, extra...)
	return tools.NewInvoker(nil, ts...)
}

func newTestOrchestrator(cfg Config, reg *stages.Registry, inv ToolInvoker) *Orchestrator {
	if reg == nil {
		reg = stages.Default(stageOpts())
	}
	return New(cfg, reg, inv, nil)
}

// stubStage returns canned outcomes or errors.
type stubStage struct {
	id  models.StageID
	run func(ctx context.Context, state *models.ExecutionState) (*stages.Outcome, error)
}

func (s *stubStage) ID() models.StageID { return s.id }

func (s *stubStage) Run(ctx context.Context, state *models.ExecutionState) (*stages.Outcome, error) {
	return s.run(ctx, state)
}

func registryWith(t *testing.T, replacement stages.Stage) *stages.Registry {
	t.Helper()
	opts := stageOpts()
	all := []stages.Stage{stages.NewSelection(opts), stages.NewEnrichment(opts), stages.NewScheduling(opts)}
	all[replacement.ID()] = replacement
	reg, err := stages.NewRegistry(all...)
	require.NoError(t, err)
	return reg
}

type failingSearch struct{}

func (failingSearch) Search(context.Context, string, int) (*tools.SearchResponse, error) {
	return nil, errors.New("search backend unreachable")
}

func TestExecuteSeoul(t *testing.T) {
	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.NoError(t, err)

	assert.True(t, state.IsComplete)
	assert.Equal(t, []models.StageID{models.StageSelection, models.StageEnrichment, models.StageScheduling}, state.StageOutputs.Keys())
	assert.Equal(t, 3, state.Step)
	assert.Equal(t, len(state.StageOutputs), state.Step)

	itin, ok := state.TerminalOutput.(*models.Itinerary)
	require.True(t, ok)
	assert.NotEmpty(t, itin.Schedule)

	// 1 destination search, 6 local searches, 1 budget calculation
	require.Len(t, state.ToolCalls, 8)
	last := state.ToolCalls[7]
	assert.Equal(t, models.ToolCalculate, last.Tool)
	assert.True(t, last.Succeeded())

	roles := make([]models.Role, 0, len(state.Messages))
	for _, m := range state.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []models.Role{
		models.RoleUser,
		models.RoleTool, models.RoleAssistant,
		models.RoleTool, models.RoleAssistant,
		models.RoleTool, models.RoleAssistant,
	}, roles)
}

func TestExecuteStartingMidPipeline(t *testing.T) {
	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())

	state, err := o.Execute(context.Background(), seoul, models.StageScheduling)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Step)
	assert.Equal(t, []models.StageID{models.StageScheduling}, state.StageOutputs.Keys())
}

func TestExecuteToolFailureDoesNotAbort(t *testing.T) {
	inv := tools.NewInvoker(nil,
		&tools.SearchTool{Backend: failingSearch{}},
		tools.NewCalculator(nil),
	)
	o := newTestOrchestrator(testConfig(), nil, inv)

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.NoError(t, err)
	assert.True(t, state.IsComplete)

	require.NotEmpty(t, state.ToolCalls)
	assert.Equal(t, "search backend unreachable", state.ToolCalls[0].Error)
	assert.Nil(t, state.ToolCalls[0].Output)
}

func TestExecuteToolsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.ToolsEnabled = false
	o := newTestOrchestrator(cfg, nil, defaultInvoker())

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.NoError(t, err)
	assert.Empty(t, state.ToolCalls)
	assert.Len(t, state.Messages, 4)
	assert.Empty(t, o.Describe().Tools)
}

func TestExecuteRecursionLimit(t *testing.T) {
	var runs atomic.Int32
	undecided := &stubStage{id: models.StageSelection, run: func(context.Context, *models.ExecutionState) (*stages.Outcome, error) {
		runs.Add(1)
		return &stages.Outcome{Summary: "still thinking", Output: &models.CityAnalysis{}}, nil
	}}
	cfg := testConfig()
	cfg.RecursionLimit = 5
	o := newTestOrchestrator(cfg, registryWith(t, undecided), defaultInvoker())

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.ErrorIs(t, err, ErrRecursionLimit)
	assert.Equal(t, 5, state.Step)
	assert.Equal(t, int32(5), runs.Load())
	assert.False(t, state.IsComplete)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, models.StageSelection, runErr.Stage)
	assert.Equal(t, 5, runErr.Step)
}

func TestExecuteUnknownStage(t *testing.T) {
	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())

	for _, start := range []models.StageID{models.StageEnd, models.StageID(17), models.StageID(-1)} {
		state, err := o.Execute(context.Background(), seoul, start)
		assert.ErrorIs(t, err, ErrUnknownStage)
		assert.Equal(t, 0, state.Step)
		assert.Empty(t, state.StageOutputs)
	}
}

func TestExecuteStageError(t *testing.T) {
	broken := &stubStage{id: models.StageEnrichment, run: func(context.Context, *models.ExecutionState) (*stages.Outcome, error) {
		return nil, errors.New("generation backend exploded")
	}}
	o := newTestOrchestrator(testConfig(), registryWith(t, broken), defaultInvoker())

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generation backend exploded")
	assert.Equal(t, 1, state.Step)
	assert.True(t, state.StageOutputs.Has(models.StageSelection))
	assert.False(t, state.StageOutputs.Has(models.StageEnrichment))

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, models.StageEnrichment, runErr.Stage)
}

func TestExecuteStagePanicAndBadOutput(t *testing.T) {
	panicking := &stubStage{id: models.StageSelection, run: func(context.Context, *models.ExecutionState) (*stages.Outcome, error) {
		panic("index out of range")
	}}
	o := newTestOrchestrator(testConfig(), registryWith(t, panicking), defaultInvoker())
	_, err := o.Execute(context.Background(), seoul, models.StageSelection)
	assert.ErrorContains(t, err, "index out of range")

	empty := &stubStage{id: models.StageSelection, run: func(context.Context, *models.ExecutionState) (*stages.Outcome, error) {
		return &stages.Outcome{}, nil
	}}
	o = newTestOrchestrator(testConfig(), registryWith(t, empty), defaultInvoker())
	_, err = o.Execute(context.Background(), seoul, models.StageSelection)
	assert.ErrorIs(t, err, ErrNoOutput)

	mislabeled := &stubStage{id: models.StageSelection, run: func(context.Context, *models.ExecutionState) (*stages.Outcome, error) {
		return &stages.Outcome{Output: &models.Itinerary{}}, nil
	}}
	o = newTestOrchestrator(testConfig(), registryWith(t, mislabeled), defaultInvoker())
	_, err = o.Execute(context.Background(), seoul, models.StageSelection)
	assert.ErrorContains(t, err, "produced output for travel-concierge")
}

func TestExecuteTimeoutDeadline(t *testing.T) {
	slow := &stubStage{id: models.StageSelection, run: func(ctx context.Context, _ *models.ExecutionState) (*stages.Outcome, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	cfg := testConfig()
	cfg.Timeout = 20 * time.Millisecond
	o := newTestOrchestrator(cfg, registryWith(t, slow), defaultInvoker())

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, state.IsComplete)
}

func TestExecuteTimeoutElapsed(t *testing.T) {
	cfg := testConfig()
	cfg.Timeout = time.Minute
	o := newTestOrchestrator(cfg, nil, defaultInvoker())

	// Every clock read advances 50 seconds, so the second step starts past
	// the deadline.
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ticks int
	o.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * 50 * time.Second)
	}

	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, state.Step)
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())
	_, err := o.Execute(ctx, seoul, models.StageSelection)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNextIsDeterministic(t *testing.T) {
	state := models.NewExecutionState(seoul, models.StageSelection, time.Now())
	assert.Equal(t, models.StageSelection, Next(state))

	state.StageOutputs.Set(&models.CityAnalysis{SelectedCity: "Seoul"})
	first := Next(state)
	assert.Equal(t, models.StageEnrichment, first)
	assert.Equal(t, first, Next(state))

	state.CurrentStage = models.StageEnrichment
	assert.Equal(t, models.StageEnrichment, Next(state))
	state.StageOutputs.Set(&models.LocalAnalysis{Insights: []models.LocalInsight{}})
	assert.Equal(t, models.StageScheduling, Next(state))

	state.CurrentStage = models.StageScheduling
	assert.Equal(t, models.StageEnd, Next(state))

	state.CurrentStage = models.StageEnd
	assert.Equal(t, models.StageEnd, Next(state))
	assert.Len(t, state.StageOutputs, 2)
}

func TestBuildPlan(t *testing.T) {
	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())
	state, err := o.Execute(context.Background(), seoul, models.StageSelection)
	require.NoError(t, err)

	plan := BuildPlan(state)
	assert.True(t, plan.Success)
	assert.Equal(t, 3, plan.Orchestration.Steps)
	assert.Equal(t, []string{"city-selector", "local-expert", "travel-concierge"}, plan.Orchestration.StagesExecuted)
	assert.Equal(t, 8, plan.Orchestration.ToolCalls)
	assert.Equal(t, "Seoul, South Korea", plan.Itinerary.Destination)
	assert.Len(t, plan.Recommendations, 3)
	assert.Len(t, plan.Itinerary.Schedule, 5)
	assert.Equal(t, "$3375", plan.Itinerary.Budget.Amount)
	assert.NotNil(t, plan.WorkflowData.TravelLogistics)
}

func TestDescribe(t *testing.T) {
	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())
	d := o.Describe()
	assert.Equal(t, []string{"city-selector", "local-expert", "travel-concierge"}, d.Stages)
	assert.Equal(t, []string{"calculate", "search"}, d.Tools)
	assert.Equal(t, int64(5000), d.TimeoutMs)
}

func TestRunStage(t *testing.T) {
	o := newTestOrchestrator(testConfig(), nil, defaultInvoker())
	ctx := context.Background()

	out, err := o.RunStage(ctx, models.StageEnrichment, seoul, &models.CityAnalysis{SelectedCity: "Prague, Czech Republic"})
	require.NoError(t, err)
	la, ok := out.(*models.LocalAnalysis)
	require.True(t, ok)
	assert.Equal(t, "Petřín Lookout Tower", la.Insights[0].Name)

	out, err = o.RunStage(ctx, models.StageScheduling, seoul,
		&models.CityAnalysis{SelectedCity: "Prague, Czech Republic"}, la)
	require.NoError(t, err)
	it := out.(*models.Itinerary)
	assert.Equal(t, "Petřín Lookout Tower", it.Schedule[0].Activities[2].SpecificPlace)

	_, err = o.RunStage(ctx, models.StageEnd, seoul)
	assert.ErrorIs(t, err, ErrUnknownStage)
}

func TestRunStageError(t *testing.T) {
	broken := &stubStage{id: models.StageScheduling, run: func(context.Context, *models.ExecutionState) (*stages.Outcome, error) {
		return nil, errors.New("no itinerary today")
	}}
	o := newTestOrchestrator(testConfig(), registryWith(t, broken), defaultInvoker())

	_, err := o.RunStage(context.Background(), models.StageScheduling, seoul)
	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, models.StageScheduling, runErr.Stage)
	assert.Contains(t, err.Error(), "no itinerary today")
}
