package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpataki/trek/internal/models"
	"github.com/mpataki/trek/internal/stages"
)

type Config struct {
	RecursionLimit int
	Timeout        time.Duration
	ToolsEnabled   bool
}

func DefaultConfig() Config {
	return Config{
		RecursionLimit: 150,
		Timeout:        300 * time.Second,
		ToolsEnabled:   true,
	}
}

// ToolInvoker runs the tool requests a stage makes.
type ToolInvoker interface {
	Invoke(ctx context.Context, reqs []models.ToolRequest) []models.ToolCallRecord
	Names() []string
}

type Orchestrator struct {
	cfg    Config
	stages *stages.Registry
	tools  ToolInvoker
	now    func() time.Time
	logger *slog.Logger
}

func New(cfg Config, registry *stages.Registry, tools ToolInvoker, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:    cfg,
		stages: registry,
		tools:  tools,
		now:    time.Now,
		logger: logger,
	}
}

// Execute runs the pipeline from start until a stage completes it. The
// returned state is never nil; on error it holds whatever the run produced
// before failing.
func (o *Orchestrator) Execute(ctx context.Context, input models.Preferences, start models.StageID) (*models.ExecutionState, error) {
	started := o.now()
	state := models.NewExecutionState(input, start, started)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	for !state.IsComplete && state.Step < o.cfg.RecursionLimit {
		if o.now().Sub(started) > o.cfg.Timeout || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return state, o.fail(state, ErrTimeout)
		}
		if err := ctx.Err(); err != nil {
			return state, o.fail(state, err)
		}

		o.logger.Debug("executing step", "step", state.Step, "stage", state.CurrentStage)

		if err := o.executeStep(ctx, state); err != nil {
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				err = fmt.Errorf("%w: %v", ErrTimeout, err)
			}
			return state, o.fail(state, err)
		}
	}

	if !state.IsComplete {
		return state, o.fail(state, ErrRecursionLimit)
	}

	o.logger.Info("workflow complete",
		"steps", state.Step,
		"tool_calls", len(state.ToolCalls),
		"elapsed", o.now().Sub(started))
	return state, nil
}

// RunStage runs a single stage outside the pipeline, seeded with the given
// outputs of earlier stages. Tool requests are honoured; routing is not.
func (o *Orchestrator) RunStage(ctx context.Context, id models.StageID, input models.Preferences, prior ...models.StageOutput) (models.StageOutput, error) {
	if !id.Runnable() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStage, id)
	}
	state := models.NewExecutionState(input, id, o.now())
	for _, out := range prior {
		if out != nil {
			state.StageOutputs.Set(out)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	o.logger.Debug("running single stage", "stage", id)
	if err := o.executeStep(ctx, state); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		state.CurrentStage = id
		return nil, o.fail(state, err)
	}
	return state.StageOutputs[id], nil
}

func (o *Orchestrator) executeStep(ctx context.Context, state *models.ExecutionState) error {
	stage, ok := o.stages.Lookup(state.CurrentStage)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStage, state.CurrentStage)
	}

	outcome, err := runStage(ctx, stage, state)
	if err != nil {
		return err
	}
	if outcome == nil || outcome.Output == nil {
		return ErrNoOutput
	}
	if got := outcome.Output.Stage(); got != state.CurrentStage {
		return fmt.Errorf("stage %s produced output for %s", state.CurrentStage, got)
	}

	if len(outcome.ToolRequests) > 0 {
		o.runTools(ctx, state, outcome.ToolRequests)
	}

	state.StageOutputs.Set(outcome.Output)
	state.AppendMessage(models.Message{
		Role:      models.RoleAssistant,
		Stage:     state.CurrentStage.String(),
		Content:   outcome.Summary,
		Timestamp: o.now(),
	})
	state.Step++

	if outcome.Complete {
		o.complete(state, outcome.Output)
		return nil
	}

	next := Next(state)
	o.logger.Info("routing", "from", state.CurrentStage, "to", next)
	state.CurrentStage = next
	if next == models.StageEnd {
		o.complete(state, outcome.Output)
	}
	return nil
}

// runStage converts a panicking stage into an error.
func runStage(ctx context.Context, stage stages.Stage, state *models.ExecutionState) (outcome *stages.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.ID(), r)
		}
	}()
	return stage.Run(ctx, state)
}

func (o *Orchestrator) runTools(ctx context.Context, state *models.ExecutionState, reqs []models.ToolRequest) {
	if !o.cfg.ToolsEnabled || o.tools == nil {
		o.logger.Debug("tools disabled, skipping requests", "stage", state.CurrentStage, "count", len(reqs))
		return
	}

	o.logger.Debug("executing tool calls", "stage", state.CurrentStage, "count", len(reqs))
	records := o.tools.Invoke(ctx, reqs)
	state.ToolCalls = append(state.ToolCalls, records...)
	state.AppendMessage(models.Message{
		Role:      models.RoleTool,
		Stage:     state.CurrentStage.String(),
		Content:   records,
		Timestamp: o.now(),
	})
}

func (o *Orchestrator) complete(state *models.ExecutionState, out models.StageOutput) {
	state.IsComplete = true
	state.TerminalOutput = out
}

func (o *Orchestrator) fail(state *models.ExecutionState, err error) error {
	o.logger.Error("workflow failed", "stage", state.CurrentStage, "step", state.Step, "error", err)
	return &RunError{Stage: state.CurrentStage, Step: state.Step, Err: err}
}

// Describe reports the orchestrator's configuration for health checks.
func (o *Orchestrator) Describe() Description {
	d := Description{
		RecursionLimit: o.cfg.RecursionLimit,
		TimeoutMs:      o.cfg.Timeout.Milliseconds(),
		ToolsEnabled:   o.cfg.ToolsEnabled,
	}
	for _, id := range o.stages.IDs() {
		d.Stages = append(d.Stages, id.String())
	}
	if o.tools != nil && o.cfg.ToolsEnabled {
		d.Tools = o.tools.Names()
	}
	return d
}

type Description struct {
	Stages         []string `json:"agents"`
	Tools          []string `json:"tools"`
	RecursionLimit int      `json:"recursionLimit"`
	TimeoutMs      int64    `json:"timeoutMs"`
	ToolsEnabled   bool     `json:"toolsEnabled"`
}
