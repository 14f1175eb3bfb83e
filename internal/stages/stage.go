package stages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mpataki/trek/internal/llm"
	"github.com/mpataki/trek/internal/models"
)

// Outcome is what a stage hands back to the orchestrator after one turn.
type Outcome struct {
	Summary      string
	Output       models.StageOutput
	ToolRequests []models.ToolRequest
	Complete     bool
}

// Stage is one step of the planning pipeline. Run reads the run's input and
// earlier outputs from state and must not modify it.
type Stage interface {
	ID() models.StageID
	Run(ctx context.Context, state *models.ExecutionState) (*Outcome, error)
}

// Registry is a fixed table of stages indexed by StageID.
type Registry struct {
	stages [models.NumStages]Stage
}

// NewRegistry requires exactly one stage per runnable StageID.
func NewRegistry(stages ...Stage) (*Registry, error) {
	r := &Registry{}
	for _, s := range stages {
		id := s.ID()
		if !id.Runnable() {
			return nil, fmt.Errorf("stage %s is not runnable", id)
		}
		if r.stages[id] != nil {
			return nil, fmt.Errorf("stage %s registered twice", id)
		}
		r.stages[id] = s
	}
	for i, s := range r.stages {
		if s == nil {
			return nil, fmt.Errorf("no stage registered for %s", models.StageID(i))
		}
	}
	return r, nil
}

// Lookup returns the stage for id, or false for the terminal sentinel and
// out-of-range ids.
func (r *Registry) Lookup(id models.StageID) (Stage, bool) {
	if !id.Runnable() {
		return nil, false
	}
	return r.stages[id], true
}

// IDs lists the registered stages in pipeline order.
func (r *Registry) IDs() []models.StageID {
	ids := make([]models.StageID, 0, len(r.stages))
	for _, s := range r.stages {
		ids = append(ids, s.ID())
	}
	return ids
}

// Options are shared by the built-in stages. A nil Generator makes every
// stage use its local fallback.
type Options struct {
	Generator llm.Generator
	Logger    *slog.Logger
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Default builds the registry of the three built-in stages.
func Default(opts Options) *Registry {
	r, err := NewRegistry(NewSelection(opts), NewEnrichment(opts), NewScheduling(opts))
	if err != nil {
		panic(err)
	}
	return r
}

func NewSelection(opts Options) *Selection {
	return &Selection{opts: opts.withDefaults()}
}

func NewEnrichment(opts Options) *Enrichment {
	return &Enrichment{opts: opts.withDefaults()}
}

func NewScheduling(opts Options) *Scheduling {
	return &Scheduling{opts: opts.withDefaults()}
}

// generate asks the model for a document and reports whether it is usable.
// Any failure is logged and reported as false so the caller falls back.
func generate(ctx context.Context, opts Options, stage models.StageID, prompt string, schema map[string]any, dst any, usable func() bool) bool {
	if opts.Generator == nil {
		return false
	}
	if err := opts.Generator.GenerateJSON(ctx, prompt, schema, dst); err != nil {
		opts.Logger.Warn("generation failed, using fallback", "stage", stage, "error", err)
		return false
	}
	if !usable() {
		opts.Logger.Warn("generation incomplete, using fallback", "stage", stage)
		return false
	}
	return true
}
