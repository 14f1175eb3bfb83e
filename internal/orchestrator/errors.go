package orchestrator

import (
	"errors"
	"fmt"

	"github.com/mpataki/trek/internal/models"
)

var (
	ErrTimeout        = errors.New("workflow timeout exceeded")
	ErrRecursionLimit = errors.New("workflow exceeded recursion limit")
	ErrUnknownStage   = errors.New("stage not found")
	ErrNoOutput       = errors.New("stage returned no output")
)

// RunError is returned for every run-fatal failure and records where the run
// stopped.
type RunError struct {
	Stage models.StageID
	Step  int
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run failed at step %d (%s): %v", e.Step, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
