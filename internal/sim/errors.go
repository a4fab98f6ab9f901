package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrOwnership means a particle is owned by the wrong rank, or the owned
	// counts no longer add up to the population.
	ErrOwnership = errors.New("sim: ownership invariant violated")

	// ErrInvalidConfig indicates a run configuration that cannot be simulated.
	ErrInvalidConfig = errors.New("sim: invalid configuration")
)

// StepError wraps a pipeline failure with where it happened.
type StepError struct {
	Rank  int
	Step  int
	Phase Phase
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("rank %d step %d %s: %v", e.Rank, e.Step, e.Phase, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
