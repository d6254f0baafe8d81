package cegar

import (
	"errors"
	"fmt"
)

// ErrIterationLimit is returned when a check needs more iterations than
// allowed by WithMaxIterations.
var ErrIterationLimit = errors.New("iteration limit reached")

// Phase names the part of an iteration a failure happened in.
type Phase string

const (
	PhaseAbstraction Phase = "abstraction"
	PhaseRefinement  Phase = "refinement"
	PhaseSetup       Phase = "setup"
)

// CheckError is a collaborator failure that ended a check. The loop does not
// retry. Stats holds what was measured up to the failure.
type CheckError struct {
	Iteration int
	Phase     Phase
	Err       error
	Stats     Statistics
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("cegar iteration %d, %s: %v", e.Iteration, e.Phase, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }
