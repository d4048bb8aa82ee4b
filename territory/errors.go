package territory

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure modes that abort a run.
var (
	// ErrInvalidBoundary means the boundary polygon is missing, empty, or
	// could not be repaired into a valid geometry.
	ErrInvalidBoundary = errors.New("invalid boundary polygon")

	// ErrInsufficientOwners means fewer than the minimum number of owners
	// or tessellation sites survived filtering. Tessellation is undefined
	// below 2 sites; this is a data/configuration error, never retried.
	ErrInsufficientOwners = errors.New("insufficient owners for tessellation")
)

// Stage names carried by StageError, in pipeline order.
const (
	StageFilter     = "filter"
	StageDedup      = "dedup"
	StageTessellate = "tessellate"
	StageAttribute  = "attribute"
	StageDissolve   = "dissolve"
	StageClip       = "clip"
	StageFragments  = "fragments"
	StageAnomaly    = "anomaly"
	StageValidate   = "validate"
)

// StageError wraps a failure with the pipeline stage and the input
// cardinalities at failure time, so an operator can diagnose a run without
// re-instrumenting it.
type StageError struct {
	Stage  string
	Owners int
	Points int
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s (owners=%d points=%d): %v", e.Stage, e.Owners, e.Points, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage string, owners, points int, err error) error {
	return &StageError{Stage: stage, Owners: owners, Points: points, Err: err}
}
