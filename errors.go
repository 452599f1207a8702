package pipecheck

import (
	"errors"
	"fmt"
)

// Errors returned by pipecheck.
var (
	// ErrNoDevice is returned when an Instance or Manager is built without
	// a device.
	ErrNoDevice = errors.New("pipecheck: no device")

	// ErrInvalidSize is returned for zero or oversized dimensions.
	ErrInvalidSize = errors.New("pipecheck: invalid size")

	// ErrStageIndex is returned for a stage index outside the pipeline.
	ErrStageIndex = errors.New("pipecheck: stage index out of range")

	// ErrNoSource is returned when an operation needs a source image and
	// none has been set.
	ErrNoSource = errors.New("pipecheck: no source image")

	// ErrNoProgram is returned when a stage whose program failed to build
	// is asked to render.
	ErrNoProgram = errors.New("pipecheck: stage has no program")

	// ErrNoBCResult is returned when metrics are requested before a block
	// compression round trip completed.
	ErrNoBCResult = errors.New("pipecheck: no compressed result")

	// ErrDestroyed is returned by a destroyed Instance.
	ErrDestroyed = errors.New("pipecheck: instance destroyed")

	// ErrUnknownInstance is returned by a Manager for an unknown ID.
	ErrUnknownInstance = errors.New("pipecheck: unknown instance")
)

// StageError reports a failure inside one stage. The stage is bypassed
// for the frame; the rest of the chain still renders.
type StageError struct {
	Index int
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("pipecheck: stage %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
