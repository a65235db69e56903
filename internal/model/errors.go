package model

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrModelBuild reports a topology that cannot be instantiated.
	ErrModelBuild = errors.New("model build failed")

	// ErrInputShape reports a batch whose shape does not match the model input.
	ErrInputShape = errors.New("input shape mismatch")
)

// BuildError provides detailed information about a layer that failed to build.
type BuildError struct {
	Index  int    // Position in the layer list, -1 for model-level errors
	Layer  string // Layer config description
	Reason string
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%v: %s", ErrModelBuild, e.Reason)
	}
	return fmt.Sprintf("%v: layer %d (%s): %s", ErrModelBuild, e.Index, e.Layer, e.Reason)
}

// Is reports ErrModelBuild so callers can use errors.Is.
func (e *BuildError) Is(target error) bool {
	return target == ErrModelBuild
}
