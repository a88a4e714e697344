package dsp

import "errors"

// Sentinel errors for dsp package operations.
// These errors enable reliable classification with errors.Is().
var (
	// ErrConfiguration indicates invalid construction parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrOutOfRange indicates a delay-line read beyond the buffer capacity.
	ErrOutOfRange = errors.New("offset out of range")
)
