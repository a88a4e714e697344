package aec

import "errors"

// Sentinel errors for the canceller's public surface.
// These errors enable reliable error classification using errors.Is().

// Construction errors. Fatal to the session.
var (
	// ErrConfiguration indicates invalid construction parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrRateMismatch indicates the capture source produced a sample rate
	// other than the one negotiated at construction. Fatal; the session
	// must be re-initialized.
	ErrRateMismatch = errors.New("sample rate mismatch")
)

// Per-block errors. Recoverable; processing continues. A size mismatch
// replaces the block with silence; non-finite input zeroes only the
// affected output samples.
var (
	// ErrBlockSizeMismatch indicates mic/ref lengths disagree with the
	// configured block size.
	ErrBlockSizeMismatch = errors.New("block size mismatch")

	// ErrNonFiniteInput indicates a NaN or Inf sample was encountered.
	ErrNonFiniteInput = errors.New("non-finite input sample")
)
