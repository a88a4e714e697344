// Package dsp implements the signal-processing components of the echo
// canceller pipeline.
//
// This package provides the building blocks that the aec.EchoCanceller
// orchestrates once per block:
//
//   - DelayLine: power-of-two circular sample buffer holding the far-end
//     reference history
//   - DelayEstimator: cross-correlation tracker of the bulk far-end to
//     near-end delay
//   - NlmsFilter: leaky normalized least-mean-squares adaptive FIR
//     identifier of the echo path
//   - DoubleTalkDetector: power-ratio plus correlation detector with a
//     hangover state machine that gates adaptation
//   - ResidualSuppressor: per-sample gain that attenuates residual echo
//     while the reference is active
//
// # Design Overview
//
// The components form a fixed pipeline and are deliberately concrete types
// rather than interfaces: there is exactly one algorithm per stage and the
// orchestrator owns one instance of each for the lifetime of a session.
//
// All samples are 32-bit floats in [-1.0, +1.0]. Every buffer is allocated
// at construction; the per-sample loops perform no allocation, hold no
// locks, and make no system calls, which keeps them safe to run inside a
// real-time audio callback.
//
// Processing is strictly deterministic: given identical inputs and
// identical starting state, two runs produce bit-identical outputs.
package dsp
