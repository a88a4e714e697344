// Package aec implements real-time acoustic echo cancellation for
// full-duplex audio capture.
//
// Given a microphone signal contaminated by acoustic echo of a known
// loudspeaker reference, the canceller produces a near-end-only signal in
// which the far-end reference has been attenuated.
//
// # Architecture Overview
//
// Processing is a fixed streaming pipeline driven once per block:
//
//	mic[N], ref[N] → DelayLine(ref) → DelayEstimator → aligned ref*
//	              → DoubleTalkDetector (adapt?) → NlmsFilter (e = mic − ŷ)
//	              → ResidualSuppressor → clean[N] + metrics
//
// # Core Components
//
// ## EchoCanceller
//
// The orchestrator. Owns one instance of every pipeline stage for the
// lifetime of a session:
//
//	canceller, err := aec.New(aec.DefaultConfig())
//	clean, metrics, err := canceller.ProcessBlock(mic, ref)
//
// ## dsp
//
// The signal-processing stages: a power-of-two circular DelayLine holding
// the reference history, a cross-correlation DelayEstimator, the leaky
// normalized LMS adaptive filter, the power-ratio plus correlation
// double-talk detector, and the per-sample residual suppressor.
//
// ## rt
//
// The fixed-block-size driver exposed to the capture boundary. Splits a
// two-channel interleaved feed (left = microphone, right = reference) into
// mono blocks, drains control messages at block boundaries, and publishes
// metrics on a lock-free queue.
//
// ## audio
//
// Collaborator-side helpers: an Opus reference decoder and a float32
// resampler for far-end feeds that arrive encoded or at a foreign rate.
//
// # Real-Time Discipline
//
// Every buffer is allocated at construction. ProcessBlock and the rt
// driver's per-block path perform no allocation, hold no locks, and make
// no system calls; cross-thread communication happens only through
// bounded single-producer/single-consumer queues. The DSP path never
// aborts a block: recoverable errors produce silence plus a metric rather
// than an exception to the capture layer.
package aec
