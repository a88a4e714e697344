// Package rt drives the echo canceller from a real-time capture callback.
//
// The BlockProcessor is the boundary between the capture collaborator and
// the DSP core. The capture layer hands it fixed-size frames of
// two-channel interleaved samples (left = microphone, right = loudspeaker
// reference); the processor splits them into mono blocks, runs the
// canceller, and writes the cleaned mono block back out.
//
// # Control and Metrics
//
// Control messages (Start, Stop, Reset, GetMetrics, SetConfig) travel on a
// bounded single-producer/single-consumer ring and are drained at the top
// of each block, so every command takes effect at a block boundary.
// Responses and periodic metrics snapshots are enqueued on a second ring
// that the collaborator drains at its own cadence; when that ring
// overflows, the oldest snapshot is dropped rather than blocking the
// capture thread.
//
// # Real-Time Discipline
//
// The per-block path never allocates, never locks, and never performs
// I/O. While stopped, the processor passes the microphone channel through
// unchanged so the capture path keeps glitch-free timing.
package rt
