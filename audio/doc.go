// Package audio provides collaborator-side helpers for feeding the echo
// canceller's far-end reference.
//
// The canceller core consumes float32 PCM blocks at a fixed negotiated
// rate. Real capture stacks rarely hand the loudspeaker feed over in that
// shape: system-audio taps deliver Opus frames, and playback devices run
// at foreign rates. This package bridges both gaps off the real-time
// path:
//
//   - ReferenceDecoder decodes an Opus-encoded far-end stream into mono
//     float32 samples in [-1, 1]
//   - Resampler converts a mono float32 stream between sample rates using
//     linear interpolation
//
// Neither helper is meant to run inside the capture callback; decode and
// resample the reference on the feeder thread, then hand fixed-size
// blocks to the processor.
package audio
