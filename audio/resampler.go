package audio

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Resampler converts a mono float32 stream between sample rates.
//
// Linear interpolation keeps the conversion cheap and dependency-free,
// which is sufficient quality for a cancellation reference: the NLMS
// filter identifies whatever path the reference actually took, including
// the interpolation. State carries across calls so consecutive chunks of a
// stream join without discontinuities.
type Resampler struct {
	inputRate  int
	outputRate int
	last       float32
	position   float64
}

// NewResampler creates a resampler from inputRate to outputRate.
//
// Parameters:
//   - inputRate: source stream rate in Hz
//   - outputRate: rate the canceller session was negotiated at
//
// Returns:
//   - *Resampler: new resampler instance
//   - error: validation error if either rate is not positive
func NewResampler(inputRate, outputRate int) (*Resampler, error) {
	logrus.WithFields(logrus.Fields{
		"function":    "NewResampler",
		"input_rate":  inputRate,
		"output_rate": outputRate,
	}).Info("Creating reference resampler")

	if inputRate <= 0 || outputRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: input=%d, output=%d", inputRate, outputRate)
	}

	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
	}, nil
}

// InputRate returns the configured source rate.
func (r *Resampler) InputRate() int {
	return r.inputRate
}

// OutputRate returns the configured target rate.
func (r *Resampler) OutputRate() int {
	return r.outputRate
}

// OutputSize estimates the number of output samples produced for an input
// of the given size, useful for preallocating feeder buffers.
func (r *Resampler) OutputSize(inputSize int) int {
	if r.inputRate == r.outputRate {
		return inputSize
	}
	return int(float64(inputSize)*float64(r.outputRate)/float64(r.inputRate) + 0.5)
}

// Resample converts one chunk of the stream. The returned slice is newly
// allocated; the resampler is meant for the feeder thread, not the capture
// callback.
func (r *Resampler) Resample(input []float32) ([]float32, error) {
	if len(input) == 0 {
		return nil, fmt.Errorf("empty input samples")
	}

	if r.inputRate == r.outputRate {
		out := make([]float32, len(input))
		copy(out, input)
		return out, nil
	}

	ratio := float64(r.inputRate) / float64(r.outputRate)
	outputFrames := int(float64(len(input))/ratio + 0.5)
	output := make([]float32, 0, outputFrames)

	for frame := 0; frame < outputFrames; frame++ {
		index := int(r.position)
		frac := float32(r.position - float64(index))

		var sample float32
		switch {
		case r.position < 0:
			// Before the chunk: interpolate from the previous call's tail
			// (position -1) to the chunk's first sample (position 0).
			t := float32(r.position + 1)
			if t < 0 {
				t = 0
			}
			sample = r.last*(1-t) + input[0]*t
		case index >= len(input)-1:
			sample = input[len(input)-1]
		default:
			sample = input[index]*(1-frac) + input[index+1]*frac
		}
		output = append(output, sample)

		r.position += ratio
	}

	r.position -= float64(len(input))
	r.last = input[len(input)-1]

	logrus.WithFields(logrus.Fields{
		"function":      "Resampler.Resample",
		"input_length":  len(input),
		"output_length": len(output),
		"position":      r.position,
	}).Debug("Reference chunk resampled")

	return output, nil
}

// Reset clears the inter-chunk interpolation state, for use at stream
// discontinuities.
func (r *Resampler) Reset() {
	r.position = 0
	r.last = 0
}
