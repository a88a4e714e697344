package dsp

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

const (
	// powerSmoothing is the EMA coefficient for the reference power estimate.
	powerSmoothing = 0.05

	// adaptationGate is the instantaneous far-end power below which tap
	// updates are skipped. Without the gate, a near-silent reference would
	// drive the normalized step toward mu/regularization and diverge.
	adaptationGate = 1e-6

	// initialPower seeds the reference power estimate after construction
	// and reset.
	initialPower = 1e-6
)

// NlmsFilter is a leaky normalized least-mean-squares adaptive FIR filter
// identifying the loudspeaker-to-microphone echo path.
//
// The filter owns only its tap vector and power estimate; the reference
// history lives in the DelayLine shared with the rest of the pipeline, and
// the inner loop reads it in place. Keeping the taps and the history
// separate avoids constructing a reference vector per sample.
//
// Updates run per sample rather than per block, which keeps the filter
// tracking while it converges. Each update costs O(length); at the default
// 512 taps and 128-sample blocks that is roughly 65k multiply-accumulates
// per block, well inside the real-time budget.
type NlmsFilter struct {
	taps           []float32
	power          float32
	stepSize       float32
	leakage        float32
	regularization float32
}

// NewNlmsFilter creates an adaptive filter with the given tap count.
//
// Parameters:
//   - length: number of FIR taps; fixed for the lifetime of the filter
//   - stepSize: adaptation rate mu, typically 0.05-0.3
//   - leakage: per-update tap decay lambda, slightly below 1
//   - regularization: denominator floor delta for the normalized step
//
// Returns:
//   - *NlmsFilter: new filter with zeroed taps
//   - error: ErrConfiguration if any parameter is out of range
func NewNlmsFilter(length int, stepSize, leakage, regularization float32) (*NlmsFilter, error) {
	logrus.WithFields(logrus.Fields{
		"function":       "NewNlmsFilter",
		"length":         length,
		"step_size":      stepSize,
		"leakage":        leakage,
		"regularization": regularization,
	}).Debug("Creating NLMS filter")

	if length <= 0 {
		return nil, fmt.Errorf("%w: filter length must be positive, got %d", ErrConfiguration, length)
	}
	if stepSize <= 0 || stepSize > 2 {
		return nil, fmt.Errorf("%w: step size must be in (0, 2], got %g", ErrConfiguration, stepSize)
	}
	if leakage <= 0 || leakage > 1 {
		return nil, fmt.Errorf("%w: leakage must be in (0, 1], got %g", ErrConfiguration, leakage)
	}
	if regularization <= 0 {
		return nil, fmt.Errorf("%w: regularization must be positive, got %g", ErrConfiguration, regularization)
	}

	return &NlmsFilter{
		taps:           make([]float32, length),
		power:          initialPower,
		stepSize:       stepSize,
		leakage:        leakage,
		regularization: regularization,
	}, nil
}

// Length returns the tap count.
func (f *NlmsFilter) Length() int {
	return len(f.taps)
}

// ProcessBlock runs the per-sample filter over one block.
//
// For each microphone sample it predicts the echo from the delay-line
// history aligned at delay, emits the error (echo-cancelled) sample into
// out, and, when adapt is true and the instantaneous reference power clears
// the gate, performs the leaky NLMS tap update.
//
// The line must already contain the reference block paired with mic, and
// delay+len(mic)+Length() must not exceed the line's capacity; the
// orchestrator guarantees both.
func (f *NlmsFilter) ProcessBlock(mic []float32, line *DelayLine, delay int, adapt bool, out []float32) {
	n := len(mic)
	taps := f.taps
	l := len(taps)

	for i := 0; i < n; i++ {
		// Most recent aligned reference sample for this output position.
		base := uint32(delay + n - 1 - i)

		var estimate float32
		for j := 0; j < l; j++ {
			estimate += taps[j] * line.at(base+uint32(j))
		}

		err := mic[i] - estimate
		out[i] = err

		if !adapt {
			continue
		}

		x0 := line.at(base)
		instant := x0 * x0
		if instant <= adaptationGate {
			continue
		}

		f.power = (1-powerSmoothing)*f.power + powerSmoothing*instant
		refPower := f.power*float32(l) + f.regularization
		step := f.stepSize / refPower

		g := step * err
		for j := 0; j < l; j++ {
			taps[j] = f.leakage*taps[j] + g*line.at(base+uint32(j))
		}
	}
}

// Taps returns a copy of the current tap vector, primarily for inspection
// and tests.
func (f *NlmsFilter) Taps() []float32 {
	out := make([]float32, len(f.taps))
	copy(out, f.taps)
	return out
}

// TapNorm returns the Euclidean norm of the tap vector.
func (f *NlmsFilter) TapNorm() float64 {
	var sum float64
	for _, w := range f.taps {
		sum += float64(w) * float64(w)
	}
	return math.Sqrt(sum)
}

// SetStepSize updates the adaptation rate.
func (f *NlmsFilter) SetStepSize(stepSize float32) error {
	if stepSize <= 0 || stepSize > 2 {
		return fmt.Errorf("%w: step size must be in (0, 2], got %g", ErrConfiguration, stepSize)
	}
	f.stepSize = stepSize
	return nil
}

// SetLeakage updates the per-update tap decay.
func (f *NlmsFilter) SetLeakage(leakage float32) error {
	if leakage <= 0 || leakage > 1 {
		return fmt.Errorf("%w: leakage must be in (0, 1], got %g", ErrConfiguration, leakage)
	}
	f.leakage = leakage
	return nil
}

// SetRegularization updates the denominator floor.
func (f *NlmsFilter) SetRegularization(regularization float32) error {
	if regularization <= 0 {
		return fmt.Errorf("%w: regularization must be positive, got %g", ErrConfiguration, regularization)
	}
	f.regularization = regularization
	return nil
}

// Reset zeroes the taps and reseeds the power estimate.
func (f *NlmsFilter) Reset() {
	for i := range f.taps {
		f.taps[i] = 0
	}
	f.power = initialPower
}
