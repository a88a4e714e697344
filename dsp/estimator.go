package dsp

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// silenceFloor is the block sum-of-squares below which a signal is treated
// as silent for the purposes of delay tracking.
const silenceFloor = 1e-12

// estimatorSmoothing is the EMA coefficient applied to new peak lags.
const estimatorSmoothing = 0.1

// DelayEstimator tracks the integer bulk delay between the far-end
// reference and the microphone signal.
//
// For every block it computes the un-normalized cross-correlation between
// the microphone block and the reference history held by the delay line,
// picks the lag with the largest magnitude, and folds it into an
// exponentially smoothed estimate. The full correlation is recomputed each
// block; at the configured maximum delay of a few hundred samples this
// stays well inside the block budget.
//
// When both signals are near-silent the estimate is held, since the
// correlation surface carries no information.
type DelayEstimator struct {
	maxDelay int
	estimate float32
}

// NewDelayEstimator creates an estimator tracking delays in [0, maxDelay].
//
// Parameters:
//   - maxDelay: largest lag, in samples, the estimator will consider
//
// Returns:
//   - *DelayEstimator: new estimator seeded at delay 0
//   - error: ErrConfiguration if maxDelay is negative
func NewDelayEstimator(maxDelay int) (*DelayEstimator, error) {
	if maxDelay < 0 {
		logrus.WithFields(logrus.Fields{
			"function":  "NewDelayEstimator",
			"max_delay": maxDelay,
		}).Error("Delay estimator validation failed")
		return nil, fmt.Errorf("%w: max delay must be non-negative, got %d", ErrConfiguration, maxDelay)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewDelayEstimator",
		"max_delay": maxDelay,
	}).Debug("Delay estimator created")

	return &DelayEstimator{maxDelay: maxDelay}, nil
}

// Update advances the estimate using one microphone block against the
// reference history in line. The line must already contain the reference
// block that arrived together with mic.
//
// Returns the rounded current delay estimate in samples.
func (e *DelayEstimator) Update(mic []float32, line *DelayLine) int {
	n := len(mic)
	if n == 0 {
		return e.Estimate()
	}

	var micEnergy float64
	for _, s := range mic {
		micEnergy += float64(s) * float64(s)
	}

	// Reference energy over the zero-lag window.
	var refEnergy float64
	for i := 0; i < n; i++ {
		r := float64(line.at(uint32(n - 1 - i)))
		refEnergy += r * r
	}

	if micEnergy < silenceFloor && refEnergy < silenceFloor {
		return e.Estimate()
	}

	bestLag := 0
	bestMag := float32(0)
	for k := 0; k <= e.maxDelay; k++ {
		var r float32
		for i := 0; i < n; i++ {
			// Reference sample i-k in block time is k+n-1-i samples back.
			r += mic[i] * line.at(uint32(k+n-1-i))
		}
		mag := r
		if mag < 0 {
			mag = -mag
		}
		if mag > bestMag {
			bestMag = mag
			bestLag = k
		}
	}

	// A flat correlation surface carries no delay information.
	if float64(bestMag) < silenceFloor {
		return e.Estimate()
	}

	e.estimate += estimatorSmoothing * (float32(bestLag) - e.estimate)

	return e.Estimate()
}

// Estimate returns the current smoothed delay, rounded to the nearest
// integer sample.
func (e *DelayEstimator) Estimate() int {
	d := int(e.estimate + 0.5)
	if d < 0 {
		d = 0
	}
	if d > e.maxDelay {
		d = e.maxDelay
	}
	return d
}

// MaxDelay returns the configured upper bound in samples.
func (e *DelayEstimator) MaxDelay() int {
	return e.maxDelay
}

// Reset reseeds the estimate at zero delay.
func (e *DelayEstimator) Reset() {
	e.estimate = 0
}
