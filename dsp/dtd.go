package dsp

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// DtdState is the current decision state of the double-talk detector.
type DtdState int

const (
	// DtdIdle indicates no significant far-end activity.
	DtdIdle DtdState = iota
	// DtdSingleTalk indicates far-end activity with no detected near-end talker.
	DtdSingleTalk
	// DtdDoubleTalk indicates simultaneous near-end and far-end activity.
	DtdDoubleTalk
	// DtdHold indicates the hangover period following double-talk.
	DtdHold
)

// String returns a human-readable state name.
func (s DtdState) String() string {
	switch s {
	case DtdIdle:
		return "Idle"
	case DtdSingleTalk:
		return "SingleTalk"
	case DtdDoubleTalk:
		return "DoubleTalk"
	case DtdHold:
		return "Hold"
	default:
		return "Unknown"
	}
}

const (
	// dtdPowerSmoothing is the EMA coefficient on the near, far, and cross
	// power estimates.
	dtdPowerSmoothing = 0.95

	// dtdFarActive is the smoothed far-end power above which the far end is
	// considered active.
	dtdFarActive = 1e-6

	// dtdFarSilent is the smoothed far-end power below which the far end is
	// considered silent. The gap between the two thresholds gives the state
	// machine hysteresis.
	dtdFarSilent = 1e-7

	// dtdPowerEpsilon floors the far-end power in the ratio test.
	dtdPowerEpsilon = 1e-10
)

// DoubleTalkDetector gates NLMS adaptation.
//
// The detector fuses two per-block tests:
//
//   - a Geigel-style power-ratio test that catches loud near-end bursts
//   - a normalized cross-correlation test over a sample window that catches
//     near-end speech whose envelope tracks the reference poorly
//
// The OR of the two drives a four-state machine (Idle, SingleTalk,
// DoubleTalk, Hold) with a hangover countdown. The fusion errs on the side
// of freezing the filter: a frozen filter recovers faster than a diverged
// one.
type DoubleTalkDetector struct {
	nearPower  float32
	farPower   float32
	crossPower float32

	state    DtdState
	hangover int // samples remaining in Hold

	hangoverLength       int // samples
	powerRatioThreshold  float32
	correlationThreshold float32

	winMic  []float32
	winRef  []float32
	winPos  int
	winFill int
}

// NewDoubleTalkDetector creates a detector.
//
// Parameters:
//   - windowSize: sample count of the correlation window
//   - hangoverLength: samples the detector holds after double-talk clears
//   - powerRatioThreshold: near/far power ratio that declares double-talk
//   - correlationThreshold: |correlation| below which double-talk is declared
//
// Returns:
//   - *DoubleTalkDetector: new detector in the Idle state
//   - error: ErrConfiguration if any parameter is out of range
func NewDoubleTalkDetector(windowSize, hangoverLength int, powerRatioThreshold, correlationThreshold float32) (*DoubleTalkDetector, error) {
	logrus.WithFields(logrus.Fields{
		"function":              "NewDoubleTalkDetector",
		"window_size":           windowSize,
		"hangover_length":       hangoverLength,
		"power_ratio_threshold": powerRatioThreshold,
		"correlation_threshold": correlationThreshold,
	}).Debug("Creating double-talk detector")

	if windowSize <= 0 {
		return nil, fmt.Errorf("%w: window size must be positive, got %d", ErrConfiguration, windowSize)
	}
	if hangoverLength < 0 {
		return nil, fmt.Errorf("%w: hangover length must be non-negative, got %d", ErrConfiguration, hangoverLength)
	}
	if powerRatioThreshold <= 0 {
		return nil, fmt.Errorf("%w: power ratio threshold must be positive, got %g", ErrConfiguration, powerRatioThreshold)
	}
	if correlationThreshold <= 0 || correlationThreshold > 1 {
		return nil, fmt.Errorf("%w: correlation threshold must be in (0, 1], got %g", ErrConfiguration, correlationThreshold)
	}

	return &DoubleTalkDetector{
		state:                DtdIdle,
		hangoverLength:       hangoverLength,
		powerRatioThreshold:  powerRatioThreshold,
		correlationThreshold: correlationThreshold,
		winMic:               make([]float32, windowSize),
		winRef:               make([]float32, windowSize),
	}, nil
}

// ProcessBlock updates the detector with one microphone block and the
// time-aligned reference block, advances the state machine, and reports
// whether NLMS adaptation is allowed for this block.
func (d *DoubleTalkDetector) ProcessBlock(mic, ref []float32) bool {
	d.updatePowers(mic, ref)
	d.pushWindow(mic, ref)

	dt := d.decide()
	d.advance(dt, len(mic))

	return d.state != DtdDoubleTalk && d.state != DtdHold
}

// updatePowers folds the block's mean powers into the smoothed estimates.
func (d *DoubleTalkDetector) updatePowers(mic, ref []float32) {
	n := len(mic)
	if n == 0 {
		return
	}

	var pn, pf, pnf float32
	for i := 0; i < n; i++ {
		pn += mic[i] * mic[i]
		pf += ref[i] * ref[i]
		pnf += mic[i] * ref[i]
	}
	inv := 1 / float32(n)
	pn *= inv
	pf *= inv
	pnf *= inv

	d.nearPower = dtdPowerSmoothing*d.nearPower + (1-dtdPowerSmoothing)*pn
	d.farPower = dtdPowerSmoothing*d.farPower + (1-dtdPowerSmoothing)*pf
	d.crossPower = dtdPowerSmoothing*d.crossPower + (1-dtdPowerSmoothing)*pnf
}

// pushWindow appends the block to the correlation window rings.
func (d *DoubleTalkDetector) pushWindow(mic, ref []float32) {
	size := len(d.winMic)
	for i := range mic {
		d.winMic[d.winPos] = mic[i]
		d.winRef[d.winPos] = ref[i]
		d.winPos++
		if d.winPos == size {
			d.winPos = 0
		}
	}
	d.winFill += len(mic)
	if d.winFill > size {
		d.winFill = size
	}
}

// decide evaluates the fused double-talk decision for the current block.
func (d *DoubleTalkDetector) decide() bool {
	powerTest := d.nearPower/(d.farPower+dtdPowerEpsilon) > d.powerRatioThreshold

	rho := d.windowCorrelation()
	correlationTest := float32(math.Abs(rho)) < d.correlationThreshold

	return powerTest || correlationTest
}

// windowCorrelation computes the zero-mean normalized cross-correlation of
// the windowed microphone and reference histories. Returns 0 when either
// window has no variance.
func (d *DoubleTalkDetector) windowCorrelation() float64 {
	n := d.winFill
	if n == 0 {
		return 0
	}

	var sumM, sumR float64
	for i := 0; i < n; i++ {
		sumM += float64(d.winMic[i])
		sumR += float64(d.winRef[i])
	}
	meanM := sumM / float64(n)
	meanR := sumR / float64(n)

	var cross, varM, varR float64
	for i := 0; i < n; i++ {
		dm := float64(d.winMic[i]) - meanM
		dr := float64(d.winRef[i]) - meanR
		cross += dm * dr
		varM += dm * dm
		varR += dr * dr
	}

	if varM < silenceFloor || varR < silenceFloor {
		return 0
	}
	return cross / math.Sqrt(varM*varR)
}

// advance runs one state-machine step. blockSize is the number of samples
// the hangover countdown consumes per block.
func (d *DoubleTalkDetector) advance(dt bool, blockSize int) {
	switch d.state {
	case DtdIdle:
		if d.farPower > dtdFarActive {
			if dt {
				d.state = DtdDoubleTalk
				d.hangover = d.hangoverLength
			} else {
				d.state = DtdSingleTalk
			}
		}

	case DtdSingleTalk:
		if dt {
			d.state = DtdDoubleTalk
			d.hangover = d.hangoverLength
		} else if d.farPower < dtdFarSilent {
			d.state = DtdIdle
		}

	case DtdDoubleTalk:
		if !dt {
			d.state = DtdHold
			d.hangover = d.hangoverLength
		}

	case DtdHold:
		if dt {
			d.state = DtdDoubleTalk
			d.hangover = d.hangoverLength
			return
		}
		d.hangover -= blockSize
		if d.hangover <= 0 {
			d.hangover = 0
			if d.farPower > dtdFarSilent {
				d.state = DtdSingleTalk
			} else {
				d.state = DtdIdle
			}
		}
	}
}

// State returns the current detector state.
func (d *DoubleTalkDetector) State() DtdState {
	return d.state
}

// Hangover returns the samples remaining in the hold countdown.
func (d *DoubleTalkDetector) Hangover() int {
	return d.hangover
}

// SetPowerRatioThreshold updates the power-ratio trigger.
func (d *DoubleTalkDetector) SetPowerRatioThreshold(threshold float32) error {
	if threshold <= 0 {
		return fmt.Errorf("%w: power ratio threshold must be positive, got %g", ErrConfiguration, threshold)
	}
	d.powerRatioThreshold = threshold
	return nil
}

// SetCorrelationThreshold updates the correlation trigger.
func (d *DoubleTalkDetector) SetCorrelationThreshold(threshold float32) error {
	if threshold <= 0 || threshold > 1 {
		return fmt.Errorf("%w: correlation threshold must be in (0, 1], got %g", ErrConfiguration, threshold)
	}
	d.correlationThreshold = threshold
	return nil
}

// SetHangoverLength updates the hold-off length in samples. An in-flight
// countdown is left running; the new length applies from the next trigger.
func (d *DoubleTalkDetector) SetHangoverLength(samples int) error {
	if samples < 0 {
		return fmt.Errorf("%w: hangover length must be non-negative, got %d", ErrConfiguration, samples)
	}
	d.hangoverLength = samples
	return nil
}

// Reset returns the detector to Idle with cleared powers and windows.
func (d *DoubleTalkDetector) Reset() {
	d.nearPower = 0
	d.farPower = 0
	d.crossPower = 0
	d.state = DtdIdle
	d.hangover = 0
	for i := range d.winMic {
		d.winMic[i] = 0
		d.winRef[i] = 0
	}
	d.winPos = 0
	d.winFill = 0
}
