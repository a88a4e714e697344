package aec

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Supported operating sample rates. Time-defined settings (hangover,
// metrics cadence, maximum delay) are counted in samples and do not scale
// with the chosen rate; the defaults correspond to 48 kHz.
var supportedRates = map[int]bool{
	8000:  true,
	16000: true,
	24000: true,
	44100: true,
	48000: true,
}

// Supported processing block sizes in samples.
var supportedBlockSizes = map[int]bool{
	64:  true,
	128: true,
	256: true,
	512: true,
}

// Config holds the canceller's construction parameters.
//
// SampleRate, BlockSize, FilterLength, WindowSize, MaxDelay, and
// MetricsInterval are fixed for the lifetime of a session. The remaining
// fields can be updated live
// through a ConfigDelta, applied at block boundaries.
type Config struct {
	// SampleRate is the operating rate in Hz.
	SampleRate int

	// BlockSize is the number of samples per processing block.
	BlockSize int

	// FilterLength is the NLMS tap count; it bounds the echo tail the
	// canceller can model.
	FilterLength int

	// StepSize is the NLMS adaptation rate mu. Higher converges faster at
	// the cost of stability.
	StepSize float32

	// Regularization is the denominator floor delta for the normalized
	// step.
	Regularization float32

	// LeakageFactor is the per-update tap decay lambda.
	LeakageFactor float32

	// PowerRatioThreshold is the double-talk power trigger.
	PowerRatioThreshold float32

	// CorrelationThreshold is the double-talk correlation trigger.
	CorrelationThreshold float32

	// HangoverTime is the double-talk hold-off length in samples.
	HangoverTime int

	// WindowSize is the double-talk correlation window in samples.
	WindowSize int

	// MaxDelay is the delay estimator's upper bound in samples.
	MaxDelay int

	// ResidualSuppression is the fraction removed from the output while
	// the reference is active.
	ResidualSuppression float32

	// MetricsInterval is the metrics push cadence in samples.
	MetricsInterval int
}

// DefaultConfig returns the standard configuration: 48 kHz, 128-sample
// blocks, a 512-tap filter (about 10.7 ms of echo tail), and the detector
// tuning suited to full-duplex desktop capture.
func DefaultConfig() Config {
	return Config{
		SampleRate:           48000,
		BlockSize:            128,
		FilterLength:         512,
		StepSize:             0.1,
		Regularization:       1e-6,
		LeakageFactor:        0.99999,
		PowerRatioThreshold:  2.0,
		CorrelationThreshold: 0.6,
		HangoverTime:         2400,
		WindowSize:           512,
		MaxDelay:             480,
		ResidualSuppression:  0.1,
		MetricsInterval:      4800,
	}
}

// Validate checks the configuration for construction. All violations are
// reported as ErrConfiguration; the session must not be created on error.
func (c Config) Validate() error {
	if !supportedRates[c.SampleRate] {
		return fmt.Errorf("%w: unsupported sample rate %d", ErrConfiguration, c.SampleRate)
	}
	if !supportedBlockSizes[c.BlockSize] {
		return fmt.Errorf("%w: unsupported block size %d", ErrConfiguration, c.BlockSize)
	}
	if c.FilterLength <= 0 {
		return fmt.Errorf("%w: filter length must be positive, got %d", ErrConfiguration, c.FilterLength)
	}
	if c.StepSize <= 0 || c.StepSize > 2 {
		return fmt.Errorf("%w: step size must be in (0, 2], got %g", ErrConfiguration, c.StepSize)
	}
	if c.Regularization <= 0 {
		return fmt.Errorf("%w: regularization must be positive, got %g", ErrConfiguration, c.Regularization)
	}
	if c.LeakageFactor <= 0 || c.LeakageFactor > 1 {
		return fmt.Errorf("%w: leakage factor must be in (0, 1], got %g", ErrConfiguration, c.LeakageFactor)
	}
	if c.PowerRatioThreshold <= 0 {
		return fmt.Errorf("%w: power ratio threshold must be positive, got %g", ErrConfiguration, c.PowerRatioThreshold)
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("%w: correlation threshold must be in (0, 1], got %g", ErrConfiguration, c.CorrelationThreshold)
	}
	if c.HangoverTime < 0 {
		return fmt.Errorf("%w: hangover time must be non-negative, got %d", ErrConfiguration, c.HangoverTime)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrConfiguration, c.WindowSize)
	}
	if c.MaxDelay < 0 {
		return fmt.Errorf("%w: max delay must be non-negative, got %d", ErrConfiguration, c.MaxDelay)
	}
	if c.ResidualSuppression < 0 || c.ResidualSuppression >= 1 {
		return fmt.Errorf("%w: residual suppression must be in [0, 1), got %g", ErrConfiguration, c.ResidualSuppression)
	}
	if c.MetricsInterval <= 0 {
		return fmt.Errorf("%w: metrics interval must be positive, got %d", ErrConfiguration, c.MetricsInterval)
	}
	return nil
}

// delayLineCapacity returns the reference history the session needs: the
// filter must see FilterLength samples past the largest aligned offset.
func (c Config) delayLineCapacity() int {
	capacity := c.MaxDelay + c.BlockSize + c.FilterLength
	if capacity < c.FilterLength {
		capacity = c.FilterLength
	}
	return capacity
}

// ConfigDelta carries a live configuration update. Nil fields are left
// unchanged. Filter length, block size, window size, maximum delay, metrics
// interval, and sample rate are immutable after construction and
// intentionally absent.
type ConfigDelta struct {
	StepSize             *float32
	LeakageFactor        *float32
	Regularization       *float32
	PowerRatioThreshold  *float32
	CorrelationThreshold *float32
	HangoverTime         *int
	ResidualSuppression  *float32
}

// logFields summarizes the populated fields for structured logging.
func (d ConfigDelta) logFields() logrus.Fields {
	fields := logrus.Fields{}
	if d.StepSize != nil {
		fields["step_size"] = *d.StepSize
	}
	if d.LeakageFactor != nil {
		fields["leakage_factor"] = *d.LeakageFactor
	}
	if d.Regularization != nil {
		fields["regularization"] = *d.Regularization
	}
	if d.PowerRatioThreshold != nil {
		fields["power_ratio_threshold"] = *d.PowerRatioThreshold
	}
	if d.CorrelationThreshold != nil {
		fields["correlation_threshold"] = *d.CorrelationThreshold
	}
	if d.HangoverTime != nil {
		fields["hangover_time"] = *d.HangoverTime
	}
	if d.ResidualSuppression != nil {
		fields["residual_suppression"] = *d.ResidualSuppression
	}
	return fields
}
