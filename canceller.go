package aec

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/aec/dsp"
)

// erleFloor is the minimum output power used in the ERLE ratio so the
// logarithm stays defined for silent outputs.
const erleFloor = 1e-10

// EchoCanceller removes acoustic echo of a known loudspeaker reference from
// a microphone signal.
//
// The canceller owns one instance of every pipeline stage (delay line,
// delay estimator, NLMS filter, double-talk detector, residual suppressor)
// for the lifetime of a session. All buffers are allocated at construction;
// ProcessBlock performs no allocation, takes no locks, and is safe to call
// from a real-time audio callback. The canceller is not safe for concurrent
// use from multiple goroutines: the scheduling model is single-threaded
// cooperative on the capture callback.
type EchoCanceller struct {
	cfg       Config
	sessionID string

	line       *dsp.DelayLine
	estimator  *dsp.DelayEstimator
	filter     *dsp.NlmsFilter
	detector   *dsp.DoubleTalkDetector
	suppressor *dsp.ResidualSuppressor

	// Preallocated working buffers.
	refAligned []float32
	micClean   []float32
	refClean   []float32
	clean      []float32
	silence    []float32
	badSample  []bool

	lastMetrics BlockMetrics

	processedSamples  uint64
	processedBlocks   uint64
	erleSum           float64
	nonFiniteWarnings uint64
	blockSizeErrors   uint64

	// Non-finite warnings are rate-limited to one per second of audio,
	// measured in processed samples so the DSP path needs no clock.
	lastWarnSample uint64
	warned         bool
}

// New creates an echo canceller session from the given configuration.
//
// All state is sized and allocated here; steady-state processing allocates
// nothing. Construction fails synchronously with ErrConfiguration on
// invalid parameters.
func New(cfg Config) (*EchoCanceller, error) {
	if err := cfg.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "New",
			"error":    err.Error(),
		}).Error("Echo canceller configuration rejected")
		return nil, err
	}

	line, err := dsp.NewDelayLine(cfg.delayLineCapacity())
	if err != nil {
		return nil, fmt.Errorf("%w: delay line: %v", ErrConfiguration, err)
	}
	estimator, err := dsp.NewDelayEstimator(cfg.MaxDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: delay estimator: %v", ErrConfiguration, err)
	}
	filter, err := dsp.NewNlmsFilter(cfg.FilterLength, cfg.StepSize, cfg.LeakageFactor, cfg.Regularization)
	if err != nil {
		return nil, fmt.Errorf("%w: nlms filter: %v", ErrConfiguration, err)
	}
	detector, err := dsp.NewDoubleTalkDetector(cfg.WindowSize, cfg.HangoverTime, cfg.PowerRatioThreshold, cfg.CorrelationThreshold)
	if err != nil {
		return nil, fmt.Errorf("%w: double-talk detector: %v", ErrConfiguration, err)
	}
	suppressor, err := dsp.NewResidualSuppressor(cfg.ResidualSuppression)
	if err != nil {
		return nil, fmt.Errorf("%w: residual suppressor: %v", ErrConfiguration, err)
	}

	ec := &EchoCanceller{
		cfg:        cfg,
		sessionID:  uuid.New().String(),
		line:       line,
		estimator:  estimator,
		filter:     filter,
		detector:   detector,
		suppressor: suppressor,
		refAligned: make([]float32, cfg.BlockSize),
		micClean:   make([]float32, cfg.BlockSize),
		refClean:   make([]float32, cfg.BlockSize),
		clean:      make([]float32, cfg.BlockSize),
		silence:    make([]float32, cfg.BlockSize),
		badSample:  make([]bool, cfg.BlockSize),
	}

	logrus.WithFields(logrus.Fields{
		"function":      "New",
		"session_id":    ec.sessionID,
		"sample_rate":   cfg.SampleRate,
		"block_size":    cfg.BlockSize,
		"filter_length": cfg.FilterLength,
		"max_delay":     cfg.MaxDelay,
		"line_capacity": line.Capacity(),
	}).Info("Echo canceller session created")

	return ec, nil
}

// Config returns the session configuration, including live updates applied
// so far.
func (ec *EchoCanceller) Config() Config {
	return ec.cfg
}

// SessionID returns the identifier attached to this session's metrics.
func (ec *EchoCanceller) SessionID() string {
	return ec.sessionID
}

// ProcessBlock runs the pipeline over one block: writes the reference into
// the history, updates the delay estimate, gates adaptation through the
// double-talk detector, cancels the echo, and applies residual suppression.
//
// The returned slice aliases an internal buffer that stays valid until the
// next ProcessBlock call. On ErrBlockSizeMismatch the returned block is
// silence of the configured size; the error is also counted in metrics so
// the control plane can observe it. Non-finite input samples are scrubbed,
// the affected output samples are zeroed, and adaptation is disabled for
// the block; processing never aborts mid-stream.
func (ec *EchoCanceller) ProcessBlock(mic, ref []float32) ([]float32, BlockMetrics, error) {
	start := time.Now()
	n := ec.cfg.BlockSize

	if len(mic) != n || len(ref) != len(mic) {
		ec.blockSizeErrors++
		ec.lastMetrics = BlockMetrics{
			EstimatedDelay: ec.estimator.Estimate(),
			DtdState:       ec.detector.State().String(),
		}
		return ec.silence, ec.lastMetrics, fmt.Errorf("%w: got mic=%d ref=%d, want %d",
			ErrBlockSizeMismatch, len(mic), len(ref), n)
	}

	nonFinite := ec.scrubInputs(mic, ref)

	ec.line.WriteBlock(ec.refClean)
	delay := ec.estimator.Update(ec.micClean, ec.line)

	for i := 0; i < n; i++ {
		// Forward-time aligned reference: sample i of the block lies
		// delay+n-1-i samples back in the history.
		s, _ := ec.line.Read(uint32(delay + n - 1 - i))
		ec.refAligned[i] = s
	}

	adapt := ec.detector.ProcessBlock(ec.micClean, ec.refAligned)
	if nonFinite {
		adapt = false
	}

	ec.filter.ProcessBlock(ec.micClean, ec.line, delay, adapt, ec.clean)
	ec.suppressor.Apply(ec.clean, ec.refAligned)

	if nonFinite {
		for i, bad := range ec.badSample {
			if bad {
				ec.clean[i] = 0
			}
		}
	}

	inputRms, outputRms, erle := ec.levelMetrics()

	ec.processedSamples += uint64(n)
	ec.processedBlocks++
	ec.erleSum += erle

	ec.lastMetrics = BlockMetrics{
		ErleDb:              erle,
		AdaptationEnabled:   adapt,
		EstimatedDelay:      delay,
		InputRms:            inputRms,
		OutputRms:           outputRms,
		ProcessingLatencyUs: time.Since(start).Microseconds(),
		DtdState:            ec.detector.State().String(),
		NonFiniteInput:      nonFinite,
	}

	var err error
	if nonFinite {
		err = ErrNonFiniteInput
	}
	return ec.clean, ec.lastMetrics, err
}

// scrubInputs copies mic and ref into the working buffers, replacing
// non-finite samples with zero and marking their positions. Returns true
// if any sample was scrubbed.
func (ec *EchoCanceller) scrubInputs(mic, ref []float32) bool {
	nonFinite := false
	for i := range mic {
		m, r := mic[i], ref[i]
		bad := !finite(m) || !finite(r)
		ec.badSample[i] = bad
		if bad {
			nonFinite = true
			if !finite(m) {
				m = 0
			}
			if !finite(r) {
				r = 0
			}
		}
		ec.micClean[i] = m
		ec.refClean[i] = r
	}

	if nonFinite {
		ec.nonFiniteWarnings++
		// One warning per second of audio at most.
		if !ec.warned || ec.processedSamples-ec.lastWarnSample >= uint64(ec.cfg.SampleRate) {
			logrus.WithFields(logrus.Fields{
				"function":   "EchoCanceller.ProcessBlock",
				"session_id": ec.sessionID,
				"block":      ec.processedBlocks,
			}).Warn("Non-finite input samples scrubbed; adaptation disabled for block")
			ec.lastWarnSample = ec.processedSamples
			ec.warned = true
		}
	}
	return nonFinite
}

// finite reports whether s is neither NaN nor Inf.
func finite(s float32) bool {
	f := float64(s)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// levelMetrics computes input/output RMS and the clamped ERLE for the
// block just processed.
func (ec *EchoCanceller) levelMetrics() (inputRms, outputRms, erle float64) {
	var inPower, outPower float64
	for i := range ec.micClean {
		inPower += float64(ec.micClean[i]) * float64(ec.micClean[i])
		outPower += float64(ec.clean[i]) * float64(ec.clean[i])
	}
	n := float64(len(ec.micClean))
	inPower /= n
	outPower /= n

	inputRms = math.Sqrt(inPower)
	outputRms = math.Sqrt(outPower)

	floored := outPower
	if floored < erleFloor {
		floored = erleFloor
	}
	if inPower > 0 {
		erle = 10 * math.Log10(inPower/floored)
	}
	if erle < 0 {
		erle = 0
	}
	if erle > 60 {
		erle = 60
	}
	return inputRms, outputRms, erle
}

// Reset clears all adaptive state: the reference history, filter taps,
// detector state, and the delay estimate. The configuration is kept.
func (ec *EchoCanceller) Reset() {
	ec.line.Clear()
	ec.estimator.Reset()
	ec.filter.Reset()
	ec.detector.Reset()

	ec.processedSamples = 0
	ec.processedBlocks = 0
	ec.erleSum = 0
	ec.nonFiniteWarnings = 0
	ec.blockSizeErrors = 0
	ec.lastWarnSample = 0
	ec.warned = false
	ec.lastMetrics = BlockMetrics{}

	logrus.WithFields(logrus.Fields{
		"function":   "EchoCanceller.Reset",
		"session_id": ec.sessionID,
	}).Info("Echo canceller state reset")
}

// SetConfig applies a live configuration update at a block boundary. The
// delta is validated as a whole before any field is applied, so a rejected
// update leaves the session unchanged.
func (ec *EchoCanceller) SetConfig(delta ConfigDelta) error {
	next := ec.cfg
	if delta.StepSize != nil {
		next.StepSize = *delta.StepSize
	}
	if delta.LeakageFactor != nil {
		next.LeakageFactor = *delta.LeakageFactor
	}
	if delta.Regularization != nil {
		next.Regularization = *delta.Regularization
	}
	if delta.PowerRatioThreshold != nil {
		next.PowerRatioThreshold = *delta.PowerRatioThreshold
	}
	if delta.CorrelationThreshold != nil {
		next.CorrelationThreshold = *delta.CorrelationThreshold
	}
	if delta.HangoverTime != nil {
		next.HangoverTime = *delta.HangoverTime
	}
	if delta.ResidualSuppression != nil {
		next.ResidualSuppression = *delta.ResidualSuppression
	}
	if err := next.Validate(); err != nil {
		logrus.WithFields(ec.withSession(delta.logFields())).WithField("error", err.Error()).
			Error("Live configuration update rejected")
		return err
	}

	ec.cfg = next
	// Validation above guarantees the component setters cannot fail.
	_ = ec.filter.SetStepSize(next.StepSize)
	_ = ec.filter.SetLeakage(next.LeakageFactor)
	_ = ec.filter.SetRegularization(next.Regularization)
	_ = ec.detector.SetPowerRatioThreshold(next.PowerRatioThreshold)
	_ = ec.detector.SetCorrelationThreshold(next.CorrelationThreshold)
	_ = ec.detector.SetHangoverLength(next.HangoverTime)
	_ = ec.suppressor.SetSuppression(next.ResidualSuppression)

	logrus.WithFields(ec.withSession(delta.logFields())).Info("Live configuration update applied")
	return nil
}

// withSession annotates log fields with the session identifier.
func (ec *EchoCanceller) withSession(fields logrus.Fields) logrus.Fields {
	fields["session_id"] = ec.sessionID
	return fields
}

// FilterTaps returns a copy of the NLMS tap vector for diagnostics and
// offline analysis of the identified echo path.
func (ec *EchoCanceller) FilterTaps() []float32 {
	return ec.filter.Taps()
}

// LastBlockMetrics returns the metrics of the most recently processed
// block.
func (ec *EchoCanceller) LastBlockMetrics() BlockMetrics {
	return ec.lastMetrics
}

// MetricsSnapshot returns the cumulative session metrics.
func (ec *EchoCanceller) MetricsSnapshot() Snapshot {
	avg := 0.0
	if ec.processedBlocks > 0 {
		avg = ec.erleSum / float64(ec.processedBlocks)
	}
	return Snapshot{
		SessionID:               ec.sessionID,
		ProcessedSamples:        ec.processedSamples,
		ProcessedBlocks:         ec.processedBlocks,
		AverageErleDb:           avg,
		EstimatedDelay:          ec.estimator.Estimate(),
		LastProcessingLatencyUs: ec.lastMetrics.ProcessingLatencyUs,
		DtdState:                ec.detector.State().String(),
		NonFiniteWarnings:       ec.nonFiniteWarnings,
		BlockSizeErrors:         ec.blockSizeErrors,
	}
}
