package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedRate indicates a decoded frame's rate cannot feed the
// configured canceller session.
var ErrUnsupportedRate = errors.New("unsupported reference sample rate")

// maxFrameSamples bounds the decode buffer: 120 ms at 48 kHz covers the
// largest Opus frame duration.
const maxFrameSamples = 5760

// ReferenceDecoder turns an Opus-encoded far-end stream into float32 mono
// reference samples for the canceller.
//
// Stereo frames are downmixed by averaging the channels; sample values are
// normalized to [-1, 1]. The decoder reuses one internal PCM buffer, so a
// returned slice stays valid until the next Decode call.
type ReferenceDecoder struct {
	decoder    *opus.Decoder
	targetRate int
	pcm        []byte
	samples    []float32
}

// NewReferenceDecoder creates a decoder producing samples at targetRate.
//
// Parameters:
//   - targetRate: the canceller session's negotiated sample rate in Hz
//
// Returns:
//   - *ReferenceDecoder: new decoder instance
//   - error: validation error if targetRate is not positive
func NewReferenceDecoder(targetRate int) (*ReferenceDecoder, error) {
	logrus.WithFields(logrus.Fields{
		"function":    "NewReferenceDecoder",
		"target_rate": targetRate,
	}).Info("Creating reference decoder")

	if targetRate <= 0 {
		return nil, fmt.Errorf("target rate must be positive: %d", targetRate)
	}

	decoder := opus.NewDecoder()

	return &ReferenceDecoder{
		decoder:    &decoder,
		targetRate: targetRate,
		pcm:        make([]byte, maxFrameSamples*2*2), // stereo int16
		samples:    make([]float32, maxFrameSamples),
	}, nil
}

// TargetRate returns the rate the decoder was created for.
func (d *ReferenceDecoder) TargetRate() int {
	return d.targetRate
}

// Decode converts one Opus frame into mono float32 reference samples.
//
// The frame's decoded bandwidth must match the target rate; the decoder
// does not resample. Returns ErrUnsupportedRate wrapped with the observed
// rate on mismatch.
func (d *ReferenceDecoder) Decode(frame []byte) ([]float32, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("empty reference frame")
	}

	bandwidth, isStereo, err := d.decoder.Decode(frame, d.pcm)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":   "ReferenceDecoder.Decode",
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Error("Opus decode failed")
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	rate := int(bandwidth.SampleRate())
	if rate != d.targetRate {
		logrus.WithFields(logrus.Fields{
			"function":     "ReferenceDecoder.Decode",
			"decoded_rate": rate,
			"target_rate":  d.targetRate,
			"bandwidth":    bandwidth.String(),
		}).Error("Reference stream rate mismatch")
		return nil, fmt.Errorf("%w: decoded %d Hz, session runs at %d Hz", ErrUnsupportedRate, rate, d.targetRate)
	}

	sampleCount := len(d.pcm) / 2
	if isStereo {
		sampleCount /= 2
	}
	if sampleCount > len(d.samples) {
		sampleCount = len(d.samples)
	}

	const scale = 1.0 / 32768.0
	if isStereo {
		for i := 0; i < sampleCount; i++ {
			left := int16(d.pcm[i*4]) | int16(d.pcm[i*4+1])<<8
			right := int16(d.pcm[i*4+2]) | int16(d.pcm[i*4+3])<<8
			d.samples[i] = (float32(left) + float32(right)) * 0.5 * scale
		}
	} else {
		for i := 0; i < sampleCount; i++ {
			s := int16(d.pcm[i*2]) | int16(d.pcm[i*2+1])<<8
			d.samples[i] = float32(s) * scale
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":     "ReferenceDecoder.Decode",
		"frame_size":   len(frame),
		"sample_count": sampleCount,
		"is_stereo":    isStereo,
		"bandwidth":    bandwidth.String(),
	}).Debug("Reference frame decoded")

	return d.samples[:sampleCount], nil
}
