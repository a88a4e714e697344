package dsp

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DelayLine is a fixed-capacity circular buffer of audio samples supporting
// reads at an arbitrary offset into the past.
//
// The capacity is rounded up to a power of two so that index arithmetic
// reduces to a bitmask. Offset 0 addresses the most recently written sample,
// offset k the sample written k samples ago.
//
// Design decisions:
//   - Power-of-two capacity keeps the hot-path read to one subtraction and
//     one mask, no modulo
//   - The unexported at() accessor skips bounds checks and is what the
//     NLMS inner loop uses; the exported Read/ReadBlock validate offsets
//     and return ErrOutOfRange for callers outside this package
type DelayLine struct {
	buf  []float32
	mask uint32
	next uint32 // index the next written sample will occupy
}

// NewDelayLine creates a delay line with at least the requested capacity.
//
// The effective capacity is the smallest power of two that is >= capacity.
//
// Parameters:
//   - capacity: minimum number of samples of history to retain
//
// Returns:
//   - *DelayLine: new delay line with zeroed contents
//   - error: ErrConfiguration if capacity is not positive
func NewDelayLine(capacity int) (*DelayLine, error) {
	if capacity <= 0 {
		logrus.WithFields(logrus.Fields{
			"function": "NewDelayLine",
			"capacity": capacity,
		}).Error("Delay line capacity validation failed")
		return nil, fmt.Errorf("%w: delay line capacity must be positive, got %d", ErrConfiguration, capacity)
	}

	size := nextPowerOfTwo(capacity)

	logrus.WithFields(logrus.Fields{
		"function":           "NewDelayLine",
		"requested_capacity": capacity,
		"effective_capacity": size,
	}).Debug("Delay line created")

	return &DelayLine{
		buf:  make([]float32, size),
		mask: uint32(size - 1),
	}, nil
}

// nextPowerOfTwo returns the smallest power of two >= n.
func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size <<= 1
	}
	return size
}

// Capacity returns the effective (power-of-two) capacity in samples.
func (d *DelayLine) Capacity() int {
	return len(d.buf)
}

// WriteBlock copies src into the ring, advancing the write index by one per
// sample. Samples older than Capacity() are overwritten.
func (d *DelayLine) WriteBlock(src []float32) {
	for _, s := range src {
		d.buf[d.next&d.mask] = s
		d.next++
	}
}

// at returns the sample written offset samples ago without bounds checking.
// Callers inside this package guarantee offset < capacity.
func (d *DelayLine) at(offset uint32) float32 {
	return d.buf[(d.next-1-offset)&d.mask]
}

// Read returns the sample written offset samples ago; offset 0 is the most
// recent sample.
//
// Returns ErrOutOfRange when offset >= Capacity().
func (d *DelayLine) Read(offset uint32) (float32, error) {
	if offset > d.mask {
		return 0, fmt.Errorf("%w: read offset %d exceeds capacity %d", ErrOutOfRange, offset, len(d.buf))
	}
	return d.at(offset), nil
}

// ReadBlock fills dst with a time-reversed window of the history starting
// offset samples back: dst[i] receives the sample written (offset+i)
// samples ago.
//
// Returns ErrOutOfRange when the window would reach past the capacity.
func (d *DelayLine) ReadBlock(dst []float32, offset uint32) error {
	if len(dst) == 0 {
		return nil
	}
	if offset+uint32(len(dst))-1 > d.mask || len(dst) > len(d.buf) {
		return fmt.Errorf("%w: read window [%d, %d) exceeds capacity %d",
			ErrOutOfRange, offset, offset+uint32(len(dst)), len(d.buf))
	}
	for i := range dst {
		dst[i] = d.at(offset + uint32(i))
	}
	return nil
}

// Clear zeroes the ring and resets the write index.
func (d *DelayLine) Clear() {
	for i := range d.buf {
		d.buf[i] = 0
	}
	d.next = 0
}
