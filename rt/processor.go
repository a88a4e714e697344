package rt

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/aec"
)

const (
	// commandQueueCapacity bounds the control ring. Control traffic is a
	// handful of messages per session; backpressure beyond that is
	// acceptable.
	commandQueueCapacity = 64

	// eventQueueCapacity bounds the outbound ring. At the default metrics
	// cadence this holds several seconds of snapshots.
	eventQueueCapacity = 256
)

// BlockProcessor adapts the echo canceller to a real-time capture
// boundary.
//
// The capture collaborator calls ProcessInterleaved once per frame from
// its audio callback. All other methods (Send, Poll, SourceRate checks)
// belong to the control thread. The processor owns the canceller
// exclusively; no state is shared between the two threads except the two
// SPSC queues.
type BlockProcessor struct {
	canceller *aec.EchoCanceller
	blockSize int
	rate      int

	commands *commandQueue
	events   *eventQueue

	// Capture-thread state. Only ProcessInterleaved touches these.
	mic       []float32
	ref       []float32
	running   bool
	sinceEmit int
}

// NewBlockProcessor creates a driver around a new canceller session.
//
// The processor starts in the stopped state: microphone audio passes
// through unchanged until a Start command is observed.
func NewBlockProcessor(cfg aec.Config) (*BlockProcessor, error) {
	canceller, err := aec.New(cfg)
	if err != nil {
		return nil, err
	}

	p := &BlockProcessor{
		canceller: canceller,
		blockSize: cfg.BlockSize,
		rate:      cfg.SampleRate,
		commands:  newCommandQueue(commandQueueCapacity),
		events:    newEventQueue(eventQueueCapacity),
		mic:       make([]float32, cfg.BlockSize),
		ref:       make([]float32, cfg.BlockSize),
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewBlockProcessor",
		"session_id":  canceller.SessionID(),
		"block_size":  cfg.BlockSize,
		"sample_rate": cfg.SampleRate,
	}).Info("Block processor created")

	return p, nil
}

// Canceller exposes the owned session for inspection. The caller must not
// invoke it concurrently with ProcessInterleaved.
func (p *BlockProcessor) Canceller() *aec.EchoCanceller {
	return p.canceller
}

// CheckSourceRate verifies the capture source's sample rate against the
// rate negotiated at construction. A mismatch is fatal to the session and
// requires external re-initialization.
func (p *BlockProcessor) CheckSourceRate(rate int) error {
	if rate != p.rate {
		logrus.WithFields(logrus.Fields{
			"function":        "BlockProcessor.CheckSourceRate",
			"session_id":      p.canceller.SessionID(),
			"negotiated_rate": p.rate,
			"source_rate":     rate,
		}).Error("Capture source rate mismatch")
		return fmt.Errorf("%w: negotiated %d Hz, source produced %d Hz", aec.ErrRateMismatch, p.rate, rate)
	}
	return nil
}

// Send enqueues a control message. Returns false when the control queue is
// full; the sender may retry.
func (p *BlockProcessor) Send(cmd Command) bool {
	return p.commands.push(cmd)
}

// Poll dequeues one outbound event. Returns false when none is pending.
func (p *BlockProcessor) Poll() (Event, bool) {
	return p.events.pop()
}

// PendingEvents returns the number of queued outbound events.
func (p *BlockProcessor) PendingEvents() int {
	return p.events.length()
}

// ProcessInterleaved runs one block on the capture thread.
//
// in must hold blockSize stereo frames (2*blockSize samples, left =
// microphone, right = reference); out receives blockSize mono samples.
// Control messages are drained before the block is processed, so commands
// sent before block i take effect on block i.
//
// While stopped, the microphone channel is copied through unchanged to
// preserve the capture path's timing.
func (p *BlockProcessor) ProcessInterleaved(in, out []float32) error {
	if len(in) != 2*p.blockSize || len(out) != p.blockSize {
		return fmt.Errorf("%w: got in=%d out=%d, want in=%d out=%d",
			aec.ErrBlockSizeMismatch, len(in), len(out), 2*p.blockSize, p.blockSize)
	}

	p.drainCommands()

	for i := 0; i < p.blockSize; i++ {
		p.mic[i] = in[2*i]
		p.ref[i] = in[2*i+1]
	}

	if !p.running {
		copy(out, p.mic)
		return nil
	}

	// Recoverable per-block errors (non-finite input, size mismatch) come
	// back as silence plus a metric; the capture layer only needs samples.
	clean, _, _ := p.canceller.ProcessBlock(p.mic, p.ref)
	copy(out, clean)

	interval := p.canceller.Config().MetricsInterval
	p.sinceEmit += p.blockSize
	if p.sinceEmit >= interval {
		// Carry the overshoot so the average cadence stays one push per
		// interval even when the interval is not a block multiple.
		p.sinceEmit %= interval
		p.emitMetrics()
	}

	return nil
}

// drainCommands applies every pending control message at the block
// boundary.
func (p *BlockProcessor) drainCommands() {
	for {
		cmd, ok := p.commands.pop()
		if !ok {
			return
		}
		switch cmd.Type {
		case CommandStart:
			p.running = true
			p.events.push(Event{Type: EventStarted, Processing: true})
		case CommandStop:
			p.running = false
			p.events.push(Event{Type: EventStopped, Processing: false})
		case CommandReset:
			p.canceller.Reset()
			p.sinceEmit = 0
		case CommandGetMetrics:
			p.emitMetrics()
		case CommandSetConfig:
			if err := p.canceller.SetConfig(cmd.Delta); err != nil {
				p.events.push(Event{Type: EventError, Processing: p.running, Err: err})
			}
		}
	}
}

// emitMetrics pushes a snapshot on the outbound queue.
func (p *BlockProcessor) emitMetrics() {
	p.events.push(Event{
		Type:       EventMetrics,
		Metrics:    p.canceller.MetricsSnapshot(),
		Processing: p.running,
	})
}

// IsProcessing reports the running state. Capture-thread callers get the
// exact state; other threads get a possibly stale view suitable for
// display only.
func (p *BlockProcessor) IsProcessing() bool {
	return p.running
}
