package rt

import (
	"testing"

	"github.com/opd-ai/aec"
)

func snapshotWithBlocks(n uint64) aec.Snapshot {
	return aec.Snapshot{ProcessedBlocks: n}
}

func TestCommandQueueOrder(t *testing.T) {
	q := newCommandQueue(8)

	for i := 0; i < 5; i++ {
		if !q.push(Command{Type: CommandType(i % 5)}) {
			t.Fatalf("push %d failed on non-full queue", i)
		}
	}
	for i := 0; i < 5; i++ {
		cmd, ok := q.pop()
		if !ok {
			t.Fatalf("pop %d failed on non-empty queue", i)
		}
		if cmd.Type != CommandType(i%5) {
			t.Errorf("pop %d = %v, want %v", i, cmd.Type, CommandType(i%5))
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop succeeded on empty queue")
	}
}

func TestCommandQueueBackpressure(t *testing.T) {
	q := newCommandQueue(4)

	for i := 0; i < 4; i++ {
		if !q.push(Command{Type: CommandStart}) {
			t.Fatalf("push %d failed before capacity", i)
		}
	}
	if q.push(Command{Type: CommandStop}) {
		t.Error("push succeeded on full queue, want backpressure")
	}

	// Draining one slot admits one more command.
	if _, ok := q.pop(); !ok {
		t.Fatal("pop failed on full queue")
	}
	if !q.push(Command{Type: CommandStop}) {
		t.Error("push failed after drain")
	}
}

func TestEventQueueOverwritesOldest(t *testing.T) {
	q := newEventQueue(4)

	for i := 0; i < 10; i++ {
		q.push(Event{Type: EventMetrics, Metrics: snapshotWithBlocks(uint64(i))})
	}
	if got := q.length(); got != 4 {
		t.Fatalf("length() = %d, want 4", got)
	}

	// The oldest six snapshots were dropped; 6..9 survive in order.
	for want := uint64(6); want <= 9; want++ {
		ev, ok := q.pop()
		if !ok {
			t.Fatalf("pop failed, want snapshot %d", want)
		}
		if ev.Metrics.ProcessedBlocks != want {
			t.Errorf("pop = snapshot %d, want %d", ev.Metrics.ProcessedBlocks, want)
		}
	}
	if _, ok := q.pop(); ok {
		t.Error("pop succeeded on drained queue")
	}
}

func TestEventQueueEmptyPop(t *testing.T) {
	q := newEventQueue(4)
	if _, ok := q.pop(); ok {
		t.Error("pop succeeded on fresh queue")
	}
	if q.length() != 0 {
		t.Errorf("length() = %d, want 0", q.length())
	}
}
