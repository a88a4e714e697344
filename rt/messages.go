package rt

import "github.com/opd-ai/aec"

// CommandType identifies a control message.
type CommandType int

const (
	// CommandStart enables processing at the next block boundary.
	CommandStart CommandType = iota
	// CommandStop disables processing; the microphone passes through.
	CommandStop
	// CommandReset clears all adaptive state at the next block boundary.
	CommandReset
	// CommandGetMetrics requests an immediate metrics snapshot.
	CommandGetMetrics
	// CommandSetConfig applies a live configuration delta.
	CommandSetConfig
)

// String returns a human-readable command name.
func (t CommandType) String() string {
	switch t {
	case CommandStart:
		return "Start"
	case CommandStop:
		return "Stop"
	case CommandReset:
		return "Reset"
	case CommandGetMetrics:
		return "GetMetrics"
	case CommandSetConfig:
		return "SetConfig"
	default:
		return "Unknown"
	}
}

// Command is an inbound control message, observed at block boundaries
// only.
type Command struct {
	Type  CommandType
	Delta aec.ConfigDelta // populated for CommandSetConfig
}

// EventType identifies an outbound message.
type EventType int

const (
	// EventStarted acknowledges a Start command.
	EventStarted EventType = iota
	// EventStopped acknowledges a Stop command.
	EventStopped
	// EventMetrics carries a metrics snapshot.
	EventMetrics
	// EventError reports a control-path failure, e.g. a rejected
	// configuration delta.
	EventError
)

// String returns a human-readable event name.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "Started"
	case EventStopped:
		return "Stopped"
	case EventMetrics:
		return "Metrics"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is an outbound message. Events are plain values so enqueueing one
// allocates nothing on the capture thread.
type Event struct {
	Type       EventType
	Metrics    aec.Snapshot // populated for EventMetrics
	Processing bool         // processor running state at emission time
	Err        error        // populated for EventError
}
