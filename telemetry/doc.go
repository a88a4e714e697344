// Package telemetry streams canceller metrics to observers over
// websockets.
//
// The Publisher sits entirely off the capture thread: it drains the block
// processor's outbound event queue at its own cadence and fans metrics
// snapshots out to connected websocket clients as JSON. Dropping the
// publisher, or having no clients connected, has no effect on the DSP
// path — the metrics queue simply overwrites its oldest entries.
//
// Typical wiring:
//
//	publisher := telemetry.NewPublisher(processor.Poll, 100*time.Millisecond)
//	publisher.Start()
//	defer publisher.Stop()
//	http.Handle("/metrics/ws", publisher.Handler())
package telemetry
