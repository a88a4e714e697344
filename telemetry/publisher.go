package telemetry

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/aec/rt"
)

// ErrAlreadyRunning is returned when starting a running publisher.
var ErrAlreadyRunning = errors.New("publisher is already running")

// EventSource supplies outbound events, typically rt.BlockProcessor.Poll.
type EventSource func() (rt.Event, bool)

// wireEvent is the JSON shape sent to websocket clients.
type wireEvent struct {
	Type       string      `json:"type"`
	Processing bool        `json:"isProcessing"`
	Metrics    interface{} `json:"metrics,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Publisher fans canceller events out to websocket observers.
//
// The publisher polls its event source on a fixed interval from its own
// goroutine and broadcasts everything it drains. Clients whose writes fail
// are disconnected; writes carry no deadline, so a slow client is not
// dropped. The capture path is never involved.
type Publisher struct {
	source   EventSource
	interval time.Duration
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   map[*websocket.Conn]struct{}
	running bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPublisher creates a publisher draining source every interval.
//
// Parameters:
//   - source: event supplier, typically rt.BlockProcessor.Poll
//   - interval: drain cadence; 100 ms matches the default metrics push
//     rate of the canceller
//
// Returns:
//   - *Publisher: new publisher, not yet started
func NewPublisher(source EventSource, interval time.Duration) *Publisher {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	logrus.WithFields(logrus.Fields{
		"function": "NewPublisher",
		"interval": interval,
	}).Info("Creating metrics publisher")

	return &Publisher{
		source:   source,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Observers are local tooling; origin policy is the caller's job.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[*websocket.Conn]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the drain-and-broadcast loop.
func (p *Publisher) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}
	p.running = true

	go p.loop()

	logrus.WithFields(logrus.Fields{
		"function": "Publisher.Start",
	}).Info("Metrics publisher started")

	return nil
}

// Stop halts the loop and closes all client connections.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()

	for conn := range p.conns {
		conn.Close()
	}
	p.conns = make(map[*websocket.Conn]struct{})
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Publisher.Stop",
	}).Info("Metrics publisher stopped")
}

// IsRunning reports whether the loop is active.
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// ClientCount returns the number of connected observers.
func (p *Publisher) ClientCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// Handler returns the HTTP handler that upgrades observers to websocket
// connections.
func (p *Publisher) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := p.upgrader.Upgrade(w, r, nil)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Publisher.Handler",
				"remote":   r.RemoteAddr,
				"error":    err.Error(),
			}).Error("Websocket upgrade failed")
			return
		}

		p.mu.Lock()
		if !p.running {
			p.mu.Unlock()
			conn.Close()
			return
		}
		p.conns[conn] = struct{}{}
		clients := len(p.conns)
		p.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"function": "Publisher.Handler",
			"remote":   r.RemoteAddr,
			"clients":  clients,
		}).Info("Metrics observer connected")
	})
}

// loop drains the event source and broadcasts until stopped.
func (p *Publisher) loop() {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.drain()
		}
	}
}

// drain forwards every pending event to all clients.
func (p *Publisher) drain() {
	for {
		ev, ok := p.source()
		if !ok {
			return
		}
		p.broadcast(ev)
	}
}

// broadcast sends one event to every connection, dropping clients whose
// writes fail.
func (p *Publisher) broadcast(ev rt.Event) {
	msg := wireEvent{
		Type:       ev.Type.String(),
		Processing: ev.Processing,
	}
	if ev.Type == rt.EventMetrics {
		msg.Metrics = ev.Metrics
	}
	if ev.Err != nil {
		msg.Error = ev.Err.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for conn := range p.conns {
		if err := conn.WriteJSON(msg); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Publisher.broadcast",
				"error":    err.Error(),
			}).Warn("Dropping metrics observer after write failure")
			conn.Close()
			delete(p.conns, conn)
		}
	}
}
