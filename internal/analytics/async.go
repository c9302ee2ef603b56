package analytics

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Async forwards events to a sink from a single background worker. Capture
// never blocks; events are dropped when the queue is full.
type Async struct {
	sink    Sink
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsync(sink Sink, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{
		sink:    sink,
		queue:   make(chan Event, size),
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Capture(_ context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- e:
	default:
		slog.Warn("analytics queue full, dropping event", "event", e.Name)
	}
	return nil
}

func (a *Async) run() {
	defer close(a.done)
	for e := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.sink.Capture(ctx, e); err != nil {
			slog.Warn("analytics capture failed", "event", e.Name, "error", err)
		}
		cancel()
	}
}

// Close drains queued events and closes the underlying sink. Events captured
// after Close are discarded.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.sink.Close()
}
