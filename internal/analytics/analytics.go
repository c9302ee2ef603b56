// Package analytics records what visitors ask. Capture is best effort: the
// answer path never waits on, or fails because of, a sink.
package analytics

import (
	"context"
	"time"
)

// Event is one captured interaction.
type Event struct {
	Name       string
	DistinctID string
	Properties map[string]any
	Timestamp  time.Time
}

type Sink interface {
	Capture(ctx context.Context, e Event) error
	Close() error
}

// Nop discards events.
type Nop struct{}

func (Nop) Capture(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
