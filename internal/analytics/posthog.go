package analytics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/posthog/posthog-go"
)

const defaultPostHogHost = "https://us.i.posthog.com"

// PostHog forwards events to a PostHog project. The client batches and
// flushes in the background; Close sends whatever is still queued.
type PostHog struct {
	client posthog.Client
}

func NewPostHog(host, apiKey string) (*PostHog, error) {
	if apiKey == "" {
		return nil, errors.New("posthog api key is required")
	}
	if host == "" {
		host = defaultPostHogHost
	}
	client, err := posthog.NewWithConfig(apiKey, posthog.Config{
		Endpoint:  strings.TrimRight(host, "/"),
		Interval:  5 * time.Second,
		BatchSize: 50,
	})
	if err != nil {
		return nil, err
	}
	return &PostHog{client: client}, nil
}

func (p *PostHog) Capture(_ context.Context, e Event) error {
	return p.client.Enqueue(posthog.Capture{
		DistinctId: e.DistinctID,
		Event:      e.Name,
		Timestamp:  e.Timestamp,
		Properties: posthog.Properties(e.Properties),
	})
}

func (p *PostHog) Close() error { return p.client.Close() }
