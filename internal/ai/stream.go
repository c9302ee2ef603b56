package ai

import (
	"context"
	"errors"
	"io"
	"time"
)

// Metrics is the usage/cost summary returned with an answer.
type Metrics struct {
	Model              string   `json:"model"`
	PromptTokens       int      `json:"promptTokens"`
	CompletionTokens   int      `json:"completionTokens"`
	TotalTokens        int      `json:"totalTokens"`
	ResponseTimeMs     int64    `json:"responseTimeMs"`
	EstimatedCost      *float64 `json:"estimatedCost"`
	TimeToFirstTokenMs *int64   `json:"timeToFirstTokenMs,omitempty"`
}

func NewMetrics(model string, u Usage, elapsed time.Duration, prices PriceTable) Metrics {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return Metrics{
		Model:            model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		ResponseTimeMs:   elapsed.Milliseconds(),
		EstimatedCost:    prices.Cost(model, u),
	}
}

// StreamEvent is one payload forwarded to the caller. Exactly one field is set.
type StreamEvent struct {
	Content string   `json:"content,omitempty"`
	Metrics *Metrics `json:"metrics,omitempty"`
}

type StreamState int

const (
	StateIdle StreamState = iota
	StateAwaitingFirstToken
	StateStreaming
	StateDone
	StateError
)

func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstToken:
		return "awaiting_first_token"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateError:
		return "error"
	}
	return "unknown"
}

// StreamRelay forwards an upstream ChunkStream and appends one metrics event.
// A relay is single use.
type StreamRelay struct {
	model  string
	prices PriceTable
	start  time.Time
	now    func() time.Time

	state      StreamState
	firstToken time.Duration
	usage      Usage
}

func NewStreamRelay(model string, prices PriceTable, start time.Time) *StreamRelay {
	return &StreamRelay{model: model, prices: prices, start: start, now: time.Now}
}

func (r *StreamRelay) State() StreamState { return r.state }

// Run drains stream into emit. The stream is always closed on return, which
// releases the upstream connection when the caller goes away mid-stream.
func (r *StreamRelay) Run(ctx context.Context, stream ChunkStream, emit func(StreamEvent) error) (*Metrics, error) {
	defer stream.Close()
	r.state = StateAwaitingFirstToken

	for {
		if err := ctx.Err(); err != nil {
			r.state = StateError
			return nil, err
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			r.state = StateError
			return nil, err
		}

		if chunk.Usage != nil {
			r.usage = *chunk.Usage
		}
		if chunk.Model != "" {
			r.model = chunk.Model
		}
		if chunk.Content == "" {
			continue
		}
		if r.state == StateAwaitingFirstToken {
			r.firstToken = r.now().Sub(r.start)
			r.state = StateStreaming
		}
		if err := emit(StreamEvent{Content: chunk.Content}); err != nil {
			r.state = StateError
			return nil, err
		}
	}

	m := NewMetrics(r.model, r.usage, r.now().Sub(r.start), r.prices)
	if r.state == StateStreaming {
		ttft := r.firstToken.Milliseconds()
		m.TimeToFirstTokenMs = &ttft
	}
	if err := emit(StreamEvent{Metrics: &m}); err != nil {
		r.state = StateError
		return nil, err
	}
	r.state = StateDone
	return &m, nil
}
