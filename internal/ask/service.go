// Package ask answers questions about the portfolio owner: embed, retrieve,
// assemble the prompt, generate.
package ask

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Youssef2430/portfolio/internal/ai"
	"github.com/Youssef2430/portfolio/internal/analytics"
	"github.com/Youssef2430/portfolio/internal/rag"
)

// ErrInvalidMessage is returned for a missing or blank message.
var ErrInvalidMessage = &ai.ValidationError{Msg: "Invalid message format"}

type Request struct {
	Message  string
	History  []ai.Message
	Model    string // empty selects the default model
	ClientID string // analytics distinct id
}

type Response struct {
	Text    string
	Metrics ai.Metrics
}

type Options struct {
	Name          string
	DefaultModel  string
	AllowedModels []string // empty allows any model
	MaxTokens     int
	Temperature   float32
	Timeout       time.Duration
	StreamTimeout time.Duration
	Prices        ai.PriceTable
}

func (o *Options) setDefaults() {
	if o.MaxTokens <= 0 {
		o.MaxTokens = 150
	}
	if o.Temperature == 0 {
		o.Temperature = 0.3
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.StreamTimeout <= 0 {
		o.StreamTimeout = 2 * time.Minute
	}
	if o.Prices == nil {
		o.Prices = ai.DefaultPrices()
	}
}

type Service struct {
	provider  rag.ContextProvider
	generator ai.Generator
	sink      analytics.Sink
	opts      Options
	now       func() time.Time
}

func New(provider rag.ContextProvider, generator ai.Generator, sink analytics.Sink, opts Options) *Service {
	opts.setDefaults()
	if sink == nil {
		sink = analytics.Nop{}
	}
	return &Service{
		provider:  provider,
		generator: generator,
		sink:      sink,
		opts:      opts,
		now:       time.Now,
	}
}

// DefaultModel is the model used when a request does not name one.
func (s *Service) DefaultModel() string { return s.opts.DefaultModel }

func (s *Service) Ask(ctx context.Context, req Request) (*Response, error) {
	model, err := s.validate(req)
	if err != nil {
		return nil, err
	}
	start := s.now()

	passages, err := s.contextFor(ctx, req.Message)
	if err != nil {
		s.capture(req, model, false, start, nil, err)
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	c, err := s.generator.Complete(gctx, s.completionRequest(model, passages, req))
	if err != nil {
		err = asGenerationError(err)
		s.capture(req, model, false, start, nil, err)
		return nil, err
	}

	// The provider may have answered with another model after a quota switch.
	if c.Model != "" {
		model = c.Model
	}
	m := ai.NewMetrics(model, c.Usage, s.now().Sub(start), s.opts.Prices)
	s.capture(req, model, false, start, &m, nil)
	return &Response{Text: c.Text, Metrics: m}, nil
}

// Stream answers like Ask but forwards the answer to emit as it arrives,
// finishing with a single metrics event. When Stream returns an error after
// emit was called, the caller has already seen part of the answer.
func (s *Service) Stream(ctx context.Context, req Request, emit func(ai.StreamEvent) error) error {
	model, err := s.validate(req)
	if err != nil {
		return err
	}
	start := s.now()

	ctx, cancel := context.WithTimeout(ctx, s.opts.StreamTimeout)
	defer cancel()

	passages, err := s.contextFor(ctx, req.Message)
	if err != nil {
		s.capture(req, model, true, start, nil, err)
		return err
	}

	stream, err := s.generator.Stream(ctx, s.completionRequest(model, passages, req))
	if err != nil {
		err = asGenerationError(err)
		s.capture(req, model, true, start, nil, err)
		return err
	}

	relay := ai.NewStreamRelay(model, s.opts.Prices, start)
	m, err := relay.Run(ctx, stream, emit)
	if err != nil {
		if ctx.Err() == nil {
			err = asGenerationError(err)
		}
		slog.Warn("stream ended early", "model", model, "state", relay.State().String(), "error", err)
		s.capture(req, model, true, start, nil, err)
		return err
	}

	s.capture(req, m.Model, true, start, m, nil)
	return nil
}

func (s *Service) validate(req Request) (string, error) {
	if strings.TrimSpace(req.Message) == "" {
		return "", ErrInvalidMessage
	}
	model := req.Model
	if model == "" {
		return s.opts.DefaultModel, nil
	}
	if len(s.opts.AllowedModels) > 0 && !slices.Contains(s.opts.AllowedModels, model) {
		return "", &ai.ValidationError{Msg: "Model not allowed"}
	}
	return model, nil
}

// contextFor fetches passages for the question. A failed retrieval degrades to
// an empty context; a failed embedding aborts.
func (s *Service) contextFor(ctx context.Context, question string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	passages, err := s.provider.Passages(ctx, question)
	if err == nil {
		return passages, nil
	}

	var re *rag.RetrievalError
	if errors.As(err, &re) {
		slog.Warn("retrieval failed, answering without context", "backend", re.Backend, "error", err)
		return nil, nil
	}
	return nil, err
}

func (s *Service) completionRequest(model string, passages []string, req Request) ai.CompletionRequest {
	system := ai.BuildSystemPrompt(s.opts.Name, passages)
	return ai.CompletionRequest{
		Model:       model,
		Messages:    ai.AssembleMessages(system, req.History, req.Message),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	}
}

func asGenerationError(err error) error {
	var ge *ai.GenerationError
	if errors.As(err, &ge) {
		return err
	}
	return &ai.GenerationError{Body: err.Error(), Err: err}
}

func (s *Service) capture(req Request, model string, streaming bool, start time.Time, m *ai.Metrics, err error) {
	props := map[string]any{
		"model":          model,
		"streaming":      streaming,
		"message_length": len(req.Message),
		"history_length": len(req.History),
		"response_ms":    s.now().Sub(start).Milliseconds(),
	}
	name := "question_answered"
	if err != nil {
		name = "question_failed"
		props["error_type"] = errorType(err)
	}
	if m != nil {
		props["total_tokens"] = m.TotalTokens
		if m.EstimatedCost != nil {
			props["estimated_cost"] = *m.EstimatedCost
		}
	}

	id := req.ClientID
	if id == "" {
		id = "anonymous"
	}
	// The sink must not see the request's cancellation.
	if cerr := s.sink.Capture(context.Background(), analytics.Event{
		Name:       name,
		DistinctID: id,
		Properties: props,
		Timestamp:  s.now(),
	}); cerr != nil {
		slog.Warn("analytics capture failed", "error", cerr)
	}
}

func errorType(err error) string {
	var (
		ee *ai.EmbeddingError
		ge *ai.GenerationError
	)
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &ee):
		return "embedding"
	case errors.As(err, &ge):
		return "generation"
	}
	return "internal"
}
