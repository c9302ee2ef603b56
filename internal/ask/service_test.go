package ask

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Youssef2430/portfolio/internal/ai"
	"github.com/Youssef2430/portfolio/internal/analytics"
	"github.com/Youssef2430/portfolio/internal/rag"
)

type stubProvider struct {
	passages []string
	err      error
}

func (p stubProvider) Passages(context.Context, string) ([]string, error) {
	return p.passages, p.err
}

// echoGenerator answers with the concatenated prompt it was given.
type echoGenerator struct {
	mu       sync.Mutex
	requests []ai.CompletionRequest
	err      error
	chunks   []ai.StreamChunk
	recvErr  error
	served   string // reported model, when it differs from the requested one
}

func (g *echoGenerator) Complete(_ context.Context, req ai.CompletionRequest) (*ai.Completion, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	var b strings.Builder
	for _, m := range req.Messages {
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	model := req.Model
	if g.served != "" {
		model = g.served
	}
	return &ai.Completion{
		Text:  b.String(),
		Model: model,
		Usage: ai.Usage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100},
	}, nil
}

func (g *echoGenerator) Stream(_ context.Context, req ai.CompletionRequest) (ai.ChunkStream, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return &sliceStream{chunks: append([]ai.StreamChunk(nil), g.chunks...), err: g.recvErr}, nil
}

type sliceStream struct {
	chunks []ai.StreamChunk
	err    error
}

func (s *sliceStream) Recv() (ai.StreamChunk, error) {
	if len(s.chunks) == 0 {
		if s.err != nil {
			return ai.StreamChunk{}, s.err
		}
		return ai.StreamChunk{}, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *sliceStream) Close() error { return nil }

type memorySink struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (s *memorySink) Capture(_ context.Context, e analytics.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *memorySink) Close() error { return nil }

func newService(p rag.ContextProvider, g ai.Generator, sink analytics.Sink) *Service {
	return New(p, g, sink, Options{Name: "Youssef", DefaultModel: "gpt-4.1-nano"})
}

func TestAsk_ContextReachesGenerator(t *testing.T) {
	gen := &echoGenerator{}
	sink := &memorySink{}
	svc := newService(stubProvider{passages: []string{"He studied Software Engineering at Ottawa."}}, gen, sink)

	resp, err := svc.Ask(context.Background(), Request{Message: "What did Youssef study?"})
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "He studied Software Engineering at Ottawa.")
	assert.Equal(t, "gpt-4.1-nano", resp.Metrics.Model)
	assert.Equal(t, 1100, resp.Metrics.TotalTokens)
	require.NotNil(t, resp.Metrics.EstimatedCost)
	assert.InDelta(t, 1000.0/1e6*0.10+100.0/1e6*0.40, *resp.Metrics.EstimatedCost, 1e-12)

	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.Equal(t, 150, req.MaxTokens)
	assert.InDelta(t, 0.3, req.Temperature, 1e-6)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "question_answered", sink.events[0].Name)
	assert.Equal(t, "anonymous", sink.events[0].DistinctID)
}

func TestAsk_HistoryOrder(t *testing.T) {
	gen := &echoGenerator{}
	svc := newService(stubProvider{}, gen, nil)

	_, err := svc.Ask(context.Background(), Request{
		Message: "B",
		History: []ai.Message{{Role: ai.RoleUser, Content: "A"}},
	})
	require.NoError(t, err)

	msgs := gen.requests[0].Messages
	require.Len(t, msgs, 3)
	assert.Equal(t, ai.RoleSystem, msgs[0].Role)
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "A"}, msgs[1])
	assert.Equal(t, ai.Message{Role: ai.RoleUser, Content: "B"}, msgs[2])
}

func TestAsk_SamePromptTwice(t *testing.T) {
	gen := &echoGenerator{}
	svc := newService(stubProvider{passages: []string{"fact"}}, gen, nil)

	for range 2 {
		_, err := svc.Ask(context.Background(), Request{Message: "hi"})
		require.NoError(t, err)
	}
	assert.Equal(t, gen.requests[0].Messages, gen.requests[1].Messages)
}

func TestAsk_RetrievalFailureDegrades(t *testing.T) {
	gen := &echoGenerator{}
	svc := newService(stubProvider{err: &rag.RetrievalError{Backend: "supabase", Err: errors.New("rpc down")}}, gen, nil)

	resp, err := svc.Ask(context.Background(), Request{Message: "What did Youssef study?"})
	require.NoError(t, err)
	assert.Contains(t, resp.Text, ai.NoContextPlaceholder)
}

func TestAsk_EmbeddingFailureAborts(t *testing.T) {
	gen := &echoGenerator{}
	sink := &memorySink{}
	svc := newService(stubProvider{err: &ai.EmbeddingError{Err: errors.New("401")}}, gen, sink)

	_, err := svc.Ask(context.Background(), Request{Message: "hi"})
	var ee *ai.EmbeddingError
	require.ErrorAs(t, err, &ee)
	assert.Empty(t, gen.requests)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "question_failed", sink.events[0].Name)
	assert.Equal(t, "embedding", sink.events[0].Properties["error_type"])
}

func TestAsk_GenerationFailure(t *testing.T) {
	svc := newService(stubProvider{}, &echoGenerator{err: errors.New("connection reset")}, nil)

	_, err := svc.Ask(context.Background(), Request{Message: "hi"})
	var ge *ai.GenerationError
	require.ErrorAs(t, err, &ge)
}

func TestAsk_Validation(t *testing.T) {
	gen := &echoGenerator{}
	svc := New(stubProvider{}, gen, nil, Options{
		DefaultModel:  "gpt-4.1-nano",
		AllowedModels: []string{"gpt-4.1-nano", "gpt-4.1-mini"},
	})

	_, err := svc.Ask(context.Background(), Request{Message: "   "})
	var ve *ai.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "Invalid message format", ve.Msg)

	_, err = svc.Ask(context.Background(), Request{Message: "hi", Model: "gpt-4o"})
	require.ErrorAs(t, err, &ve)

	resp, err := svc.Ask(context.Background(), Request{Message: "hi", Model: "gpt-4.1-mini"})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", resp.Metrics.Model)
	assert.Len(t, gen.requests, 1)
}

func TestStream_ForwardsChunksThenMetrics(t *testing.T) {
	gen := &echoGenerator{chunks: []ai.StreamChunk{
		{Content: "He "},
		{Content: "studied "},
		{Content: "SE."},
		{Usage: &ai.Usage{PromptTokens: 50, CompletionTokens: 3}},
	}}
	svc := newService(stubProvider{}, gen, nil)

	var events []ai.StreamEvent
	err := svc.Stream(context.Background(), Request{Message: "hi"}, func(e ai.StreamEvent) error {
		events = append(events, e)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, "He ", events[0].Content)
	assert.Equal(t, "SE.", events[2].Content)
	require.NotNil(t, events[3].Metrics)
	assert.Equal(t, 53, events[3].Metrics.TotalTokens)
	assert.NotNil(t, events[3].Metrics.TimeToFirstTokenMs)
}

func TestStream_UpstreamFailureMidStream(t *testing.T) {
	gen := &echoGenerator{
		chunks:  []ai.StreamChunk{{Content: "partial"}},
		recvErr: errors.New("unexpected EOF"),
	}
	svc := newService(stubProvider{}, gen, nil)

	var events []ai.StreamEvent
	err := svc.Stream(context.Background(), Request{Message: "hi"}, func(e ai.StreamEvent) error {
		events = append(events, e)
		return nil
	})
	var ge *ai.GenerationError
	require.ErrorAs(t, err, &ge)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].Metrics)
}

func TestStream_InvalidMessage(t *testing.T) {
	svc := newService(stubProvider{}, &echoGenerator{}, nil)
	err := svc.Stream(context.Background(), Request{}, func(ai.StreamEvent) error {
		t.Fatal("emit must not be called")
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidMessage)
}

func TestAsk_ReportsServingModel(t *testing.T) {
	sink := &memorySink{}
	g := &echoGenerator{served: "gemini-2.0-flash"}
	svc := New(stubProvider{}, g, sink, Options{
		Name:         "Youssef",
		DefaultModel: "gemini-2.5-flash",
		Prices: ai.PriceTable{
			"gemini-2.5-flash": {Input: 10, Output: 10},
			"gemini-2.0-flash": {Input: 1, Output: 1},
		},
	})

	resp, err := svc.Ask(context.Background(), Request{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "gemini-2.5-flash", g.requests[0].Model)
	assert.Equal(t, "gemini-2.0-flash", resp.Metrics.Model)
	require.NotNil(t, resp.Metrics.EstimatedCost)
	assert.InDelta(t, 0.0011, *resp.Metrics.EstimatedCost, 1e-9)

	require.Len(t, sink.events, 1)
	assert.Equal(t, "gemini-2.0-flash", sink.events[0].Properties["model"])
}

func TestStream_ReportsServingModel(t *testing.T) {
	g := &echoGenerator{chunks: []ai.StreamChunk{
		{Content: "hi", Model: "gemini-2.0-flash"},
	}}
	svc := New(stubProvider{}, g, analytics.Nop{}, Options{Name: "Youssef", DefaultModel: "gemini-2.5-flash"})

	var metrics *ai.Metrics
	err := svc.Stream(context.Background(), Request{Message: "hi"}, func(e ai.StreamEvent) error {
		if e.Metrics != nil {
			metrics = e.Metrics
		}
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, metrics)
	assert.Equal(t, "gemini-2.0-flash", metrics.Model)
}
