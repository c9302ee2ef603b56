package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
)

// OpenAIConfig also serves OpenAI-compatible hosts such as OpenRouter.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Headers are added to every request (OpenRouter attribution headers).
	Headers map[string]string
	Retry   RetryPolicy
}

func newOpenAIClient(cfg OpenAIConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	if len(cfg.Headers) > 0 {
		c.HTTPClient = &http.Client{Transport: headerTransport{headers: cfg.Headers, next: http.DefaultTransport}}
	}
	return openai.NewClientWithConfig(c), nil
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.next.RoundTrip(req)
}

// OpenAIEmbedder uses the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	dim    int
	retry  RetryPolicy
}

func NewOpenAIEmbedder(cfg OpenAIConfig, model string, dimensions int) (*OpenAIEmbedder, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIEmbedder{client: client, model: model, dim: dimensions, retry: cfg.Retry}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch sends all texts in one request; results keep input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		inputs[i] = PrepareInput(t)
		if inputs[i] == "" {
			return nil, &EmbeddingError{Err: fmt.Errorf("text %d is empty", i)}
		}
	}

	var resp openai.EmbeddingResponse
	err := e.retry.do(ctx, func(ctx context.Context) error {
		r, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      inputs,
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: e.dim,
		})
		if err != nil {
			if retryableStatus(statusOf(err)) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("openai embeddings: %w", err)}
	}
	if len(resp.Data) != len(inputs) {
		return nil, &EmbeddingError{Err: fmt.Errorf("expected %d embeddings, got %d", len(inputs), len(resp.Data))}
	}

	out := make([][]float32, len(inputs))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, &EmbeddingError{Err: fmt.Errorf("embedding %d is empty", idx)}
		}
		out[idx] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) ModelInfo() string {
	return "openai-" + e.model
}

// OpenAIGenerator calls the chat-completions API.
type OpenAIGenerator struct {
	client *openai.Client
	retry  RetryPolicy
}

func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	client, err := newOpenAIClient(cfg)
	if err != nil {
		return nil, err
	}
	return &OpenAIGenerator{client: client, retry: cfg.Retry}, nil
}

func (g *OpenAIGenerator) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	var resp openai.ChatCompletionResponse
	err := g.retry.do(ctx, func(ctx context.Context) error {
		r, err := g.client.CreateChatCompletion(ctx, chatRequest(req))
		if err != nil {
			if retryableStatus(statusOf(err)) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, generationError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &GenerationError{Body: "no choices returned"}
	}
	return &Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: req.Model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (g *OpenAIGenerator) Stream(ctx context.Context, req CompletionRequest) (ChunkStream, error) {
	r := chatRequest(req)
	r.Stream = true
	r.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	var stream *openai.ChatCompletionStream
	err := g.retry.do(ctx, func(ctx context.Context) error {
		s, err := g.client.CreateChatCompletionStream(ctx, r)
		if err != nil {
			if retryableStatus(statusOf(err)) {
				return retry.RetryableError(err)
			}
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, generationError(err)
	}
	return &openAIStream{stream: stream}, nil
}

type openAIStream struct {
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (StreamChunk, error) {
	resp, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return StreamChunk{}, io.EOF
	}
	if err != nil {
		return StreamChunk{}, generationError(err)
	}

	var chunk StreamChunk
	if len(resp.Choices) > 0 {
		chunk.Content = resp.Choices[0].Delta.Content
	}
	if resp.Usage != nil {
		chunk.Usage = &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}
	return chunk, nil
}

func (s *openAIStream) Close() error {
	return s.stream.Close()
}

func chatRequest(req CompletionRequest) openai.ChatCompletionRequest {
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func statusOf(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func generationError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &GenerationError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		body := http.StatusText(reqErr.HTTPStatusCode)
		if reqErr.Err != nil {
			body = reqErr.Err.Error()
		}
		return &GenerationError{StatusCode: reqErr.HTTPStatusCode, Body: body, Err: err}
	}
	return &GenerationError{Body: err.Error(), Err: err}
}

// PrepareInput collapses newlines, as the embeddings provider recommends.
func PrepareInput(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return strings.TrimSpace(text)
}
