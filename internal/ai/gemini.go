package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"google.golang.org/genai"
)

type GeminiConfig struct {
	APIKey     string
	BaseURL    string
	ChatModels []string // rotated on quota errors
	EmbedModel string
	Dimensions int
	RPMLimit   int
	Retry      RetryPolicy
}

// GeminiClient implements both Embedder and Generator on the Gemini API.
type GeminiClient struct {
	client     *genai.Client
	chatModels []string
	modelIdx   atomic.Int64
	embedModel string
	dim        int32
	retry      RetryPolicy

	// rate limit
	rpmLimit int
	mu       sync.Mutex
	tokens   int
	lastTick time.Time
}

func NewGeminiClient(ctx context.Context, cfg GeminiConfig) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	rpm := cfg.RPMLimit
	if rpm <= 0 {
		rpm = 60
	}
	return &GeminiClient{
		client:     client,
		chatModels: cfg.ChatModels,
		embedModel: cfg.EmbedModel,
		dim:        int32(cfg.Dimensions),
		retry:      cfg.Retry,
		rpmLimit:   rpm,
		tokens:     rpm,
		lastTick:   time.Now(),
	}, nil
}

func (c *GeminiClient) currentModel(models []string) string {
	idx := c.modelIdx.Load() % int64(len(models))
	return models[idx]
}

func (c *GeminiClient) rotateModel(models []string) {
	if len(models) < 2 {
		return
	}
	newIdx := c.modelIdx.Add(1) % int64(len(models))
	slog.Info("rotating to next model", "model", models[newIdx])
}

// candidates returns the rotation list when the requested model belongs to it,
// otherwise only the requested model.
func (c *GeminiClient) candidates(model string) []string {
	if model == "" || slices.Contains(c.chatModels, model) {
		return c.chatModels
	}
	return []string{model}
}

func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	models := c.candidates(req.Model)
	if len(models) == 0 {
		return nil, &GenerationError{Body: "no chat model configured"}
	}
	system, contents := toGeminiContents(req.Messages)
	cfg := generateConfig(system, req)

	var (
		resp  *genai.GenerateContentResponse
		model string
	)
	err := c.retry.do(ctx, func(ctx context.Context) error {
		if err := c.waitForToken(ctx); err != nil {
			return err
		}
		model = c.currentModel(models)
		r, err := c.client.Models.GenerateContent(ctx, model, contents, cfg)
		if err != nil {
			if isQuotaError(err) {
				slog.Warn("model quota exceeded, switching", "model", model)
				c.rotateModel(models)
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, geminiGenerationError(err)
	}

	out := &Completion{Text: resp.Text(), Model: model}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func (c *GeminiClient) Stream(ctx context.Context, req CompletionRequest) (ChunkStream, error) {
	models := c.candidates(req.Model)
	if len(models) == 0 {
		return nil, &GenerationError{Body: "no chat model configured"}
	}
	if err := c.waitForToken(ctx); err != nil {
		return nil, geminiGenerationError(err)
	}
	system, contents := toGeminiContents(req.Messages)
	model := c.currentModel(models)
	seq := c.client.Models.GenerateContentStream(ctx, model, contents, generateConfig(system, req))
	next, stop := iter.Pull2(seq)
	return &geminiStream{model: model, next: next, stop: stop}, nil
}

type geminiStream struct {
	model string
	next  func() (*genai.GenerateContentResponse, error, bool)
	stop  func()
}

func (s *geminiStream) Recv() (StreamChunk, error) {
	resp, err, ok := s.next()
	if !ok {
		return StreamChunk{}, io.EOF
	}
	if err != nil {
		return StreamChunk{}, geminiGenerationError(err)
	}
	chunk := StreamChunk{Content: resp.Text(), Model: s.model}
	if u := resp.UsageMetadata; u != nil {
		chunk.Usage = &Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return chunk, nil
}

func (s *geminiStream) Close() error {
	s.stop()
	return nil
}

// Embed generates a text embedding.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		input := PrepareInput(t)
		if input == "" {
			return nil, &EmbeddingError{Err: fmt.Errorf("text %d is empty", i)}
		}
		contents[i] = genai.NewContentFromText(input, genai.RoleUser)
	}

	var cfg *genai.EmbedContentConfig
	if c.dim > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(c.dim)}
	}

	var resp *genai.EmbedContentResponse
	err := c.retry.do(ctx, func(ctx context.Context) error {
		if err := c.waitForToken(ctx); err != nil {
			return err
		}
		r, err := c.client.Models.EmbedContent(ctx, c.embedModel, contents, cfg)
		if err != nil {
			slog.Warn("embed failed", "error", err)
			if isQuotaError(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &EmbeddingError{Err: fmt.Errorf("gemini embed: %w", err)}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &EmbeddingError{Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))}
	}

	out := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, &EmbeddingError{Err: fmt.Errorf("embedding %d is empty", i)}
		}
		out[i] = e.Values
	}
	return out, nil
}

func (c *GeminiClient) ModelInfo() string {
	return "gemini/" + c.embedModel
}

// waitForToken is a simple per-minute token bucket.
func (c *GeminiClient) waitForToken(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(c.lastTick)
	if elapsed >= time.Minute {
		c.tokens = c.rpmLimit
		c.lastTick = now
	}

	if c.tokens > 0 {
		c.tokens--
		return nil
	}

	wait := time.Minute - elapsed
	c.mu.Unlock()
	slog.Info("rate limit reached, waiting", "duration", wait)
	select {
	case <-ctx.Done():
		c.mu.Lock()
		return ctx.Err()
	case <-time.After(wait):
	}
	c.mu.Lock()
	c.tokens = c.rpmLimit - 1
	c.lastTick = time.Now()
	return nil
}

// toGeminiContents moves system messages into the system instruction.
func toGeminiContents(msgs []Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) == 0 {
		return nil, contents
	}
	return genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser), contents
}

func generateConfig(system *genai.Content, req CompletionRequest) *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		SystemInstruction: system,
		Temperature:       genai.Ptr(req.Temperature),
		MaxOutputTokens:   int32(req.MaxTokens),
	}
}

func isQuotaError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") || strings.Contains(s, "RESOURCE_EXHAUSTED")
}

func geminiGenerationError(err error) error {
	ge := &GenerationError{Body: err.Error(), Err: err}
	if isQuotaError(err) {
		ge.StatusCode = 429
	}
	return ge
}
