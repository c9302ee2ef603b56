// Package app builds the pipeline's components from configuration. Both
// binaries share it so the server and the populate tool embed the same way.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/Youssef2430/portfolio/internal/ai"
	"github.com/Youssef2430/portfolio/internal/analytics"
	"github.com/Youssef2430/portfolio/internal/ask"
	"github.com/Youssef2430/portfolio/internal/config"
	"github.com/Youssef2430/portfolio/internal/persona"
	"github.com/Youssef2430/portfolio/internal/rag"
)

func retryPolicy(cfg *config.Config) ai.RetryPolicy {
	return ai.RetryPolicy{MaxRetries: cfg.Provider.MaxRetries}
}

func NewEmbedder(ctx context.Context, cfg *config.Config) (ai.Embedder, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return ai.NewOpenAIEmbedder(ai.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Retry:   retryPolicy(cfg),
		}, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	case "gemini":
		return ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:     cfg.Gemini.APIKey,
			ChatModels: cfg.Gemini.ChatModels,
			EmbedModel: cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			RPMLimit:   cfg.Gemini.RPMLimit,
			Retry:      retryPolicy(cfg),
		})
	}
	return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
}

func NewGenerator(ctx context.Context, cfg *config.Config) (ai.Generator, error) {
	switch cfg.Provider.Name {
	case "openai":
		return ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey:  cfg.OpenAI.APIKey,
			BaseURL: cfg.OpenAI.BaseURL,
			Retry:   retryPolicy(cfg),
		})
	case "openrouter":
		headers := map[string]string{}
		if cfg.OpenRouter.Referer != "" {
			headers["HTTP-Referer"] = cfg.OpenRouter.Referer
		}
		if cfg.OpenRouter.Title != "" {
			headers["X-Title"] = cfg.OpenRouter.Title
		}
		return ai.NewOpenAIGenerator(ai.OpenAIConfig{
			APIKey:  cfg.OpenRouter.APIKey,
			BaseURL: cfg.OpenRouter.BaseURL,
			Headers: headers,
			Retry:   retryPolicy(cfg),
		})
	case "gemini":
		return ai.NewGeminiClient(ctx, ai.GeminiConfig{
			APIKey:     cfg.Gemini.APIKey,
			ChatModels: cfg.Gemini.ChatModels,
			EmbedModel: cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			RPMLimit:   cfg.Gemini.RPMLimit,
			Retry:      retryPolicy(cfg),
		})
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider.Name)
}

// LoadPersona reads the biography. A missing file yields a persona carrying
// only the configured name.
func LoadPersona(cfg *config.Config) *persona.Persona {
	if cfg.Persona.File != "" {
		p, err := persona.LoadFromFile(cfg.Persona.File)
		if err == nil {
			return p
		}
		slog.Warn("load persona failed, continuing without biography", "error", err)
	}
	return &persona.Persona{Name: cfg.Chat.Name}
}

// NewContextProvider selects static biography or retrieval per rag.enabled.
func NewContextProvider(ctx context.Context, cfg *config.Config, p *persona.Persona, embedder ai.Embedder) (rag.ContextProvider, error) {
	if !cfg.RAG.Enabled {
		slog.Info("retrieval disabled, answering from static biography")
		return rag.NewStatic(p.FormatForPrompt()), nil
	}

	var retriever rag.Retriever
	switch cfg.RAG.Retriever {
	case "memory":
		store := rag.NewMemoryStore(memoryLoader(cfg, p, embedder))
		if cfg.RAG.EagerLoad {
			if _, err := store.Passages(ctx); err != nil {
				slog.Warn("eager passage load failed, will retry on first question", "error", err)
			}
		}
		retriever = rag.NewMemoryRetriever(store, cfg.RAG.TopK)
	case "chromem":
		store, err := rag.OpenChromemStore(cfg.RAG.VectorsDir)
		if err != nil {
			return nil, err
		}
		retriever = rag.NewChromemRetriever(store, cfg.RAG.TopK, cfg.RAG.MinSimilarity)
	case "supabase":
		client, err := NewSupabase(cfg)
		if err != nil {
			return nil, err
		}
		retriever = client
	default:
		return nil, fmt.Errorf("unknown retriever %q", cfg.RAG.Retriever)
	}

	slog.Info("retrieval enabled", "retriever", cfg.RAG.Retriever, "embedder", embedder.ModelInfo())
	return rag.NewRetrieval(embedder, retriever), nil
}

// memoryLoader prefers the prebuilt index and falls back to embedding the
// persona on first use.
func memoryLoader(cfg *config.Config, p *persona.Persona, embedder ai.Embedder) rag.Loader {
	if _, err := os.Stat(cfg.RAG.IndexFile); err == nil {
		return rag.IndexLoader(cfg.RAG.IndexFile)
	}
	slog.Info("no passage index, seeding from persona", "index_file", cfg.RAG.IndexFile)
	return rag.SeedLoader(embedder, p.Passages())
}

func NewSupabase(cfg *config.Config) (*rag.SupabaseClient, error) {
	return rag.NewSupabaseClient(rag.SupabaseConfig{
		URL:           cfg.Supabase.URL,
		ServiceKey:    cfg.Supabase.ServiceKey,
		MatchFunction: cfg.Supabase.MatchFunction,
		Table:         cfg.Supabase.Table,
		Threshold:     cfg.Supabase.Threshold,
		Count:         cfg.RAG.TopK,
		Timeout:       cfg.Supabase.Timeout,
	})
}

// NewSink builds the analytics sink. Network sinks run behind a queue.
func NewSink(cfg *config.Config) (analytics.Sink, error) {
	switch cfg.Analytics.Sink {
	case "none", "":
		return analytics.Nop{}, nil
	case "posthog":
		ph, err := analytics.NewPostHog(cfg.Analytics.PostHog.Host, cfg.Analytics.PostHog.APIKey)
		if err != nil {
			return nil, err
		}
		return analytics.NewAsync(ph, cfg.Analytics.QueueSize), nil
	case "redis":
		rs := analytics.NewRedisStream(analytics.RedisOptions{
			Address:  cfg.Analytics.Redis.Addr,
			Password: cfg.Analytics.Redis.Password,
			DB:       cfg.Analytics.Redis.DB,
			Stream:   cfg.Analytics.Redis.Stream,
			MaxLen:   cfg.Analytics.Redis.MaxLen,
		})
		return analytics.NewAsync(rs, cfg.Analytics.QueueSize), nil
	}
	return nil, fmt.Errorf("unknown analytics sink %q", cfg.Analytics.Sink)
}

func AskOptions(cfg *config.Config, name string) ask.Options {
	return ask.Options{
		Name:          name,
		DefaultModel:  cfg.Chat.Model,
		AllowedModels: cfg.Chat.AllowedModels,
		MaxTokens:     cfg.Chat.MaxTokens,
		Temperature:   cfg.Chat.Temperature,
		Timeout:       cfg.Chat.Timeout,
		StreamTimeout: cfg.Chat.StreamTimeout,
		Prices:        cfg.Prices(),
	}
}

const (
	embedBatchSize   = 16
	embedConcurrency = 10
)

// EmbedPassages embeds texts in batches with bounded concurrency. Output order
// matches input order.
func EmbedPassages(ctx context.Context, embedder ai.Embedder, texts []string) ([]rag.Passage, error) {
	if len(texts) == 0 {
		return nil, errors.New("nothing to embed")
	}

	passages := make([]rag.Passage, len(texts))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for start := 0; start < len(texts); start += embedBatchSize {
		end := min(start+embedBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := embedder.EmbedBatch(ctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed passages %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("embed passages %d-%d: got %d vectors", start, end, len(vecs))
			}
			for i, v := range vecs {
				passages[start+i] = rag.Passage{Text: texts[start+i], Embedding: v}
			}
			slog.Debug("embedded batch", "from", start, "to", end)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return passages, nil
}
