package rag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Youssef2430/portfolio/internal/ai"
)

// ContextProvider supplies the passages a question is answered from.
type ContextProvider interface {
	Passages(ctx context.Context, query string) ([]string, error)
}

// Retrieval embeds the query and searches a Retriever.
type Retrieval struct {
	embedder  ai.Embedder
	retriever Retriever
}

func NewRetrieval(embedder ai.Embedder, retriever Retriever) *Retrieval {
	return &Retrieval{embedder: embedder, retriever: retriever}
}

func (p *Retrieval) Passages(ctx context.Context, query string) ([]string, error) {
	vec, err := p.embedder.Embed(ctx, query)
	if err != nil {
		var ee *ai.EmbeddingError
		if !errors.As(err, &ee) {
			err = &ai.EmbeddingError{Err: err}
		}
		return nil, err
	}

	results, err := p.retriever.Search(ctx, vec)
	if err != nil {
		var re *RetrievalError
		if !errors.As(err, &re) {
			err = &RetrievalError{Backend: "unknown", Err: err}
		}
		return nil, err
	}

	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Text)
	}
	slog.Debug("retrieved passages", "count", len(texts))
	return texts, nil
}

// Static returns the same passages for every query.
type Static struct {
	passages []string
}

func NewStatic(passages ...string) *Static {
	return &Static{passages: passages}
}

func (s *Static) Passages(context.Context, string) ([]string, error) {
	return s.passages, nil
}
