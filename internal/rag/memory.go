package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Youssef2430/portfolio/internal/ai"
)

const defaultLoadTimeout = time.Minute

// Loader produces the fixed passage corpus.
type Loader func(ctx context.Context) ([]Passage, error)

// MemoryStore holds the passage corpus, loaded once on first use. Concurrent
// first callers share a single load; a failed load is retried by the next caller.
type MemoryStore struct {
	load        Loader
	loadTimeout time.Duration
	group       singleflight.Group

	mu       sync.RWMutex
	passages []Passage
	ready    bool
}

func NewMemoryStore(load Loader) *MemoryStore {
	return &MemoryStore{load: load, loadTimeout: defaultLoadTimeout}
}

func (s *MemoryStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Passages returns the corpus, loading it if needed. The slice must not be modified.
func (s *MemoryStore) Passages(ctx context.Context) ([]Passage, error) {
	if p, ok := s.cached(); ok {
		return p, nil
	}

	v, err, _ := s.group.Do("load", func() (any, error) {
		if p, ok := s.cached(); ok {
			return p, nil
		}

		// The load outlives whichever request triggered it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loadTimeout)
		defer cancel()

		p, err := s.load(loadCtx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.passages = p
		s.ready = true
		s.mu.Unlock()

		slog.Info("passage store initialized", "count", len(p))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Passage), nil
}

func (s *MemoryStore) cached() ([]Passage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passages, s.ready
}

// MemoryRetriever ranks the in-memory corpus by cosine similarity.
type MemoryRetriever struct {
	store *MemoryStore
	topK  int
}

func NewMemoryRetriever(store *MemoryStore, topK int) *MemoryRetriever {
	if topK <= 0 {
		topK = 3
	}
	return &MemoryRetriever{store: store, topK: topK}
}

func (r *MemoryRetriever) Search(ctx context.Context, vector []float32) ([]Result, error) {
	passages, err := r.store.Passages(ctx)
	if err != nil {
		return nil, &RetrievalError{Backend: "memory", Err: err}
	}
	return TopK(passages, vector, r.topK), nil
}

// SeedLoader embeds a fixed list of texts.
func SeedLoader(embedder ai.Embedder, texts []string) Loader {
	return func(ctx context.Context) ([]Passage, error) {
		if len(texts) == 0 {
			return nil, nil
		}
		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("embed seed passages: %w", err)
		}
		passages := make([]Passage, len(texts))
		for i, t := range texts {
			passages[i] = Passage{Text: t, Embedding: vecs[i]}
		}
		return passages, nil
	}
}

// IndexLoader reads precomputed passages from a bbolt index file.
func IndexLoader(path string) Loader {
	return func(ctx context.Context) ([]Passage, error) {
		idx, err := OpenIndex(path, true)
		if err != nil {
			return nil, err
		}
		defer idx.Close()

		passages, info, err := idx.Load()
		if err != nil {
			return nil, err
		}
		slog.Info("passage index loaded", "path", path, "count", len(passages), "model", info.Model, "dim", info.Dimension)
		return passages, nil
	}
}
