package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/philippgille/chromem-go"
)

const passageCollection = "passages"

var errNoEmbedFunc = errors.New("chromem: passages must carry precomputed embeddings")

// ChromemStore is a persistent chromem-go collection of passages.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// OpenChromemStore creates or loads the collection under vectorsDir.
func OpenChromemStore(vectorsDir string) (*ChromemStore, error) {
	db, err := chromem.NewPersistentDB(vectorsDir, false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}

	col, err := db.GetOrCreateCollection(passageCollection, nil, noEmbed)
	if err != nil {
		return nil, fmt.Errorf("get/create collection: %w", err)
	}

	slog.Info("vector store loaded", "dir", vectorsDir, "count", col.Count())
	return &ChromemStore{db: db, collection: col}, nil
}

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errNoEmbedFunc
}

// Query returns up to topK passages nearest to vector, skipping those scoring
// below minSimilarity.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int, minSimilarity float32) ([]Result, error) {
	n := s.collection.Count()
	if n == 0 || topK <= 0 {
		return nil, nil
	}
	if topK > n {
		topK = n
	}

	docs, err := s.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	results := make([]Result, 0, len(docs))
	for _, d := range docs {
		if d.Similarity < minSimilarity {
			continue
		}
		results = append(results, Result{Text: d.Content, Score: d.Similarity})
	}
	return results, nil
}

// Replace drops the collection and writes passages in its place.
func (s *ChromemStore) Replace(ctx context.Context, passages []Passage) error {
	if err := s.db.DeleteCollection(passageCollection); err != nil {
		return fmt.Errorf("drop collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(passageCollection, nil, noEmbed)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	s.collection = col

	if len(passages) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(passages))
	for i, p := range passages {
		docs[i] = chromem.Document{
			ID:        fmt.Sprintf("passage_%05d", i),
			Content:   p.Text,
			Embedding: p.Embedding,
		}
	}
	return s.collection.AddDocuments(ctx, docs, runtime.NumCPU())
}

func (s *ChromemStore) Count() int {
	return s.collection.Count()
}

// ChromemRetriever adapts a ChromemStore to Retriever.
type ChromemRetriever struct {
	store         *ChromemStore
	topK          int
	minSimilarity float32
}

func NewChromemRetriever(store *ChromemStore, topK int, minSimilarity float32) *ChromemRetriever {
	if topK <= 0 {
		topK = 3
	}
	return &ChromemRetriever{store: store, topK: topK, minSimilarity: minSimilarity}
}

func (r *ChromemRetriever) Search(ctx context.Context, vector []float32) ([]Result, error) {
	results, err := r.store.Query(ctx, vector, r.topK, r.minSimilarity)
	if err != nil {
		return nil, &RetrievalError{Backend: "chromem", Err: err}
	}
	return results, nil
}
