package rag

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_LoadsOnceUnderConcurrency(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	store := NewMemoryStore(func(ctx context.Context) ([]Passage, error) {
		calls.Add(1)
		<-release
		return []Passage{{Text: "one", Embedding: []float32{1}}}, nil
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := store.Passages(context.Background())
			assert.NoError(t, err)
			assert.Len(t, p, 1)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, store.Ready())

	_, err := store.Passages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestMemoryStore_FailedLoadIsRetried(t *testing.T) {
	var calls atomic.Int32
	store := NewMemoryStore(func(ctx context.Context) ([]Passage, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("upstream down")
		}
		return []Passage{{Text: "ok", Embedding: []float32{1}}}, nil
	})

	_, err := store.Passages(context.Background())
	require.Error(t, err)
	assert.False(t, store.Ready())

	p, err := store.Passages(context.Background())
	require.NoError(t, err)
	assert.Len(t, p, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryRetriever_Search(t *testing.T) {
	store := NewMemoryStore(func(ctx context.Context) ([]Passage, error) {
		return []Passage{
			{Text: "Studied Software Engineering at Ottawa.", Embedding: []float32{1, 0, 0}},
			{Text: "Likes climbing.", Embedding: []float32{0, 1, 0}},
			{Text: "Builds Go services.", Embedding: []float32{0.7, 0.7, 0}},
			{Text: "Plays chess.", Embedding: []float32{0, 0, 1}},
		}, nil
	})
	r := NewMemoryRetriever(store, 0)

	got, err := r.Search(context.Background(), []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Studied Software Engineering at Ottawa.", got[0].Text)
	assert.Equal(t, "Builds Go services.", got[1].Text)
}

func TestMemoryRetriever_LoadFailure(t *testing.T) {
	store := NewMemoryStore(func(ctx context.Context) ([]Passage, error) {
		return nil, errors.New("no index")
	})
	_, err := NewMemoryRetriever(store, 3).Search(context.Background(), []float32{1})

	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "memory", re.Backend)
}

type countingEmbedder struct {
	batches atomic.Int32
}

func (e *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1}, nil
}

func (e *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.batches.Add(1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (e *countingEmbedder) ModelInfo() string { return "counting" }

func TestSeedLoader(t *testing.T) {
	emb := &countingEmbedder{}
	passages, err := SeedLoader(emb, []string{"a", "bbb"})(context.Background())
	require.NoError(t, err)
	require.Len(t, passages, 2)
	assert.Equal(t, "bbb", passages[1].Text)
	assert.Equal(t, []float32{3, 1}, passages[1].Embedding)
	assert.Equal(t, int32(1), emb.batches.Load())
}
