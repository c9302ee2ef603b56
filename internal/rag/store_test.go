package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemStore_ReplaceAndSearch(t *testing.T) {
	store, err := OpenChromemStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Replace(context.Background(), []Passage{
		{Text: "education", Embedding: []float32{1, 0, 0}},
		{Text: "hobbies", Embedding: []float32{0, 1, 0}},
		{Text: "work", Embedding: []float32{0.8, 0.6, 0}},
	}))
	assert.Equal(t, 3, store.Count())

	r := NewChromemRetriever(store, 5, 0.5)
	results, err := r.Search(context.Background(), []float32{1, 0, 0})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "education", results[0].Text)
	assert.Equal(t, "work", results[1].Text)

	require.NoError(t, store.Replace(context.Background(), []Passage{
		{Text: "only", Embedding: []float32{0, 0, 1}},
	}))
	assert.Equal(t, 1, store.Count())
}

func TestChromemStore_EmptyCollection(t *testing.T) {
	store, err := OpenChromemStore(t.TempDir())
	require.NoError(t, err)

	results, err := NewChromemRetriever(store, 3, 0).Search(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	assert.Empty(t, results)
}
