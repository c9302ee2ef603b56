package rag

import "context"

// Passage is a unit of retrievable text with its precomputed embedding.
type Passage struct {
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Result is a ranked match.
type Result struct {
	Text  string
	Score float32
}

// Retriever finds the passages nearest to a query vector, best first.
type Retriever interface {
	Search(ctx context.Context, vector []float32) ([]Result, error)
}

// RetrievalError reports a failed search on a retrieval backend.
type RetrievalError struct {
	Backend string
	Err     error
}

func (e *RetrievalError) Error() string {
	return "retrieval (" + e.Backend + "): " + e.Err.Error()
}

func (e *RetrievalError) Unwrap() error { return e.Err }
