package ai

import "fmt"

// ValidationError reports bad caller input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// EmbeddingError wraps a failed query or passage embedding.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string { return "embedding: " + e.Err.Error() }
func (e *EmbeddingError) Unwrap() error { return e.Err }

// GenerationError carries the provider's status code and error body.
type GenerationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *GenerationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation: status %d: %s", e.StatusCode, e.Body)
	}
	return "generation: " + e.Body
}

func (e *GenerationError) Unwrap() error { return e.Err }
