package ai

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn. Order is significant.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type Completion struct {
	Text  string
	Model string
	Usage Usage
}

// StreamChunk is one upstream delta. Usage is set only on chunks that carry it.
type StreamChunk struct {
	Content string
	Usage   *Usage
	Model   string // serving model, when the provider reports it
}

// ChunkStream yields chunks until io.EOF, which stands for the provider's [DONE].
type ChunkStream interface {
	Recv() (StreamChunk, error)
	Close() error
}

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelInfo() string
}

// Generator calls a hosted chat-completion model.
type Generator interface {
	Complete(ctx context.Context, req CompletionRequest) (*Completion, error)
	Stream(ctx context.Context, req CompletionRequest) (ChunkStream, error)
}
