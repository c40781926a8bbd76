// Package generation provides answer generation via remote and local backends.
package generation

import "context"

// Token is one streamed piece of a generated answer. Err is set on the last
// token when the stream dies early.
type Token struct {
	Content string
	Err     error
}

// Result is a complete non-streamed generation.
type Result struct {
	Text             string
	ModelID          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Generator produces answers from prompts.
type Generator interface {
	// GenerateStream returns a token channel. The channel is closed when
	// generation finishes, fails, or ctx is canceled.
	GenerateStream(ctx context.Context, prompt string) (<-chan Token, error)
	Generate(ctx context.Context, prompt string) (*Result, error)
	ModelID() string
	Close() error
}
