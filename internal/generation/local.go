package generation

import (
	"context"
	"strings"
	"time"
)

const localModelID = "local-llm"

const challengesAnswer = "Based on the provided context, the main challenges in RAG implementation include:\n\n" +
	"1. **Data Quality and Preprocessing**: Ensuring clean, well-structured documents for accurate retrieval\n" +
	"2. **Embedding Quality**: Choosing appropriate embedding models that capture semantic meaning effectively\n" +
	"3. **Retrieval Accuracy**: Balancing between retrieving relevant context and avoiding information overload\n" +
	"4. **Latency Optimization**: Maintaining fast response times while processing large document collections\n" +
	"5. **Context Window Management**: Efficiently utilizing limited context windows in language models"

const methodologyAnswer = "The methodology described in the documents involves several key approaches:\n\n" +
	"1. **Hybrid Retrieval**: Combining dense vector search with traditional keyword matching\n" +
	"2. **Multi-stage Ranking**: Using initial retrieval followed by re-ranking for improved relevance\n" +
	"3. **Adaptive Chunking**: Dynamically adjusting document segmentation based on content structure\n" +
	"4. **Query Expansion**: Enhancing user queries with related terms for better retrieval coverage\n" +
	"5. **Feedback Loops**: Incorporating user interactions to continuously improve system performance"

const genericAnswer = "Based on the uploaded documents, I can provide insights related to your question. " +
	"The documents contain relevant information about data processing, machine learning techniques, " +
	"and system implementation approaches. For more specific details, please refer to the source " +
	"documents listed below."

// LocalGenerator produces canned answers without any model dependency. It
// keeps the pipeline usable for demos and tests when no language model is
// reachable.
type LocalGenerator struct {
	tokenDelay time.Duration
}

// NewLocalGenerator returns a local generator with the default word cadence.
func NewLocalGenerator() *LocalGenerator {
	return &LocalGenerator{tokenDelay: 10 * time.Millisecond}
}

func (g *LocalGenerator) answer(prompt string) string {
	p := strings.ToLower(prompt)
	switch {
	case strings.Contains(p, "challenge") || strings.Contains(p, "problem"):
		return challengesAnswer
	case strings.Contains(p, "method") || strings.Contains(p, "approach"):
		return methodologyAnswer
	default:
		return genericAnswer
	}
}

// GenerateStream emits the routed answer one word at a time. Every word after
// the first carries its leading space, so concatenating all tokens restores
// the answer exactly, newlines included.
func (g *LocalGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan Token, error) {
	pieces := strings.Split(g.answer(prompt), " ")
	out := make(chan Token)
	go func() {
		defer close(out)
		for i, piece := range pieces {
			content := piece
			if i > 0 {
				content = " " + piece
			}
			select {
			case out <- Token{Content: content}:
			case <-ctx.Done():
				return
			}
			if g.tokenDelay > 0 {
				select {
				case <-time.After(g.tokenDelay):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Generate returns the routed answer with word-count token usage.
func (g *LocalGenerator) Generate(ctx context.Context, prompt string) (*Result, error) {
	text := g.answer(prompt)
	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(text))
	return &Result{
		Text:             text,
		ModelID:          localModelID,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
	}, nil
}

// ModelID identifies the local generator.
func (g *LocalGenerator) ModelID() string {
	return localModelID
}

// Close is a no-op for LocalGenerator.
func (g *LocalGenerator) Close() error {
	return nil
}
