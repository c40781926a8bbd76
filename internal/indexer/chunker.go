package indexer

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/internal/models"
)

// Tokenizer converts text to tokens and back. The default tokenizer treats
// each whitespace-separated word as one token.
type Tokenizer interface {
	Encode(text string) []string
	Decode(tokens []string) string
}

type wordTokenizer struct{}

func (wordTokenizer) Encode(text string) []string   { return strings.Fields(text) }
func (wordTokenizer) Decode(tokens []string) string { return strings.Join(tokens, " ") }

// Chunker splits text into overlapping token windows.
type Chunker struct {
	maxTokens     int
	overlapTokens int
	tok           Tokenizer
}

// NewChunker creates a chunker with the given window size and overlap (in tokens).
func NewChunker(maxTokens, overlapTokens int) *Chunker {
	return &Chunker{
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		tok:           wordTokenizer{},
	}
}

// charsPerToken approximates token length when no tokenizer is available.
const charsPerToken = 4

var chunkBoundaries = []string{"\n\n", "\n", ". ", "! ", "? "}

// Split cuts text into overlapping chunks. Consecutive chunks share
// overlapTokens tokens so sentences spanning a cut stay retrievable.
func (c *Chunker) Split(text string) ([]string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, errs.New(errs.CodeEmptyContent, "document contains no extractable text")
	}
	if c.tok == nil {
		return c.splitByChars(trimmed), nil
	}
	tokens := c.tok.Encode(trimmed)
	if len(tokens) <= c.maxTokens {
		return []string{trimmed}, nil
	}
	var chunks []string
	start := 0
	for start < len(tokens) {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.tok.Decode(tokens[start:end]))
		if end >= len(tokens) {
			break
		}
		next := end - c.overlapTokens
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks, nil
}

// splitByChars is the fallback when no tokenizer is available: fixed-size
// character windows, cut at the nearest boundary in the last 30% of the window.
func (c *Chunker) splitByChars(text string) []string {
	maxChars := c.maxTokens * charsPerToken
	overlapChars := c.overlapTokens * charsPerToken
	if len(text) <= maxChars {
		return []string{text}
	}
	var chunks []string
	start := 0
	for start < len(text) {
		end := start + maxChars
		if end > len(text) {
			end = len(text)
		}
		window := text[start:end]
		if end < len(text) {
			for _, boundary := range chunkBoundaries {
				if pos := strings.LastIndex(window, boundary); pos > int(float64(len(window))*0.7) {
					window = window[:pos+len(boundary)]
					break
				}
			}
		}
		if chunk := strings.TrimSpace(window); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if start+len(window) >= len(text) {
			break
		}
		next := start + len(window) - overlapChars
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

var pageMarkerRe = regexp.MustCompile(`\[PAGE (\d+)\]`)

// ChunkDocument splits text and wraps each piece in a models.Chunk. Page
// markers emitted by the PDF extractor assign each chunk the page it starts
// on and are stripped from the stored content.
func (c *Chunker) ChunkDocument(docID, text string) ([]*models.Chunk, error) {
	pieces, err := c.Split(text)
	if err != nil {
		return nil, err
	}
	chunks := make([]*models.Chunk, 0, len(pieces))
	index := 0
	for _, piece := range pieces {
		page := 0
		if m := pageMarkerRe.FindStringSubmatch(piece); m != nil {
			page, _ = strconv.Atoi(m[1])
		}
		content := Clean(piece)
		if content == "" {
			continue
		}
		chunks = append(chunks, &models.Chunk{
			ID:         fmt.Sprintf("%s_%s", docID, uuid.New().String()[:8]),
			DocumentID: docID,
			Content:    content,
			PageNumber: page,
			ChunkIndex: index,
		})
		index++
	}
	if len(chunks) == 0 {
		return nil, errs.New(errs.CodeEmptyContent, "document contains no extractable text")
	}
	return chunks, nil
}
