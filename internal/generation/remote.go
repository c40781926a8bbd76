package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/errs"
	"go.uber.org/zap"
)

// RemoteGenerator calls an OpenAI-compatible chat completions endpoint.
type RemoteGenerator struct {
	baseURL     string
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	client      *http.Client
	logger      *zap.Logger
}

// NewRemoteGenerator creates a remote generator from config.
func NewRemoteGenerator(cfg *config.GenerationConfig, logger *zap.Logger) *RemoteGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RemoteGenerator{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: cfg.RequestTimeout()},
		logger:      logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GenerateStream starts a streaming completion and emits delta tokens as the
// model produces them. Transport or decode failures emit one Token with Err
// set, then the channel closes.
func (g *RemoteGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan Token, error) {
	resp, err := g.post(ctx, chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errs.Newf(errs.CodeGenerationFailed, "chat request returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	out := make(chan Token)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}
			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				g.emit(ctx, out, Token{Err: errs.Wrap(errs.CodeGenerationFailed, err, "decode stream chunk")})
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !g.emit(ctx, out, Token{Content: chunk.Choices[0].Delta.Content}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			g.emit(ctx, out, Token{Err: errs.Wrap(errs.CodeGenerationFailed, err, "stream interrupted")})
		}
	}()
	return out, nil
}

func (g *RemoteGenerator) emit(ctx context.Context, out chan<- Token, tok Token) bool {
	select {
	case out <- tok:
		return true
	case <-ctx.Done():
		return false
	}
}

// Generate runs a non-streaming completion.
func (g *RemoteGenerator) Generate(ctx context.Context, prompt string) (*Result, error) {
	resp, err := g.post(ctx, chatRequest{
		Model:       g.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.Newf(errs.CodeGenerationFailed, "chat request returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.CodeGenerationFailed, err, "decode chat response")
	}
	if len(parsed.Choices) == 0 {
		return nil, errs.New(errs.CodeGenerationFailed, "chat response has no choices")
	}
	return &Result{
		Text:             parsed.Choices[0].Message.Content,
		ModelID:          g.model,
		PromptTokens:     parsed.Usage.PromptTokens,
		CompletionTokens: parsed.Usage.CompletionTokens,
		TotalTokens:      parsed.Usage.TotalTokens,
	}, nil
}

// Probe runs a minimal completion to verify the endpoint accepts requests.
func (g *RemoteGenerator) Probe(ctx context.Context) error {
	resp, err := g.post(ctx, chatRequest{
		Model:     g.model,
		Messages:  []chatMessage{{Role: "user", Content: "Hello"}},
		MaxTokens: 5,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.Newf(errs.CodeGenerationFailed, "chat request returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func (g *RemoteGenerator) post(ctx context.Context, payload chatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.CodeGenerationFailed, err, "encode chat request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.CodeGenerationFailed, err, "build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.CodeGenerationFailed, err, "chat request")
	}
	return resp, nil
}

// ModelID identifies the configured chat model.
func (g *RemoteGenerator) ModelID() string {
	return g.model
}

// Close is a no-op for RemoteGenerator.
func (g *RemoteGenerator) Close() error {
	return nil
}
