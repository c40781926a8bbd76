package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RemoteEmbedder calls an OpenAI-compatible embeddings endpoint.
type RemoteEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	batchSize  int
	client     *http.Client
	limiter    *rate.Limiter
	cache      *vectorCache
	logger     *zap.Logger
}

// NewRemoteEmbedder creates a remote embedder from config. The limiter paces
// one batch request per batch_delay so bulk ingestion stays under provider
// rate limits.
func NewRemoteEmbedder(cfg *config.EmbeddingConfig, logger *zap.Logger) *RemoteEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &RemoteEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		client:     &http.Client{Timeout: cfg.RequestTimeout()},
		limiter:    rate.NewLimiter(rate.Every(cfg.BatchDelay()), 1),
		cache:      newVectorCache(cfg.CacheSize),
		logger:     logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingData `json:"data"`
}

// Embed returns the embedding for text, using the cache when available.
func (e *RemoteEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, errs.New(errs.CodeEmbeddingFailed, "cannot embed empty text")
	}
	if cached, ok := e.cache.get(text); ok {
		return cached, nil
	}
	vecs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.put(text, vecs[0])
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of batchSize. A failed batch is retried
// per item; items that still fail leave a nil hole so the result always has
// one slot per input, in input order.
func (e *RemoteEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if start > 0 {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "rate limit wait")
			}
		}
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vecs, err := e.request(ctx, batch)
		if err == nil {
			copy(out[start:end], vecs)
			continue
		}
		e.logger.Warn("embedding batch failed, retrying per item",
			zap.Int("batch_start", start), zap.Int("batch_len", len(batch)), zap.Error(err))
		for i, text := range batch {
			if ctx.Err() != nil {
				return nil, errs.Wrap(errs.CodeEmbeddingFailed, ctx.Err(), "embedding canceled")
			}
			vec, itemErr := e.Embed(ctx, text)
			if itemErr != nil {
				e.logger.Warn("embedding dropped",
					zap.String("text", utils.Truncate(text, 50)), zap.Error(itemErr))
				continue
			}
			out[start+i] = vec
		}
	}
	return out, nil
}

// Probe verifies the endpoint is reachable by embedding one short text.
// Bypasses the cache so the result reflects the endpoint, not earlier calls.
func (e *RemoteEmbedder) Probe(ctx context.Context) error {
	_, err := e.request(ctx, []string{"test"})
	return err
}

func (e *RemoteEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "encode embeddings request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "build embeddings request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "embeddings request")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errs.Newf(errs.CodeEmbeddingFailed, "embeddings request returned %d: %s",
			resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "decode embeddings response")
	}
	if len(parsed.Data) != len(texts) {
		return nil, errs.Newf(errs.CodeEmbeddingFailed, "embeddings response has %d items, expected %d",
			len(parsed.Data), len(texts))
	}
	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errs.Newf(errs.CodeEmbeddingFailed, "embeddings response index %d out of range", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *RemoteEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for RemoteEmbedder.
func (e *RemoteEmbedder) Close() error {
	return nil
}
