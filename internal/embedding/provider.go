package embedding

import (
	"context"
	"path/filepath"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// Variant identifies which embedding backend a provider resolved to.
type Variant string

const (
	VariantRemote Variant = "remote"
	VariantLocal  Variant = "local_fallback"
)

// Provider wraps the embedder chosen at startup. The choice is made exactly
// once: a provider never switches backends after construction, so every
// vector it produces lives in a single embedding space.
type Provider struct {
	embedder Embedder
	variant  Variant
	modelID  string
}

// NewProvider probes the remote endpoint when configured and falls back to a
// local embedder when it is missing or unreachable. Construction never fails;
// the worst case is the dependency-free hash embedder.
func NewProvider(ctx context.Context, cfg *config.EmbeddingConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL != "" && cfg.APIKey != "" {
		remote := NewRemoteEmbedder(cfg, logger)
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout())
		err := remote.Probe(probeCtx)
		cancel()
		if err == nil {
			logger.Info("embedding provider ready",
				zap.String("variant", string(VariantRemote)), zap.String("model", cfg.Model))
			return &Provider{embedder: remote, variant: VariantRemote, modelID: cfg.Model}
		}
		logger.Warn("remote embedding unavailable, falling back to local", zap.Error(err))
	}
	return newLocalProvider(cfg, logger)
}

func newLocalProvider(cfg *config.EmbeddingConfig, logger *zap.Logger) *Provider {
	if cfg.ONNXModelPath != "" {
		onnx, err := NewONNXEmbedder(cfg.ONNXModelPath, cfg.Dimensions, cfg.ONNXMaxTokens, cfg.CacheSize)
		if err == nil {
			modelID := filepath.Base(cfg.ONNXModelPath)
			logger.Info("embedding provider ready",
				zap.String("variant", string(VariantLocal)), zap.String("model", modelID))
			return &Provider{embedder: onnx, variant: VariantLocal, modelID: modelID}
		}
		logger.Warn("ONNX embedder unavailable, using hash embedder", zap.Error(err))
	}
	local := NewLocalEmbedder(cfg.Dimensions)
	logger.Info("embedding provider ready",
		zap.String("variant", string(VariantLocal)), zap.String("model", "local-hash"))
	return &Provider{embedder: local, variant: VariantLocal, modelID: "local-hash"}
}

// Variant reports which backend serves this provider.
func (p *Provider) Variant() Variant { return p.variant }

// ModelID identifies the embedding model in use.
func (p *Provider) ModelID() string { return p.modelID }

// Dimensions returns the embedding dimension.
func (p *Provider) Dimensions() int { return p.embedder.Dimensions() }

// Embed delegates to the resolved backend.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.embedder.Embed(ctx, text)
}

// EmbedBatch delegates to the resolved backend.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedder.EmbedBatch(ctx, texts)
}

// Close releases the backend.
func (p *Provider) Close() error { return p.embedder.Close() }
