package generation

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/hyperjump/kotae/internal/config"
	"go.uber.org/zap"
)

// Variant identifies which generation backend is active.
type Variant string

const (
	VariantRemote Variant = "remote"
	VariantLocal  Variant = "local_fallback"
)

// Provider serves generation through the remote backend and switches to the
// local one permanently after the first remote failure. The failing call
// still fails; only later calls take the local path. A written-off remote is
// never retried.
type Provider struct {
	remote   *RemoteGenerator
	local    *LocalGenerator
	fellBack atomic.Bool
	logger   *zap.Logger
}

// NewProvider probes the remote endpoint when configured; on failure or
// missing config the provider starts on the local backend. Construction
// never fails.
func NewProvider(ctx context.Context, cfg *config.GenerationConfig, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Provider{local: NewLocalGenerator(), logger: logger}
	if cfg.BaseURL != "" && cfg.APIKey != "" {
		remote := NewRemoteGenerator(cfg, logger)
		probeCtx, cancel := context.WithTimeout(ctx, cfg.ProbeTimeout())
		err := remote.Probe(probeCtx)
		cancel()
		if err == nil {
			p.remote = remote
			logger.Info("generation provider ready",
				zap.String("variant", string(VariantRemote)), zap.String("model", cfg.Model))
			return p
		}
		logger.Warn("remote generation unavailable, using local responses", zap.Error(err))
	} else {
		logger.Info("remote generation not configured, using local responses")
	}
	p.fellBack.Store(true)
	return p
}

func (p *Provider) usingLocal() bool {
	return p.remote == nil || p.fellBack.Load()
}

// switchToLocal writes off the remote backend. Caller cancellation is not a
// remote failure and leaves the provider as it was.
func (p *Provider) switchToLocal(cause error) {
	if errors.Is(cause, context.Canceled) {
		return
	}
	if p.fellBack.CompareAndSwap(false, true) {
		p.logger.Warn("remote generation failed, switching to local responses", zap.Error(cause))
	}
}

// GenerateStream streams from the active backend. A remote failure before
// the first token fails this call and flips later calls to local; a failure
// mid-stream surfaces as a Token with Err set and flips later calls the same
// way.
func (p *Provider) GenerateStream(ctx context.Context, prompt string) (<-chan Token, error) {
	if p.usingLocal() {
		return p.local.GenerateStream(ctx, prompt)
	}
	tokens, err := p.remote.GenerateStream(ctx, prompt)
	if err != nil {
		p.switchToLocal(err)
		return nil, err
	}
	out := make(chan Token)
	go func() {
		defer close(out)
		for tok := range tokens {
			if tok.Err != nil {
				p.switchToLocal(tok.Err)
			}
			select {
			case out <- tok:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Generate runs a non-streaming completion on the active backend.
func (p *Provider) Generate(ctx context.Context, prompt string) (*Result, error) {
	if p.usingLocal() {
		return p.local.Generate(ctx, prompt)
	}
	res, err := p.remote.Generate(ctx, prompt)
	if err != nil {
		p.switchToLocal(err)
		return nil, err
	}
	return res, nil
}

// Variant reports which backend the next call will use.
func (p *Provider) Variant() Variant {
	if p.usingLocal() {
		return VariantLocal
	}
	return VariantRemote
}

// ModelID identifies the active backend's model.
func (p *Provider) ModelID() string {
	if p.usingLocal() {
		return p.local.ModelID()
	}
	return p.remote.ModelID()
}

// Close releases both backends.
func (p *Provider) Close() error {
	var err error
	if p.remote != nil {
		err = p.remote.Close()
	}
	if cerr := p.local.Close(); err == nil {
		err = cerr
	}
	return err
}
