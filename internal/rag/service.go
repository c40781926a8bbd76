// Package rag orchestrates retrieval-augmented answers: similarity search
// over the vector store, prompt assembly, and streamed generation with
// source citations.
package rag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/internal/generation"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/store"
)

// Status and error messages surfaced to clients. Frontends key off these
// strings, so they are fixed.
const (
	statusSearching  = "Searching knowledge base..."
	statusGenerating = "Generating response..."

	noRelevantInfoMessage = "No relevant information found in the knowledge base."
	genericErrorMessage   = "An error occurred while processing your query."
)

// Embedding is the slice of the embedding provider the orchestrator needs.
// It only reports which variant answers embed calls; the store owns the
// actual embedding work.
type Embedding interface {
	Variant() embedding.Variant
	ModelID() string
	Dimensions() int
}

// Generation is the slice of the generation provider the orchestrator
// drives. Satisfied by *generation.Provider.
type Generation interface {
	GenerateStream(ctx context.Context, prompt string) (<-chan generation.Token, error)
	Generate(ctx context.Context, prompt string) (*generation.Result, error)
	Variant() generation.Variant
	ModelID() string
}

// Service answers questions against the knowledge base.
type Service struct {
	store     store.Store
	embedder  Embedding
	generator Generation
	retrieval *config.RetrievalConfig
	demo      bool
	diskPaths []string
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoragePaths names the on-disk paths whose size the health report
// includes.
func WithStoragePaths(paths ...string) Option {
	return func(s *Service) { s.diskPaths = paths }
}

// NewService builds the orchestrator on an already-constructed store and
// providers.
func NewService(st store.Store, emb Embedding, gen Generation, retrieval *config.RetrievalConfig, demo *config.DemoConfig, opts ...Option) *Service {
	s := &Service{
		store:     st,
		embedder:  emb,
		generator: gen,
		retrieval: retrieval,
		demo:      demo != nil && demo.Enabled,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStream answers req as a stream of events: a searching status, a
// generating status, the answer token by token, and a final sources frame
// with citations and timing. A failure at any point replaces the remainder
// of the stream with a single error frame. The channel is closed when the
// stream is done or ctx is canceled; cancellation mid-stream ends the
// stream without a sources frame.
func (s *Service) QueryStream(ctx context.Context, req *models.QueryRequest) <-chan models.StreamEvent {
	events := make(chan models.StreamEvent)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("query stream panic", zap.Any("panic", r), zap.Stack("stack"))
				s.send(ctx, events, errorEvent(genericErrorMessage))
			}
		}()
		s.run(ctx, req, events)
	}()
	return events
}

func (s *Service) run(ctx context.Context, req *models.QueryRequest, events chan<- models.StreamEvent) {
	start := time.Now()
	s.logger.Info("query received", zap.String("query", req.Query), zap.Int("top_k", req.TopK))

	if !s.send(ctx, events, statusEvent(statusSearching)) {
		return
	}
	results, err := s.store.SimilaritySearch(ctx, req.Query, req.TopK, nil)
	if err != nil {
		s.logger.Error("similarity search failed", zap.Error(err))
		s.send(ctx, events, errorEvent(publicMessage(err)))
		return
	}
	if len(results) == 0 {
		if s.demoActive() {
			s.runDemo(ctx, req.Query, start, events)
			return
		}
		s.send(ctx, events, errorEvent(noRelevantInfoMessage))
		return
	}

	citations := buildCitations(results)
	prompt := buildPrompt(req.Query, buildContext(results))
	if !s.send(ctx, events, statusEvent(statusGenerating)) {
		return
	}
	// Resolve the model id before streaming: a mid-stream failure flips the
	// provider to the local variant, and the sources frame must name the
	// variant that actually produced the tokens.
	modelID := s.generator.ModelID()
	if !s.streamAnswer(ctx, prompt, events) {
		return
	}
	s.send(ctx, events, sourcesEvent(citations, time.Since(start), modelID))
	s.logger.Info("query answered",
		zap.Int("sources", len(citations)),
		zap.Duration("elapsed", time.Since(start)),
		zap.String("model", modelID))
}

// runDemo serves an empty knowledge base in demo mode: the question is
// answered from general knowledge and attributed to fixed sample sources.
func (s *Service) runDemo(ctx context.Context, query string, start time.Time, events chan<- models.StreamEvent) {
	s.logger.Info("knowledge base empty, serving demo answer")
	if !s.send(ctx, events, statusEvent(statusGenerating)) {
		return
	}
	modelID := s.generator.ModelID()
	if !s.streamAnswer(ctx, demoPrompt(query), events) {
		return
	}
	s.send(ctx, events, sourcesEvent(demoCitations(), time.Since(start), modelID))
}

// streamAnswer relays generated tokens into events. It reports whether the
// stream completed and the sources frame should follow.
func (s *Service) streamAnswer(ctx context.Context, prompt string, events chan<- models.StreamEvent) bool {
	tokens, err := s.generator.GenerateStream(ctx, prompt)
	if err != nil {
		s.logger.Error("generation failed to start", zap.Error(err))
		s.send(ctx, events, errorEvent(publicMessage(err)))
		return false
	}
	for tok := range tokens {
		if tok.Err != nil {
			s.logger.Error("generation stream died", zap.Error(tok.Err))
			s.send(ctx, events, errorEvent(publicMessage(tok.Err)))
			return false
		}
		if !s.send(ctx, events, tokenEvent(tok.Content)) {
			return false
		}
	}
	// The token channel also closes on cancellation; only a stream that ran
	// to completion earns a sources frame.
	return ctx.Err() == nil
}

// Query answers req in one shot. Used by the CLI; the HTTP API streams.
func (s *Service) Query(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	start := time.Now()
	results, err := s.store.SimilaritySearch(ctx, req.Query, req.TopK, nil)
	if err != nil {
		return nil, err
	}

	var prompt string
	var citations []*models.SourceCitation
	switch {
	case len(results) > 0:
		prompt = buildPrompt(req.Query, buildContext(results))
		citations = buildCitations(results)
	case s.demoActive():
		prompt = demoPrompt(req.Query)
		citations = demoCitations()
	default:
		return nil, errs.New(errs.CodeNoRelevantInformation, noRelevantInfoMessage)
	}

	result, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return &models.QueryResponse{
		Query:        req.Query,
		Answer:       result.Text,
		Sources:      citations,
		ResponseTime: time.Since(start).Seconds(),
		ModelUsed:    result.ModelID,
		TotalTokens:  result.TotalTokens,
	}, nil
}

// Health reports the state each component resolved to at startup. It never
// probes remote endpoints; probing happens once, at construction.
func (s *Service) Health(ctx context.Context) *models.HealthReport {
	report := &models.HealthReport{
		Status:     models.StatusHealthy,
		Components: make(map[string]*models.ComponentHealth),
	}
	report.Components["embedding"] = &models.ComponentHealth{
		Status:        models.StatusHealthy,
		ActiveVariant: string(s.embedder.Variant()),
		Detail:        fmt.Sprintf("model %s, %d dimensions", s.embedder.ModelID(), s.embedder.Dimensions()),
	}
	report.Components["generation"] = &models.ComponentHealth{
		Status:        models.StatusHealthy,
		ActiveVariant: string(s.generator.Variant()),
		Detail:        fmt.Sprintf("model %s", s.generator.ModelID()),
	}
	report.Components["vector_store"] = s.storeHealth(ctx)
	for _, c := range report.Components {
		if c.Status != models.StatusHealthy {
			report.Status = models.StatusUnhealthy
		}
	}
	return report
}

func (s *Service) storeHealth(ctx context.Context) *models.ComponentHealth {
	health := &models.ComponentHealth{
		Status:        models.StatusHealthy,
		ActiveVariant: s.store.Backend(),
	}
	docs, err := s.store.Documents(ctx)
	if err != nil {
		s.logger.Error("health: listing documents failed", zap.Error(err))
		health.Status = models.StatusUnhealthy
		health.Detail = "document catalog unavailable"
		return health
	}
	health.Detail = fmt.Sprintf("%d documents, %d chunks", len(docs), s.store.Size())
	if len(s.diskPaths) > 0 {
		if used, err := storage.DiskUsageBytes(s.diskPaths...); err == nil && used > 0 {
			health.Detail += fmt.Sprintf(", %d bytes on disk", used)
		}
	}
	return health
}

func (s *Service) demoActive() bool {
	return s.demo && s.generator.Variant() == generation.VariantLocal
}

// send delivers ev unless ctx is already done; it reports delivery.
func (s *Service) send(ctx context.Context, events chan<- models.StreamEvent, ev models.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// publicMessage maps an error to the message a client may see. Internal
// failures collapse to a generic message; the detail stays in the logs.
func publicMessage(err error) string {
	if errs.IsInternal(err) {
		return genericErrorMessage
	}
	return errs.MessageOf(err)
}

func statusEvent(msg string) models.StreamEvent {
	return models.StreamEvent{Type: models.EventTypeStatus, Message: msg}
}

func tokenEvent(content string) models.StreamEvent {
	return models.StreamEvent{Type: models.EventTypeToken, Content: content}
}

func errorEvent(msg string) models.StreamEvent {
	return models.StreamEvent{Type: models.EventTypeError, Message: msg}
}

func sourcesEvent(citations []*models.SourceCitation, elapsed time.Duration, modelID string) models.StreamEvent {
	return models.StreamEvent{
		Type:         models.EventTypeSources,
		Sources:      citations,
		ResponseTime: elapsed.Seconds(),
		ModelUsed:    modelID,
	}
}
