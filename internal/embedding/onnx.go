//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kotae/internal/errs"
	"github.com/hyperjump/kotae/pkg/utils"
)

// ONNXEmbedder runs a local sentence-embedding model through ONNX Runtime.
// It needs CGO and the onnxruntime shared library; without them the stub in
// onnx_stub.go is built instead and the provider falls through to the hash
// embedder.
type ONNXEmbedder struct {
	session    *ort.AdvancedSession
	tensors    *modelTensors
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
	cache      *vectorCache

	// The session reuses one set of tensors, so inference is serialized.
	mu sync.Mutex
}

// modelTensors owns the pre-allocated tensors bound to the session. Embed
// overwrites the input data in place before each run.
type modelTensors struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newModelTensors(maxTokens, dimensions int) (*modelTensors, error) {
	mt := &modelTensors{}
	inputShape := ort.NewShape(1, int64(maxTokens))

	var err error
	if mt.inputIDs, err = ort.NewTensor(inputShape, make([]int64, maxTokens)); err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "create input_ids tensor")
	}
	if mt.attentionMask, err = ort.NewTensor(inputShape, make([]int64, maxTokens)); err != nil {
		mt.destroy()
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "create attention_mask tensor")
	}
	if mt.tokenTypeIDs, err = ort.NewTensor(inputShape, make([]int64, maxTokens)); err != nil {
		mt.destroy()
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "create token_type_ids tensor")
	}
	if mt.output, err = ort.NewTensor(ort.NewShape(1, int64(dimensions)), make([]float32, dimensions)); err != nil {
		mt.destroy()
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "create output tensor")
	}
	return mt, nil
}

func (mt *modelTensors) destroy() {
	if mt.inputIDs != nil {
		_ = mt.inputIDs.Destroy()
		mt.inputIDs = nil
	}
	if mt.attentionMask != nil {
		_ = mt.attentionMask.Destroy()
		mt.attentionMask = nil
	}
	if mt.tokenTypeIDs != nil {
		_ = mt.tokenTypeIDs.Destroy()
		mt.tokenTypeIDs = nil
	}
	if mt.output != nil {
		_ = mt.output.Destroy()
		mt.output = nil
	}
}

// NewONNXEmbedder loads the model at modelPath and prepares a single
// inference session. The runtime environment is initialized on first use.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens, cacheSize int) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, errs.New(errs.CodeEmbeddingFailed, "onnx embedder requires explicit dimensions")
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "initialize onnx runtime")
	}

	tensors, err := newModelTensors(maxTokens, dimensions)
	if err != nil {
		return nil, err
	}
	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		[]ort.ArbitraryTensor{tensors.inputIDs, tensors.attentionMask, tensors.tokenTypeIDs},
		[]ort.ArbitraryTensor{tensors.output},
		nil,
	)
	if err != nil {
		tensors.destroy()
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "load onnx model")
	}

	return &ONNXEmbedder{
		session:    session,
		tensors:    tensors,
		tokenizer:  &SimpleTokenizer{},
		dimensions: dimensions,
		maxTokens:  maxTokens,
		cache:      newVectorCache(cacheSize),
	}, nil
}

// Embed returns the embedding for text, serving repeats from the cache.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := e.cache.get(text); ok {
		return cached, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	inputIDs, attentionMask, tokenTypeIDs := e.tokenizer.Tokenize(text, e.maxTokens)
	copy(e.tensors.inputIDs.GetData(), inputIDs)
	copy(e.tensors.attentionMask.GetData(), attentionMask)
	copy(e.tensors.tokenTypeIDs.GetData(), tokenTypeIDs)

	if err := e.session.Run(); err != nil {
		return nil, errs.Wrap(errs.CodeEmbeddingFailed, err, "onnx inference")
	}

	vec := make([]float32, e.dimensions)
	copy(vec, e.tensors.output.GetData()[:e.dimensions])
	utils.NormalizeL2(vec)
	e.cache.put(text, vec)
	return vec, nil
}

// EmbedBatch embeds texts one at a time; the session holds a single set of
// tensors, so there is no parallelism to exploit.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.CodeEmbeddingFailed, ctx.Err(), "embedding canceled")
		}
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session and its tensors.
func (e *ONNXEmbedder) Close() error {
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.tensors != nil {
		e.tensors.destroy()
		e.tensors = nil
	}
	return err
}
