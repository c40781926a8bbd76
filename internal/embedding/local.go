package embedding

import (
	"context"
	"crypto/md5"
	"encoding/binary"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/hyperjump/kotae/pkg/utils"
)

// LocalEmbedder produces hash-based embeddings without any model or network
// dependency. Identical text always yields a bit-identical vector, so stored
// embeddings stay comparable across restarts.
type LocalEmbedder struct {
	dimensions int
}

var nonWordRe = regexp.MustCompile(`[^\w\s]`)

// NewLocalEmbedder returns a hash embedder with the given dimensions.
func NewLocalEmbedder(dimensions int) *LocalEmbedder {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &LocalEmbedder{dimensions: dimensions}
}

// Embed returns the deterministic embedding for text. Each word spreads a
// frequency-weighted signal over five hash-derived dimensions; a few low
// dimensions carry document-length features.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	words := normalizeWords(text)
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	// Sorted iteration keeps float accumulation order fixed across calls.
	unique := make([]string, 0, len(counts))
	for w := range counts {
		unique = append(unique, w)
	}
	sort.Strings(unique)

	vec := make([]float64, e.dimensions)
	for _, word := range unique {
		sum := md5.Sum([]byte(word))
		h := binary.BigEndian.Uint64(sum[:8])
		weight := math.Log(float64(counts[word])+1) * 0.1
		for i := uint64(0); i < 5; i++ {
			dim := (h + i) % uint64(e.dimensions)
			vec[dim] += weight * math.Sin(float64(h)+float64(i))
		}
	}
	for i := 0; i < 50 && i < e.dimensions; i += 5 {
		vec[i] += math.Sin(float64(len(words))+float64(i)) * 0.05
	}

	out := make([]float32, e.dimensions)
	allZero := true
	for i, v := range vec {
		out[i] = float32(v)
		if v != 0 {
			allZero = false
		}
	}
	if allZero {
		rng := rand.New(rand.NewSource(42))
		for i := range out {
			out[i] = float32(rng.Float64()*0.02 - 0.01)
		}
	}
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch calls Embed for each text.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *LocalEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for LocalEmbedder.
func (e *LocalEmbedder) Close() error {
	return nil
}

func normalizeWords(text string) []string {
	text = strings.ToLower(text)
	text = nonWordRe.ReplaceAllString(text, " ")
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if len(w) >= 2 {
			words = append(words, w)
		}
	}
	return words
}
