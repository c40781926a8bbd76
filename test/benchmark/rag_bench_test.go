package benchmark

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
)

var benchWords = strings.Fields("retrieval pipeline embeds every chunk before storing it and answers questions by scanning for the nearest neighbours of the query vector")

func benchText(words int) string {
	var sb strings.Builder
	for i := 0; i < words; i++ {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(benchWords[i%len(benchWords)])
	}
	return sb.String()
}

func BenchmarkChunkDocument(b *testing.B) {
	c := indexer.NewChunker(200, 40)
	text := benchText(5000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.ChunkDocument("doc-bench", text)
	}
}

func BenchmarkLocalEmbedder_Embed(b *testing.B) {
	e := embedding.NewLocalEmbedder(384)
	ctx := context.Background()
	text := benchText(100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, text)
	}
}

func BenchmarkMemoryStoreSearch(b *testing.B) {
	ctx := context.Background()
	provider := embedding.NewProvider(ctx, &config.EmbeddingConfig{Dimensions: 64}, zap.NewNop())
	defer provider.Close()

	retrieval := &config.RetrievalConfig{
		TopK:                5,
		MaxTopK:             20,
		SimilarityThreshold: 0.7,
		FallbackThreshold:   0.1,
		MaxQueryLength:      1000,
	}
	st, err := store.NewMemoryStore(filepath.Join(b.TempDir(), "snapshot.json"), retrieval, provider)
	if err != nil {
		b.Fatal(err)
	}
	defer st.Close()

	chunks := make([]*models.Chunk, 1000)
	for i := range chunks {
		docID := fmt.Sprintf("doc-%03d", i/10)
		chunks[i] = &models.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", docID, i%10),
			DocumentID: docID,
			Content:    benchText(40) + fmt.Sprintf(" entry number %d", i),
			ChunkIndex: i % 10,
			Metadata:   map[string]string{"filename": docID + ".txt"},
		}
	}
	if err := st.AddChunks(ctx, chunks); err != nil {
		b.Fatal(err)
	}

	query := "how does the pipeline find the nearest neighbours of a query"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = st.SimilaritySearch(ctx, query, 5, nil)
	}
}
