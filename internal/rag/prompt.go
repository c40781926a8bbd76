package rag

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// promptTemplate frames the retrieved context for the generator. The wording
// is part of the product surface; rewording it changes answer behavior.
const promptTemplate = `You are a helpful AI assistant that answers questions based on the provided context.

Instructions:
1. Use ONLY the information provided in the context below to answer the question
2. If the context doesn't contain enough information to answer the question, say so clearly
3. Be concise but comprehensive in your response
4. Cite specific sources when making claims
5. If you're uncertain about any information, express that uncertainty

Context:
%s

Question: %s

Answer:`

// excerptLength caps citation excerpts.
const excerptLength = 200

func buildPrompt(query, contextBlock string) string {
	return fmt.Sprintf(promptTemplate, contextBlock, query)
}

// buildContext renders retrieval hits as numbered source blocks, each headed
// by document name and page, separated by blank lines.
func buildContext(results []*models.RetrievalResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		parts = append(parts, fmt.Sprintf("[Source %d: %s, Page %s]\n%s\n",
			i+1, documentName(r.Metadata), pageLabel(r.Metadata), r.Content))
	}
	return strings.Join(parts, "\n")
}

// buildCitations turns retrieval hits into client-facing citations, in the
// same order the hits fed the prompt.
func buildCitations(results []*models.RetrievalResult) []*models.SourceCitation {
	citations := make([]*models.SourceCitation, 0, len(results))
	for _, r := range results {
		citations = append(citations, &models.SourceCitation{
			DocumentID:     r.Metadata["document_id"],
			DocumentName:   documentName(r.Metadata),
			PageNumber:     metaInt(r.Metadata, "page_number"),
			ChunkIndex:     metaInt(r.Metadata, "chunk_index"),
			RelevanceScore: r.Score,
			Excerpt:        utils.Truncate(r.Content, excerptLength),
		})
	}
	return citations
}

func documentName(metadata map[string]string) string {
	if name := metadata["filename"]; name != "" {
		return name
	}
	return "Unknown Document"
}

// pageLabel is the stored page number, or "N/A" when the chunk carries none.
// Page 0 means the source format has no pages and is printed as-is.
func pageLabel(metadata map[string]string) string {
	if page := metadata["page_number"]; page != "" {
		return page
	}
	return "N/A"
}

func metaInt(metadata map[string]string, key string) int {
	n, _ := strconv.Atoi(metadata[key])
	return n
}
