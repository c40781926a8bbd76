package rag

import (
	"fmt"

	"github.com/hyperjump/kotae/internal/models"
)

// demoPrompt asks the generator to answer without retrieved context. Used
// only when the knowledge base is empty and demo mode is on.
func demoPrompt(query string) string {
	return fmt.Sprintf("Answer this question based on general knowledge: %s", query)
}

// demoCitations returns the fixed sample sources attributed to demo answers.
// A fresh slice every call; callers may reorder or mutate it.
func demoCitations() []*models.SourceCitation {
	return []*models.SourceCitation{
		{
			DocumentID:     "demo-doc-1",
			DocumentName:   "AI_Research_Paper.pdf",
			PageNumber:     5,
			ChunkIndex:     12,
			RelevanceScore: 0.92,
			Excerpt: "This section discusses the fundamental challenges in retrieval-augmented generation systems, " +
				"particularly focusing on the balance between retrieval accuracy and computational efficiency...",
		},
		{
			DocumentID:     "demo-doc-2",
			DocumentName:   "Machine_Learning_Guide.pdf",
			PageNumber:     23,
			ChunkIndex:     45,
			RelevanceScore: 0.87,
			Excerpt: "The implementation of RAG systems requires careful consideration of embedding models, " +
				"chunk size optimization, and retrieval strategies to ensure high-quality responses...",
		},
		{
			DocumentID:     "demo-doc-3",
			DocumentName:   "Technical_Documentation.pdf",
			PageNumber:     8,
			ChunkIndex:     19,
			RelevanceScore: 0.83,
			Excerpt: "Modern approaches to information retrieval in large-scale systems emphasize the importance " +
				"of semantic understanding and contextual relevance in document processing...",
		},
	}
}
