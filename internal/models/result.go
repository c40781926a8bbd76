package models

// RetrievalResult is one similarity-search hit.
type RetrievalResult struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
	Score    float64           `json:"score"`
}

// SourceCitation points a streamed answer back at the chunk it came from.
// PageNumber 0 means the page is unknown.
type SourceCitation struct {
	DocumentID     string  `json:"document_id"`
	DocumentName   string  `json:"document_name"`
	PageNumber     int     `json:"page_number"`
	ChunkIndex     int     `json:"chunk_index"`
	RelevanceScore float64 `json:"relevance_score"`
	Excerpt        string  `json:"excerpt"`
}
