// Package models defines core data structures for documents, chunks, queries,
// and the streamed answer protocol.
package models

import "time"

// Chunk is one embeddable span of an ingested document. Metadata carries the
// document-level fields (filename, file_type, file_size, upload_date) that
// every chunk stores redundantly so the document view can be rebuilt from
// chunks alone.
type Chunk struct {
	ID         string            `json:"id"`
	DocumentID string            `json:"document_id"`
	Content    string            `json:"content"`
	PageNumber int               `json:"page_number"`
	ChunkIndex int               `json:"chunk_index"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// DocumentInfo is the catalog view of an ingested document, derived by
// grouping its chunks.
type DocumentInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	FileType   string    `json:"file_type"`
	FileSize   int64     `json:"file_size"`
	UploadDate time.Time `json:"upload_date"`
	ChunkCount int       `json:"chunk_count"`
	Status     string    `json:"status"`
}

// FileInput is one uploaded file handed to ingestion.
type FileInput struct {
	Filename string
	Data     []byte
}
