// Package extract provides text extraction from the supported document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/kotae/internal/errs"
)

// supportedExtensions is the fixed ingest boundary. Anything else is
// rejected, never sniffed or treated as plain text.
var supportedExtensions = map[string]bool{
	".pdf":  true,
	".txt":  true,
	".docx": true,
}

// Supported reports whether ext (with or without leading dot) can be ingested.
func Supported(ext string) bool {
	return supportedExtensions[normalizeExt(ext)]
}

// SupportedList returns the supported extensions for error messages.
func SupportedList() []string {
	return []string{".pdf", ".txt", ".docx"}
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// PDF text carries [PAGE <n>] markers so chunking can recover page numbers.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch normalizeExt(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".txt":
		return extractPlain(content)
	default:
		return "", errs.Newf(errs.CodeUnsupportedFileType,
			"unsupported file type: %s (supported: %s)", ext, strings.Join(SupportedList(), ", "))
	}
}
