package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/hyperjump/kotae/internal/errs"
)

// extractPDF extracts text page by page. Each non-empty page is prefixed with
// a [PAGE <n>] marker (1-based) so downstream chunking can attribute content
// to pages; pages that fail to decode are skipped.
func extractPDF(content []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", errs.Wrap(errs.CodeExtractionFailed, err, "failed to open PDF")
	}
	var pages []string
	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, fmt.Sprintf("[PAGE %d]\n%s", i, text))
	}
	if len(pages) == 0 {
		return "", errs.New(errs.CodeExtractionFailed, "no text could be extracted from PDF")
	}
	return strings.Join(pages, "\n\n"), nil
}
