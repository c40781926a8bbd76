// Package cli provides output formatting for the Kotae CLI.
package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteDocuments writes the document list to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteDocuments(w io.Writer, docs []*models.DocumentInfo, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "No documents in the knowledge base.")
		return nil
	}
	fmt.Fprintf(w, "%d document(s)\n\n", len(docs))
	fmt.Fprintf(w, "%-32s %-6s %8s %10s  %-16s %s\n", "FILENAME", "TYPE", "CHUNKS", "SIZE", "UPLOADED", "ID")
	for _, doc := range docs {
		fmt.Fprintf(w, "%-32s %-6s %8d %10d  %-16s %s\n",
			utils.Truncate(doc.Filename, 29),
			doc.FileType,
			doc.ChunkCount,
			doc.FileSize,
			doc.UploadDate.Format("2006-01-02 15:04"),
			doc.ID,
		)
	}
	return nil
}

// WriteCitations writes source citations as an indented list.
func WriteCitations(w io.Writer, sources []*models.SourceCitation) {
	for i, src := range sources {
		fmt.Fprintf(w, "  [%d] %s (page %d, chunk %d, relevance %.2f)\n",
			i+1, src.DocumentName, src.PageNumber, src.ChunkIndex, src.RelevanceScore)
		if src.Excerpt != "" {
			fmt.Fprintf(w, "      %s\n", utils.Truncate(src.Excerpt, 120))
		}
	}
}

// WriteQueryStream consumes an NDJSON answer stream from r and renders it to
// w. In text mode tokens print as they arrive; the sources frame becomes a
// citation list with timing. In JSON mode the raw frames pass through
// untouched. An error frame is returned as an error after rendering stops.
func WriteQueryStream(w io.Writer, r io.Reader, format OutputFormat) error {
	if format == OutputJSON {
		_, err := io.Copy(w, r)
		return err
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev models.StreamEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			return fmt.Errorf("bad stream frame: %w", err)
		}
		switch ev.Type {
		case models.EventTypeStatus:
			fmt.Fprintln(w, ev.Message)
		case models.EventTypeToken:
			fmt.Fprint(w, ev.Content)
		case models.EventTypeSources:
			fmt.Fprintf(w, "\n\nSources:\n")
			WriteCitations(w, ev.Sources)
			fmt.Fprintf(w, "\n(%.2fs, model %s)\n", ev.ResponseTime, ev.ModelUsed)
		case models.EventTypeError:
			fmt.Fprintln(w)
			return fmt.Errorf("%s", ev.Message)
		case models.EventTypeEnd:
			return nil
		}
	}
	return scanner.Err()
}

// WriteHealth writes a health report to w in the given format.
func WriteHealth(w io.Writer, report *models.HealthReport, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	fmt.Fprintf(w, "status: %s\n\n", report.Status)
	for _, name := range []string{"embedding", "generation", "vector_store"} {
		c, ok := report.Components[name]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%-14s %-10s %s", name+":", c.Status, c.ActiveVariant)
		if c.Detail != "" {
			fmt.Fprintf(w, " (%s)", c.Detail)
		}
		fmt.Fprintln(w)
	}
	return nil
}
