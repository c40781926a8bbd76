package extract

import (
	"archive/zip"
	"bytes"
	"regexp"
	"strings"

	"github.com/hyperjump/kotae/internal/errs"
)

// docxDocumentXMLPath is the default path to the main document body inside a .docx zip.
const docxDocumentXMLPath = "word/document.xml"

// contentTypesPath is the path to [Content_Types].xml in OOXML packages.
const contentTypesPath = "[Content_Types].xml"

// docxMainContentType is the content type for the main document in DOCX files.
const docxMainContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"

// wtTag matches <w:t>text</w:t> or <w:t xml:space="preserve">text</w:t> (and any other attributes).
var wtTag = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)

// paragraphClose splits the body into paragraphs; matching on the close tag
// tolerates attributed <w:p> open tags (e.g. <w:p w:rsidR="...">), which is
// why a full XML parse or the simpler library regexes are not used here.
var paragraphClose = regexp.MustCompile(`</w:p>`)

// partNameRe extracts PartName from Override elements in [Content_Types].xml.
var partNameRe = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"`)

// partNameRe2 handles the case where ContentType appears before PartName.
var partNameRe2 = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainContentType) + `"[^>]+PartName="([^"]+)"`)

// findDocxMainDocumentPath finds the main document path from [Content_Types].xml.
// Returns the path without leading slash, or empty string if not found.
func findDocxMainDocumentPath(zr *zip.Reader) string {
	for _, f := range zr.File {
		if f.Name != contentTypesPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return ""
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return ""
		}
		_ = rc.Close()

		content := buf.String()
		// Try both attribute orders
		if matches := partNameRe.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		if matches := partNameRe2.FindStringSubmatch(content); len(matches) > 1 {
			return strings.TrimPrefix(matches[1], "/")
		}
		return ""
	}
	return ""
}

// extractDOCX extracts text from .docx bytes. DOCX is a ZIP containing
// word/document.xml (OOXML). Text runs (<w:t>) are space-joined within each
// paragraph and paragraphs are joined with blank lines, preserving the
// boundaries the chunker's fallback path cuts at.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", errs.Wrap(errs.CodeExtractionFailed, err, "failed to open DOCX: not a zip")
	}

	// Find main document path from [Content_Types].xml, fall back to default
	docPath := findDocxMainDocumentPath(zr)
	if docPath == "" {
		docPath = docxDocumentXMLPath
	}

	var docXML []byte
	for _, f := range zr.File {
		if f.Name != docPath {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", errs.Wrap(errs.CodeExtractionFailed, err, "failed to open DOCX document part")
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			_ = rc.Close()
			return "", errs.Wrap(errs.CodeExtractionFailed, err, "failed to read DOCX document part")
		}
		_ = rc.Close()
		docXML = buf.Bytes()
		break
	}
	if docXML == nil {
		return "", errs.Newf(errs.CodeExtractionFailed, "%s not found in DOCX", docPath)
	}

	var paragraphs []string
	for _, segment := range paragraphClose.Split(string(docXML), -1) {
		runs := wtTag.FindAllStringSubmatch(segment, -1)
		if len(runs) == 0 {
			continue
		}
		var b strings.Builder
		for i, r := range runs {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(r[1]))
		}
		if p := strings.TrimSpace(b.String()); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	if len(paragraphs) == 0 {
		return "", errs.New(errs.CodeExtractionFailed, "no text content found in DOCX")
	}
	return strings.Join(paragraphs, "\n\n"), nil
}
