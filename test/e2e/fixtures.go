// Package e2e drives the assembled service the way a deployment would: real
// files on disk, the directory watcher, and the full query pipeline.
package e2e

import (
	"archive/zip"
	"bytes"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`</Types>`

// MinimalDocx builds the smallest OOXML package the extractor accepts: a zip
// carrying [Content_Types].xml (so the document part is resolved, not
// guessed) and one <w:p> per paragraph.
func MinimalDocx(paragraphs ...string) []byte {
	var body bytes.Buffer
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>`)
		body.WriteString(p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	ct, _ := w.Create("[Content_Types].xml")
	_, _ = ct.Write([]byte(contentTypesXML))
	doc, _ := w.Create("word/document.xml")
	_, _ = doc.Write(body.Bytes())
	_ = w.Close()
	return buf.Bytes()
}
