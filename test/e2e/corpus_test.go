package e2e

import (
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/extract"
)

func TestCorpusIsSelfConsistent(t *testing.T) {
	docs := Corpus()
	if len(docs) == 0 {
		t.Fatal("empty corpus")
	}

	names := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if names[doc.Filename] {
			t.Errorf("duplicate corpus filename %s", doc.Filename)
		}
		names[doc.Filename] = true
		if !extract.Supported(filepath.Ext(doc.Filename)) {
			t.Errorf("corpus file %s has unsupported extension", doc.Filename)
		}
		if len(doc.Paragraphs) == 0 {
			t.Errorf("document %s has no paragraphs", doc.Filename)
		}
		if len(doc.FileBytes()) == 0 {
			t.Errorf("document %s renders empty", doc.Filename)
		}
	}

	for _, tc := range QueryCases() {
		if !names[tc.WantSource] {
			t.Errorf("query case %q expects unknown document %s", tc.Description, tc.WantSource)
		}
	}
}
