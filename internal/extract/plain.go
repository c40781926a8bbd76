package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// extractPlain decodes content as UTF-8 text. A leading BOM is stripped so it
// cannot leak into the first chunk; invalid sequences become the replacement
// character rather than failing the ingest.
func extractPlain(content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return string(content), nil
	}
	return strings.ToValidUTF8(string(content), string(utf8.RuneError)), nil
}
