package indexer

import (
	"regexp"
	"strings"
)

var (
	pageStripRe  = regexp.MustCompile(`\[PAGE \d+\]\n?`)
	blankLinesRe = regexp.MustCompile(`\n\s*\n`)
	spaceRunsRe  = regexp.MustCompile(` +`)
)

// Clean normalizes chunk content for storage: page markers are stripped,
// blank-line runs collapse to one blank line, space runs to one space.
func Clean(text string) string {
	text = pageStripRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = spaceRunsRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
