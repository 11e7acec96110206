package text

import (
	"regexp"
	"strings"
)

var (
	wrappedLineBreak = regexp.MustCompile(`([^\n])\n([^\n])`)
	gluedPunct       = regexp.MustCompile(`([.!?;:,])([A-Za-z])`)
	camelJoin        = regexp.MustCompile(`([a-z])([A-Z])`)
	runSpaces        = regexp.MustCompile(`[ \t]+`)
	runBlankLines    = regexp.MustCompile(`\n{3,}`)
)

// NormalizeExtracted cleans text pulled out of a document extractor so it
// parses into sentences for read-aloud: wrapped line breaks are unfolded,
// punctuation glued to the next word is separated, camel-case joins from bad
// extractors are split, and whitespace is collapsed while paragraph breaks
// are preserved.
func NormalizeExtracted(text string) string {
	if text == "" {
		return ""
	}

	// Two passes: the match consumes the first rune of the next line, so
	// alternating wrapped lines need a second sweep.
	normalized := wrappedLineBreak.ReplaceAllString(text, "$1 $2")
	normalized = wrappedLineBreak.ReplaceAllString(normalized, "$1 $2")
	normalized = strings.ReplaceAll(normalized, "\u00a0", " ")
	normalized = gluedPunct.ReplaceAllString(normalized, "$1 $2")
	normalized = camelJoin.ReplaceAllString(normalized, "$1 $2")
	normalized = runSpaces.ReplaceAllString(normalized, " ")
	normalized = runBlankLines.ReplaceAllString(normalized, "\n\n")

	return strings.TrimSpace(normalized)
}
