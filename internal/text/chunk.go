package text

import (
	"strings"
	"unicode"
)

// sentence terminators recognized by SmartChunk, including CJK forms.
var terminators = map[rune]bool{
	'.': true, '!': true, '?': true, ';': true, ':': true,
	'。': true, '！': true, '？': true, '；': true, '：': true,
}

// SmartChunk splits text into chunks of at most maxChars characters,
// grouping consecutive sentences together. Boundaries are sentence
// terminators; a sentence that alone exceeds maxChars is split further on
// whitespace. Words are never split. Chunks empty after trimming are
// dropped, so empty input yields an empty slice.
func SmartChunk(text string, maxChars int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if maxChars <= 0 {
		return []string{trimmed}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range splitSentences(trimmed) {
		if len(sentence) > maxChars {
			flush()
			chunks = append(chunks, splitByWhitespace(sentence, maxChars)...)
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(sentence) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// splitSentences splits text on sentence-ending punctuation, keeping the
// terminator attached to its sentence. Empty segments are dropped.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i, r := range text {
		if !terminators[r] {
			continue
		}
		end := i + len(string(r))
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, s)
		}
		start = end
	}

	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

// splitByWhitespace packs whole words into chunks of at most maxChars.
// A single word longer than maxChars is kept intact as its own chunk.
func splitByWhitespace(s string, maxChars int) []string {
	words := strings.FieldsFunc(s, unicode.IsSpace)

	var chunks []string
	var current strings.Builder

	for _, w := range words {
		if current.Len() == 0 {
			current.WriteString(w)
			continue
		}
		if current.Len()+1+len(w) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(w)
			continue
		}
		current.WriteByte(' ')
		current.WriteString(w)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}
