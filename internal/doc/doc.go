// Package doc turns uploaded documents into narration-ready text. Plain
// text and Markdown are handled in-process; richer formats (PDF, EPUB,
// DOCX) plug in through the Extractor interface.
package doc

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mimikastudio/mimika/internal/apperr"
	"github.com/mimikastudio/mimika/internal/text"
)

// Chapter is one titled section of a document.
type Chapter struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Document is extracted, normalized narration text with optional chapter
// structure.
type Document struct {
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	Chapters []Chapter `json:"chapters,omitempty"`
}

// Extractor converts one file format into a Document.
type Extractor interface {
	// Supports reports whether the extractor handles the extension,
	// lower-case with the leading dot, e.g. ".pdf".
	Supports(ext string) bool
	Extract(path string) (Document, error)
}

// Set resolves a file to the first extractor that supports its extension.
type Set struct {
	extractors []Extractor
}

// NewSet builds a set with the built-in plain-text and Markdown extractors.
// Extra extractors take precedence over the built-ins.
func NewSet(extra ...Extractor) *Set {
	return &Set{extractors: append(extra, plainText{}, markdown{})}
}

// FromFile extracts path with the first matching extractor.
func (s *Set) FromFile(path string) (Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range s.extractors {
		if e.Supports(ext) {
			return e.Extract(path)
		}
	}
	return Document{}, apperr.New(apperr.BadRequest, "unsupported file type %q", ext)
}

// stem is the file name without directory or extension, used as the
// fallback title.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type plainText struct{}

func (plainText) Supports(ext string) bool { return ext == ".txt" || ext == "" }

func (plainText) Extract(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.Internal, err, "reading %s", filepath.Base(path))
	}
	body := text.NormalizeExtracted(string(raw))
	if strings.TrimSpace(body) == "" {
		return Document{}, apperr.New(apperr.BadRequest, "document contains no text")
	}
	return Document{Title: stem(path), Text: body}, nil
}

type markdown struct{}

func (markdown) Supports(ext string) bool { return ext == ".md" || ext == ".markdown" }

// Extract treats top-level and second-level headings as chapter breaks.
// Formatting markers are left in place; narration tolerates them better
// than a lossy strip.
func (markdown) Extract(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, apperr.Wrap(apperr.Internal, err, "reading %s", filepath.Base(path))
	}

	var chapters []Chapter
	var current *Chapter
	var preamble strings.Builder

	for _, line := range strings.Split(string(raw), "\n") {
		if title, ok := headingTitle(line); ok {
			chapters = append(chapters, Chapter{Title: title})
			current = &chapters[len(chapters)-1]
			continue
		}
		if current != nil {
			current.Text += line + "\n"
		} else {
			preamble.WriteString(line)
			preamble.WriteString("\n")
		}
	}

	doc := Document{Title: stem(path)}
	var full strings.Builder
	full.WriteString(preamble.String())
	for i := range chapters {
		chapters[i].Text = text.NormalizeExtracted(chapters[i].Text)
		full.WriteString(chapters[i].Title)
		full.WriteString(". ")
		full.WriteString(chapters[i].Text)
		full.WriteString("\n")
	}
	if len(chapters) == 0 {
		full.Reset()
		full.WriteString(string(raw))
	}

	doc.Text = text.NormalizeExtracted(full.String())
	if strings.TrimSpace(doc.Text) == "" {
		return Document{}, apperr.New(apperr.BadRequest, "document contains no text")
	}

	// Drop chapters that were headings with no body.
	for _, ch := range chapters {
		if strings.TrimSpace(ch.Text) != "" {
			doc.Chapters = append(doc.Chapters, ch)
		}
	}
	return doc, nil
}

func headingTitle(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, prefix := range []string{"## ", "# "} {
		if strings.HasPrefix(trimmed, prefix) {
			title := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
			if title != "" {
				return title, true
			}
		}
	}
	return "", false
}
