// Package docparse extracts plain text from uploaded PDF, DOCX and TXT files.
package docparse

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions other than pdf, docx and txt.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Format is a supported document format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatTXT  Format = "txt"
)

// Document is the text extracted from one upload.
type Document struct {
	Filename  string
	Format    Format
	Text      string
	SizeBytes int
}

// FormatOf returns the lowercased extension after the last dot.
func FormatOf(filename string) string {
	ext := path.Ext(filename)
	if ext == "" {
		// No dot: the whole name is treated as the extension.
		return strings.ToLower(filename)
	}
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// Extract selects a parser by filename extension and returns the document text.
func Extract(filename string, data []byte) (*Document, error) {
	doc := &Document{
		Filename:  filename,
		Format:    Format(FormatOf(filename)),
		SizeBytes: len(data),
	}

	var (
		text string
		err  error
	)
	switch doc.Format {
	case FormatPDF:
		text, err = extractPDF(data)
	case FormatDOCX:
		text, err = extractDOCX(data)
	case FormatTXT:
		text, err = extractTXT(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, doc.Format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s text from %s: %w", doc.Format, filename, err)
	}

	doc.Text = text
	return doc, nil
}
