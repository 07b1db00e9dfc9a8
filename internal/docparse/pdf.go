package docparse

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var disableConfigDir sync.Once

// extractPDF validates the file with pdfcpu, then decodes each page's text
// through its fonts (ToUnicode CMaps, Identity-H, simple encodings) and joins
// the pages line by line.
func extractPDF(data []byte) (string, error) {
	pageCount, err := validatePDF(data)
	if err != nil {
		return "", err
	}
	if pageCount == 0 {
		return "", fmt.Errorf("pdf has no pages")
	}

	pages, err := pageTexts(data)
	if err != nil {
		return "", err
	}

	lines := make([]string, 0, len(pages))
	for _, p := range pages {
		if p != "" {
			lines = append(lines, p)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// validatePDF reads the file in relaxed mode and returns its page count.
func validatePDF(data []byte) (int, error) {
	disableConfigDir.Do(api.DisableConfigDir)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return 0, fmt.Errorf("failed to read pdf: %w", err)
	}
	if err := api.ValidateContext(ctx); err != nil {
		return 0, fmt.Errorf("invalid pdf: %w", err)
	}
	return ctx.PageCount, nil
}

// pageTexts returns the cleaned text of every page in order.
// The text reader panics on some malformed objects; that surfaces as an error.
func pageTexts(data []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("failed to decode pdf text: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	n := r.NumPage()
	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		// nil builds the font table from this page's own resources.
		text, err := p.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read page %d: %w", i, err)
		}
		pages = append(pages, cleanPageText(text))
	}
	return pages, nil
}

// cleanPageText drops undecodable glyphs and control characters, trims each
// line and removes blank lines.
func cleanPageText(text string) string {
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\t':
			return r
		case r == '\r':
			return '\n'
		case r == unicode.ReplacementChar, unicode.IsControl(r):
			return -1
		}
		return r
	}, text)

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
