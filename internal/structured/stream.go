package structured

import (
	"strings"
	"unicode"
)

// StreamFilter removes the reasoning segment from a stream of text deltas.
//
// Deltas are held until the delimiter appears in the accumulated text; the
// remainder after it is emitted and later deltas pass straight through. If
// the stream ends without a delimiter, Flush emits everything held as one
// delta. Leading whitespace of the answer is dropped and empty deltas are
// never emitted.
type StreamFilter struct {
	delimiter   string
	emit        func(string) error
	held        strings.Builder
	passthrough bool
	started     bool
}

// NewStreamFilter returns a filter that forwards answer text to emit.
// An empty delimiter disables holding.
func NewStreamFilter(delimiter string, emit func(string) error) *StreamFilter {
	return &StreamFilter{
		delimiter:   delimiter,
		emit:        emit,
		passthrough: delimiter == "",
	}
}

// Write accepts the next delta from the engine.
func (f *StreamFilter) Write(delta string) error {
	if f.passthrough {
		return f.send(delta)
	}

	f.held.WriteString(delta)
	_, after, found := strings.Cut(f.held.String(), f.delimiter)
	if !found {
		return nil
	}
	f.passthrough = true
	f.held.Reset()
	return f.send(after)
}

// Flush emits held text when the stream ended without a delimiter.
func (f *StreamFilter) Flush() error {
	if f.passthrough {
		return nil
	}
	f.passthrough = true
	text := strings.TrimRightFunc(f.held.String(), unicode.IsSpace)
	f.held.Reset()
	return f.send(text)
}

// Reasoning reports whether the filter is still holding back output.
func (f *StreamFilter) Reasoning() bool {
	return !f.passthrough
}

func (f *StreamFilter) send(text string) error {
	if !f.started {
		text = strings.TrimLeftFunc(text, unicode.IsSpace)
		if text == "" {
			return nil
		}
		f.started = true
	}
	if text == "" {
		return nil
	}
	return f.emit(text)
}
