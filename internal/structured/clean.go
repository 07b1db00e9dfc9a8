// Package structured recovers JSON payloads from free-form model output.
//
// Reasoning models emit a deliberation segment closed by a delimiter (for
// DeepSeek-R1 style models, "</think>") and frequently wrap the answer in a
// markdown code fence. Extract removes both and parses what is left, either
// substituting a caller-supplied fallback (Tolerant) or returning an error
// (Strict) when the remainder is not JSON.
package structured

import (
	"regexp"
	"strings"
)

// DefaultReasoningDelimiter closes the reasoning segment of DeepSeek-R1 style models.
const DefaultReasoningDelimiter = "</think>"

var (
	// A language tag counts only when whitespace follows it, so ```true```
	// keeps its payload.
	leadingFence  = regexp.MustCompile("^```(?:[A-Za-z0-9_+.-]+(?:[ \t]*\r?\n|[ \t]+))?[ \t\r\n]*")
	trailingFence = regexp.MustCompile("[ \t\r\n]*```$")
)

// StripReasoning drops everything up to and including the first occurrence of
// delimiter and trims the remainder. Text without the delimiter is only trimmed.
// Later occurrences are kept verbatim: "a</think>b</think>c" yields
// "b</think>c", so a payload after a repeated delimiter does not parse.
func StripReasoning(text, delimiter string) string {
	if delimiter != "" {
		if _, after, found := strings.Cut(text, delimiter); found {
			return strings.TrimSpace(after)
		}
	}
	return strings.TrimSpace(text)
}

// StripFences removes one leading fence marker (with optional language tag)
// and one trailing fence marker. Fences inside the payload are left alone.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	text = leadingFence.ReplaceAllString(text, "")
	text = trailingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// Clean applies StripReasoning then StripFences.
func Clean(raw, delimiter string) string {
	return StripFences(StripReasoning(raw, delimiter))
}
