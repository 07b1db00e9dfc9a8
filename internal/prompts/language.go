package prompts

import (
	_ "embed"
	"strings"
)

// Language is the answer language selected for a prompt.
type Language string

const (
	LangChinese Language = "zh"
	LangEnglish Language = "en"
)

//go:embed math_hint.tmpl
var mathHint string

// MathHintKey is the registry key of the math reasoning suffix.
const MathHintKey = "common.math_hint"

// IsChinese reports whether text contains any CJK unified ideograph (U+4E00..U+9FFF).
func IsChinese(text string) bool {
	for _, r := range text {
		if r >= '\u4e00' && r <= '\u9fff' {
			return true
		}
	}
	return false
}

// DetectLanguage returns LangChinese if any of texts contains Chinese.
func DetectLanguage(texts ...string) Language {
	for _, t := range texts {
		if IsChinese(t) {
			return LangChinese
		}
	}
	return LangEnglish
}

// NeedsMathHint reports whether prompt mentions 數學 or, in any case, "math".
func NeedsMathHint(prompt string) bool {
	return strings.Contains(prompt, "數學") || strings.Contains(strings.ToLower(prompt), "math")
}

// WithMathHint appends the step-by-step reasoning suffix when the original
// prompt asks for math.
func WithMathHint(original, rendered string) string {
	if NeedsMathHint(original) {
		return rendered + mathHint
	}
	return rendered
}

// RegisterPrompts registers the shared prompts.
func RegisterPrompts(r *Registry) {
	r.Register(EmbeddedPrompt{
		Key:         MathHintKey,
		Text:        mathHint,
		Description: "Suffix appended to math prompts asking for step-by-step reasoning and a boxed answer",
	})
}
