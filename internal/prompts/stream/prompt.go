package stream

import (
	_ "embed"

	"github.com/alphadeepmind/llmserve/internal/prompts"
)

//go:embed wrapper_zh.tmpl
var wrapperZh string

//go:embed wrapper_en.tmpl
var wrapperEn string

var (
	zhTemplate = prompts.MustParse("stream_zh", wrapperZh)
	enTemplate = prompts.MustParse("stream_en", wrapperEn)
)

// Prompt keys
const (
	WrapperZhKey = "stream.wrapper.zh"
	WrapperEnKey = "stream.wrapper.en"
)

// Prompt wraps a user question with the answer-format instruction in the
// question's language and appends the math hint when relevant. It returns
// the rendered prompt and the key of the wrapper used.
func Prompt(question string) (string, string, error) {
	tmpl, key := enTemplate, WrapperEnKey
	if prompts.IsChinese(question) {
		tmpl, key = zhTemplate, WrapperZhKey
	}

	rendered, err := prompts.Render(tmpl, struct{ Prompt string }{Prompt: question})
	if err != nil {
		return "", key, err
	}
	return prompts.WithMathHint(question, rendered), key, nil
}

// RegisterPrompts registers the stream prompts.
func RegisterPrompts(r *prompts.Registry) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         WrapperZhKey,
		Text:        wrapperZh,
		Description: "Streaming answer wrapper for Chinese questions",
	})
	r.Register(prompts.EmbeddedPrompt{
		Key:         WrapperEnKey,
		Text:        wrapperEn,
		Description: "Streaming answer wrapper for English questions",
	})
}
