package match

import (
	_ "embed"

	"github.com/alphadeepmind/llmserve/internal/prompts"
)

//go:embed smart_match.tmpl
var smartMatchPrompt string

var smartMatchTemplate = prompts.MustParse("smart_match", smartMatchPrompt)

// PromptKey is the registry key of the smart-match prompt.
const PromptKey = "match.smart_match"

// Input is the user's desired department and school plus the available options.
type Input struct {
	TargetDepartment     string
	TargetSchool         string
	AvailableDepartments []string
	AvailableSchools     []string
}

// Prompt renders the smart-match prompt.
func Prompt(in Input) (string, error) {
	return prompts.Render(smartMatchTemplate, in)
}

// RegisterPrompts registers the smart-match prompt.
func RegisterPrompts(r *prompts.Registry) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         PromptKey,
		Text:        smartMatchPrompt,
		Description: "Matches a desired department and school against the available options",
	})
}
