package similarity

import (
	_ "embed"

	"github.com/alphadeepmind/llmserve/internal/prompts"
)

//go:embed analysis.tmpl
var analysisPrompt string

var analysisTemplate = prompts.MustParse("similarity_analysis", analysisPrompt)

// PromptKey is the registry key of the similarity-analysis prompt.
const PromptKey = "similarity.analysis"

// Input is a queried department and school with candidates to score.
type Input struct {
	QueryDepartment      string
	QuerySchool          string
	CandidateDepartments []string
	CandidateSchools     []string
}

// Prompt renders the similarity-analysis prompt.
func Prompt(in Input) (string, error) {
	return prompts.Render(analysisTemplate, in)
}

// RegisterPrompts registers the similarity-analysis prompt.
func RegisterPrompts(r *prompts.Registry) {
	r.Register(prompts.EmbeddedPrompt{
		Key:         PromptKey,
		Text:        analysisPrompt,
		Description: "Scores candidate departments and schools against a query",
	})
}
