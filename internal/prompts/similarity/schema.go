package similarity

var scoreEntry = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":  map[string]any{"type": "number"},
		"reason": map[string]any{"type": "string"},
	},
	"required": []string{"score", "reason"},
}

// ResponseSchema is the JSON schema for similarity-analysis output.
var ResponseSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name": "similarity_analysis",
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"department_scores": map[string]any{
					"type":                 "object",
					"additionalProperties": scoreEntry,
				},
				"school_scores": map[string]any{
					"type":                 "object",
					"additionalProperties": scoreEntry,
				},
				"recommendations": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"best_department":   map[string]any{"type": "string"},
						"best_school":       map[string]any{"type": "string"},
						"overall_reasoning": map[string]any{"type": "string"},
					},
					"required": []string{"best_department", "best_school", "overall_reasoning"},
				},
			},
			"required": []string{"department_scores", "school_scores", "recommendations"},
		},
	},
}

// Score is one candidate's score and reason.
type Score struct {
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// Recommendations summarizes the best candidates.
type Recommendations struct {
	BestDepartment   string `json:"best_department"`
	BestSchool       string `json:"best_school"`
	OverallReasoning string `json:"overall_reasoning"`
}

// Result is the similarity-analysis response shape.
type Result struct {
	DepartmentScores map[string]Score `json:"department_scores"`
	SchoolScores     map[string]Score `json:"school_scores"`
	Recommendations  Recommendations  `json:"recommendations"`
}
