package match

// ResponseSchema is the JSON schema for smart-match output.
var ResponseSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name": "smart_match",
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"matched_department": map[string]any{
					"type":        "string",
					"description": "Best matching department from the available list",
				},
				"matched_school": map[string]any{
					"type":        "string",
					"description": "Best matching school from the available list",
				},
				"department_similarity_score": map[string]any{
					"type":    "number",
					"minimum": 0,
					"maximum": 100,
				},
				"school_similarity_score": map[string]any{
					"type":    "number",
					"minimum": 0,
					"maximum": 100,
				},
				"reasoning": map[string]any{
					"type": "string",
				},
			},
			"required": []string{
				"matched_department",
				"matched_school",
				"department_similarity_score",
				"school_similarity_score",
				"reasoning",
			},
		},
	},
}

// FallbackReasoning explains a fallback match.
const FallbackReasoning = "AI 解析失敗，使用預設匹配"

// Result is the smart-match response shape.
type Result struct {
	MatchedDepartment         string  `json:"matched_department"`
	MatchedSchool             string  `json:"matched_school"`
	DepartmentSimilarityScore float64 `json:"department_similarity_score"`
	SchoolSimilarityScore     float64 `json:"school_similarity_score"`
	Reasoning                 string  `json:"reasoning"`
}

// Fallback returns the first available department and school with neutral scores.
func Fallback(in Input) Result {
	r := Result{
		DepartmentSimilarityScore: 50,
		SchoolSimilarityScore:     50,
		Reasoning:                 FallbackReasoning,
	}
	if len(in.AvailableDepartments) > 0 {
		r.MatchedDepartment = in.AvailableDepartments[0]
	}
	if len(in.AvailableSchools) > 0 {
		r.MatchedSchool = in.AvailableSchools[0]
	}
	return r
}
