package match

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestPrompt(t *testing.T) {
	got, err := Prompt(Input{
		TargetDepartment:     "經濟系",
		TargetSchool:         "台大",
		AvailableDepartments: []string{"商學系", "資工系"},
		AvailableSchools:     []string{"政大", "清大"},
	})
	if err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}

	for _, want := range []string{
		"- 學系：經濟系\n- 學校：台大\n",
		"- 可用學系：商學系, 資工系\n- 可用學校：政大, 清大\n",
		`"matched_department"`,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if !strings.HasPrefix(got, "\n你是一個專業的學術匹配專家") {
		t.Errorf("unexpected prompt start: %q", got[:40])
	}
	if !strings.HasSuffix(got, "只回傳 JSON，不要其他文字。\n") {
		t.Error("unexpected prompt end")
	}
}

func TestPrompt_EmptyLists(t *testing.T) {
	got, err := Prompt(Input{TargetDepartment: "d", TargetSchool: "s"})
	if err != nil {
		t.Fatalf("Prompt() error = %v", err)
	}
	if !strings.Contains(got, "- 可用學系：\n- 可用學校：\n") {
		t.Errorf("empty lists not rendered as empty: %q", got)
	}
}

func TestFallback(t *testing.T) {
	t.Run("first options", func(t *testing.T) {
		got := Fallback(Input{
			AvailableDepartments: []string{"CS", "EE"},
			AvailableSchools:     []string{"NTU"},
		})
		want := Result{
			MatchedDepartment:         "CS",
			MatchedSchool:             "NTU",
			DepartmentSimilarityScore: 50,
			SchoolSimilarityScore:     50,
			Reasoning:                 "AI 解析失敗，使用預設匹配",
		}
		if got != want {
			t.Errorf("Fallback() = %+v, want %+v", got, want)
		}
	})

	t.Run("empty options", func(t *testing.T) {
		got := Fallback(Input{})
		if got.MatchedDepartment != "" || got.MatchedSchool != "" {
			t.Errorf("Fallback() = %+v, want empty matches", got)
		}
	})

	t.Run("all fields serialized", func(t *testing.T) {
		data, _ := json.Marshal(Fallback(Input{}))
		var fields map[string]any
		_ = json.Unmarshal(data, &fields)
		if len(fields) != 5 {
			t.Errorf("fallback has %d fields, want 5: %s", len(fields), data)
		}
	})
}

func TestResponseSchema_Marshals(t *testing.T) {
	if _, err := json.Marshal(ResponseSchema); err != nil {
		t.Fatalf("json.Marshal(ResponseSchema) error = %v", err)
	}
}
