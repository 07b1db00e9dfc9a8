package endpoints

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/alphadeepmind/llmserve/internal/prompts/match"
	"github.com/alphadeepmind/llmserve/internal/prompts/similarity"
)

func smartMatchRequest() SmartMatchRequest {
	return SmartMatchRequest{
		TargetDepartment:     "資訊工程",
		TargetSchool:         "台大",
		AvailableDepartments: []string{"資訊工程學系", "電機工程學系"},
		AvailableSchools:     []string{"國立臺灣大學", "國立清華大學"},
		Key:                  testKey,
	}
}

func TestSmartMatch(t *testing.T) {
	t.Run("passes model JSON through", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ResponseText = "<think>compare</think>\n```json\n" +
			`{"matched_department":"資訊工程學系","matched_school":"國立臺灣大學",` +
			`"department_similarity_score":95,"school_similarity_score":90,"reasoning":"close"}` +
			"\n```"

		rec := h.postJSON("/smart-match", smartMatchRequest())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		got := decodeBody[match.Result](t, rec)
		if got.MatchedSchool != "國立臺灣大學" || got.DepartmentSimilarityScore != 95 {
			t.Errorf("result = %+v", got)
		}

		req := h.engine.LastRequest()
		if len(req.GuidedJSON) == 0 {
			t.Error("guided schema not attached")
		}
		if req.Sampling.Temperature != 0.1 || req.Sampling.MaxTokens != 500 || req.Sampling.TopK != 5 {
			t.Errorf("sampling = %+v", req.Sampling)
		}
		for _, want := range []string{"資訊工程", "國立清華大學"} {
			if !strings.Contains(req.Prompt, want) {
				t.Errorf("prompt missing %q", want)
			}
		}

		calls := h.calls(smartMatchEndpointName)
		if len(calls) != 1 || calls[0].UsedFallback || calls[0].PromptKey != match.PromptKey {
			t.Errorf("calls = %+v", calls)
		}
	})

	t.Run("falls back on unparseable output", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ResponseText = "I cannot decide."

		rec := h.postJSON("/smart-match", smartMatchRequest())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var fields map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &fields); err != nil {
			t.Fatal(err)
		}
		if len(fields) != 5 {
			t.Errorf("fallback has %d fields, want 5: %v", len(fields), fields)
		}
		got := decodeBody[match.Result](t, rec)
		want := match.Result{
			MatchedDepartment:         "資訊工程學系",
			MatchedSchool:             "國立臺灣大學",
			DepartmentSimilarityScore: 50,
			SchoolSimilarityScore:     50,
			Reasoning:                 match.FallbackReasoning,
		}
		if got != want {
			t.Errorf("result = %+v, want %+v", got, want)
		}

		calls := h.calls(smartMatchEndpointName)
		if len(calls) != 1 || !calls[0].UsedFallback || calls[0].ParseError == "" || !calls[0].Success {
			t.Errorf("calls = %+v", calls)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ShouldFail = true
		expectError(t, h.postJSON("/smart-match", smartMatchRequest()),
			http.StatusInternalServerError, "智能匹配失敗：inference engine returned status 500")
	})
}

func similarityRequest() SimilarityRequest {
	return SimilarityRequest{
		QueryDepartment:      "資訊工程",
		QuerySchool:          "台大",
		CandidateDepartments: []string{"資訊工程學系", "數學系"},
		CandidateSchools:     []string{"國立臺灣大學"},
		Key:                  testKey,
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("returns scores", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ResponseText = `{"department_scores":{"資訊工程學系":{"score":96,"reason":"same field"},` +
			`"數學系":{"score":40,"reason":"related"}},` +
			`"school_scores":{"國立臺灣大學":{"score":99,"reason":"alias"}},` +
			`"recommendations":{"best_department":"資訊工程學系","best_school":"國立臺灣大學","overall_reasoning":"ok"}}`

		rec := h.postJSON("/similarity-analysis", similarityRequest())
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
		}
		got := decodeBody[similarity.Result](t, rec)
		if got.DepartmentScores["數學系"].Score != 40 || got.Recommendations.BestSchool != "國立臺灣大學" {
			t.Errorf("result = %+v", got)
		}
		if s := h.engine.LastRequest().Sampling; s.Temperature != 0.2 || s.MaxTokens != 800 {
			t.Errorf("sampling = %+v", s)
		}
	})

	t.Run("unparseable output is an error", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ResponseText = "<think>x</think> not json"
		expectError(t, h.postJSON("/similarity-analysis", similarityRequest()),
			http.StatusInternalServerError, msgSimilarityUnparsed)

		calls := h.calls(similarityEndpointName)
		if len(calls) != 1 || calls[0].UsedFallback || calls[0].ParseError == "" {
			t.Errorf("calls = %+v", calls)
		}
	})

	t.Run("engine failure", func(t *testing.T) {
		h := newHarness(t)
		h.engine.ShouldFail = true
		expectError(t, h.postJSON("/similarity-analysis", similarityRequest()),
			http.StatusInternalServerError, "相似性分析失敗：inference engine returned status 500")
	})
}
