package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteStripsThinkTags(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization header = %q, want Bearer secret", got)
		}
		resp := chatResponse{}
		resp.Choices = []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		}{{Message: struct {
			Content string `json:"content"`
		}{Content: "<think>pondering...</think>the actual answer"}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "test-model")
	out, err := c.Complete(context.Background(), "sys", "user")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "the actual answer" {
		t.Errorf("Complete() = %q, want 'the actual answer'", out)
	}
}

func TestCompleteReturnsErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "test-model")
	_, err := c.Complete(context.Background(), "sys", "user")
	if err == nil {
		t.Fatal("Complete() error = nil, want error on 500 response")
	}
}

func TestParseTaskResultObject(t *testing.T) {
	raw := "```json\n" + `{"files":[{"path":"a.py","content":"print(1)"}],"summary":"wrote a.py","tokens_estimate":42}` + "\n```"
	result := ParseTaskResult(raw)
	if len(result.Files) != 1 || result.Files[0].Path != "a.py" {
		t.Fatalf("ParseTaskResult() files = %v, want one file a.py", result.Files)
	}
	if result.Summary != "wrote a.py" {
		t.Errorf("Summary = %q, want 'wrote a.py'", result.Summary)
	}
}

func TestParseTaskResultArrayTakesFirst(t *testing.T) {
	raw := `[{"files":[],"summary":"first"},{"files":[],"summary":"second"}]`
	result := ParseTaskResult(raw)
	if result.Summary != "first" {
		t.Errorf("Summary = %q, want 'first'", result.Summary)
	}
}

func TestParseTaskResultDegradesOnGarbage(t *testing.T) {
	raw := "I could not complete this task because the repository was empty."
	result := ParseTaskResult(raw)
	if len(result.Files) != 0 {
		t.Errorf("Files = %v, want empty (degraded result)", result.Files)
	}
	if !strings.Contains(result.Summary, "could not complete") {
		t.Errorf("Summary = %q, want to contain original text", result.Summary)
	}
}

func TestParseTaskResultTruncatesSummaryTo500(t *testing.T) {
	raw := strings.Repeat("x", 1000)
	result := ParseTaskResult(raw)
	if len(result.Summary) != 500 {
		t.Errorf("len(Summary) = %d, want 500", len(result.Summary))
	}
}
