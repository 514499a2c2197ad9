package activities

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/search"
)

// searchFunc adapts a function to the search.Provider interface.
type searchFunc func(ctx context.Context, query string, numResults int) ([]search.Result, error)

func (f searchFunc) Search(ctx context.Context, query string, numResults int) ([]search.Result, error) {
	return f(ctx, query, numResults)
}

func fixedResults(results ...search.Result) searchFunc {
	return func(context.Context, string, int) ([]search.Result, error) {
		return results, nil
	}
}

// llmStub is a fake generation service. Responses are keyed by the agent id
// carried in the X-Agent-ID header; agents without an entry get a 500 so
// tests can exercise the degraded paths.
type llmStub struct {
	mu        sync.Mutex
	responses map[string]string
	calls     map[string]int
	server    *httptest.Server
}

func newLLMStub(t *testing.T, responses map[string]string) *llmStub {
	t.Helper()
	s := &llmStub{
		responses: responses,
		calls:     make(map[string]int),
	}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agent := r.Header.Get("X-Agent-ID")
		s.mu.Lock()
		s.calls[agent]++
		text, ok := s.responses[agent]
		s.mu.Unlock()
		if !ok {
			http.Error(w, "no canned response", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":  true,
			"response": text,
			"metadata": map[string]any{
				"input_tokens":  100,
				"output_tokens": 50,
			},
			"model_used": "gpt-4o-mini",
			"provider":   "openai",
		})
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *llmStub) client() *llm.Client {
	return llm.New(s.server.URL)
}

func (s *llmStub) callCount(agent string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[agent]
}

func newActivityEnv(t *testing.T, searcher search.Provider, client *llm.Client) (*testsuite.TestActivityEnvironment, *Activities) {
	t.Helper()
	a := NewActivities(searcher, client, zap.NewNop())
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	env.RegisterActivity(a.PlanStages)
	env.RegisterActivity(a.ResearchNodes)
	env.RegisterActivity(a.GenerateFollowUps)
	env.RegisterActivity(a.SynthesizeStage)
	env.RegisterActivity(a.AssembleReport)
	return env, a
}
