package activities

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomlabs/fathom/internal/research"
	"github.com/fathomlabs/fathom/internal/search"
)

func twoNodeStage() research.Stage {
	return research.Stage{
		ID:   0,
		Name: "Background",
		ReasoningTree: research.ReasoningTree{Nodes: []research.ReasoningNode{
			{ID: "n1", Depth: 0, Query: "history of the field"},
			{ID: "n2", Depth: 0, Query: "current approaches"},
		}},
	}
}

func researchInput(stage research.Stage, ids ...string) ResearchNodesInput {
	return ResearchNodesInput{
		SessionID: "sess-1",
		Topic:     "solid state batteries",
		Stage:     stage,
		NodeIDs:   ids,
		Config:    research.Configuration{MaxDepth: 2, MaxBreadth: 2, StageCount: 1, QueriesPerStage: 2},
		Dedup:     research.NewDedupCache(),
	}
}

func execResearch(t *testing.T, searcher search.Provider, stub *llmStub, in ResearchNodesInput) ResearchNodesResult {
	t.Helper()
	env, _ := newActivityEnv(t, searcher, stub.client())
	val, err := env.ExecuteActivity("ResearchNodes", in)
	require.NoError(t, err)
	var out ResearchNodesResult
	require.NoError(t, val.Get(&out))
	return out
}

// Both nodes see the same search results; every source must land on exactly
// one node.
func TestResearchNodesNoDuplicateSources(t *testing.T) {
	results := []search.Result{
		{URL: "https://a.example/1", Title: "A", Text: "alpha"},
		{URL: "https://b.example/2", Title: "B", Text: "beta"},
		{URL: "https://c.example/3", Title: "C", Text: "gamma"},
		{URL: "https://d.example/4", Title: "D", Text: "delta"},
	}
	stub := newLLMStub(t, map[string]string{
		"result-analyst": "This source is relevant because of its findings.",
	})

	out := execResearch(t, fixedResults(results...), stub, researchInput(twoNodeStage(), "n1", "n2"))

	require.Len(t, out.Nodes, 2)
	seen := make(map[string]int)
	for _, n := range out.Nodes {
		assert.True(t, n.Attempted)
		assert.LessOrEqual(t, len(n.Findings), 2, "per-node quota")
		for _, f := range n.Findings {
			seen[f.Source]++
			assert.Equal(t, "This source is relevant because of its findings.", f.Analysis)
		}
	}
	for src, count := range seen {
		assert.Equal(t, 1, count, "source %s claimed by %d nodes", src, count)
	}
	for src := range seen {
		assert.True(t, out.DedupDelta.SearchedURLs[src], "claimed source missing from delta")
		assert.NotEmpty(t, out.DedupDelta.AnalysisCache[src], "analysis missing from delta cache")
	}
	assert.Greater(t, out.InputTokens, 0)
}

// A cached-but-unattached URL is reused without a fresh analysis call and
// still counts toward the node's quota.
func TestResearchNodesReusesCachedAnalysis(t *testing.T) {
	stage := twoNodeStage()
	in := researchInput(stage, "n1")
	in.Dedup.SearchedURLs["https://cached.example/x"] = true
	in.Dedup.AnalysisCache["https://cached.example/x"] = "prior analysis"

	stub := newLLMStub(t, map[string]string{
		"result-analyst": "fresh analysis",
	})
	searcher := fixedResults(
		search.Result{URL: "https://cached.example/x", Title: "Cached", Text: "text"},
		search.Result{URL: "https://new.example/y", Title: "New", Text: "text"},
	)

	out := execResearch(t, searcher, stub, in)

	require.Len(t, out.Nodes, 1)
	require.Len(t, out.Nodes[0].Findings, 2)
	assert.Equal(t, "prior analysis", out.Nodes[0].Findings[0].Analysis)
	assert.Equal(t, "fresh analysis", out.Nodes[0].Findings[1].Analysis)
	assert.Equal(t, 1, stub.callCount("result-analyst"), "cached source must not trigger a fresh analysis")
}

// A URL already attached to a finding in the stage is skipped even when its
// analysis is cached.
func TestResearchNodesSkipsAttachedSources(t *testing.T) {
	stage := twoNodeStage()
	stage.ReasoningTree.Nodes[0].Attempted = true
	stage.ReasoningTree.Nodes[0].Findings = []research.Finding{
		{Source: "https://attached.example/x", Analysis: "already attached"},
	}
	in := researchInput(stage, "n2")
	in.Dedup.SearchedURLs["https://attached.example/x"] = true
	in.Dedup.AnalysisCache["https://attached.example/x"] = "already attached"

	stub := newLLMStub(t, map[string]string{"result-analyst": "fresh"})
	searcher := fixedResults(
		search.Result{URL: "https://attached.example/x", Text: "text"},
		search.Result{URL: "https://other.example/y", Text: "text"},
	)

	out := execResearch(t, searcher, stub, in)

	require.Len(t, out.Nodes, 1)
	require.Len(t, out.Nodes[0].Findings, 1)
	assert.Equal(t, "https://other.example/y", out.Nodes[0].Findings[0].Source)
}

// A visited URL with no cached analysis is skipped; the pass moves on to the
// next unvisited result.
func TestResearchNodesSkipsVisitedWithoutCache(t *testing.T) {
	in := researchInput(twoNodeStage(), "n1")
	in.Dedup.SearchedURLs["https://visited.example/x"] = true

	stub := newLLMStub(t, map[string]string{"result-analyst": "fresh"})
	searcher := fixedResults(
		search.Result{URL: "https://visited.example/x", Text: "text"},
		search.Result{URL: "https://fresh.example/y", Text: "text"},
	)

	out := execResearch(t, searcher, stub, in)

	require.Len(t, out.Nodes[0].Findings, 1)
	assert.Equal(t, "https://fresh.example/y", out.Nodes[0].Findings[0].Source)
}

// Provider failure degrades to an attempted node with no findings; the
// activity itself succeeds and never fabricates content.
func TestResearchNodesSearchFailureDegrades(t *testing.T) {
	failing := searchFunc(func(context.Context, string, int) ([]search.Result, error) {
		return nil, errors.New("provider quota exceeded")
	})
	stub := newLLMStub(t, map[string]string{"result-analyst": "unused"})

	out := execResearch(t, failing, stub, researchInput(twoNodeStage(), "n1", "n2"))

	require.Len(t, out.Nodes, 2)
	for _, n := range out.Nodes {
		assert.True(t, n.Attempted)
		assert.Empty(t, n.Findings)
	}
	assert.Equal(t, 0, stub.callCount("result-analyst"))
}

// Analysis failure keeps the raw excerpt on the finding and leaves the URL
// out of the analysis cache.
func TestResearchNodesAnalysisFailureKeepsExcerpt(t *testing.T) {
	stub := newLLMStub(t, map[string]string{}) // all generation calls 500
	searcher := fixedResults(search.Result{URL: "https://a.example/1", Text: "raw excerpt"})

	out := execResearch(t, searcher, stub, researchInput(twoNodeStage(), "n1"))

	require.Len(t, out.Nodes[0].Findings, 1)
	f := out.Nodes[0].Findings[0]
	assert.Equal(t, "raw excerpt", f.Content)
	assert.Empty(t, f.Analysis)
	assert.True(t, out.DedupDelta.SearchedURLs["https://a.example/1"])
	_, cached := out.DedupDelta.AnalysisCache["https://a.example/1"]
	assert.False(t, cached)
}

func TestResearchNodesExcerptBounded(t *testing.T) {
	long := make([]byte, 3*maxExcerptLen)
	for i := range long {
		long[i] = 'x'
	}
	stub := newLLMStub(t, map[string]string{"result-analyst": "ok"})
	searcher := fixedResults(search.Result{URL: "https://a.example/long", Text: string(long)})

	out := execResearch(t, searcher, stub, researchInput(twoNodeStage(), "n1"))

	require.Len(t, out.Nodes[0].Findings, 1)
	assert.Len(t, out.Nodes[0].Findings[0].Content, maxExcerptLen)
}

func TestResearchNodesQuotaAcrossManyResults(t *testing.T) {
	var results []search.Result
	for i := 0; i < 10; i++ {
		results = append(results, search.Result{
			URL:  fmt.Sprintf("https://many.example/%d", i),
			Text: "text",
		})
	}
	stub := newLLMStub(t, map[string]string{"result-analyst": "ok"})

	out := execResearch(t, fixedResults(results...), stub, researchInput(twoNodeStage(), "n1"))

	require.Len(t, out.Nodes, 1)
	assert.Len(t, out.Nodes[0].Findings, 2, "findings capped at breadth")
}
