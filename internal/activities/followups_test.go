package activities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathomlabs/fathom/internal/research"
)

func researchedStage() research.Stage {
	return research.Stage{
		ID:   0,
		Name: "Background",
		ReasoningTree: research.ReasoningTree{Nodes: []research.ReasoningNode{
			{ID: "r1", Depth: 0, Query: "base query one", Attempted: true, Findings: []research.Finding{
				{Source: "https://a.example/1", Analysis: "insight about a"},
			}},
			{ID: "r2", Depth: 0, Query: "base query two", Attempted: true, Findings: []research.Finding{
				{Source: "https://b.example/2", Analysis: "insight about b"},
			}},
		}},
	}
}

func execFollowUps(t *testing.T, stub *llmStub, in GenerateFollowUpsInput) GenerateFollowUpsResult {
	t.Helper()
	env, _ := newActivityEnv(t, fixedResults(), stub.client())
	val, err := env.ExecuteActivity("GenerateFollowUps", in)
	require.NoError(t, err)
	var out GenerateFollowUpsResult
	require.NoError(t, val.Get(&out))
	return out
}

func TestGenerateFollowUps(t *testing.T) {
	stub := newLLMStub(t, map[string]string{
		"followup-generator": `{"queries": [
			{"query": "gap one", "reasoning": "why one"},
			{"query": "gap two", "reasoning": "why two"},
			{"query": "gap three", "reasoning": "why three"}
		]}`,
	})

	out := execFollowUps(t, stub, GenerateFollowUpsInput{
		SessionID: "sess-1",
		Topic:     "topic",
		Stage:     researchedStage(),
		Config:    research.Configuration{MaxDepth: 2, MaxBreadth: 3, StageCount: 1, QueriesPerStage: 2},
	})

	assert.False(t, out.FallbackUsed)
	require.Len(t, out.Nodes, 3, "exactly breadth nodes per expansion")
	queries := map[string]bool{}
	for _, n := range out.Nodes {
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, 1, n.Depth, "new nodes sit one level below the current deepest")
		assert.Contains(t, []string{"r1", "r2"}, n.ParentID)
		queries[n.Query] = true
	}
	assert.Len(t, queries, 3, "queries must be distinct")
}

// Generation failure still yields a full batch of template queries; a short
// batch would strand the tree below its target depth.
func TestGenerateFollowUpsTemplateFallback(t *testing.T) {
	stub := newLLMStub(t, map[string]string{})

	out := execFollowUps(t, stub, GenerateFollowUpsInput{
		Topic:  "topic",
		Stage:  researchedStage(),
		Config: research.Configuration{MaxDepth: 2, MaxBreadth: 3, StageCount: 1, QueriesPerStage: 2},
	})

	assert.True(t, out.FallbackUsed)
	require.Len(t, out.Nodes, 3)
	for _, n := range out.Nodes {
		assert.Equal(t, 1, n.Depth)
		assert.NotEmpty(t, n.Query)
		assert.NotEmpty(t, n.ParentID)
	}
}

// A short generation keeps the generated queries and pads the remainder.
func TestGenerateFollowUpsPadsShortGeneration(t *testing.T) {
	stub := newLLMStub(t, map[string]string{
		"followup-generator": `{"queries": [{"query": "only one", "reasoning": "r"}]}`,
	})

	out := execFollowUps(t, stub, GenerateFollowUpsInput{
		Topic:  "topic",
		Stage:  researchedStage(),
		Config: research.Configuration{MaxDepth: 2, MaxBreadth: 3, StageCount: 1, QueriesPerStage: 2},
	})

	require.Len(t, out.Nodes, 3)
	assert.Equal(t, "only one", out.Nodes[0].Query)
	assert.NotEmpty(t, out.Nodes[1].Query)
	assert.NotEmpty(t, out.Nodes[2].Query)
}
