package activities

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/research"
)

// GenerateFollowUpsInput asks for the next depth level of follow-up queries.
type GenerateFollowUpsInput struct {
	SessionID string                 `json:"session_id"`
	Topic     string                 `json:"topic"`
	Stage     research.Stage         `json:"stage"`
	Config    research.Configuration `json:"config"`
}

// GenerateFollowUpsResult carries the new nodes, already assigned IDs,
// depths, and parents, ready to append to the stage tree.
type GenerateFollowUpsResult struct {
	Nodes        []research.ReasoningNode `json:"nodes"`
	FallbackUsed bool                     `json:"fallback_used"`
	InputTokens  int                      `json:"input_tokens"`
	OutputTokens int                      `json:"output_tokens"`
	Model        string                   `json:"model,omitempty"`
	Provider     string                   `json:"provider,omitempty"`
}

type generatedQueries struct {
	Queries []struct {
		Query     string `json:"query"`
		Reasoning string `json:"reasoning"`
	} `json:"queries"`
}

// GenerateFollowUps expands a fully researched depth level into exactly
// MaxBreadth follow-up queries. The prompt carries the stage's findings under
// their stable citation numbers and the list of prior queries to avoid
// duplicates. Generation failure degrades to deterministic template queries;
// returning nothing would leave the tree unable to reach its target depth.
func (a *Activities) GenerateFollowUps(ctx context.Context, in GenerateFollowUpsInput) (GenerateFollowUpsResult, error) {
	logger := activity.GetLogger(ctx)
	cfg := in.Config.Normalize()

	currentDepth := in.Stage.ReasoningTree.MaxNodeDepth()
	newDepth := currentDepth + 1
	logger.Info("GenerateFollowUps: expanding stage",
		"stage", in.Stage.Name,
		"new_depth", newDepth,
		"count", cfg.MaxBreadth,
	)

	findings := in.Stage.ReasoningTree.AllFindings()
	unique := research.CollectUniqueSources(findings)
	numbers := research.AssignCitationNumbers(unique)

	numbered := make([]string, 0, len(unique))
	for _, f := range unique {
		summary := f.Analysis
		if summary == "" {
			summary = truncateStr(f.Content, 300)
		}
		numbered = append(numbered, fmt.Sprintf("[%d] %s — %s", numbers[f.Source], f.Source, summary))
	}

	var priorQueries []string
	var parents []string
	for i := range in.Stage.ReasoningTree.Nodes {
		n := &in.Stage.ReasoningTree.Nodes[i]
		priorQueries = append(priorQueries, n.Query)
		if n.Depth == currentDepth {
			parents = append(parents, n.ID)
		}
	}

	var gen generatedQueries
	usage, err := a.llm.GenerateStructured(ctx, llm.Request{
		Prompt:       buildFollowUpContent(in.Topic, &in.Stage, numbered, priorQueries, cfg.MaxBreadth),
		SystemPrompt: followUpSystemPrompt,
		AgentID:      "followup-generator",
		Temperature:  0.4,
		SessionID:    in.SessionID,
	}, &gen)

	res := GenerateFollowUpsResult{
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Model:        usage.Model,
		Provider:     usage.Provider,
	}
	if err != nil {
		logger.Warn("GenerateFollowUps: generation failed, using template queries", "error", err)
		res.FallbackUsed = true
	}

	for i := 0; i < cfg.MaxBreadth; i++ {
		node := research.ReasoningNode{
			ID:    uuid.NewString(),
			Depth: newDepth,
		}
		if len(parents) > 0 {
			node.ParentID = parents[i%len(parents)]
		}
		if !res.FallbackUsed && i < len(gen.Queries) && gen.Queries[i].Query != "" {
			node.Query = gen.Queries[i].Query
			node.Reasoning = gen.Queries[i].Reasoning
		} else {
			node.Query = fmt.Sprintf("%s %s: open questions (follow-up %d)", in.Topic, in.Stage.Name, i+1)
			node.Reasoning = "Template follow-up used after a generation shortfall."
		}
		res.Nodes = append(res.Nodes, node)
	}
	return res, nil
}
