package activities

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/metrics"
	"github.com/fathomlabs/fathom/internal/research"
)

// PlanStagesInput is the input for the stage planner.
type PlanStagesInput struct {
	SessionID string                 `json:"session_id"`
	Topic     string                 `json:"topic"`
	Context   string                 `json:"context,omitempty"`
	Config    research.Configuration `json:"config"`
}

// PlanStagesResult carries the planned stages back to the workflow.
type PlanStagesResult struct {
	Stages       []research.Stage `json:"stages"`
	FallbackUsed bool             `json:"fallback_used"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	Model        string           `json:"model,omitempty"`
	Provider     string           `json:"provider,omitempty"`
}

// plannedStages is the structured-generation schema for stage planning.
type plannedStages struct {
	Stages []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Queries     []struct {
			Query     string `json:"query"`
			Reasoning string `json:"reasoning"`
		} `json:"queries"`
	} `json:"stages"`
}

// PlanStages produces the session's stages with their initial depth-0 query
// nodes from a single structured-generation call. Generation failure degrades
// to a deterministic stage template with empty trees so the run stays alive;
// callers treat FallbackUsed as a lower-confidence signal.
func (a *Activities) PlanStages(ctx context.Context, in PlanStagesInput) (PlanStagesResult, error) {
	logger := activity.GetLogger(ctx)
	cfg := in.Config.Normalize()
	logger.Info("PlanStages: starting",
		"topic", truncateStr(in.Topic, 100),
		"stage_count", cfg.StageCount,
		"queries_per_stage", cfg.QueriesPerStage,
	)

	var planned plannedStages
	usage, err := a.llm.GenerateStructured(ctx, llm.Request{
		Prompt:       buildStagePlannerContent(in.Topic, in.Context, cfg),
		SystemPrompt: stagePlannerSystemPrompt,
		AgentID:      "stage-planner",
		ModelTier:    "medium",
		Temperature:  0.3,
		SessionID:    in.SessionID,
	}, &planned)
	if err != nil || len(planned.Stages) == 0 {
		logger.Warn("PlanStages: generation failed, using template fallback", "error", err)
		metrics.StagesPlanned.WithLabelValues("true").Inc()
		return PlanStagesResult{
			Stages:       fallbackStages(cfg),
			FallbackUsed: true,
			InputTokens:  usage.InputTokens,
			OutputTokens: usage.OutputTokens,
			Model:        usage.Model,
			Provider:     usage.Provider,
		}, nil
	}

	stages := make([]research.Stage, 0, cfg.StageCount)
	for i := 0; i < cfg.StageCount; i++ {
		st := research.Stage{ID: i}
		if i < len(planned.Stages) {
			st.Name = planned.Stages[i].Name
			st.Description = planned.Stages[i].Description
			for q := 0; q < cfg.QueriesPerStage && q < len(planned.Stages[i].Queries); q++ {
				pq := planned.Stages[i].Queries[q]
				st.ReasoningTree.Nodes = append(st.ReasoningTree.Nodes, research.ReasoningNode{
					ID:        uuid.NewString(),
					Depth:     0,
					Query:     pq.Query,
					Reasoning: pq.Reasoning,
				})
			}
		}
		if st.Name == "" {
			st.Name = fallbackStageName(i, cfg.StageCount)
		}
		// Pad short query lists so every stage has its full initial frontier.
		for len(st.ReasoningTree.Nodes) < cfg.QueriesPerStage {
			n := len(st.ReasoningTree.Nodes)
			st.ReasoningTree.Nodes = append(st.ReasoningTree.Nodes, research.ReasoningNode{
				ID:        uuid.NewString(),
				Depth:     0,
				Query:     fmt.Sprintf("%s: %s (aspect %d)", in.Topic, st.Name, n+1),
				Reasoning: "Planner returned fewer queries than requested; padded to keep the frontier full.",
			})
		}
		stages = append(stages, st)
	}

	metrics.StagesPlanned.WithLabelValues("false").Inc()
	return PlanStagesResult{
		Stages:       stages,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		Model:        usage.Model,
		Provider:     usage.Provider,
	}, nil
}

func fallbackStageName(i, total int) string {
	switch {
	case i == 0:
		return "Initial Exploration"
	case i == total-1 && total > 1:
		return "Synthesis & Implications"
	default:
		return fmt.Sprintf("Deep Dive %d", i)
	}
}

// fallbackStages builds the deterministic degraded plan: named stages with
// empty trees. The ladder synthesizes them with no findings, which keeps the
// pipeline moving to a (degraded) final report.
func fallbackStages(cfg research.Configuration) []research.Stage {
	stages := make([]research.Stage, cfg.StageCount)
	for i := range stages {
		stages[i] = research.Stage{
			ID:          i,
			Name:        fallbackStageName(i, cfg.StageCount),
			Description: "Generated by the fallback planner after a generation failure.",
		}
	}
	return stages
}
