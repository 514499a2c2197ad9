package activities

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/metrics"
	"github.com/fathomlabs/fathom/internal/research"
)

// SynthesizeStageInput asks for the stage's final analysis narrative.
type SynthesizeStageInput struct {
	SessionID string         `json:"session_id"`
	Topic     string         `json:"topic"`
	Stage     research.Stage `json:"stage"`
}

// SynthesizeStageResult returns the analysis text and its citation map.
type SynthesizeStageResult struct {
	Analysis     string         `json:"analysis"`
	Citations    map[string]int `json:"citations"`
	FallbackUsed bool           `json:"fallback_used"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Model        string         `json:"model,omitempty"`
	Provider     string         `json:"provider,omitempty"`
}

// SynthesizeStage builds the stage-scoped citation map over all findings in
// first-appearance order and generates a multi-paragraph analysis that cites
// inline with bracketed numbers and ends with a references block matching the
// map. Zero findings (empty trees, total search failure) produce a short
// degraded analysis rather than an error.
func (a *Activities) SynthesizeStage(ctx context.Context, in SynthesizeStageInput) (SynthesizeStageResult, error) {
	logger := activity.GetLogger(ctx)

	findings := in.Stage.ReasoningTree.AllFindings()
	unique := research.CollectUniqueSources(findings)
	numbers := research.AssignCitationNumbers(unique)
	references := research.FormatReferenceList(unique)

	logger.Info("SynthesizeStage: starting",
		"stage", in.Stage.Name,
		"findings", len(findings),
		"unique_sources", len(unique),
	)

	if len(unique) == 0 {
		metrics.StageAnalysesCompleted.Inc()
		return SynthesizeStageResult{
			Analysis: fmt.Sprintf(
				"No sources could be gathered for the stage %q. This stage contributes no findings to the final report.",
				in.Stage.Name,
			),
			Citations:    map[string]int{},
			FallbackUsed: true,
		}, nil
	}

	numbered := make([]string, 0, len(unique))
	for _, f := range unique {
		summary := f.Analysis
		if summary == "" {
			summary = truncateStr(f.Content, 500)
		}
		numbered = append(numbered, fmt.Sprintf("[%d] %s — %s", numbers[f.Source], f.Source, summary))
	}

	out, err := a.llm.GenerateText(ctx, llm.Request{
		Prompt:       buildStageSynthesisContent(in.Topic, &in.Stage, numbered, references),
		SystemPrompt: stageSynthesisSystemPrompt,
		AgentID:      "stage-synthesizer",
		ModelTier:    "medium",
		MaxTokens:    8192,
		Temperature:  0.3,
		SessionID:    in.SessionID,
	})

	res := SynthesizeStageResult{
		Citations:    numbers,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		Model:        out.Usage.Model,
		Provider:     out.Usage.Provider,
	}
	if err != nil {
		logger.Warn("SynthesizeStage: generation failed, using template analysis", "error", err)
		res.FallbackUsed = true
		res.Analysis = fallbackStageAnalysis(&in.Stage, numbered, references)
		metrics.StageAnalysesCompleted.Inc()
		return res, nil
	}

	analysis := out.Text
	// The model is instructed to end with the reference block; append it when
	// the instruction was ignored so the numbering always resolves.
	if !strings.Contains(analysis, "References") {
		analysis = analysis + "\n\nReferences\n" + references
	}
	res.Analysis = analysis
	metrics.StageAnalysesCompleted.Inc()
	return res, nil
}

func fallbackStageAnalysis(stage *research.Stage, numbered []string, references string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Narrative generation was unavailable for the stage %q. The stage gathered %d sources; their individual analyses follow.\n\n", stage.Name, len(numbered))
	for _, line := range numbered {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nReferences\n")
	b.WriteString(references)
	return b.String()
}
