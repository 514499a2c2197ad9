package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"github.com/fathomlabs/fathom/internal/metrics"
	"github.com/fathomlabs/fathom/internal/pricing"
	"github.com/fathomlabs/fathom/internal/research"
)

// TokenUsageInput records one generation call's consumption.
type TokenUsageInput struct {
	SessionID    string `json:"session_id"`
	Agent        string `json:"agent"`
	StageID      int    `json:"stage_id"`
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// RecordTokenUsage prices the call and returns the ledger entry. The workflow
// appends it to the session's ledger so the session stays single-writer; this
// activity only computes cost and updates process metrics.
func RecordTokenUsage(ctx context.Context, in TokenUsageInput) (research.TokenUsageEntry, error) {
	logger := activity.GetLogger(ctx)

	cost := pricing.CostForSplit(in.Model, in.InputTokens, in.OutputTokens)
	entry := research.TokenUsageEntry{
		Agent:        in.Agent,
		Model:        in.Model,
		Provider:     in.Provider,
		StageID:      in.StageID,
		InputTokens:  in.InputTokens,
		OutputTokens: in.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now().UTC(),
	}

	metrics.TokensUsed.WithLabelValues(in.Agent).Add(float64(in.InputTokens + in.OutputTokens))
	metrics.CostUSD.Add(cost)

	logger.Debug("Recorded token usage",
		"agent", in.Agent,
		"tokens", in.InputTokens+in.OutputTokens,
		"cost_usd", cost,
	)
	return entry, nil
}
