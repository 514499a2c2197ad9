package workflows

import "github.com/fathomlabs/fathom/internal/research"

// ResearchInput is the session request from the submitting layer.
type ResearchInput struct {
	Topic   string                 `json:"topic"`
	Context string                 `json:"context,omitempty"`
	Config  research.Configuration `json:"configuration"`
}

// ResearchResult is the terminal output of a research session.
type ResearchResult struct {
	FinalReport  string  `json:"final_report,omitempty"`
	DraftReport  string  `json:"draft_report,omitempty"`
	Success      bool    `json:"success"`
	ErrorMessage string  `json:"error_message,omitempty"`
	FallbackUsed bool    `json:"fallback_used,omitempty"`
	StageCount   int     `json:"stage_count"`
	TokensUsed   int     `json:"tokens_used"`
	CostUSD      float64 `json:"cost_usd"`
}
