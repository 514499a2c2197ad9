package activities

import (
	"go.uber.org/zap"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/search"
)

// Activities holds the external dependencies shared by all activity
// implementations: the web search provider, the generation client, and the
// service logger.
type Activities struct {
	search search.Provider
	llm    *llm.Client
	logger *zap.Logger
}

// NewActivities creates a new activities instance with dependencies.
func NewActivities(searcher search.Provider, client *llm.Client, logger *zap.Logger) *Activities {
	return &Activities{
		search: searcher,
		llm:    client,
		logger: logger,
	}
}

// truncateStr shortens s for log fields.
func truncateStr(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
