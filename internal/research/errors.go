package research

import "errors"

// Fatal session errors. The router maps these to a terminal error state;
// everything else degrades in place (empty findings, templated fallbacks).
var (
	// ErrConfigurationMissing means a component needed the run configuration
	// and none was present on the session.
	ErrConfigurationMissing = errors.New("research: configuration missing")

	// ErrStageIndexInvalid means CurrentStage points outside the stage list.
	ErrStageIndexInvalid = errors.New("research: current stage index out of range")

	// ErrTreeUninitialized means a stage reached the reasoning phase without
	// any depth-0 nodes to research.
	ErrTreeUninitialized = errors.New("research: reasoning tree has no initial nodes")

	// ErrNoStageAnalyses means report assembly ran before any stage produced
	// an analysis.
	ErrNoStageAnalyses = errors.New("research: no stage analyses available for report")
)
