package research

import "math"

// Progress points for the fixed phases. Stage work fills the 5..95 band; the
// report phase reports 97 and only the terminal event reports 100.
const (
	progressInit      = 5
	progressStageSpan = 90
	progressReporting = 97
	progressCeiling   = 95
	progressDone      = 100
)

// Estimate derives a percent and human-readable step description purely from
// session state and the action about to run. Successive estimates for a
// session are non-decreasing and stay at or below 95 until the terminal
// complete event fires.
func Estimate(s *Session, action Action) (int, string) {
	switch action {
	case ActionComplete, ActionFinish:
		return progressDone, "Research complete"
	case ActionAssembleReport:
		return progressReporting, "Generating final report..."
	}
	if len(s.Stages) == 0 {
		return progressInit, "Initializing research..."
	}

	stageWeight := float64(progressStageSpan) / float64(len(s.Stages))
	base := float64(progressInit) + float64(s.CurrentStage)*stageWeight

	stage := s.ActiveStage()
	if stage == nil {
		return int(math.Min(base, progressCeiling)), "Researching..."
	}

	expected := s.Config.QueriesPerStage
	if s.Config.MaxDepth > 1 {
		expected += s.Config.MaxBreadth
	}
	if expected == 0 {
		expected = 1
	}

	created := len(stage.ReasoningTree.Nodes)
	researched := 0
	for i := range stage.ReasoningTree.Nodes {
		n := &stage.ReasoningTree.Nodes[i]
		if n.Attempted || len(n.Findings) > 0 {
			researched++
		}
	}
	frac := func(n int) float64 {
		f := float64(n) / float64(expected)
		if f > 1 {
			f = 1
		}
		return f
	}

	within := 0.2*stageWeight*frac(created) + 0.6*stageWeight*frac(researched)
	if stage.AnalysisComplete {
		within += 0.2 * stageWeight
	}

	pct := math.Min(base+within, progressCeiling)

	step := "Researching: " + stage.Name
	if stage.AnalysisComplete {
		step = "Completed: " + stage.Name
	}
	return int(pct), step
}
