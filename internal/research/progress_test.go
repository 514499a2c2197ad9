package research

import (
	"fmt"
	"testing"
)

// Walks a whole run through its observable states and checks that the percent
// never decreases and never exceeds 95 before the terminal transition.
func TestEstimateMonotonic(t *testing.T) {
	cfg := Configuration{MaxDepth: 2, MaxBreadth: 3, StageCount: 2, QueriesPerStage: 3}
	s := &Session{ID: "sess", Topic: "topic", Config: cfg}

	last := -1
	record := func(label string, action Action) int {
		pct, step := Estimate(s, action)
		if pct < last {
			t.Fatalf("%s: percent regressed from %d to %d", label, last, pct)
		}
		if action != ActionComplete && action != ActionFinish && pct > 95 {
			t.Fatalf("%s: percent %d exceeds 95 before completion (%s)", label, pct, step)
		}
		last = pct
		return pct
	}

	record("initial", ActionPlanStages)

	s.StagingComplete = true
	s.Stages = []Stage{{ID: 0, Name: "Background"}, {ID: 1, Name: "Current State"}}
	record("announced", ActionAnnounceStages)

	for stage := 0; stage < 2; stage++ {
		s.CurrentStage = stage
		st := s.ActiveStage()

		for i := 0; i < cfg.QueriesPerStage; i++ {
			st.ReasoningTree.Nodes = append(st.ReasoningTree.Nodes,
				ReasoningNode{ID: fmt.Sprintf("s%d-root-%d", stage, i), Depth: 0})
			record("root created", ActionBuildTree)
		}
		for i := range st.ReasoningTree.Nodes {
			st.ReasoningTree.Nodes[i].Attempted = true
			st.ReasoningTree.Nodes[i].Findings = []Finding{{Source: fmt.Sprintf("https://x.example/%d/%d", stage, i)}}
			record("root researched", ActionBuildTree)
		}
		for i := 0; i < cfg.MaxBreadth; i++ {
			st.ReasoningTree.Nodes = append(st.ReasoningTree.Nodes,
				ReasoningNode{ID: fmt.Sprintf("s%d-deep-%d", stage, i), Depth: 1, Attempted: true})
			record("follow-up researched", ActionBuildTree)
		}
		st.Analysis = "stage analysis"
		st.AnalysisComplete = true
		st.ReasoningComplete = true
		record("stage done", ActionBuildTree)
	}

	reporting := record("reporting", ActionAssembleReport)
	if reporting != 97 {
		t.Errorf("reporting percent = %d, want 97", reporting)
	}

	s.FinalReport = "# Report"
	done := record("finish", ActionFinish)
	if done != 100 {
		t.Errorf("final percent = %d, want 100", done)
	}
}

func TestEstimateInitialState(t *testing.T) {
	s := &Session{Config: DefaultConfiguration()}
	pct, step := Estimate(s, ActionPlanStages)
	if pct != 5 {
		t.Errorf("initial percent = %d, want 5", pct)
	}
	if step != "Initializing research..." {
		t.Errorf("initial step = %q", step)
	}
}

func TestEstimateStepDescriptions(t *testing.T) {
	s := &Session{
		Config:          DefaultConfiguration(),
		StagingComplete: true,
		StagesAnnounced: true,
		Stages:          []Stage{{ID: 0, Name: "Background"}},
	}
	_, step := Estimate(s, ActionBuildTree)
	if step != "Researching: Background" {
		t.Errorf("step = %q", step)
	}

	s.Stages[0].AnalysisComplete = true
	_, step = Estimate(s, ActionBuildTree)
	if step != "Completed: Background" {
		t.Errorf("step after analysis = %q", step)
	}

	pct, step := Estimate(s, ActionComplete)
	if pct != 100 || step != "Research complete" {
		t.Errorf("terminal estimate = %d %q", pct, step)
	}
}
