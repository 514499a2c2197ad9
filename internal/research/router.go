package research

// Action is the router's decision about which component runs next.
type Action int

const (
	// ActionComplete: the session already reached its terminal state; emit the
	// final complete event and halt.
	ActionComplete Action = iota
	// ActionPlanStages: staging has not run yet; dispatch the stage planner.
	ActionPlanStages
	// ActionAnnounceStages: staging just finished; emit the stage list event,
	// then begin reasoning on stage 0.
	ActionAnnounceStages
	// ActionBuildTree: advance the current stage's reasoning tree one rung.
	ActionBuildTree
	// ActionAdvanceStage: the current stage is done and more stages remain;
	// move to the next stage and begin its reasoning.
	ActionAdvanceStage
	// ActionAssembleReport: all stages are done and no final report exists.
	ActionAssembleReport
	// ActionFinish: the final report exists; mark the network complete.
	ActionFinish
	// ActionFatal: unrecoverable state (bad stage index); halt with error.
	ActionFatal
)

func (a Action) String() string {
	switch a {
	case ActionComplete:
		return "complete"
	case ActionPlanStages:
		return "plan_stages"
	case ActionAnnounceStages:
		return "announce_stages"
	case ActionBuildTree:
		return "build_tree"
	case ActionAdvanceStage:
		return "advance_stage"
	case ActionAssembleReport:
		return "assemble_report"
	case ActionFinish:
		return "finish"
	case ActionFatal:
		return "fatal"
	}
	return "unknown"
}

// Route derives the next action purely from session state. It stores no "next
// step" pointer: calling it again with unchanged state re-derives the same
// decision, which is what lets the durable scheduler retry a step safely.
//
// The checks run in strict order; earlier conditions win.
func Route(s *Session) Action {
	if s.NetworkComplete {
		return ActionComplete
	}
	if !s.StagingComplete {
		return ActionPlanStages
	}
	if !s.StagesAnnounced {
		return ActionAnnounceStages
	}
	stage := s.ActiveStage()
	if stage == nil {
		return ActionFatal
	}
	if !stage.ReasoningComplete {
		return ActionBuildTree
	}
	if s.CurrentStage < len(s.Stages)-1 {
		return ActionAdvanceStage
	}
	if s.FinalReport == "" {
		return ActionAssembleReport
	}
	return ActionFinish
}
