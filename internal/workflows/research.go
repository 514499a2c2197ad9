package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/fathomlabs/fathom/internal/activities"
	"github.com/fathomlabs/fathom/internal/constants"
	"github.com/fathomlabs/fathom/internal/research"
	"github.com/fathomlabs/fathom/internal/streaming"
)

// maxTicks caps the router loop. The ladder guarantees forward progress, so
// the bound is never reached in practice; it exists to keep a logic bug from
// growing an unbounded workflow history.
const maxTicks = 512

// DeepResearchWorkflow drives one research session to its terminal state. It
// owns the Session value: every loop tick derives the next component from
// session state alone, runs exactly one activity, merges the returned delta,
// and emits a progress event. Re-running a tick after a retry re-derives the
// same decision, which is what makes the loop safe under at-least-once
// execution.
func DeepResearchWorkflow(ctx workflow.Context, input ResearchInput) (ResearchResult, error) {
	logger := workflow.GetLogger(ctx)
	if input.Topic == "" {
		return ResearchResult{Success: false, ErrorMessage: "topic is required"},
			temporal.NewNonRetryableApplicationError("topic is required", "InvalidArgument", nil)
	}

	cfg := input.Config.Normalize()
	logger.Info("Starting DeepResearchWorkflow",
		"topic", input.Topic,
		"stage_count", cfg.StageCount,
		"max_depth", cfg.MaxDepth,
		"max_breadth", cfg.MaxBreadth,
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 8 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	session := research.Session{
		ID:      workflow.GetInfo(ctx).WorkflowExecution.ID,
		Topic:   input.Topic,
		Context: input.Context,
		Config:  cfg,
		Dedup:   research.NewDedupCache(),
	}

	for tick := 0; tick < maxTicks; tick++ {
		action := research.Route(&session)

		switch action {
		case research.ActionComplete:
			emitComplete(ctx, &session)
			return resultOf(&session, true, ""), nil

		case research.ActionPlanStages:
			emitProgress(ctx, &session, action, "staging")
			var planned activities.PlanStagesResult
			err := workflow.ExecuteActivity(ctx, constants.PlanStagesActivity, activities.PlanStagesInput{
				SessionID: session.ID,
				Topic:     session.Topic,
				Context:   session.Context,
				Config:    session.Config,
			}).Get(ctx, &planned)
			if err != nil {
				return fail(ctx, &session, fmt.Sprintf("stage planning failed: %v", err), err)
			}
			session.Stages = planned.Stages
			session.StagingComplete = true
			session.CurrentStage = 0
			session.FallbackUsed = planned.FallbackUsed
			recordTokens(ctx, &session, "stage-planner", planned.Model, planned.Provider,
				planned.InputTokens, planned.OutputTokens)

		case research.ActionAnnounceStages:
			summaries := make([]streaming.StageSummary, len(session.Stages))
			for i, st := range session.Stages {
				summaries[i] = streaming.StageSummary{ID: st.ID, Name: st.Name, Description: st.Description}
			}
			pct, step := research.Estimate(&session, action)
			emit(ctx, activities.EmitProgressInput{
				SessionID: session.ID,
				EventType: streaming.TypeProgress,
				Message:   fmt.Sprintf("Planned %d research stages", len(session.Stages)),
				Timestamp: workflow.Now(ctx),
				Agent:     "stage-planner",
				Progress:  &streaming.Progress{Percent: pct, CurrentStep: step},
				Stages:    summaries,
			})
			session.StagesAnnounced = true

		case research.ActionBuildTree:
			if err := buildTreeTick(ctx, &session); err != nil {
				return fail(ctx, &session, err.Error(), err)
			}

		case research.ActionAdvanceStage:
			session.CurrentStage++
			// Dedup memory is stage-scoped; every stage starts clean.
			session.Dedup = research.NewDedupCache()

		case research.ActionAssembleReport:
			emitProgress(ctx, &session, action, "report-assembler")
			var report activities.AssembleReportResult
			err := workflow.ExecuteActivity(ctx, constants.AssembleReportActivity, activities.AssembleReportInput{
				SessionID: session.ID,
				Topic:     session.Topic,
				Stages:    session.Stages,
			}).Get(ctx, &report)
			if err != nil {
				return fail(ctx, &session, fmt.Sprintf("report assembly failed: %v", err), err)
			}
			session.DraftReport = report.DraftReport
			session.FinalReport = report.FinalReport
			session.Citations = report.Citations
			recordTokens(ctx, &session, "report-assembler", report.Model, report.Provider,
				report.InputTokens, report.OutputTokens)

		case research.ActionFinish:
			session.NetworkComplete = true

		case research.ActionFatal:
			err := research.ErrStageIndexInvalid
			return fail(ctx, &session, err.Error(), err)
		}
	}

	err := errors.New("research session exceeded maximum router ticks")
	return fail(ctx, &session, err.Error(), err)
}

// buildTreeTick advances the active stage's reasoning ladder by one rung.
func buildTreeTick(ctx workflow.Context, session *research.Session) error {
	logger := workflow.GetLogger(ctx)
	stage := session.ActiveStage()

	if session.Config == (research.Configuration{}) {
		return research.ErrConfigurationMissing
	}

	// An empty tree is fatal unless staging already degraded to the fallback
	// plan, whose stages legitimately carry no initial queries.
	if len(stage.ReasoningTree.Nodes) == 0 && !session.FallbackUsed {
		return research.ErrTreeUninitialized
	}

	rung := research.NextRung(stage, session.Config)
	logger.Info("Reasoning tick",
		"stage", stage.Name,
		"rung", rung.String(),
	)
	emitProgress(ctx, session, research.ActionBuildTree, "tree-builder")

	switch rung {
	case research.RungResearchInitial, research.RungResearchDeeper:
		ids := research.Frontier(stage, rung == research.RungResearchInitial, session.Config.MaxBreadth)
		var res activities.ResearchNodesResult
		err := workflow.ExecuteActivity(ctx, constants.ResearchNodesActivity, activities.ResearchNodesInput{
			SessionID: session.ID,
			Topic:     session.Topic,
			Stage:     *stage,
			NodeIDs:   ids,
			Config:    session.Config,
			Dedup:     session.Dedup,
		}).Get(ctx, &res)
		if err != nil {
			// Research retries exhausted: mark the frontier attempted so the
			// ladder moves on with empty findings instead of spinning.
			logger.Warn("Node research failed after retries, degrading to empty findings", "error", err)
			for _, id := range ids {
				if n := stage.ReasoningTree.NodeByID(id); n != nil {
					n.Attempted = true
				}
			}
			return nil
		}
		for i := range res.Nodes {
			if n := stage.ReasoningTree.NodeByID(res.Nodes[i].ID); n != nil {
				*n = res.Nodes[i]
			}
		}
		session.Dedup.Merge(res.DedupDelta)
		recordTokens(ctx, session, "result-analyst", res.Model, res.Provider,
			res.InputTokens, res.OutputTokens)

	case research.RungExpand:
		var res activities.GenerateFollowUpsResult
		err := workflow.ExecuteActivity(ctx, constants.GenerateFollowUpsActivity, activities.GenerateFollowUpsInput{
			SessionID: session.ID,
			Topic:     session.Topic,
			Stage:     *stage,
			Config:    session.Config,
		}).Get(ctx, &res)
		if err != nil {
			return fmt.Errorf("follow-up generation failed: %w", err)
		}
		research.AppendNodes(stage, res.Nodes)
		recordTokens(ctx, session, "followup-generator", res.Model, res.Provider,
			res.InputTokens, res.OutputTokens)

	case research.RungSynthesize:
		var res activities.SynthesizeStageResult
		err := workflow.ExecuteActivity(ctx, constants.SynthesizeStageActivity, activities.SynthesizeStageInput{
			SessionID: session.ID,
			Topic:     session.Topic,
			Stage:     *stage,
		}).Get(ctx, &res)
		if err != nil {
			return fmt.Errorf("stage synthesis failed: %w", err)
		}
		stage.Analysis = res.Analysis
		stage.ReasoningComplete = true
		stage.AnalysisComplete = true
		recordTokens(ctx, session, "stage-synthesizer", res.Model, res.Provider,
			res.InputTokens, res.OutputTokens)

		stageID := stage.ID
		emit(ctx, activities.EmitProgressInput{
			SessionID: session.ID,
			EventType: streaming.TypeProgress,
			Message:   fmt.Sprintf("Completed analysis for stage %q", stage.Name),
			Timestamp: workflow.Now(ctx),
			Stage:     &stageID,
			Agent:     "stage-synthesizer",
			Analysis:  res.Analysis,
			Tree:      treeSnapshot(stage),
		})

	case research.RungDone:
		// Route never selects a completed stage; nothing to do.
	}
	return nil
}

// emit runs the streaming activity fire-and-forget with a single attempt.
func emit(ctx workflow.Context, in activities.EmitProgressInput) {
	emitCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	_ = workflow.ExecuteActivity(emitCtx, constants.EmitProgressActivity, in).Get(emitCtx, nil)
}

// emitProgress publishes the estimator's percent/step for the pending action.
func emitProgress(ctx workflow.Context, session *research.Session, action research.Action, agent string) {
	pct, step := research.Estimate(session, action)
	in := activities.EmitProgressInput{
		SessionID: session.ID,
		EventType: streaming.TypeProgress,
		Message:   step,
		Timestamp: workflow.Now(ctx),
		Agent:     agent,
		Progress:  &streaming.Progress{Percent: pct, CurrentStep: step},
	}
	if stage := session.ActiveStage(); stage != nil && session.StagingComplete {
		stageID := stage.ID
		in.Stage = &stageID
		in.Tree = treeSnapshot(stage)
	}
	emit(ctx, in)
}

func emitComplete(ctx workflow.Context, session *research.Session) {
	pct, step := research.Estimate(session, research.ActionComplete)
	emit(ctx, activities.EmitProgressInput{
		SessionID: session.ID,
		EventType: streaming.TypeComplete,
		Message:   step,
		Timestamp: workflow.Now(ctx),
		Progress:  &streaming.Progress{Percent: pct, CurrentStep: step},
		Completed: true,
	})
}

// fail emits a terminal error event with the percent frozen at its last known
// value and returns the failure.
func fail(ctx workflow.Context, session *research.Session, msg string, err error) (ResearchResult, error) {
	pct, _ := research.Estimate(session, research.ActionBuildTree)
	emit(ctx, activities.EmitProgressInput{
		SessionID: session.ID,
		EventType: streaming.TypeError,
		Message:   msg,
		Timestamp: workflow.Now(ctx),
		Progress:  &streaming.Progress{Percent: pct, CurrentStep: msg},
		Completed: true,
	})
	return resultOf(session, false, msg), err
}

// recordTokens prices and appends one ledger entry. Recording is best-effort
// and never fails the session.
func recordTokens(ctx workflow.Context, session *research.Session, agent, model, provider string, in, out int) {
	if in == 0 && out == 0 {
		return
	}
	recCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	var entry research.TokenUsageEntry
	if err := workflow.ExecuteActivity(recCtx, constants.RecordTokenUsageActivity, activities.TokenUsageInput{
		SessionID:    session.ID,
		Agent:        agent,
		StageID:      session.CurrentStage,
		Model:        model,
		Provider:     provider,
		InputTokens:  in,
		OutputTokens: out,
	}).Get(recCtx, &entry); err != nil {
		return
	}
	session.Tokens.Append(entry)
}

func treeSnapshot(stage *research.Stage) *streaming.TreeSnapshot {
	snap := &streaming.TreeSnapshot{
		NodeCount: len(stage.ReasoningTree.Nodes),
	}
	for i := range stage.ReasoningTree.Nodes {
		n := &stage.ReasoningTree.Nodes[i]
		if n.Depth+1 > snap.MaxDepth {
			snap.MaxDepth = n.Depth + 1
		}
		if len(n.Findings) > 0 {
			snap.NodesWithFindings++
		}
	}
	return snap
}

func resultOf(session *research.Session, success bool, msg string) ResearchResult {
	return ResearchResult{
		FinalReport:  session.FinalReport,
		DraftReport:  session.DraftReport,
		Success:      success,
		ErrorMessage: msg,
		FallbackUsed: session.FallbackUsed,
		StageCount:   len(session.Stages),
		TokensUsed:   session.Tokens.TotalTokens,
		CostUSD:      session.Tokens.TotalCostUSD,
	}
}
