package constants

// Activity names used for workflow registration and execution.
// Using constants eliminates magic strings and ensures consistency.
const (
	// Planning
	PlanStagesActivity = "PlanStages"

	// Reasoning tree
	ResearchNodesActivity     = "ResearchNodes"
	GenerateFollowUpsActivity = "GenerateFollowUps"
	SynthesizeStageActivity   = "SynthesizeStage"

	// Reporting
	AssembleReportActivity = "AssembleReport"

	// Streaming / audit
	EmitProgressActivity     = "EmitProgress"
	RecordTokenUsageActivity = "RecordTokenUsage"
)

// TaskQueue is the Temporal task queue for research sessions.
const TaskQueue = "fathom-research"

// DeepResearchWorkflowName is the registered workflow type.
const DeepResearchWorkflowName = "DeepResearchWorkflow"
