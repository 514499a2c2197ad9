package research

// Rung identifies which step of the per-stage ladder runs next. The rungs are
// mutually exclusive and checked in order on every invocation, so each call
// does a bounded amount of work (at most MaxBreadth external operations) and
// the ladder always makes forward progress.
type Rung int

const (
	// RungResearchInitial: depth-0 nodes remain unresearched.
	RungResearchInitial Rung = iota
	// RungExpand: every current node is researched and the tree can grow one
	// more depth level of follow-up queries.
	RungExpand
	// RungResearchDeeper: follow-up nodes at depth > 0 remain unresearched.
	RungResearchDeeper
	// RungSynthesize: every node is researched and no analysis exists yet.
	RungSynthesize
	// RungDone: the stage already has its analysis.
	RungDone
)

func (r Rung) String() string {
	switch r {
	case RungResearchInitial:
		return "research_initial"
	case RungExpand:
		return "expand"
	case RungResearchDeeper:
		return "research_deeper"
	case RungSynthesize:
		return "synthesize"
	case RungDone:
		return "done"
	}
	return "unknown"
}

// unresearched reports whether a node still needs a research pass. A node that
// was attempted but came back empty counts as researched; without that, a
// persistently empty node would be re-selected on every tick and the stage
// would never finish.
func unresearched(n *ReasoningNode) bool {
	return !n.Attempted && len(n.Findings) == 0
}

// NextRung picks the ladder rung for a stage under the given configuration.
func NextRung(stage *Stage, cfg Configuration) Rung {
	if stage.AnalysisComplete {
		return RungDone
	}
	tree := &stage.ReasoningTree
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.Depth == 0 && unresearched(n) {
			return RungResearchInitial
		}
	}
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if n.Depth > 0 && unresearched(n) {
			return RungResearchDeeper
		}
	}
	if tree.MaxNodeDepth() < cfg.MaxDepth-1 && len(tree.Nodes) > 0 {
		return RungExpand
	}
	return RungSynthesize
}

// Frontier returns up to limit node IDs that still need research at the given
// depth band. depthZero selects depth-0 nodes; otherwise depth > 0 nodes.
func Frontier(stage *Stage, depthZero bool, limit int) []string {
	var ids []string
	tree := &stage.ReasoningTree
	for i := range tree.Nodes {
		n := &tree.Nodes[i]
		if !unresearched(n) {
			continue
		}
		if depthZero != (n.Depth == 0) {
			continue
		}
		ids = append(ids, n.ID)
		if len(ids) >= limit {
			break
		}
	}
	return ids
}

// AppendNodes appends follow-up nodes and records child links on each node's
// parent. The tree is append-only: existing nodes are never removed or
// re-parented.
func AppendNodes(stage *Stage, nodes []ReasoningNode) {
	tree := &stage.ReasoningTree
	for i := range nodes {
		if parent := tree.NodeByID(nodes[i].ParentID); parent != nil {
			parent.Children = append(parent.Children, nodes[i].ID)
		}
		tree.Nodes = append(tree.Nodes, nodes[i])
	}
}
