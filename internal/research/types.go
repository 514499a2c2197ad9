package research

import "time"

// Configuration bounds the size of a research run. All work sizes (node
// counts per expansion, search fan-out, stage counts) derive from it.
type Configuration struct {
	MaxDepth        int `json:"max_depth"`
	MaxBreadth      int `json:"max_breadth"`
	StageCount      int `json:"stage_count"`
	QueriesPerStage int `json:"queries_per_stage"`
}

// DefaultConfiguration is used when a request omits the configuration block.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxDepth:        2,
		MaxBreadth:      3,
		StageCount:      3,
		QueriesPerStage: 3,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Normalize clamps every field into its allowed range. Zero values fall back
// to the defaults so a partially specified request still yields a usable run.
func (c Configuration) Normalize() Configuration {
	def := DefaultConfiguration()
	if c.MaxDepth == 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.MaxBreadth == 0 {
		c.MaxBreadth = def.MaxBreadth
	}
	if c.StageCount == 0 {
		c.StageCount = def.StageCount
	}
	if c.QueriesPerStage == 0 {
		c.QueriesPerStage = def.QueriesPerStage
	}
	c.MaxDepth = clampInt(c.MaxDepth, 1, 3)
	c.MaxBreadth = clampInt(c.MaxBreadth, 2, 5)
	c.StageCount = clampInt(c.StageCount, 1, 5)
	c.QueriesPerStage = clampInt(c.QueriesPerStage, 1, 5)
	return c
}

// Finding is one analyzed search result attached to a reasoning node.
// Immutable after creation; Source is the unique key within a node's result set.
type Finding struct {
	Source        string `json:"source"`
	Title         string `json:"title,omitempty"`
	Content       string `json:"content"`
	Analysis      string `json:"analysis,omitempty"`
	Author        string `json:"author,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
	Favicon       string `json:"favicon,omitempty"`
	Image         string `json:"image,omitempty"`
}

// ReasoningNode is one query in a stage's expansion tree. Depth 0 nodes come
// from the stage planner; deeper nodes are follow-ups generated from findings.
type ReasoningNode struct {
	ID        string    `json:"id"`
	ParentID  string    `json:"parent_id,omitempty"`
	Depth     int       `json:"depth"`
	Query     string    `json:"query"`
	Reasoning string    `json:"reasoning,omitempty"`
	Findings  []Finding `json:"findings,omitempty"`
	// Attempted distinguishes "never researched" from "researched, provider
	// returned nothing" so an empty-result node is not re-selected forever.
	Attempted  bool     `json:"attempted"`
	Reflection string   `json:"reflection,omitempty"`
	Children   []string `json:"children,omitempty"`
}

// ReasoningTree is the append-only node list for one stage.
type ReasoningTree struct {
	Nodes []ReasoningNode `json:"nodes"`
}

// NodeByID returns a pointer into the tree's backing array, or nil.
func (t *ReasoningTree) NodeByID(id string) *ReasoningNode {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i]
		}
	}
	return nil
}

// MaxNodeDepth returns the deepest depth present in the tree, or -1 when empty.
func (t *ReasoningTree) MaxNodeDepth() int {
	max := -1
	for i := range t.Nodes {
		if t.Nodes[i].Depth > max {
			max = t.Nodes[i].Depth
		}
	}
	return max
}

// AllFindings returns every finding in node order. Used to build stage-scoped
// citation maps, so the ordering must be deterministic.
func (t *ReasoningTree) AllFindings() []Finding {
	var out []Finding
	for i := range t.Nodes {
		out = append(out, t.Nodes[i].Findings...)
	}
	return out
}

// Stage is one phase of research with its own reasoning tree and analysis.
// Created once by the stage planner; mutated only while it is the active
// stage; immutable once AnalysisComplete.
type Stage struct {
	ID                int           `json:"id"`
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	ReasoningTree     ReasoningTree `json:"reasoning_tree"`
	ReasoningComplete bool          `json:"reasoning_complete"`
	AnalysisComplete  bool          `json:"analysis_complete"`
	Analysis          string        `json:"analysis,omitempty"`
}

// DedupCache is the stage-scoped memory of visited URLs and their analyses.
// Reset at the start of every new stage, never shared across stages.
type DedupCache struct {
	SearchedURLs  map[string]bool   `json:"searched_urls"`
	AnalysisCache map[string]string `json:"analysis_cache"`
}

// NewDedupCache returns an empty cache with allocated maps.
func NewDedupCache() DedupCache {
	return DedupCache{
		SearchedURLs:  make(map[string]bool),
		AnalysisCache: make(map[string]string),
	}
}

// Merge folds another cache's entries in. The node researcher returns a delta
// cache from its fan-in; the workflow merges it after the step settles.
func (d *DedupCache) Merge(other DedupCache) {
	if d.SearchedURLs == nil {
		d.SearchedURLs = make(map[string]bool)
	}
	if d.AnalysisCache == nil {
		d.AnalysisCache = make(map[string]string)
	}
	for u := range other.SearchedURLs {
		d.SearchedURLs[u] = true
	}
	for u, a := range other.AnalysisCache {
		d.AnalysisCache[u] = a
	}
}

// TokenUsageEntry is one append-only audit record for a single provider call.
type TokenUsageEntry struct {
	Agent        string    `json:"agent"`
	Model        string    `json:"model,omitempty"`
	Provider     string    `json:"provider,omitempty"`
	StageID      int       `json:"stage_id"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// TokenLedger aggregates token usage across a session. Purely observational:
// it never affects control flow.
type TokenLedger struct {
	Entries      []TokenUsageEntry `json:"entries,omitempty"`
	TotalTokens  int               `json:"total_tokens"`
	TotalCostUSD float64           `json:"total_cost_usd"`
	PerStage     map[int]int       `json:"per_stage,omitempty"`
}

// Append records an entry and updates the rollups.
func (l *TokenLedger) Append(e TokenUsageEntry) {
	l.Entries = append(l.Entries, e)
	l.TotalTokens += e.InputTokens + e.OutputTokens
	l.TotalCostUSD += e.CostUSD
	if l.PerStage == nil {
		l.PerStage = make(map[int]int)
	}
	l.PerStage[e.StageID] += e.InputTokens + e.OutputTokens
}

// Session is the full state of one deep-research run. It is owned by the
// workflow goroutine: activities receive snapshots and return deltas, and the
// workflow replaces the session atomically at the end of each step.
type Session struct {
	ID               string        `json:"id"`
	Topic            string        `json:"topic"`
	Context          string        `json:"context,omitempty"`
	Config           Configuration `json:"config"`
	Stages           []Stage       `json:"stages"`
	CurrentStage     int           `json:"current_stage"`
	StagingComplete  bool          `json:"staging_complete"`
	StagesAnnounced  bool          `json:"stages_announced"`
	NetworkComplete  bool          `json:"network_complete"`
	FallbackUsed     bool          `json:"fallback_used,omitempty"`
	DraftReport      string        `json:"draft_report,omitempty"`
	FinalReport      string        `json:"final_report,omitempty"`
	Citations        map[string]int `json:"citations,omitempty"`
	Dedup            DedupCache    `json:"dedup"`
	Tokens           TokenLedger   `json:"tokens"`
}

// ActiveStage returns the current stage, or nil when the index is invalid.
func (s *Session) ActiveStage() *Stage {
	if s.CurrentStage < 0 || s.CurrentStage >= len(s.Stages) {
		return nil
	}
	return &s.Stages[s.CurrentStage]
}
