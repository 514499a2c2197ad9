package activities

import (
	"context"
	"fmt"
	"sync"

	"go.temporal.io/sdk/activity"
	"golang.org/x/sync/errgroup"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/metrics"
	"github.com/fathomlabs/fathom/internal/research"
	"github.com/fathomlabs/fathom/internal/search"
)

// maxExcerptLen bounds the stored content excerpt per finding.
const maxExcerptLen = 2000

// ResearchNodesInput asks for a research pass over a batch of frontier nodes.
// Stage and Dedup are read-only snapshots; the workflow merges the returned
// nodes and dedup delta after the activity settles.
type ResearchNodesInput struct {
	SessionID string                 `json:"session_id"`
	Topic     string                 `json:"topic"`
	Stage     research.Stage         `json:"stage"`
	NodeIDs   []string               `json:"node_ids"`
	Config    research.Configuration `json:"config"`
	Dedup     research.DedupCache    `json:"dedup"`
}

// ResearchNodesResult returns the researched nodes and the dedup delta.
type ResearchNodesResult struct {
	Nodes        []research.ReasoningNode `json:"nodes"`
	DedupDelta   research.DedupCache      `json:"dedup_delta"`
	InputTokens  int                      `json:"input_tokens"`
	OutputTokens int                      `json:"output_tokens"`
	Model        string                   `json:"model,omitempty"`
	Provider     string                   `json:"provider,omitempty"`
}

// pendingAnalysis is one queued fresh-analysis call.
type pendingAnalysis struct {
	nodeIdx    int
	findingIdx int
	result     search.Result
	query      string
}

// ResearchNodes researches up to the configured breadth of nodes in one call.
// Per node: search, walk raw results against the dedup cache (cached analysis
// is reused and counts toward quota, visited-but-uncached URLs are skipped,
// new URLs are claimed and queued), then run the queued analyses concurrently.
// A total search failure leaves the node attempted with empty findings; the
// engine never fabricates findings.
func (a *Activities) ResearchNodes(ctx context.Context, in ResearchNodesInput) (ResearchNodesResult, error) {
	logger := activity.GetLogger(ctx)
	cfg := in.Config.Normalize()
	logger.Info("ResearchNodes: starting",
		"stage", in.Stage.Name,
		"nodes", len(in.NodeIDs),
	)

	nodes := make([]research.ReasoningNode, 0, len(in.NodeIDs))
	for _, id := range in.NodeIDs {
		if n := in.Stage.ReasoningTree.NodeByID(id); n != nil {
			nodes = append(nodes, *n)
		}
	}

	// Phase 1: fan out searches. Provider errors degrade to empty result sets.
	rawResults := make([][]search.Result, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	for i := range nodes {
		g.Go(func() error {
			query := fmt.Sprintf("%s %s", in.Topic, nodes[i].Query)
			results, err := a.search.Search(gctx, query, 2*cfg.MaxBreadth)
			if err != nil {
				logger.Warn("ResearchNodes: search failed, degrading to empty results",
					"node", nodes[i].ID,
					"error", err,
				)
				metrics.SearchFailures.Inc()
				return nil
			}
			rawResults[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ResearchNodesResult{}, err
	}

	// Phase 2: walk results in node order against the cache snapshot so the
	// claimed set is deterministic and no source appears under two nodes.
	// stageSources covers findings already attached anywhere in the stage:
	// a URL may be analysis-cached yet unattached (a retried step whose
	// write-back was lost), in which case the cached analysis is reused.
	delta := research.NewDedupCache()
	claimed := make(map[string]bool)
	stageSources := make(map[string]bool)
	for i := range in.Stage.ReasoningTree.Nodes {
		for _, f := range in.Stage.ReasoningTree.Nodes[i].Findings {
			stageSources[f.Source] = true
		}
	}
	visited := func(url string) bool {
		return claimed[url] || in.Dedup.SearchedURLs[url]
	}

	var queue []pendingAnalysis
	for i := range nodes {
		node := &nodes[i]
		node.Attempted = true
		for _, r := range rawResults[i] {
			if len(node.Findings) >= cfg.MaxBreadth {
				break
			}
			if r.URL == "" {
				continue
			}
			if analysis, ok := in.Dedup.AnalysisCache[r.URL]; ok && !stageSources[r.URL] && !claimed[r.URL] {
				metrics.SearchDedupHits.WithLabelValues("cached_analysis").Inc()
				claimed[r.URL] = true
				delta.SearchedURLs[r.URL] = true
				node.Findings = append(node.Findings, newFinding(r, analysis))
				continue
			}
			if visited(r.URL) || stageSources[r.URL] {
				metrics.SearchDedupHits.WithLabelValues("skipped").Inc()
				continue
			}
			claimed[r.URL] = true
			delta.SearchedURLs[r.URL] = true
			node.Findings = append(node.Findings, newFinding(r, ""))
			queue = append(queue, pendingAnalysis{
				nodeIdx:    i,
				findingIdx: len(node.Findings) - 1,
				result:     r,
				query:      node.Query,
			})
		}
		metrics.NodesResearched.Inc()
	}

	// Phase 3: fan out fresh analyses and cache them by URL.
	var mu sync.Mutex
	var res ResearchNodesResult
	ag, agctx := errgroup.WithContext(ctx)
	ag.SetLimit(cfg.MaxBreadth)
	for _, p := range queue {
		ag.Go(func() error {
			out, err := a.llm.GenerateText(agctx, llm.Request{
				Prompt:       buildResultAnalysisContent(in.Topic, p.query, p.result.URL, p.result.Title, excerpt(p.result.Text)),
				SystemPrompt: resultAnalysisSystemPrompt,
				AgentID:      "result-analyst",
				Temperature:  0.2,
				SessionID:    in.SessionID,
			})
			if err != nil {
				// The finding keeps its raw excerpt; only the analysis is lost.
				logger.Warn("ResearchNodes: analysis failed",
					"url", p.result.URL,
					"error", err,
				)
				return nil
			}
			mu.Lock()
			nodes[p.nodeIdx].Findings[p.findingIdx].Analysis = out.Text
			delta.AnalysisCache[p.result.URL] = out.Text
			res.InputTokens += out.Usage.InputTokens
			res.OutputTokens += out.Usage.OutputTokens
			res.Model = out.Usage.Model
			res.Provider = out.Usage.Provider
			mu.Unlock()
			return nil
		})
	}
	if err := ag.Wait(); err != nil {
		return ResearchNodesResult{}, err
	}

	res.Nodes = nodes
	res.DedupDelta = delta
	return res, nil
}

func newFinding(r search.Result, analysis string) research.Finding {
	return research.Finding{
		Source:        r.URL,
		Title:         r.Title,
		Content:       excerpt(r.Text),
		Analysis:      analysis,
		Author:        r.Author,
		PublishedDate: r.PublishedDate,
		Favicon:       r.Favicon,
		Image:         r.Image,
	}
}

func excerpt(s string) string {
	if len(s) <= maxExcerptLen {
		return s
	}
	return s[:maxExcerptLen]
}
