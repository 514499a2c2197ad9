package activities

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.temporal.io/sdk/activity"
	"golang.org/x/sync/errgroup"

	"github.com/fathomlabs/fathom/internal/llm"
	"github.com/fathomlabs/fathom/internal/metrics"
	"github.com/fathomlabs/fathom/internal/research"
)

// citationNumberPattern matches inline citations like [1], [2] with a capture
// group. Compiled once at package level.
var citationNumberPattern = regexp.MustCompile(`\[(\d+)\]`)

// Outline size bounds for the final report.
const (
	minReportSections = 3
	maxReportSections = 8
)

// AssembleReportInput carries everything the report pass needs.
type AssembleReportInput struct {
	SessionID string           `json:"session_id"`
	Topic     string           `json:"topic"`
	Stages    []research.Stage `json:"stages"`
}

// AssembleReportResult returns both the draft and the edited final report.
type AssembleReportResult struct {
	DraftReport  string         `json:"draft_report"`
	FinalReport  string         `json:"final_report"`
	Citations    map[string]int `json:"citations"`
	Warning      string         `json:"warning,omitempty"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Model        string         `json:"model,omitempty"`
	Provider     string         `json:"provider,omitempty"`
}

type reportOutline struct {
	Title    string `json:"title"`
	Sections []struct {
		Heading   string   `json:"heading"`
		KeyPoints []string `json:"key_points"`
	} `json:"sections"`
}

// AssembleReport combines the stage analyses into an outlined, cited, edited
// final report. Citation numbers are rebased onto a report-scoped map built
// over all unique sources in stage order, node order; section drafts may only
// reuse those numbers. The edit pass must keep every inline number and the
// reference list verbatim, and falls back to the unedited draft when it does
// not.
func (a *Activities) AssembleReport(ctx context.Context, in AssembleReportInput) (AssembleReportResult, error) {
	logger := activity.GetLogger(ctx)

	// 1. Gather stage analyses.
	var analyzedStages []research.Stage
	for _, st := range in.Stages {
		if st.Analysis != "" {
			analyzedStages = append(analyzedStages, st)
		}
	}
	if len(analyzedStages) == 0 {
		return AssembleReportResult{}, research.ErrNoStageAnalyses
	}

	// 2. Report-scoped citation map across all stages.
	var allFindings []research.Finding
	for i := range in.Stages {
		allFindings = append(allFindings, in.Stages[i].ReasoningTree.AllFindings()...)
	}
	unique := research.CollectUniqueSources(allFindings)
	reportNumbers := research.AssignCitationNumbers(unique)
	references := research.FormatReferenceList(unique)

	logger.Info("AssembleReport: starting",
		"stages", len(analyzedStages),
		"unique_sources", len(unique),
	)

	// 3. Rebase each stage's inline numbers onto the report map. Stage
	// numbering is stable for a fixed tree, so it can be recomputed here.
	analyses := make([]string, len(analyzedStages))
	for i, st := range analyzedStages {
		stageUnique := research.CollectUniqueSources(st.ReasoningTree.AllFindings())
		analyses[i] = rebaseCitations(st.Analysis, stageUnique, reportNumbers)
	}

	var res AssembleReportResult
	res.Citations = reportNumbers
	addUsage := func(u llm.Usage) {
		res.InputTokens += u.InputTokens
		res.OutputTokens += u.OutputTokens
		if u.Model != "" {
			res.Model = u.Model
			res.Provider = u.Provider
		}
	}

	// 4. Outline.
	var outline reportOutline
	usage, err := a.llm.GenerateStructured(ctx, llm.Request{
		Prompt:       buildOutlineContent(in.Topic, analyses),
		SystemPrompt: outlineSystemPrompt,
		AgentID:      "report-outliner",
		ModelTier:    "medium",
		Temperature:  0.3,
		SessionID:    in.SessionID,
	}, &outline)
	addUsage(usage)
	if err != nil || len(outline.Sections) == 0 {
		logger.Warn("AssembleReport: outline generation failed, deriving outline from stages", "error", err)
		outline = fallbackOutline(in.Topic, analyzedStages)
	}
	if len(outline.Sections) > maxReportSections {
		outline.Sections = outline.Sections[:maxReportSections]
	}
	if outline.Title == "" {
		outline.Title = in.Topic
	}

	// 5. Draft sections concurrently; each may only reuse existing numbers.
	sectionTexts := make([]string, len(outline.Sections))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i := range outline.Sections {
		g.Go(func() error {
			sec := outline.Sections[i]
			out, err := a.llm.GenerateText(gctx, llm.Request{
				Prompt:       buildSectionContent(in.Topic, sec.Heading, sec.KeyPoints, analyses),
				SystemPrompt: sectionSystemPrompt,
				AgentID:      "section-writer",
				MaxTokens:    8192,
				Temperature:  0.3,
				SessionID:    in.SessionID,
			})
			if err != nil {
				logger.Warn("AssembleReport: section draft failed, using key points",
					"heading", sec.Heading,
					"error", err,
				)
				sectionTexts[i] = fallbackSection(sec.KeyPoints, analyses, i)
				return nil
			}
			mu.Lock()
			addUsage(out.Usage)
			mu.Unlock()
			sectionTexts[i] = out.Text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return AssembleReportResult{}, err
	}

	// 6. Assemble the draft.
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", outline.Title)
	for i, sec := range outline.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sec.Heading, sectionTexts[i])
	}
	b.WriteString("\n## References\n\n")
	b.WriteString(references)
	b.WriteString("\n")
	res.DraftReport = b.String()

	// 7. Edit pass. The reference block must survive verbatim; otherwise the
	// draft stands.
	edited, err := a.llm.GenerateText(ctx, llm.Request{
		Prompt:       res.DraftReport,
		SystemPrompt: editPassSystemPrompt,
		AgentID:      "report-editor",
		ModelTier:    "large",
		MaxTokens:    16384,
		Temperature:  0.2,
		SessionID:    in.SessionID,
	})
	if err != nil {
		logger.Warn("AssembleReport: edit pass failed, keeping draft", "error", err)
		res.FinalReport = res.DraftReport
	} else {
		addUsage(edited.Usage)
		if len(unique) > 0 && !strings.Contains(edited.Text, references) {
			logger.Warn("AssembleReport: edit pass altered the reference list, keeping draft")
			res.FinalReport = res.DraftReport
		} else {
			res.FinalReport = edited.Text
		}
	}

	// 8. Non-fatal citation validation.
	if maxN := maxInlineCitation(res.FinalReport); maxN > len(unique) {
		res.Warning = fmt.Sprintf("inline citation [%d] exceeds reference count %d", maxN, len(unique))
		logger.Warn("AssembleReport: " + res.Warning)
		metrics.CitationOverflows.Inc()
	}
	return res, nil
}

// rebaseCitations rewrites inline [n] numbers from a stage-scoped map to the
// report-scoped one. Numbers without a target (overflow, hallucinated) are
// left untouched; the final validation flags them.
func rebaseCitations(analysis string, stageUnique []research.Finding, reportNumbers map[string]int) string {
	stageNumbers := research.AssignCitationNumbers(stageUnique)
	byStageNum := make(map[int]string, len(stageNumbers))
	for url, n := range stageNumbers {
		byStageNum[n] = url
	}
	return citationNumberPattern.ReplaceAllStringFunc(analysis, func(m string) string {
		n, err := strconv.Atoi(strings.Trim(m, "[]"))
		if err != nil {
			return m
		}
		url, ok := byStageNum[n]
		if !ok {
			return m
		}
		rn, ok := reportNumbers[url]
		if !ok {
			return m
		}
		return "[" + strconv.Itoa(rn) + "]"
	})
}

// maxInlineCitation returns the largest [n] in the text, or 0.
func maxInlineCitation(text string) int {
	max := 0
	for _, m := range citationNumberPattern.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil && n > max {
			max = n
		}
	}
	return max
}

func fallbackOutline(topic string, stages []research.Stage) reportOutline {
	var o reportOutline
	o.Title = topic
	for _, st := range stages {
		o.Sections = append(o.Sections, struct {
			Heading   string   `json:"heading"`
			KeyPoints []string `json:"key_points"`
		}{Heading: st.Name, KeyPoints: []string{st.Description}})
		if len(o.Sections) == maxReportSections {
			break
		}
	}
	return o
}

func fallbackSection(keyPoints []string, analyses []string, idx int) string {
	var b strings.Builder
	for _, p := range keyPoints {
		if p == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if idx < len(analyses) {
		b.WriteString("\n")
		b.WriteString(analyses[idx])
	}
	return b.String()
}
