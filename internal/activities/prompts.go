package activities

import (
	"fmt"
	"strings"

	"github.com/fathomlabs/fathom/internal/research"
)

// Prompt text for the engine's generation calls. Kept together so wording
// changes do not touch control flow.

const stagePlannerSystemPrompt = `You are a research planner. Given a topic, design a sequence of research stages that together produce a thorough, well-sourced report. Respond with JSON only, no prose, matching:
{"stages":[{"name":"...","description":"...","queries":[{"query":"...","reasoning":"..."}]}]}
Each stage needs a short name, a one-sentence description, and the requested number of initial web search queries with a one-sentence rationale each. Order stages from broad exploration toward synthesis.`

func buildStagePlannerContent(topic, context string, cfg research.Configuration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if context != "" {
		fmt.Fprintf(&b, "Additional context: %s\n", context)
	}
	fmt.Fprintf(&b, "Produce exactly %d stages with exactly %d queries per stage.", cfg.StageCount, cfg.QueriesPerStage)
	return b.String()
}

const resultAnalysisSystemPrompt = `You analyze one web search result for a research query. Summarize only what the excerpt supports: key facts, figures, and claims relevant to the query, plus a one-line note on source reliability. 2-4 sentences, no preamble.`

func buildResultAnalysisContent(topic, query, url, title, excerpt string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research topic: %s\nQuery: %s\n\nSource: %s\n", topic, query, url)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	fmt.Fprintf(&b, "\nExcerpt:\n%s", excerpt)
	return b.String()
}

const followUpSystemPrompt = `You generate follow-up web search queries for a research stage. You receive the findings gathered so far, numbered like [1], [2]. Identify the most important gaps and propose queries that dig deeper. Cite which numbered findings motivate each query in its reasoning. Never repeat or trivially rephrase a query that was already asked. Respond with JSON only:
{"queries":[{"query":"...","reasoning":"..."}]}`

func buildFollowUpContent(topic string, stage *research.Stage, numbered []string, priorQueries []string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nStage: %s — %s\n\n", topic, stage.Name, stage.Description)
	b.WriteString("Findings so far:\n")
	for _, line := range numbered {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nQueries already asked (do not duplicate):\n")
	for _, q := range priorQueries {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	fmt.Fprintf(&b, "\nPropose exactly %d new queries.", count)
	return b.String()
}

const stageSynthesisSystemPrompt = `You write the analysis for one stage of a research project. Using only the numbered findings provided, write a multi-paragraph narrative that answers the stage's purpose. Cite findings inline with their bracketed numbers, e.g. [2], immediately after each supported claim. End with a "References" section listing every number exactly as given to you. Do not invent numbers or sources.`

func buildStageSynthesisContent(topic string, stage *research.Stage, numbered []string, references string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\nStage: %s — %s\n\n", topic, stage.Name, stage.Description)
	b.WriteString("Numbered findings:\n")
	for _, line := range numbered {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("\nReference list to reproduce verbatim at the end:\n")
	b.WriteString(references)
	return b.String()
}

const outlineSystemPrompt = `You outline a final research report from per-stage analyses. Respond with JSON only:
{"title":"...","sections":[{"heading":"...","key_points":["..."]}]}
Use between 3 and 8 sections. Sections should tell one coherent story across stages, not mirror the stage list.`

func buildOutlineContent(topic string, analyses []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nStage analyses:\n", topic)
	for i, a := range analyses {
		fmt.Fprintf(&b, "--- Stage %d ---\n%s\n", i+1, a)
	}
	return b.String()
}

const sectionSystemPrompt = `You write one section of a final research report. Use the stage analyses as your source material. Keep every inline citation number exactly as it appears in the material; never introduce a number that is not already present. Write flowing prose under the given heading, no heading repetition, no reference list.`

func buildSectionContent(topic, heading string, keyPoints []string, analyses []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report topic: %s\nSection heading: %s\nKey points to cover:\n", topic, heading)
	for _, p := range keyPoints {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	b.WriteString("\nSource material:\n")
	for i, a := range analyses {
		fmt.Fprintf(&b, "--- Stage %d ---\n%s\n", i+1, a)
	}
	return b.String()
}

const editPassSystemPrompt = `You are the final editor of a research report. Improve flow: reorder where helpful, add transitions, an introduction, and a conclusion. You must preserve every inline citation number exactly and reproduce the "## References" section verbatim, unchanged and complete. Return the full edited report in markdown.`
