package research

import (
	"fmt"
	"net/url"
	"strings"
)

// CollectUniqueSources de-duplicates findings by source URL, preserving first
// appearance order. The ordering is what makes citation numbers stable across
// the prompts and reference lists built from the same findings.
func CollectUniqueSources(findings []Finding) []Finding {
	seen := make(map[string]bool, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		if f.Source == "" || seen[f.Source] {
			continue
		}
		seen[f.Source] = true
		out = append(out, f)
	}
	return out
}

// AssignCitationNumbers maps each unique source URL to its 1-based position.
// Numbers are contiguous and deterministic for a fixed input ordering.
func AssignCitationNumbers(unique []Finding) map[string]int {
	m := make(map[string]int, len(unique))
	for i, f := range unique {
		if _, ok := m[f.Source]; !ok {
			m[f.Source] = i + 1
		}
	}
	return m
}

// sourceHost extracts a display host from a URL, falling back to the raw
// string when parsing fails.
func sourceHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// FormatReference renders one numbered reference line in the style
//
//	[3] 🌐 Author-or-host, "Title," 2024-01-02. [Online].
//
// with the title hyperlinked to the source URL.
func FormatReference(f Finding, index int) string {
	icon := f.Favicon
	if icon == "" {
		icon = "🌐"
	}
	author := f.Author
	if author == "" {
		author = sourceHost(f.Source)
	}
	title := f.Title
	if title == "" {
		title = f.Source
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] %s %s, \"[%s](%s)\"", index, icon, author, title, f.Source)
	if f.PublishedDate != "" {
		fmt.Fprintf(&b, ", %s", f.PublishedDate)
	}
	b.WriteString(". [Online].")
	return b.String()
}

// FormatReferenceList renders the references block for an ordered unique list.
func FormatReferenceList(unique []Finding) string {
	lines := make([]string, 0, len(unique))
	for i, f := range unique {
		lines = append(lines, FormatReference(f, i+1))
	}
	return strings.Join(lines, "\n")
}
