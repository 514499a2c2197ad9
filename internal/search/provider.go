package search

import "context"

// Result is a single raw item returned by a Provider.
type Result struct {
	URL           string `json:"url"`
	Title         string `json:"title,omitempty"`
	Text          string `json:"text"`
	Author        string `json:"author,omitempty"`
	PublishedDate string `json:"published_date,omitempty"`
	Favicon       string `json:"favicon,omitempty"`
	Image         string `json:"image,omitempty"`
}

// Provider executes a web search. Implementations may return zero results;
// callers treat errors as empty result sets rather than failing the run.
type Provider interface {
	Search(ctx context.Context, query string, numResults int) ([]Result, error)
}
