package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Request is one generation call against the LLM service. AgentID tags the
// call for observability; SystemPrompt rides in the service's context block.
type Request struct {
	Prompt       string
	SystemPrompt string
	AgentID      string
	ModelTier    string // "small", "medium", "large"; default "small"
	MaxTokens    int
	Temperature  float64
	SessionID    string
}

// Usage reports token consumption for a single call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	Model        string
	Provider     string
}

// TotalTokens returns input plus output tokens.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// TextResult is the outcome of a free-text generation.
type TextResult struct {
	Text  string
	Usage Usage
}

// Client talks to the external LLM service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for the given service base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 120 * time.Second},
	}
}

// NewWithHTTPClient overrides the HTTP client, mainly for tests.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	c := New(baseURL)
	c.http = hc
	return c
}

type serviceRequest struct {
	Query       string         `json:"query"`
	MaxTokens   int            `json:"max_tokens"`
	Temperature float64        `json:"temperature"`
	AgentID     string         `json:"agent_id"`
	ModelTier   string         `json:"model_tier"`
	Context     map[string]any `json:"context,omitempty"`
}

type serviceResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Metadata struct {
		InputTokens  int     `json:"input_tokens"`
		OutputTokens int     `json:"output_tokens"`
		CostUSD      float64 `json:"cost_usd"`
	} `json:"metadata"`
	TokensUsed int    `json:"tokens_used"`
	ModelUsed  string `json:"model_used"`
	Provider   string `json:"provider"`
}

func (c *Client) call(ctx context.Context, req Request) (*serviceResponse, error) {
	if req.ModelTier == "" {
		req.ModelTier = "small"
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 4096
	}
	body := serviceRequest{
		Query:       req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		AgentID:     req.AgentID,
		ModelTier:   req.ModelTier,
	}
	if req.SystemPrompt != "" || req.SessionID != "" {
		body.Context = map[string]any{}
		if req.SystemPrompt != "" {
			body.Context["system_prompt"] = req.SystemPrompt
		}
		if req.SessionID != "" {
			body.Context["session_id"] = req.SessionID
		}
	}

	reqJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/agent/query", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.AgentID != "" {
		httpReq.Header.Set("X-Agent-ID", req.AgentID)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("LLM service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d from LLM service", resp.StatusCode)
	}

	var out serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if out.Response == "" {
		return nil, fmt.Errorf("LLM service returned empty response")
	}
	return &out, nil
}

func usageOf(r *serviceResponse) Usage {
	u := Usage{
		InputTokens:  r.Metadata.InputTokens,
		OutputTokens: r.Metadata.OutputTokens,
		Model:        r.ModelUsed,
		Provider:     r.Provider,
	}
	// Older service versions report only a combined total; approximate the
	// split so ledger rollups stay populated.
	if u.InputTokens == 0 && u.OutputTokens == 0 && r.TokensUsed > 0 {
		u.InputTokens = int(float64(r.TokensUsed) * 0.6)
		u.OutputTokens = r.TokensUsed - u.InputTokens
	}
	return u
}

// GenerateText runs a free-text generation.
func (c *Client) GenerateText(ctx context.Context, req Request) (TextResult, error) {
	resp, err := c.call(ctx, req)
	if err != nil {
		return TextResult{}, err
	}
	return TextResult{Text: resp.Response, Usage: usageOf(resp)}, nil
}

// GenerateStructured runs a generation expected to return JSON and decodes it
// into out. Code fences around the payload are tolerated.
func (c *Client) GenerateStructured(ctx context.Context, req Request, out any) (Usage, error) {
	resp, err := c.call(ctx, req)
	if err != nil {
		return Usage{}, err
	}
	payload := stripCodeFences(resp.Response)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return usageOf(resp), fmt.Errorf("failed to decode structured response: %w", err)
	}
	return usageOf(resp), nil
}

// stripCodeFences removes a surrounding ```json ... ``` block if present.
func stripCodeFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
