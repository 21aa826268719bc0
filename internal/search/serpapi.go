// Package search queries SerpAPI for Google AI overview snippets used to ground
// general-purpose answers.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/lox/groundwater/internal/htmlutil"
	"github.com/lox/groundwater/internal/httputil"
)

const DefaultEndpoint = "https://serpapi.com/search.json"

// Client fetches search results from SerpAPI's Google engine.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
}

// NewClient creates a SerpAPI client. endpoint may be empty for the public API.
func NewClient(apiKey, endpoint string) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		httpClient: httputil.NewClient(),
		endpoint:   endpoint,
		apiKey:     apiKey,
	}
}

// Response is the subset of the SerpAPI result we read.
type Response struct {
	AIOverview *AIOverview `json:"ai_overview"`
}

type AIOverview struct {
	TextBlocks []TextBlock `json:"text_blocks"`
}

type TextBlock struct {
	Type    string `json:"type"`
	Snippet string `json:"snippet"`
}

// Search runs query and returns the decoded response.
func (c *Client) Search(ctx context.Context, query string) (*Response, error) {
	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httputil.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// Snippet returns the first non-empty overview snippet as plain text.
// The boolean is false when the response carries no AI overview.
func (r *Response) Snippet() (string, bool) {
	if r == nil || r.AIOverview == nil {
		return "", false
	}
	for _, block := range r.AIOverview.TextBlocks {
		if s := htmlutil.ToText(block.Snippet); s != "" {
			return s, true
		}
	}
	return "", false
}

// Overview is a convenience wrapper: search and return the snippet, if any.
func (c *Client) Overview(ctx context.Context, query string) (string, error) {
	resp, err := c.Search(ctx, query)
	if err != nil {
		return "", err
	}
	snippet, _ := resp.Snippet()
	return strings.TrimSpace(snippet), nil
}
