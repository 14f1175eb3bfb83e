package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mpataki/trek/internal/models"
)

const maxResponseSize = 4 * 1024 * 1024

var ErrEmptyQuery = errors.New("search query is required")

type SearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date,omitempty"`
}

type SearchResponse struct {
	Results      []SearchResult `json:"results"`
	Query        string         `json:"query"`
	ResponseTime float64        `json:"response_time"`
}

// Searcher is a text search backend.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) (*SearchResponse, error)
}

// SearchTool exposes a Searcher as the "search" tool.
type SearchTool struct {
	Backend    Searcher
	MaxResults int
}

func (t *SearchTool) Name() string { return models.ToolSearch }

func (t *SearchTool) Call(ctx context.Context, req models.ToolRequest) (any, error) {
	q := strings.TrimSpace(req.Query)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	return t.Backend.Search(ctx, q, t.MaxResults)
}

// TavilyClient queries the Tavily search API.
type TavilyClient struct {
	APIKey   string
	Endpoint string

	client  *http.Client
	limiter *rate.Limiter
}

func NewTavilyClient(apiKey, endpoint string, requestsPerSecond float64) *TavilyClient {
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &TavilyClient{
		APIKey:   apiKey,
		Endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	Topic       string `json:"topic"`
	MaxResults  int    `json:"max_results"`
}

func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) (*SearchResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for search rate limit: %w", err)
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      c.APIKey,
		Query:       query,
		SearchDepth: "basic",
		Topic:       "general",
		MaxResults:  maxResults,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search failed (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out SearchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if out.Query == "" {
		out.Query = query
	}
	return &out, nil
}

// StaticSearch returns a fixed offline result set for every query.
type StaticSearch struct{}

var staticResults = []SearchResult{
	{
		Title:         "Best Travel Destinations 2024 - Complete Guide",
		URL:           "https://example.com/travel-guide",
		Content:       "Comprehensive guide to the best travel destinations for 2024, including budget tips and insider recommendations.",
		Score:         0.95,
		PublishedDate: "2024-01-15",
	},
	{
		Title:         "Local Travel Tips and Hidden Gems",
		URL:           "https://example.com/local-tips",
		Content:       "Discover hidden gems and local favorites that most tourists miss. Expert recommendations from local guides.",
		Score:         0.88,
		PublishedDate: "2024-01-10",
	},
	{
		Title:         "Budget Travel Planning - Expert Tips",
		URL:           "https://example.com/budget-travel",
		Content:       "How to plan amazing trips on any budget. Includes cost breakdowns and money-saving strategies.",
		Score:         0.82,
		PublishedDate: "2024-01-05",
	},
	{
		Title:         "Cultural Experiences and Local Events",
		URL:           "https://example.com/cultural-events",
		Content:       "Upcoming cultural events, festivals, and authentic local experiences. Updated daily with new events.",
		Score:         0.78,
		PublishedDate: "2024-01-20",
	},
	{
		Title:         "Transportation and Logistics Guide",
		URL:           "https://example.com/transportation",
		Content:       "Complete guide to getting around, including public transport, ride-sharing, and local transportation tips.",
		Score:         0.75,
		PublishedDate: "2024-01-12",
	},
}

func (StaticSearch) Search(_ context.Context, query string, maxResults int) (*SearchResponse, error) {
	n := len(staticResults)
	if maxResults > 0 && maxResults < n {
		n = maxResults
	}
	results := make([]SearchResult, n)
	copy(results, staticResults[:n])
	return &SearchResponse{Results: results, Query: query, ResponseTime: 0.45}, nil
}
