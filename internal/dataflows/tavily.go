package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dyike/agenttrader/models"
	"github.com/go-resty/resty/v2"
)

const tavilyBaseURL = "https://api.tavily.com"

var ErrTavilyDisabled = errors.New("Tavily search is disabled because TAVILY_API_KEY is not set.")

// TavilyClient performs live web searches through the Tavily REST API.
type TavilyClient struct {
	client     *resty.Client
	apiKey     string
	maxResults int
}

func NewTavilyClient(apiKey string) *TavilyClient {
	return NewTavilyClientWithBaseURL(apiKey, tavilyBaseURL)
}

func NewTavilyClientWithBaseURL(apiKey, baseURL string) *TavilyClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("Content-Type", "application/json")

	return &TavilyClient{
		client:     client,
		apiKey:     apiKey,
		maxResults: 3,
	}
}

type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (tc *TavilyClient) Search(ctx context.Context, query string) ([]models.NewsItem, error) {
	if tc.apiKey == "" {
		return nil, ErrTavilyDisabled
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	resp, err := tc.client.R().
		SetContext(ctx).
		SetBody(tavilyRequest{APIKey: tc.apiKey, Query: query, MaxResults: tc.maxResults}).
		Post("/search")
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("tavily API error %d: %s", resp.StatusCode(), resp.String())
	}

	var parsed tavilyResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return nil, fmt.Errorf("parse tavily response: %w", err)
	}

	items := make([]models.NewsItem, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		items = append(items, models.NewsItem{Headline: r.Title, Summary: r.Content, URL: r.URL, Source: "tavily"})
	}
	return items, nil
}
