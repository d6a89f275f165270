package dataflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dyike/agenttrader/models"
	"github.com/go-resty/resty/v2"
)

const finnhubBaseURL = "https://finnhub.io/api/v1"

var ErrFinnhubKeyMissing = errors.New("finnhub API key not configured")

// FinnhubClient handles Finnhub API operations
type FinnhubClient struct {
	client *resty.Client
	apiKey string
}

func NewFinnhubClient(apiKey string) *FinnhubClient {
	return NewFinnhubClientWithBaseURL(apiKey, finnhubBaseURL)
}

func NewFinnhubClientWithBaseURL(apiKey, baseURL string) *FinnhubClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)

	return &FinnhubClient{
		client: client,
		apiKey: apiKey,
	}
}

// finnhubNews represents news from Finnhub API
type finnhubNews struct {
	Category string `json:"category"`
	DateTime int64  `json:"datetime"`
	Headline string `json:"headline"`
	Source   string `json:"source"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
}

// CompanyNews gets news articles for a company between from and to (yyyy-mm-dd).
func (fc *FinnhubClient) CompanyNews(ctx context.Context, symbol, from, to string) ([]models.NewsItem, error) {
	if fc.apiKey == "" {
		return nil, ErrFinnhubKeyMissing
	}
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	resp, err := fc.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": symbol,
			"from":   from,
			"to":     to,
			"token":  fc.apiKey,
		}).
		Get("/company-news")
	if err != nil {
		return nil, fmt.Errorf("fetch news for %s: %w", symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("finnhub API error %d: %s", resp.StatusCode(), resp.String())
	}

	var raw []finnhubNews
	if err := json.Unmarshal(resp.Body(), &raw); err != nil {
		return nil, fmt.Errorf("parse news response: %w", err)
	}

	items := make([]models.NewsItem, 0, len(raw))
	for _, n := range raw {
		items = append(items, models.NewsItem{
			Headline:  n.Headline,
			Summary:   n.Summary,
			Source:    n.Source,
			URL:       n.URL,
			Published: time.Unix(n.DateTime, 0).UTC().Format(DateLayout),
		})
	}
	return items, nil
}
