package dataflows

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/dyike/agenttrader/models"
	"github.com/go-resty/resty/v2"
)

const googleNewsBaseURL = "https://news.google.com"

// GoogleNewsClient searches the public Google News RSS feed. It needs no
// credentials and backs the web-search tools when Tavily is not configured.
type GoogleNewsClient struct {
	client     *resty.Client
	maxResults int
}

func NewGoogleNewsClient() *GoogleNewsClient {
	return NewGoogleNewsClientWithBaseURL(googleNewsBaseURL)
}

func NewGoogleNewsClientWithBaseURL(baseURL string) *GoogleNewsClient {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; agenttrader/1.0)")

	return &GoogleNewsClient{
		client:     client,
		maxResults: 10,
	}
}

func (gc *GoogleNewsClient) Search(ctx context.Context, query string) ([]models.NewsItem, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	resp, err := gc.client.R().
		SetContext(ctx).
		SetQueryString("q=" + url.QueryEscape(query) + "&hl=en-US&gl=US&ceid=US:en").
		Get("/rss/search")
	if err != nil {
		return nil, fmt.Errorf("fetch google news: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("google news HTTP error %d", resp.StatusCode())
	}
	return parseGoogleNewsRSS(resp.String(), gc.maxResults)
}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	Source      string `xml:"source"`
}

func parseGoogleNewsRSS(body string, limit int) ([]models.NewsItem, error) {
	var feed rssFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return nil, fmt.Errorf("parse rss: %w", err)
	}

	var items []models.NewsItem
	for _, it := range feed.Channel.Items {
		title := strings.TrimSpace(it.Title)
		if title == "" {
			continue
		}
		items = append(items, models.NewsItem{
			Headline:  title,
			Summary:   htmlText(it.Description),
			Source:    strings.TrimSpace(it.Source),
			URL:       strings.TrimSpace(it.Link),
			Published: strings.TrimSpace(it.PubDate),
		})
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

// htmlText flattens the HTML fragment Google embeds in item descriptions.
func htmlText(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
