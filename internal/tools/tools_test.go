package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/internal/dataflows"
	"github.com/dyike/agenttrader/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrices struct {
	bars  []models.PriceBar
	err   error
	calls int
}

func (s *stubPrices) History(_ context.Context, symbol string, _, _ time.Time) ([]models.PriceBar, error) {
	s.calls++
	return s.bars, s.err
}

type stubNews struct{ items []models.NewsItem }

func (s stubNews) CompanyNews(context.Context, string, string, string) ([]models.NewsItem, error) {
	return s.items, nil
}

type stubSearch struct {
	items []models.NewsItem
	err   error
}

func (s stubSearch) Search(context.Context, string) ([]models.NewsItem, error) {
	return s.items, s.err
}

func newGateway(t *testing.T, tk *Toolkit) *Gateway {
	t.Helper()
	g, err := NewGateway(context.Background(), tk.Tools()...)
	require.NoError(t, err)
	return g
}

func call(name, args string) schema.ToolCall {
	return schema.ToolCall{ID: "call-1", Type: "function", Function: schema.FunctionCall{Name: name, Arguments: args}}
}

func TestGatewayRegistry(t *testing.T) {
	g := newGateway(t, &Toolkit{Online: true})

	assert.ElementsMatch(t, []string{
		ToolYFinanceData, ToolTechnicalIndicators, ToolFinnhubNews,
		ToolSocialSentiment, ToolFundamentalAnalysis, ToolMacroNews,
	}, g.Names())

	infos, err := g.Infos(ToolYFinanceData, ToolTechnicalIndicators)
	require.NoError(t, err)
	assert.Equal(t, ToolYFinanceData, infos[0].Name)

	_, err = g.Infos("get_weather")
	assert.Error(t, err)
}

func TestGatewayUnknownToolBecomesText(t *testing.T) {
	g := newGateway(t, &Toolkit{Online: true})

	msg := g.Execute(context.Background(), call("get_weather", `{}`))
	assert.Equal(t, schema.Tool, msg.Role)
	assert.Equal(t, "call-1", msg.ToolCallID)
	assert.Contains(t, msg.Content, `tool "get_weather" is not available`)
}

func TestGatewayBadArgumentsBecomeText(t *testing.T) {
	g := newGateway(t, &Toolkit{Online: true})

	msg := g.Execute(context.Background(), call(ToolYFinanceData, `{not json`))
	assert.Contains(t, msg.Content, "Error calling get_yfinance_data")
}

func TestPriceDataCSV(t *testing.T) {
	prices := &stubPrices{bars: []models.PriceBar{
		{Symbol: "NVDA", Date: "2024-04-30", Open: decimal.NewFromInt(860), High: decimal.NewFromInt(870), Low: decimal.NewFromInt(850), Close: decimal.NewFromInt(864), Volume: 100},
	}}
	g := newGateway(t, &Toolkit{Prices: prices, Online: true})

	msg := g.Execute(context.Background(), call(ToolYFinanceData, `{"symbol":"NVDA","start_date":"2024-04-01","end_date":"2024-05-01"}`))
	assert.Contains(t, msg.Content, "Date,Open,High,Low,Close,Volume")
	assert.Contains(t, msg.Content, "2024-04-30,860.00,870.00,850.00,864.00,100")
}

func TestToolFailuresAreText(t *testing.T) {
	g := newGateway(t, &Toolkit{Prices: &stubPrices{err: errors.New("upstream 503")}, Online: true})
	ctx := context.Background()

	msg := g.Execute(ctx, call(ToolYFinanceData, `{"symbol":"NVDA","start_date":"2024-04-01","end_date":"2024-05-01"}`))
	assert.Equal(t, "Error retrieving stock price data for NVDA: upstream 503", msg.Content)

	msg = g.Execute(ctx, call(ToolYFinanceData, `{"symbol":"NVDA","start_date":"2024-05-01","end_date":"2024-05-01"}`))
	assert.Contains(t, msg.Content, "empty date range")

	g = newGateway(t, &Toolkit{Prices: &stubPrices{}, Online: true})
	msg = g.Execute(ctx, call(ToolYFinanceData, `{"symbol":"ZZZZ","start_date":"2024-04-01","end_date":"2024-05-01"}`))
	assert.Equal(t, "No data found for ZZZZ between 2024-04-01 and 2024-05-01", msg.Content)
}

func TestFinnhubNewsLimitsToFive(t *testing.T) {
	items := make([]models.NewsItem, 8)
	for i := range items {
		items[i] = models.NewsItem{Headline: "h", Summary: "s"}
	}
	g := newGateway(t, &Toolkit{News: stubNews{items: items}, Online: true})

	msg := g.Execute(context.Background(), call(ToolFinnhubNews, `{"ticker":"NVDA","start_date":"2024-04-24","end_date":"2024-05-01"}`))
	assert.Equal(t, 5, strings.Count(msg.Content, "Headline: "))
}

func TestWebSearchDisabledWithoutFallback(t *testing.T) {
	g := newGateway(t, &Toolkit{Search: stubSearch{err: dataflows.ErrTavilyDisabled}, Online: true})

	msg := g.Execute(context.Background(), call(ToolMacroNews, `{"trade_date":"2024-05-01"}`))
	assert.Equal(t, "Tavily search is disabled because TAVILY_API_KEY is not set.", msg.Content)
}

func TestWebSearchFallsBack(t *testing.T) {
	g := newGateway(t, &Toolkit{
		Search:         stubSearch{err: dataflows.ErrTavilyDisabled},
		FallbackSearch: stubSearch{items: []models.NewsItem{{Headline: "Fed holds rates", Source: "Wire"}}},
		Online:         true,
	})

	msg := g.Execute(context.Background(), call(ToolSocialSentiment, `{"ticker":"NVDA","trade_date":"2024-05-01"}`))
	assert.Equal(t, "Title: Fed holds rates (Wire)", msg.Content)
}

func TestOfflineServesCacheOnly(t *testing.T) {
	ctx := context.Background()
	cache := dataflows.NewFileCache(t.TempDir(), 0)
	prices := &stubPrices{bars: []models.PriceBar{{Date: "2024-04-30", Close: decimal.NewFromInt(1)}}}
	args := `{"symbol":"NVDA","start_date":"2024-04-01","end_date":"2024-05-01"}`

	offline := newGateway(t, &Toolkit{Prices: prices, Cache: cache, Online: false})
	msg := offline.Execute(ctx, call(ToolYFinanceData, args))
	assert.Contains(t, msg.Content, "No cached data for get_yfinance_data")
	assert.Equal(t, 0, prices.calls)

	online := newGateway(t, &Toolkit{Prices: prices, Cache: cache, Online: true})
	fresh := online.Execute(ctx, call(ToolYFinanceData, args))
	require.Equal(t, 1, prices.calls)

	cached := offline.Execute(ctx, call(ToolYFinanceData, args))
	assert.Equal(t, fresh.Content, cached.Content)
	assert.Equal(t, 1, prices.calls)
}

func TestExecuteAllKeepsOrder(t *testing.T) {
	g := newGateway(t, &Toolkit{Online: false})
	msg := schema.AssistantMessage("", []schema.ToolCall{
		{ID: "a", Function: schema.FunctionCall{Name: ToolMacroNews, Arguments: `{"trade_date":"2024-05-01"}`}},
		{ID: "b", Function: schema.FunctionCall{Name: "nope"}},
	})

	out := g.ExecuteAll(context.Background(), msg)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ToolCallID)
	assert.Equal(t, "b", out[1].ToolCallID)
}
