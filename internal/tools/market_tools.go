package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
	"github.com/dyike/agenttrader/internal/dataflows"
	"github.com/dyike/agenttrader/models"
	"github.com/kataras/golog"
)

const (
	ToolYFinanceData        = "get_yfinance_data"
	ToolTechnicalIndicators = "get_technical_indicators"
	ToolFinnhubNews         = "get_finnhub_news"
	ToolSocialSentiment     = "get_social_media_sentiment"
	ToolFundamentalAnalysis = "get_fundamental_analysis"
	ToolMacroNews           = "get_macroeconomic_news"
)

// indicatorWarmup is the extra history fetched so 200 day averages are defined
// at the start of the requested range.
const indicatorWarmup = 300 * 24 * time.Hour

type PriceSource interface {
	History(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error)
}

type NewsSource interface {
	CompanyNews(ctx context.Context, symbol, from, to string) ([]models.NewsItem, error)
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]models.NewsItem, error)
}

// Toolkit backs the six market-data tools. Cache may be nil. With Online
// false the tools answer from the cache only.
type Toolkit struct {
	Prices         PriceSource
	News           NewsSource
	Search         Searcher
	FallbackSearch Searcher
	Cache          dataflows.Cache
	Online         bool
}

var errNoData = errors.New("no data")

type priceInput struct {
	Symbol    string `json:"symbol"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type newsInput struct {
	Ticker    string `json:"ticker"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type tradeDateInput struct {
	Ticker    string `json:"ticker"`
	TradeDate string `json:"trade_date"`
}

var symbolRangeParams = map[string]*schema.ParameterInfo{
	"symbol": {
		Type:     schema.String,
		Desc:     "The ticker symbol of the company to get data for",
		Required: true,
	},
	"start_date": {
		Type:     schema.String,
		Desc:     "Start date in yyyy-mm-dd format",
		Required: true,
	},
	"end_date": {
		Type:     schema.String,
		Desc:     "End date in yyyy-mm-dd format",
		Required: true,
	},
}

// Tools returns the invokable tools in registry order.
func (tk *Toolkit) Tools() []tool.InvokableTool {
	return []tool.InvokableTool{
		t_utils.NewTool(&schema.ToolInfo{
			Name:        ToolYFinanceData,
			Desc:        "Retrieve the stock price data for given ticker symbol from Yahoo Finance",
			ParamsOneOf: schema.NewParamsOneOfByParams(symbolRangeParams),
		}, tk.priceData),
		t_utils.NewTool(&schema.ToolInfo{
			Name:        ToolTechnicalIndicators,
			Desc:        "Retrieve key technical indicators (macd, rsi_14, boll, boll_ub, boll_lb, close_50_sma, close_200_sma) for a stock",
			ParamsOneOf: schema.NewParamsOneOfByParams(symbolRangeParams),
		}, tk.technicalIndicators),
		t_utils.NewTool(&schema.ToolInfo{
			Name: ToolFinnhubNews,
			Desc: "Get company news from Finnhub within date range",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"ticker":     {Type: schema.String, Desc: "The ticker symbol", Required: true},
				"start_date": {Type: schema.String, Desc: "Start date in yyyy-mm-dd format", Required: true},
				"end_date":   {Type: schema.String, Desc: "End date in yyyy-mm-dd format", Required: true},
			}),
		}, tk.finnhubNews),
		t_utils.NewTool(&schema.ToolInfo{
			Name:        ToolSocialSentiment,
			Desc:        "Performs a live web search for social media sentiment regarding a stock",
			ParamsOneOf: schema.NewParamsOneOfByParams(tradeDateParams(true)),
		}, tk.socialSentiment),
		t_utils.NewTool(&schema.ToolInfo{
			Name:        ToolFundamentalAnalysis,
			Desc:        "Performs a live web search for recent fundamental analysis of a stock",
			ParamsOneOf: schema.NewParamsOneOfByParams(tradeDateParams(true)),
		}, tk.fundamentalAnalysis),
		t_utils.NewTool(&schema.ToolInfo{
			Name:        ToolMacroNews,
			Desc:        "Performs a live web search for macroeconomic news relevant to the stock market",
			ParamsOneOf: schema.NewParamsOneOfByParams(tradeDateParams(false)),
		}, tk.macroNews),
	}
}

func tradeDateParams(withTicker bool) map[string]*schema.ParameterInfo {
	params := map[string]*schema.ParameterInfo{
		"trade_date": {Type: schema.String, Desc: "Trade date in yyyy-mm-dd format", Required: true},
	}
	if withTicker {
		params["ticker"] = &schema.ParameterInfo{Type: schema.String, Desc: "The ticker symbol", Required: true}
	}
	return params
}

func (tk *Toolkit) priceData(ctx context.Context, in priceInput) (string, error) {
	return tk.cached(ctx, ToolYFinanceData, in, func() (string, error) {
		start, end, err := dataflows.ParseDateRange(in.StartDate, in.EndDate)
		if err != nil {
			return "", err
		}
		if tk.Prices == nil {
			return "", errors.New("no price source configured")
		}
		bars, err := tk.Prices.History(ctx, in.Symbol, start, end)
		if err != nil {
			return "", err
		}
		if len(bars) == 0 {
			return "", errNoData
		}
		return dataflows.PriceCSV(bars), nil
	}, func(err error) string {
		if errors.Is(err, errNoData) {
			return fmt.Sprintf("No data found for %s between %s and %s", in.Symbol, in.StartDate, in.EndDate)
		}
		return fmt.Sprintf("Error retrieving stock price data for %s: %v", in.Symbol, err)
	}), nil
}

func (tk *Toolkit) technicalIndicators(ctx context.Context, in priceInput) (string, error) {
	return tk.cached(ctx, ToolTechnicalIndicators, in, func() (string, error) {
		start, end, err := dataflows.ParseDateRange(in.StartDate, in.EndDate)
		if err != nil {
			return "", err
		}
		if tk.Prices == nil {
			return "", errors.New("no price source configured")
		}
		bars, err := tk.Prices.History(ctx, in.Symbol, start.Add(-indicatorWarmup), end)
		if err != nil {
			return "", err
		}

		rows := dataflows.CalculateIndicators(bars)
		from := start.Format(dataflows.DateLayout)
		var inRange []dataflows.IndicatorRow
		for _, row := range rows {
			if row.Date >= from {
				inRange = append(inRange, row)
			}
		}
		if len(inRange) == 0 {
			return "", errNoData
		}
		return dataflows.IndicatorsCSV(inRange, 5), nil
	}, func(err error) string {
		if errors.Is(err, errNoData) {
			return fmt.Sprintf("No data found for %s between %s and %s", in.Symbol, in.StartDate, in.EndDate)
		}
		return fmt.Sprintf("Error retrieving technical indicators for %s: %v", in.Symbol, err)
	}), nil
}

func (tk *Toolkit) finnhubNews(ctx context.Context, in newsInput) (string, error) {
	return tk.cached(ctx, ToolFinnhubNews, in, func() (string, error) {
		if _, _, err := dataflows.ParseDateRange(in.StartDate, in.EndDate); err != nil {
			return "", err
		}
		if tk.News == nil {
			return "", errors.New("no news source configured")
		}
		items, err := tk.News.CompanyNews(ctx, in.Ticker, in.StartDate, in.EndDate)
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			return "", errNoData
		}
		if len(items) > 5 {
			items = items[:5]
		}
		parts := make([]string, 0, len(items))
		for _, n := range items {
			parts = append(parts, fmt.Sprintf("Headline: %s\nSummary: %s", n.Headline, n.Summary))
		}
		return strings.Join(parts, "\n\n"), nil
	}, func(err error) string {
		if errors.Is(err, errNoData) {
			return fmt.Sprintf("No news found for %s between %s and %s", in.Ticker, in.StartDate, in.EndDate)
		}
		return fmt.Sprintf("Error retrieving news for %s between %s and %s: %v", in.Ticker, in.StartDate, in.EndDate, err)
	}), nil
}

func (tk *Toolkit) socialSentiment(ctx context.Context, in tradeDateInput) (string, error) {
	query := fmt.Sprintf("social media sentiment and discussions for %s stock around %s", in.Ticker, in.TradeDate)
	return tk.webSearch(ctx, ToolSocialSentiment, in, query), nil
}

func (tk *Toolkit) fundamentalAnalysis(ctx context.Context, in tradeDateInput) (string, error) {
	query := fmt.Sprintf("fundamental analysis and key financial metrics for %s stock published around %s", in.Ticker, in.TradeDate)
	return tk.webSearch(ctx, ToolFundamentalAnalysis, in, query), nil
}

func (tk *Toolkit) macroNews(ctx context.Context, in tradeDateInput) (string, error) {
	query := fmt.Sprintf("macroeconomic news and market trends affecting the stock market on %s", in.TradeDate)
	return tk.webSearch(ctx, ToolMacroNews, in, query), nil
}

func (tk *Toolkit) webSearch(ctx context.Context, name string, params any, query string) string {
	return tk.cached(ctx, name, params, func() (string, error) {
		items, err := tk.search(ctx, query)
		if err != nil {
			return "", err
		}
		if len(items) == 0 {
			return "", errNoData
		}
		parts := make([]string, 0, len(items))
		for _, n := range items {
			line := "Title: " + n.Headline
			if n.Source != "" {
				line += " (" + n.Source + ")"
			}
			if n.Summary != "" {
				line += "\nContent: " + n.Summary
			}
			if n.URL != "" {
				line += "\nURL: " + n.URL
			}
			parts = append(parts, line)
		}
		return strings.Join(parts, "\n\n"), nil
	}, func(err error) string {
		switch {
		case errors.Is(err, dataflows.ErrTavilyDisabled):
			return err.Error()
		case errors.Is(err, errNoData):
			return fmt.Sprintf("No search results for %q", query)
		default:
			return fmt.Sprintf("Error searching %q: %v", query, err)
		}
	})
}

// search prefers the primary searcher and falls back when it is disabled.
func (tk *Toolkit) search(ctx context.Context, query string) ([]models.NewsItem, error) {
	err := dataflows.ErrTavilyDisabled
	if tk.Search != nil {
		var items []models.NewsItem
		items, err = tk.Search.Search(ctx, query)
		if err == nil {
			return items, nil
		}
	}
	if errors.Is(err, dataflows.ErrTavilyDisabled) && tk.FallbackSearch != nil {
		return tk.FallbackSearch.Search(ctx, query)
	}
	return nil, err
}

// cached consults the cache, then fetch when online. Only successful payloads
// are stored; failures are rendered through describe.
func (tk *Toolkit) cached(ctx context.Context, name string, params any, fetch func() (string, error), describe func(error) string) string {
	key := dataflows.CacheKey("tools", name, params)
	if tk.Cache != nil {
		val, ok, err := tk.Cache.Get(ctx, key)
		if err != nil {
			golog.Warnf("tool cache get %s: %v", name, err)
		}
		if ok {
			golog.Debugf("tool cache hit %s", name)
			return val
		}
	}

	if !tk.Online {
		return fmt.Sprintf("No cached data for %s with %s (online tools are disabled)", name, describeParams(params))
	}

	val, err := fetch()
	if err != nil {
		return describe(err)
	}
	if tk.Cache != nil {
		if err := tk.Cache.Set(ctx, key, val); err != nil {
			golog.Warnf("tool cache set %s: %v", name, err)
		}
	}
	return val
}

func describeParams(params any) string {
	switch p := params.(type) {
	case priceInput:
		return fmt.Sprintf("symbol=%s start_date=%s end_date=%s", p.Symbol, p.StartDate, p.EndDate)
	case newsInput:
		return fmt.Sprintf("ticker=%s start_date=%s end_date=%s", p.Ticker, p.StartDate, p.EndDate)
	case tradeDateInput:
		if p.Ticker == "" {
			return "trade_date=" + p.TradeDate
		}
		return fmt.Sprintf("ticker=%s trade_date=%s", p.Ticker, p.TradeDate)
	default:
		return fmt.Sprintf("%v", params)
	}
}
