package dataflows

import (
	"context"
	"errors"
	"time"

	"github.com/dyike/agenttrader/models"
	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/shopspring/decimal"
)

// LongportClient reads daily candlesticks from the Longport quote API.
type LongportClient struct {
	quoteCtx *quote.QuoteContext
}

func NewLongportClient(appKey, appSecret, accessToken string) (*LongportClient, error) {
	if appKey == "" || appSecret == "" || accessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}

	conf, err := lpconfig.New(lpconfig.WithConfigKey(appKey, appSecret, accessToken))
	if err != nil {
		return nil, err
	}

	quoteContext, err := quote.NewFromCfg(conf)
	if err != nil {
		return nil, err
	}

	return &LongportClient{quoteCtx: quoteContext}, nil
}

// History returns daily bars in [start, end). The quote API counts back from
// today, so enough sticks are requested to cover start and then filtered.
func (lpc *LongportClient) History(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	if lpc.quoteCtx == nil {
		return nil, errors.New("quote context is nil")
	}
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	count := int(time.Since(start).Hours()/24) + 1
	if count > 1000 {
		count = 1000
	}
	sticks, err := lpc.quoteCtx.Candlesticks(ctx, longportSymbol(symbol), quote.PeriodDay, int32(count), quote.AdjustTypeNo)
	if err != nil {
		return nil, err
	}

	bars := make([]models.PriceBar, 0, len(sticks))
	for _, stick := range sticks {
		ts := time.Unix(stick.Timestamp, 0).UTC()
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		bars = append(bars, models.PriceBar{
			Symbol: symbol,
			Date:   ts.Format(DateLayout),
			Open:   decOrZero(stick.Open),
			High:   decOrZero(stick.High),
			Low:    decOrZero(stick.Low),
			Close:  decOrZero(stick.Close),
			Volume: stick.Volume,
		})
	}
	return bars, nil
}

// longport symbols carry a market suffix; bare tickers are assumed US listed.
func longportSymbol(symbol string) string {
	for i := len(symbol) - 1; i >= 0; i-- {
		if symbol[i] == '.' {
			return symbol
		}
	}
	return symbol + ".US"
}

func decOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
