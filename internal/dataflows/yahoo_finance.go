package dataflows

import (
	"context"
	"fmt"
	"time"

	"github.com/dyike/agenttrader/models"
	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

// YahooFinanceClient reads daily price history from Yahoo Finance.
type YahooFinanceClient struct {
	retry RetryPolicy
}

func NewYahooFinanceClient() *YahooFinanceClient {
	return &YahooFinanceClient{retry: DefaultRetryPolicy()}
}

// History returns daily bars in [start, end).
func (yf *YahooFinanceClient) History(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	var result []models.PriceBar
	err := yf.retry.Retry(ctx, func() error {
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}
		iter := chart.Get(params)

		result = result[:0]
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, models.PriceBar{
				Symbol: symbol,
				Date:   time.Unix(int64(bar.Timestamp), 0).UTC().Format(DateLayout),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("yahoo chart %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
