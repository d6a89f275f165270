package models

import "github.com/shopspring/decimal"

// PriceBar is one daily OHLCV row.
type PriceBar struct {
	Symbol string          `json:"symbol"`
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NewsItem is a headline returned by a news source.
type NewsItem struct {
	Headline  string `json:"headline"`
	Summary   string `json:"summary"`
	Source    string `json:"source"`
	URL       string `json:"url"`
	Published string `json:"published"`
}
