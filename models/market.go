package models

import "github.com/shopspring/decimal"

// Bar is one daily OHLCV candle.
type Bar struct {
	Date   string          `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NewsItem is one headline from a news feed.
type NewsItem struct {
	Source    string `json:"source"`
	Title     string `json:"title"`
	Link      string `json:"link"`
	Summary   string `json:"summary,omitempty"`
	Published string `json:"published"`
}
