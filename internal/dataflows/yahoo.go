package dataflows

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/models"
)

// YahooFinanceClient serves tickers that are not listed on MOEX.
type YahooFinanceClient struct {
	cache    *CacheManager
	retry    *RetryConfig
	lookBack int
	log      zerolog.Logger
}

func NewYahooFinanceClient(cfg *config.Config, log zerolog.Logger) *YahooFinanceClient {
	return &YahooFinanceClient{
		cache:    NewCacheManager(filepath.Join(cfg.DataCacheDir, "yahoo_finance"), 24*time.Hour, cfg.CacheEnabled),
		retry:    DefaultRetryConfig(),
		lookBack: 30,
		log:      log.With().Str("component", "yahoo").Logger(),
	}
}

// HistoricalBars returns daily bars between start and end.
func (yf *YahooFinanceClient) HistoricalBars(ctx context.Context, symbol string, start, end time.Time) ([]models.Bar, error) {
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	cacheKey := map[string]string{
		"symbol": symbol,
		"start":  start.Format(consts.DateLayout),
		"end":    end.Format(consts.DateLayout),
	}
	var cached []models.Bar
	if yf.cache.Get("yahoo", "historical", cacheKey, &cached) {
		return cached, nil
	}

	var result []models.Bar
	err := WithRetry(ctx, yf.retry, func() error {
		iter := chart.Get(&chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		})
		result = result[:0]
		for iter.Next() {
			bar := iter.Bar()
			result = append(result, models.Bar{
				Date:   time.Unix(int64(bar.Timestamp), 0).UTC().Format(consts.DateLayout),
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: int64(bar.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("%w: yahoo chart %s: %v", ErrUnavailable, symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: no yahoo bars for %s", ErrNotFound, symbol)
	}

	if err := yf.cache.Set("yahoo", "historical", cacheKey, result); err != nil {
		yf.log.Warn().Err(err).Msg("cache write failed")
	}
	return result, nil
}

// CompanyInfo returns the quote-level facts Yahoo exposes for a symbol.
func (yf *YahooFinanceClient) CompanyInfo(ctx context.Context, symbol string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = NormalizeSymbol(symbol)

	var cached map[string]string
	if yf.cache.Get("yahoo", "company_info", symbol, &cached) {
		return cached, nil
	}

	q, err := quote.Get(symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: yahoo quote %s: %v", ErrUnavailable, symbol, err)
	}
	if q == nil {
		return nil, fmt.Errorf("%w: unknown yahoo symbol %s", ErrNotFound, symbol)
	}

	info := map[string]string{
		"company_name":         q.ShortName,
		"exchange":             q.FullExchangeName,
		"currency":             q.CurrencyID,
		"market_state":         string(q.MarketState),
		"quote_type":           string(q.QuoteType),
		"regular_market_price": fmt.Sprintf("%.2f", q.RegularMarketPrice),
		"fifty_two_week_high":  fmt.Sprintf("%.2f", q.FiftyTwoWeekHigh),
		"fifty_two_week_low":   fmt.Sprintf("%.2f", q.FiftyTwoWeekLow),
	}
	if err := yf.cache.Set("yahoo", "company_info", symbol, info); err != nil {
		yf.log.Warn().Err(err).Msg("cache write failed")
	}
	return info, nil
}

func (yf *YahooFinanceClient) Fetch(ctx context.Context, ticker, date string, category Category) (*Dataset, error) {
	asOf, err := time.Parse(consts.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	ds := &Dataset{Ticker: NormalizeSymbol(ticker), Date: date, Category: category, Source: "Yahoo Finance"}

	switch category {
	case CategoryMarket:
		bars, err := yf.HistoricalBars(ctx, ticker, asOf.AddDate(0, 0, -yf.lookBack), asOf.AddDate(0, 0, 1))
		if err != nil {
			return nil, err
		}
		ds.Bars = bars
		ds.Facts = summarizeBars(bars)
	case CategoryFundamentals:
		info, err := yf.CompanyInfo(ctx, ticker)
		if err != nil {
			return nil, err
		}
		ds.Facts = info
	default:
		return nil, fmt.Errorf("%w: yahoo has no %s data", ErrNotFound, category)
	}
	return ds, nil
}
