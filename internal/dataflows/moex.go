package dataflows

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/models"
)

const moexBaseURL = "https://iss.moex.com/iss"

// MOEXClient reads candles, security descriptions and dividends from the Moscow Exchange ISS API.
type MOEXClient struct {
	client   *resty.Client
	cache    *CacheManager
	retry    *RetryConfig
	lookBack int
	log      zerolog.Logger
}

func NewMOEXClient(cfg *config.Config, log zerolog.Logger) *MOEXClient {
	client := resty.New()
	client.SetBaseURL(moexBaseURL)
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "CortexDesk/1.0")

	return &MOEXClient{
		client:   client,
		cache:    NewCacheManager(filepath.Join(cfg.DataCacheDir, "moex"), 6*time.Hour, cfg.CacheEnabled),
		retry:    DefaultRetryConfig(),
		lookBack: 30,
		log:      log.With().Str("component", "moex").Logger(),
	}
}

// SetBaseURL points the client at another ISS host.
func (m *MOEXClient) SetBaseURL(url string) *MOEXClient {
	m.client.SetBaseURL(url)
	return m
}

func (m *MOEXClient) SetRetry(rc *RetryConfig) *MOEXClient {
	m.retry = rc
	return m
}

// issBlock is the columns+data table layout every ISS endpoint returns.
type issBlock struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

func (b issBlock) rows() []map[string]any {
	out := make([]map[string]any, 0, len(b.Data))
	for _, row := range b.Data {
		item := make(map[string]any, len(b.Columns))
		for i, col := range b.Columns {
			if i < len(row) {
				item[col] = row[i]
			}
		}
		out = append(out, item)
	}
	return out
}

func (m *MOEXClient) get(ctx context.Context, endpoint string, params map[string]string) (map[string]issBlock, error) {
	var blocks map[string]issBlock
	err := WithRetry(ctx, m.retry, func() error {
		resp, err := m.client.R().
			SetContext(ctx).
			SetQueryParams(params).
			Get("/" + endpoint + ".json")
		if err != nil {
			return fmt.Errorf("%w: moex %s: %v", ErrUnavailable, endpoint, err)
		}
		switch {
		case resp.StatusCode() == http.StatusNotFound:
			return Permanent(fmt.Errorf("%w: moex %s", ErrNotFound, endpoint))
		case resp.StatusCode() != http.StatusOK:
			return fmt.Errorf("%w: moex %s: http %d", ErrUnavailable, endpoint, resp.StatusCode())
		}

		dec := json.NewDecoder(bytes.NewReader(resp.Body()))
		dec.UseNumber()
		blocks = map[string]issBlock{}
		if err := dec.Decode(&blocks); err != nil {
			return Permanent(fmt.Errorf("%w: moex %s: decode: %v", ErrUnavailable, endpoint, err))
		}
		return nil
	})
	return blocks, err
}

// Candles returns daily bars for secid between from and till inclusive, oldest first.
func (m *MOEXClient) Candles(ctx context.Context, secid string, from, till time.Time) ([]models.Bar, error) {
	secid = NormalizeSymbol(secid)
	params := map[string]string{
		"from":     from.Format(consts.DateLayout),
		"till":     till.Format(consts.DateLayout),
		"interval": "24",
	}

	var cached []models.Bar
	if m.cache.Get("moex", "candles", map[string]string{"secid": secid, "from": params["from"], "till": params["till"]}, &cached) {
		return cached, nil
	}

	blocks, err := m.get(ctx, fmt.Sprintf("engines/stock/markets/shares/securities/%s/candles", secid), params)
	if err != nil {
		return nil, err
	}

	var bars []models.Bar
	for _, row := range blocks["candles"].rows() {
		begin := asString(row["begin"])
		if len(begin) >= 10 {
			begin = begin[:10]
		}
		bars = append(bars, models.Bar{
			Date:   begin,
			Open:   asDecimal(row["open"]),
			High:   asDecimal(row["high"]),
			Low:    asDecimal(row["low"]),
			Close:  asDecimal(row["close"]),
			Volume: asDecimal(row["volume"]).IntPart(),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: no moex candles for %s", ErrNotFound, secid)
	}

	if err := m.cache.Set("moex", "candles", map[string]string{"secid": secid, "from": params["from"], "till": params["till"]}, bars); err != nil {
		m.log.Warn().Err(err).Msg("cache write failed")
	}
	return bars, nil
}

// Description returns the security description fields keyed by ISS field name.
func (m *MOEXClient) Description(ctx context.Context, secid string) (map[string]string, error) {
	secid = NormalizeSymbol(secid)
	blocks, err := m.get(ctx, "securities/"+secid, nil)
	if err != nil {
		return nil, err
	}
	info := map[string]string{}
	for _, row := range blocks["description"].rows() {
		name, value := asString(row["name"]), asString(row["value"])
		if name != "" && value != "" {
			info[name] = value
		}
	}
	if len(info) == 0 {
		return nil, fmt.Errorf("%w: unknown moex security %s", ErrNotFound, secid)
	}
	return info, nil
}

type Dividend struct {
	RegistryCloseDate string          `json:"registry_close_date"`
	Value             decimal.Decimal `json:"value"`
	Currency          string          `json:"currency"`
}

func (m *MOEXClient) Dividends(ctx context.Context, secid string) ([]Dividend, error) {
	secid = NormalizeSymbol(secid)
	blocks, err := m.get(ctx, fmt.Sprintf("securities/%s/dividends", secid), nil)
	if err != nil {
		return nil, err
	}
	var out []Dividend
	for _, row := range blocks["dividends"].rows() {
		out = append(out, Dividend{
			RegistryCloseDate: asString(row["registryclosedate"]),
			Value:             asDecimal(row["value"]),
			Currency:          asString(row["currencyid"]),
		})
	}
	return out, nil
}

func (m *MOEXClient) Fetch(ctx context.Context, ticker, date string, category Category) (*Dataset, error) {
	asOf, err := time.Parse(consts.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	ds := &Dataset{Ticker: NormalizeSymbol(ticker), Date: date, Category: category, Source: "MOEX ISS"}

	switch category {
	case CategoryMarket:
		bars, err := m.Candles(ctx, ticker, asOf.AddDate(0, 0, -m.lookBack), asOf)
		if err != nil {
			return nil, err
		}
		ds.Bars = bars
		ds.Facts = summarizeBars(bars)
	case CategoryFundamentals:
		info, err := m.Description(ctx, ticker)
		if err != nil {
			return nil, err
		}
		ds.Facts = info
		divs, err := m.Dividends(ctx, ticker)
		if err != nil {
			// dividends are optional context
			m.log.Warn().Err(err).Str("ticker", ds.Ticker).Msg("dividends unavailable")
		}
		for _, d := range lastN(divs, 5) {
			ds.Facts["dividend "+d.RegistryCloseDate] = strings.TrimSpace(d.Value.String() + " " + d.Currency)
		}
	default:
		return nil, fmt.Errorf("%w: moex has no %s data", ErrNotFound, category)
	}
	return ds, nil
}

// summarizeBars adds the period change and range so the analyst need not compute them.
func summarizeBars(bars []models.Bar) map[string]string {
	if len(bars) == 0 {
		return nil
	}
	first, last := bars[0], bars[len(bars)-1]
	high, low := first.High, first.Low
	for _, b := range bars {
		high = decimal.Max(high, b.High)
		low = decimal.Min(low, b.Low)
	}
	facts := map[string]string{
		"last_close":   last.Close.String(),
		"period_high":  high.String(),
		"period_low":   low.String(),
		"period_start": first.Date,
		"period_end":   last.Date,
	}
	if !first.Open.IsZero() {
		change := last.Close.Sub(first.Open).Div(first.Open).Mul(decimal.NewFromInt(100))
		facts["period_change_pct"] = change.StringFixed(2)
	}
	return facts
}

func lastN[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func asDecimal(v any) decimal.Decimal {
	s := asString(v)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
