package dataflows

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	cfg.CacheEnabled = false
	return cfg
}

func fastRetry() *RetryConfig {
	return &RetryConfig{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

const candlesJSON = `{"candles": {
  "columns": ["open", "close", "high", "low", "value", "volume", "begin", "end"],
  "data": [
    [270.1, 275.5, 276.0, 269.8, 1.0e10, 36000000, "2025-01-08 00:00:00", "2025-01-08 23:59:59"],
    [275.5, 280.25, 281.0, 274.0, 1.2e10, 41000000, "2025-01-09 00:00:00", "2025-01-09 23:59:59"]
  ]}}`

func newISS(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/engines/stock/markets/shares/securities/SBER/candles.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "24", r.URL.Query().Get("interval"))
		assert.Equal(t, "2025-01-10", r.URL.Query().Get("till"))
		_, _ = w.Write([]byte(candlesJSON))
	})
	mux.HandleFunc("/engines/stock/markets/shares/securities/AAPL/candles.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candles": {"columns": ["open"], "data": []}}`))
	})
	mux.HandleFunc("/securities/SBER.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"description": {"columns": ["name", "title", "value"], "data": [
			["SECID", "Код ценной бумаги", "SBER"], ["NAME", "Полное наименование", "Сбербанк России ПАО ао"], ["ISIN", "ISIN код", ""]]}}`))
	})
	mux.HandleFunc("/securities/SBER/dividends.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"dividends": {"columns": ["secid", "registryclosedate", "value", "currencyid"], "data": [
			["SBER", "2024-07-11", 33.3, "RUB"]]}}`))
	})
	mux.HandleFunc("/engines/stock/markets/shares/securities/DOWN/candles.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMOEXMarketDataset(t *testing.T) {
	srv := newISS(t)
	client := NewMOEXClient(testConfig(t), zerolog.Nop()).SetBaseURL(srv.URL).SetRetry(fastRetry())

	ds, err := client.Fetch(context.Background(), "sber", "2025-01-10", CategoryMarket)
	require.NoError(t, err)
	require.Len(t, ds.Bars, 2)
	assert.Equal(t, "SBER", ds.Ticker)
	assert.Equal(t, "2025-01-09", ds.Bars[1].Date)
	assert.Equal(t, "280.25", ds.Bars[1].Close.String())
	assert.Equal(t, int64(41000000), ds.Bars[1].Volume)
	assert.Equal(t, "3.76", ds.Facts["period_change_pct"])
	assert.Equal(t, "281", ds.Facts["period_high"])
	assert.Contains(t, ds.Render(), "2025-01-08,270.1,276,269.8,275.5,36000000")
}

func TestMOEXFundamentals(t *testing.T) {
	srv := newISS(t)
	client := NewMOEXClient(testConfig(t), zerolog.Nop()).SetBaseURL(srv.URL).SetRetry(fastRetry())

	ds, err := client.Fetch(context.Background(), "SBER", "2025-01-10", CategoryFundamentals)
	require.NoError(t, err)
	assert.Equal(t, "Сбербанк России ПАО ао", ds.Facts["NAME"])
	assert.NotContains(t, ds.Facts, "ISIN")
	assert.Equal(t, "33.3 RUB", ds.Facts["dividend 2024-07-11"])
}

func TestMOEXErrors(t *testing.T) {
	srv := newISS(t)
	client := NewMOEXClient(testConfig(t), zerolog.Nop()).SetBaseURL(srv.URL).SetRetry(fastRetry())
	ctx := context.Background()

	_, err := client.Fetch(ctx, "AAPL", "2025-01-10", CategoryMarket)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.Fetch(ctx, "NOPE", "2025-01-10", CategoryFundamentals)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = client.Fetch(ctx, "DOWN", "2025-01-10", CategoryMarket)
	assert.ErrorIs(t, err, ErrUnavailable)

	_, err = client.Fetch(ctx, "SBER", "10.01.2025", CategoryMarket)
	assert.Error(t, err)
}

func TestRouterFallsBackOnNotFound(t *testing.T) {
	srv := newISS(t)
	moex := NewMOEXClient(testConfig(t), zerolog.Nop()).SetBaseURL(srv.URL).SetRetry(fastRetry())

	var fallbackCalls int
	fallback := ProviderFunc(func(ctx context.Context, ticker, date string, category Category) (*Dataset, error) {
		fallbackCalls++
		return &Dataset{Ticker: ticker, Date: date, Category: category, Source: "stub"}, nil
	})
	router := &Router{Market: []Provider{moex, fallback}}

	ds, err := router.Fetch(context.Background(), "AAPL", "2025-01-10", CategoryMarket)
	require.NoError(t, err)
	assert.Equal(t, "stub", ds.Source)

	ds, err = router.Fetch(context.Background(), "SBER", "2025-01-10", CategoryMarket)
	require.NoError(t, err)
	assert.Equal(t, "MOEX ISS", ds.Source)
	assert.Equal(t, 1, fallbackCalls)

	// unavailability is not masked by the fallback
	_, err = router.Fetch(context.Background(), "DOWN", "2025-01-10", CategoryMarket)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 1, fallbackCalls)

	_, err = router.Fetch(context.Background(), "SBER", "2025-01-10", CategoryNews)
	assert.ErrorIs(t, err, ErrUnavailable)
}
