package dataflows

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dyike/CortexDesk/models"
)

// Category selects which kind of data an analyst needs.
type Category string

const (
	CategoryMarket       Category = "market"
	CategoryNews         Category = "news"
	CategoryFundamentals Category = "fundamentals"
	CategorySentiment    Category = "sentiment"
)

var (
	// ErrNotFound means the source answered but knows nothing about the ticker.
	ErrNotFound = errors.New("data not found")
	// ErrUnavailable means the source could not be reached or returned garbage.
	ErrUnavailable = errors.New("data provider unavailable")
)

// Dataset is what a provider hands to an analyst prompt.
type Dataset struct {
	Ticker   string            `json:"ticker"`
	Date     string            `json:"date"`
	Category Category          `json:"category"`
	Source   string            `json:"source"`
	Bars     []models.Bar      `json:"bars,omitempty"`
	News     []models.NewsItem `json:"news,omitempty"`
	Facts    map[string]string `json:"facts,omitempty"`
}

// Provider fetches data for one ticker as of a date.
type Provider interface {
	Fetch(ctx context.Context, ticker, date string, category Category) (*Dataset, error)
}

// ProviderFunc lets a function act as a Provider.
type ProviderFunc func(ctx context.Context, ticker, date string, category Category) (*Dataset, error)

func (f ProviderFunc) Fetch(ctx context.Context, ticker, date string, category Category) (*Dataset, error) {
	return f(ctx, ticker, date, category)
}

// Render formats the dataset as plain text for a prompt.
func (d *Dataset) Render() string {
	if d == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s data for %s as of %s (source: %s)\n", d.Category, d.Ticker, d.Date, d.Source)

	if len(d.Facts) > 0 {
		keys := make([]string, 0, len(d.Facts))
		for k := range d.Facts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\n## Facts\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "- %s: %s\n", k, d.Facts[k])
		}
	}

	if len(d.Bars) > 0 {
		sb.WriteString("\n## Daily bars\nDate,Open,High,Low,Close,Volume\n")
		for _, b := range d.Bars {
			fmt.Fprintf(&sb, "%s,%s,%s,%s,%s,%d\n", b.Date, b.Open, b.High, b.Low, b.Close, b.Volume)
		}
	}

	if len(d.News) > 0 {
		sb.WriteString("\n## Headlines\n")
		for _, n := range d.News {
			fmt.Fprintf(&sb, "- [%s] %s (%s)", n.Published, n.Title, n.Source)
			if n.Summary != "" {
				fmt.Fprintf(&sb, ": %s", n.Summary)
			}
			sb.WriteString("\n")
		}
	} else if d.Category == CategoryNews || d.Category == CategorySentiment {
		sb.WriteString("\nNo relevant publications in the look-back window.\n")
	}
	return sb.String()
}

// Router sends each category to its source. Market and fundamentals try the
// primary exchange first and fall back when the ticker is unknown there.
type Router struct {
	Market       []Provider
	Fundamentals []Provider
	News         Provider
	Sentiment    Provider
}

func (r *Router) Fetch(ctx context.Context, ticker, date string, category Category) (*Dataset, error) {
	switch category {
	case CategoryMarket:
		return firstFound(ctx, r.Market, ticker, date, category)
	case CategoryFundamentals:
		return firstFound(ctx, r.Fundamentals, ticker, date, category)
	case CategoryNews:
		if r.News == nil {
			return nil, fmt.Errorf("%w: no news source configured", ErrUnavailable)
		}
		return r.News.Fetch(ctx, ticker, date, category)
	case CategorySentiment:
		if r.Sentiment == nil {
			return nil, fmt.Errorf("%w: no sentiment source configured", ErrUnavailable)
		}
		return r.Sentiment.Fetch(ctx, ticker, date, category)
	}
	return nil, fmt.Errorf("unknown data category %q", category)
}

func firstFound(ctx context.Context, chain []Provider, ticker, date string, category Category) (*Dataset, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w: no %s source configured", ErrUnavailable, category)
	}
	var lastErr error
	for _, p := range chain {
		ds, err := p.Fetch(ctx, ticker, date, category)
		if err == nil {
			return ds, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
