package dataflows

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/models"
)

// RBC feeds: economics, stock market and business.
var RBCFeeds = []string{
	"https://rssexport.rbc.ru/rbcnews/news/20/full.rss",
	"https://rssexport.rbc.ru/rbcnews/news/stock/full.rss",
	"https://rssexport.rbc.ru/rbcnews/news/business/full.rss",
}

const SmartLabFeed = "https://smart-lab.ru/rss/"

// companyAliases maps MOEX tickers to the names Russian press uses for the issuer.
var companyAliases = map[string][]string{
	"SBER": {"сбербанк", "сбер"},
	"GAZP": {"газпром"},
	"LKOH": {"лукойл"},
	"YNDX": {"яндекс"},
	"ROSN": {"роснефть"},
	"NVTK": {"новатэк"},
	"PLZL": {"полюс"},
	"GMKN": {"норникель", "норильский никель"},
	"MGNT": {"магнит"},
	"MTSS": {"мтс"},
	"RTKM": {"ростелеком"},
	"AFLT": {"аэрофлот"},
	"VTBR": {"втб"},
	"TATN": {"татнефть"},
	"SNGS": {"сургутнефтегаз"},
	"NLMK": {"нлмк"},
	"CHMF": {"северсталь"},
	"ALRS": {"алроса"},
	"MOEX": {"мосбиржа", "московская биржа"},
}

// rssDocument mirrors the subset of RSS 2.0 the feeds use.
type rssDocument struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
}

// FeedClient collects headlines about a ticker from a set of RSS feeds.
type FeedClient struct {
	name     string
	feeds    []string
	client   *resty.Client
	cache    *CacheManager
	retry    *RetryConfig
	lookBack time.Duration
	maxItems int
	log      zerolog.Logger
}

func newFeedClient(cfg *config.Config, name string, feeds []string, log zerolog.Logger) *FeedClient {
	client := resty.New()
	client.SetTimeout(20 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; CortexDesk/1.0)")

	return &FeedClient{
		name:     name,
		feeds:    feeds,
		client:   client,
		cache:    NewCacheManager(filepath.Join(cfg.DataCacheDir, "rss"), 30*time.Minute, cfg.CacheEnabled),
		retry:    DefaultRetryConfig(),
		lookBack: 7 * 24 * time.Hour,
		maxItems: 20,
		log:      log.With().Str("component", "rss").Str("source", name).Logger(),
	}
}

func NewRBCClient(cfg *config.Config, log zerolog.Logger) *FeedClient {
	return newFeedClient(cfg, "RBC", RBCFeeds, log)
}

func NewSmartLabClient(cfg *config.Config, log zerolog.Logger) *FeedClient {
	return newFeedClient(cfg, "Smart-Lab", []string{SmartLabFeed}, log)
}

// SetFeeds replaces the feed URLs.
func (f *FeedClient) SetFeeds(feeds ...string) *FeedClient {
	f.feeds = feeds
	return f
}

func (f *FeedClient) SetRetry(rc *RetryConfig) *FeedClient {
	f.retry = rc
	return f
}

// Fetch returns the feed items mentioning the ticker or its issuer within the look-back window.
// An empty match list is a valid answer; only unreachable feeds are an error.
func (f *FeedClient) Fetch(ctx context.Context, ticker, date string, category Category) (*Dataset, error) {
	asOf, err := time.Parse(consts.DateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("parse date %q: %w", date, err)
	}
	ticker = NormalizeSymbol(ticker)
	until := asOf.Add(24 * time.Hour)
	since := asOf.Add(-f.lookBack)

	var (
		items  []models.NewsItem
		failed int
	)
	for _, url := range f.feeds {
		feedItems, err := f.readFeed(ctx, url)
		if err != nil {
			failed++
			f.log.Warn().Err(err).Str("feed", url).Msg("feed read failed")
			continue
		}
		for _, it := range feedItems {
			published := parsePubDate(it.PubDate)
			if !published.IsZero() && (published.Before(since) || !published.Before(until)) {
				continue
			}
			summary := cleanHTML(it.Description)
			if !mentions(it.Title+" "+summary, ticker) {
				continue
			}
			pub := it.PubDate
			if !published.IsZero() {
				pub = published.Format("2006-01-02 15:04")
			}
			items = append(items, models.NewsItem{
				Source:    f.name,
				Title:     strings.TrimSpace(it.Title),
				Link:      strings.TrimSpace(it.Link),
				Summary:   truncate(summary, 400),
				Published: pub,
			})
		}
	}
	if failed == len(f.feeds) {
		return nil, fmt.Errorf("%w: all %s feeds failed", ErrUnavailable, f.name)
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Published > items[j].Published })
	items = dedupeNews(items)
	if len(items) > f.maxItems {
		items = items[:f.maxItems]
	}
	return &Dataset{Ticker: ticker, Date: date, Category: category, Source: f.name, News: items}, nil
}

func (f *FeedClient) readFeed(ctx context.Context, url string) ([]rssItem, error) {
	var cached []rssItem
	if f.cache.Get("rss", "feed", url, &cached) {
		return cached, nil
	}

	var doc rssDocument
	err := WithRetry(ctx, f.retry, func() error {
		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		if resp.StatusCode() != http.StatusOK {
			return fmt.Errorf("fetch %s: http %d", url, resp.StatusCode())
		}
		if err := xml.Unmarshal(resp.Body(), &doc); err != nil {
			return Permanent(fmt.Errorf("parse %s: %w", url, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := f.cache.Set("rss", "feed", url, doc.Channel.Items); err != nil {
		f.log.Warn().Err(err).Msg("cache write failed")
	}
	return doc.Channel.Items, nil
}

func mentions(text, ticker string) bool {
	text = strings.ToLower(text)
	if strings.Contains(text, strings.ToLower(ticker)) {
		return true
	}
	for _, alias := range companyAliases[ticker] {
		if strings.Contains(text, alias) {
			return true
		}
	}
	return false
}

// CompanyName returns the first known press name of a MOEX ticker, or the ticker itself.
func CompanyName(ticker string) string {
	if aliases := companyAliases[NormalizeSymbol(ticker)]; len(aliases) > 0 {
		return aliases[0]
	}
	return ticker
}

func parsePubDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC1123Z, time.RFC1123, "Mon, 2 Jan 2006 15:04:05 -0700", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func cleanHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

func dedupeNews(items []models.NewsItem) []models.NewsItem {
	seen := map[string]bool{}
	out := items[:0]
	for _, it := range items {
		key := strings.ToLower(it.Title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, it)
	}
	return out
}
