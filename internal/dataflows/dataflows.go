// Package dataflows fetches the market, fundamentals, news and sentiment data the analysts reason over.
package dataflows

import (
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
)

// NewDefaultProvider wires the Russian market sources with Yahoo as fallback:
// MOEX ISS for quotes and fundamentals, RBC for news and Smart-Lab for investor sentiment.
func NewDefaultProvider(cfg *config.Config, log zerolog.Logger) *Router {
	moex := NewMOEXClient(cfg, log)
	yahoo := NewYahooFinanceClient(cfg, log)
	return &Router{
		Market:       []Provider{moex, yahoo},
		Fundamentals: []Provider{moex, yahoo},
		News:         NewRBCClient(cfg, log),
		Sentiment:    NewSmartLabClient(cfg, log),
	}
}
