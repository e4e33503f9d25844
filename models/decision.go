package models

import "strings"

// Recommendation is the normalised trading action extracted from a final decision.
type Recommendation string

const (
	Buy  Recommendation = "BUY"
	Hold Recommendation = "HOLD"
	Sell Recommendation = "SELL"
)

// Recommendations lists the actions in display order.
var Recommendations = []Recommendation{Buy, Hold, Sell}

// ParseRecommendation accepts English and Russian spellings. Unknown input maps to HOLD.
func ParseRecommendation(s string) Recommendation {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "ПОКУПАТЬ", "ПОКУПКА":
		return Buy
	case "SELL", "ПРОДАВАТЬ", "ПРОДАЖА":
		return Sell
	default:
		return Hold
	}
}

type TradingDecision struct {
	Symbol     string         `json:"symbol"`
	Date       string         `json:"date"`
	Timestamp  string         `json:"timestamp"`
	Action     Recommendation `json:"action"`
	Confidence float64        `json:"confidence"`
	Reasoning  string         `json:"reasoning"`
	EntryPrice float64        `json:"entry_price,omitempty"`
	StopLoss   float64        `json:"stop_loss,omitempty"`
	TakeProfit float64        `json:"take_profit,omitempty"`
}
