package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeCountsOnlyDone(t *testing.T) {
	outcomes := []TickerOutcome{
		{Ticker: "SBER", Phase: PhaseDone, Decision: &TradingDecision{Action: Buy}},
		{Ticker: "GAZP", Phase: PhaseFailed, FailedPhase: PhaseTrader, Failure: NewStageFailure(ReasonerError, "trader", nil)},
		{Ticker: "LKOH", Phase: PhaseDone, Decision: &TradingDecision{Action: Sell}},
		{Ticker: "YNDX", Phase: PhaseDone},
	}

	s := Summarize(outcomes)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, map[Recommendation]int{Buy: 1, Sell: 1, Hold: 1}, s.Distribution)
}

func TestSummarizeAllFailed(t *testing.T) {
	s := Summarize([]TickerOutcome{
		{Ticker: "A", Phase: PhaseFailed, Failure: NewStageFailure(Cancelled, "", nil)},
		{Ticker: "B", Phase: PhaseFailed, Failure: NewStageFailure(Cancelled, "", nil)},
	})
	assert.Equal(t, 0, s.Succeeded)
	assert.Equal(t, 2, s.Failed)
	assert.Empty(t, s.Distribution)
}

func TestParseRecommendation(t *testing.T) {
	assert.Equal(t, Buy, ParseRecommendation(" buy "))
	assert.Equal(t, Sell, ParseRecommendation("ПРОДАВАТЬ"))
	assert.Equal(t, Buy, ParseRecommendation("покупать"))
	assert.Equal(t, Hold, ParseRecommendation("maybe"))
}
