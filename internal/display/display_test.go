package display

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/internal/graph"
	"github.com/dyike/CortexDesk/models"
)

func doneResult() *graph.RunResult {
	tr := models.NewDebateTranscript(models.ResearchDebate)
	_ = tr.Append(models.DebateTurn{Round: 1, Speaker: "Bull Analyst", Statement: "growth"})
	_ = tr.Append(models.DebateTurn{Round: 1, Speaker: "Bear Analyst", Skipped: true, Failure: models.ReasonerTimeout})
	tr.Rounds = 1
	return &graph.RunResult{
		RunID:  "run-1",
		Ticker: "SBER",
		Date:   "2025-01-10",
		Phase:  models.PhaseDone,
		State: models.Snapshot{
			Ticker:           "SBER",
			MarketReport:     "uptrend",
			ResearchDebate:   tr,
			ResearchDecision: "go long",
		},
		FinalDecision: "FINAL TRANSACTION PROPOSAL: **BUY**",
		Decision:      &models.TradingDecision{Action: models.Buy, Confidence: 0.8},
	}
}

func TestRenderRunDone(t *testing.T) {
	out := NewResultsDisplay(nil).RenderRun(doneResult())

	for _, want := range []string{"SBER", "2025-01-10", "BUY", "80%", "uptrend", "growth", "skipped", "ReasonerTimeout", "go long", "FINAL DECISION"} {
		assert.Contains(t, out, want)
	}
}

func TestRenderRunFailedHidesDecision(t *testing.T) {
	res := doneResult()
	res.Phase = models.PhaseFailed
	res.FailedPhase = models.PhaseTrader
	res.Failure = &models.StageFailure{Kind: models.ReasonerError, Phase: models.PhaseTrader}
	res.FinalDecision = ""
	res.Decision = nil

	out := NewResultsDisplay(nil).RenderRun(res)
	assert.Contains(t, out, "failed in phase trader")
	assert.Contains(t, out, "ReasonerError")
	assert.NotContains(t, out, "FINAL DECISION")
}

func TestClip(t *testing.T) {
	d := NewResultsDisplay(nil)
	long := strings.Repeat("я", clipRunes+10)
	assert.Len(t, []rune(d.clip(long)), clipRunes+2)

	d.Full = true
	assert.Equal(t, long, d.clip(long))
}

func TestDisplayPortfolio(t *testing.T) {
	outcomes := []models.TickerOutcome{
		{Ticker: "SBER", Phase: models.PhaseDone, Decision: &models.TradingDecision{Action: models.Buy}},
		{Ticker: "GAZP", Phase: models.PhaseFailed, FailedPhase: models.PhaseTrader,
			Failure: &models.StageFailure{Kind: models.ReasonerError}},
	}
	res := &models.PortfolioResult{Date: "2025-01-10", Outcomes: outcomes, Summary: models.Summarize(outcomes)}

	var buf bytes.Buffer
	NewResultsDisplay(&buf).DisplayPortfolio(res)
	out := buf.String()
	assert.Contains(t, out, "2 tickers, 1 succeeded, 1 failed")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "ReasonerError in trader")
	assert.Contains(t, out, "BUY: 1")
	assert.Contains(t, out, "SELL: 0")
}

func TestSaveResultsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "SBER.json")
	require.NoError(t, SaveResultsToFile(doneResult(), path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "SBER", decoded["ticker"])
	assert.Equal(t, "done", decoded["phase"])
}
