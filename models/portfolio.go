package models

// TickerOutcome is the terminal result of one ticker inside a portfolio run.
type TickerOutcome struct {
	Ticker        string           `json:"ticker"`
	RunID         string           `json:"run_id,omitempty"`
	Phase         Phase            `json:"phase"`
	FinalDecision string           `json:"final_decision,omitempty"`
	Decision      *TradingDecision `json:"decision,omitempty"`
	Failure       *StageFailure    `json:"failure,omitempty"`
	FailedPhase   Phase            `json:"failed_phase,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Done reports whether the ticker reached the terminal success state.
func (o TickerOutcome) Done() bool {
	return o.Phase == PhaseDone && o.Failure == nil
}

// PortfolioSummary aggregates only the tickers that reached Done.
type PortfolioSummary struct {
	Total        int                    `json:"total"`
	Succeeded    int                    `json:"succeeded"`
	Failed       int                    `json:"failed"`
	Distribution map[Recommendation]int `json:"distribution"`
}

// PortfolioResult is immutable once returned by the runner.
type PortfolioResult struct {
	Date     string           `json:"date"`
	Outcomes []TickerOutcome  `json:"outcomes"`
	Summary  PortfolioSummary `json:"summary"`
}

// Outcome looks up a ticker's outcome.
func (r *PortfolioResult) Outcome(ticker string) (TickerOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Ticker == ticker {
			return o, true
		}
	}
	return TickerOutcome{}, false
}

// Summarize computes the aggregate over outcomes. Failed tickers never contribute to the distribution.
func Summarize(outcomes []TickerOutcome) PortfolioSummary {
	summary := PortfolioSummary{
		Total:        len(outcomes),
		Distribution: map[Recommendation]int{},
	}
	for _, o := range outcomes {
		if !o.Done() {
			summary.Failed++
			continue
		}
		summary.Succeeded++
		action := Hold
		if o.Decision != nil {
			action = o.Decision.Action
		}
		summary.Distribution[action]++
	}
	return summary
}
