package models

import (
	"errors"
	"fmt"
	"sync"
)

// Text fields of AnalysisState. Each is written at most once per run.
const (
	FieldMarketReport       = "market_report"
	FieldSocialReport       = "social_report"
	FieldNewsReport         = "news_report"
	FieldFundamentalsReport = "fundamentals_report"
	FieldResearchDecision   = "research_decision"
	FieldTraderPlan         = "trader_plan"
	FieldRiskDecision       = "risk_decision"
	FieldFinalDecision      = "final_decision"
)

var textFields = map[string]bool{
	FieldMarketReport:       true,
	FieldSocialReport:       true,
	FieldNewsReport:         true,
	FieldFundamentalsReport: true,
	FieldResearchDecision:   true,
	FieldTraderPlan:         true,
	FieldRiskDecision:       true,
	FieldFinalDecision:      true,
}

var (
	ErrFieldWritten = errors.New("state field already written")
	ErrUnknownField = errors.New("unknown state field")
)

// AnalysisState is the per-run analysis record. It belongs to exactly one pipeline run.
// Analysts write to it concurrently, so every access goes through the mutex.
type AnalysisState struct {
	mu       sync.RWMutex
	ticker   string
	date     string
	fields   map[string]string
	research *DebateTranscript
	risk     *DebateTranscript
}

func NewAnalysisState(ticker, date string) *AnalysisState {
	return &AnalysisState{
		ticker: ticker,
		date:   date,
		fields: make(map[string]string, len(textFields)),
	}
}

func (s *AnalysisState) Ticker() string { return s.ticker }

func (s *AnalysisState) Date() string { return s.date }

// Set writes a text field. Writing the same field twice returns ErrFieldWritten.
func (s *AnalysisState) Set(field, value string) error {
	if !textFields[field] {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fields[field]; ok {
		return fmt.Errorf("%w: %s", ErrFieldWritten, field)
	}
	s.fields[field] = value
	return nil
}

func (s *AnalysisState) Get(field string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fields[field]
}

func (s *AnalysisState) Has(field string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.fields[field]
	return ok
}

// SetDebate stores the finished transcript of a debate. The stored copy is frozen.
func (s *AnalysisState) SetDebate(t *DebateTranscript) error {
	if t == nil {
		return errors.New("nil debate transcript")
	}
	cp := t.Clone()
	cp.Freeze()

	s.mu.Lock()
	defer s.mu.Unlock()
	var slot **DebateTranscript
	switch t.Kind {
	case ResearchDebate:
		slot = &s.research
	case RiskDebate:
		slot = &s.risk
	default:
		return fmt.Errorf("%w: %s debate", ErrUnknownField, t.Kind)
	}
	if *slot != nil {
		return fmt.Errorf("%w: %s_debate_transcript", ErrFieldWritten, t.Kind)
	}
	*slot = cp
	return nil
}

// Debate returns a copy of the stored transcript, or nil if the debate has not finished.
func (s *AnalysisState) Debate(kind DebateKind) *DebateTranscript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case ResearchDebate:
		return s.research.Clone()
	case RiskDebate:
		return s.risk.Clone()
	}
	return nil
}

// Snapshot is an immutable copy of AnalysisState, safe to hand out after the run.
type Snapshot struct {
	Ticker             string            `json:"ticker"`
	AnalysisDate       string            `json:"analysis_date"`
	MarketReport       string            `json:"market_report,omitempty"`
	SocialReport       string            `json:"social_report,omitempty"`
	NewsReport         string            `json:"news_report,omitempty"`
	FundamentalsReport string            `json:"fundamentals_report,omitempty"`
	ResearchDebate     *DebateTranscript `json:"research_debate_transcript,omitempty"`
	ResearchDecision   string            `json:"research_decision,omitempty"`
	TraderPlan         string            `json:"trader_plan,omitempty"`
	RiskDebate         *DebateTranscript `json:"risk_debate_transcript,omitempty"`
	RiskDecision       string            `json:"risk_decision,omitempty"`
	FinalDecision      string            `json:"final_decision,omitempty"`
}

func (s *AnalysisState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Ticker:             s.ticker,
		AnalysisDate:       s.date,
		MarketReport:       s.fields[FieldMarketReport],
		SocialReport:       s.fields[FieldSocialReport],
		NewsReport:         s.fields[FieldNewsReport],
		FundamentalsReport: s.fields[FieldFundamentalsReport],
		ResearchDebate:     s.research.Clone(),
		ResearchDecision:   s.fields[FieldResearchDecision],
		TraderPlan:         s.fields[FieldTraderPlan],
		RiskDebate:         s.risk.Clone(),
		RiskDecision:       s.fields[FieldRiskDecision],
		FinalDecision:      s.fields[FieldFinalDecision],
	}
}

// Reports returns the non-empty analyst reports keyed by field name.
func (s Snapshot) Reports() map[string]string {
	out := map[string]string{}
	for field, value := range map[string]string{
		FieldMarketReport:       s.MarketReport,
		FieldSocialReport:       s.SocialReport,
		FieldNewsReport:         s.NewsReport,
		FieldFundamentalsReport: s.FundamentalsReport,
	} {
		if value != "" {
			out[field] = value
		}
	}
	return out
}
