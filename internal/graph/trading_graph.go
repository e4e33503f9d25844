package graph

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/internal/dataflows"
	"github.com/dyike/CortexDesk/internal/reasoner"
	"github.com/dyike/CortexDesk/internal/utils"
	"github.com/dyike/CortexDesk/models"
)

// TradingAgentsGraph wires the live reasoners and data providers into an Engine and
// writes the per-run state log next to the results.
type TradingAgentsGraph struct {
	config *config.Config
	engine *Engine
	log    zerolog.Logger
}

// NewTradingAgentsGraph builds the full stack for cfg. Extra options are passed to the engine.
func NewTradingAgentsGraph(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts ...Option) (*TradingAgentsGraph, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pair, err := reasoner.NewPair(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("create reasoners: %w", err)
	}
	team, err := agents.NewTeam(cfg, pair, dataflows.NewDefaultProvider(cfg, log))
	if err != nil {
		return nil, fmt.Errorf("build stages: %w", err)
	}
	return NewTradingAgentsGraphWithEngine(cfg, NewEngine(cfg, team, append([]Option{WithLogger(log)}, opts...)...), log), nil
}

// NewTradingAgentsGraphWithEngine wraps an already built engine.
func NewTradingAgentsGraphWithEngine(cfg *config.Config, engine *Engine, log zerolog.Logger) *TradingAgentsGraph {
	return &TradingAgentsGraph{config: cfg.Clone(), engine: engine, log: log}
}

// Run executes one ticker and writes its state log when enabled. A failing log write is
// logged and does not change the run outcome.
func (g *TradingAgentsGraph) Run(ctx context.Context, symbol, date string) *RunResult {
	res := g.engine.Run(ctx, symbol, date)
	// rejected runs may not even have a usable ticker to name the directory after
	if g.config.LogStates && (res.Failure == nil || res.Failure.Kind != models.ConfigInvalid) {
		if path, err := g.WriteStateLog(res); err != nil {
			g.log.Warn().Err(err).Str("ticker", res.Ticker).Msg("write state log")
		} else {
			g.log.Debug().Str("path", path).Msg("state log written")
		}
	}
	return res
}

// Propagate runs one ticker and returns the failure as an error.
func (g *TradingAgentsGraph) Propagate(ctx context.Context, symbol, date string) (*RunResult, error) {
	res := g.Run(ctx, symbol, date)
	if !res.Done() {
		return res, res.Failure
	}
	return res, nil
}

type configUsed struct {
	LLMProvider     string   `json:"llm_provider"`
	DeepThinkLLM    string   `json:"deep_think_llm"`
	QuickThinkLLM   string   `json:"quick_think_llm"`
	MaxDebateRounds int      `json:"max_debate_rounds"`
	MaxRiskRounds   int      `json:"max_risk_rounds"`
	MaxRecurLimit   int      `json:"max_recursion_limit"`
	Analysts        []string `json:"selected_analysts"`
}

type stateLogEntry struct {
	RunID         string                  `json:"run_id"`
	Phase         models.Phase            `json:"phase"`
	FailedPhase   models.Phase            `json:"failed_phase,omitempty"`
	Failure       string                  `json:"failure,omitempty"`
	State         models.Snapshot         `json:"state"`
	Decision      *models.TradingDecision `json:"decision,omitempty"`
	Invocations   int                     `json:"invocations"`
	DurationSec   float64                 `json:"duration_seconds"`
	ConfigUsed    configUsed              `json:"config_used"`
	InvestmentLog string                  `json:"investment_debate_history,omitempty"`
	RiskLog       string                  `json:"risk_debate_history,omitempty"`
}

// WriteStateLog stores the run as results/<TICKER>/TradingStrategy_logs/full_states_log_<date>.json,
// keyed by the analysis date.
func (g *TradingAgentsGraph) WriteStateLog(res *RunResult) (string, error) {
	entry := stateLogEntry{
		RunID:       res.RunID,
		Phase:       res.Phase,
		FailedPhase: res.FailedPhase,
		State:       res.State,
		Decision:    res.Decision,
		Invocations: res.Invocations,
		DurationSec: res.Duration.Seconds(),
		ConfigUsed: configUsed{
			LLMProvider:     g.config.LLMProvider,
			DeepThinkLLM:    g.config.DeepThinkLLM,
			QuickThinkLLM:   g.config.QuickThinkLLM,
			MaxDebateRounds: g.config.MaxDebateRounds,
			MaxRiskRounds:   g.config.MaxRiskDiscussRounds,
			MaxRecurLimit:   g.config.MaxRecurLimit,
			Analysts:        g.config.SelectedAnalysts,
		},
	}
	if res.Failure != nil {
		entry.Failure = res.Failure.Error()
	}
	if res.State.ResearchDebate != nil {
		entry.InvestmentLog = res.State.ResearchDebate.History()
	}
	if res.State.RiskDebate != nil {
		entry.RiskLog = res.State.RiskDebate.History()
	}

	dir := filepath.Join(g.config.ResultsDir, res.Ticker, "TradingStrategy_logs")
	return utils.WriteJSON(dir, fmt.Sprintf("full_states_log_%s.json", res.Date), map[string]stateLogEntry{res.Date: entry})
}
