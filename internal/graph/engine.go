package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/internal/dataflows"
	"github.com/dyike/CortexDesk/internal/processing"
	"github.com/dyike/CortexDesk/models"
)

// RunResult is the outcome of one pipeline run. A failed run never carries a final decision.
type RunResult struct {
	RunID         string                  `json:"run_id"`
	Ticker        string                  `json:"ticker"`
	Date          string                  `json:"date"`
	Phase         models.Phase            `json:"phase"`
	FailedPhase   models.Phase            `json:"failed_phase,omitempty"`
	State         models.Snapshot         `json:"state"`
	FinalDecision string                  `json:"final_decision,omitempty"`
	Decision      *models.TradingDecision `json:"decision,omitempty"`
	Failure       *models.StageFailure    `json:"failure,omitempty"`
	Invocations   int                     `json:"invocations"`
	Duration      time.Duration           `json:"duration"`
}

// Done is the one check for a successful run.
func (r *RunResult) Done() bool {
	return r != nil && r.Phase == models.PhaseDone && r.Failure == nil
}

// Option configures an Engine.
type Option func(*Engine)

func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine drives one ticker through the phase state machine
// analyst -> research_debate -> trader -> risk_debate -> portfolio -> done.
// It holds no per-run state, so one Engine may serve many concurrent runs.
type Engine struct {
	cfg       config.Config
	team      *agents.Team
	processor *processing.SignalProcessor
	observer  Observer
	log       zerolog.Logger
}

// NewEngine copies cfg; later changes to the caller's config do not affect the engine.
func NewEngine(cfg *config.Config, team *agents.Team, opts ...Option) *Engine {
	e := &Engine{
		team:      team,
		processor: processing.NewSignalProcessor(),
		log:       zerolog.Nop(),
	}
	if cfg != nil {
		e.cfg = *cfg.Clone()
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() *config.Config {
	return e.cfg.Clone()
}

// run carries what belongs to a single execution.
type run struct {
	info  RunInfo
	state *models.AnalysisState
	step  *stepper
	log   zerolog.Logger
	// signals of the portfolio manager, read by the signal processor
	signals map[string]any
}

// Run executes the pipeline for ticker on date. It always returns a result; failures are
// reported through RunResult.Failure, never as a panic.
func (e *Engine) Run(ctx context.Context, ticker, date string) *RunResult {
	start := time.Now()
	ticker = dataflows.NormalizeSymbol(ticker)
	r := &run{
		info:  RunInfo{RunID: uuid.NewString(), Ticker: ticker, Date: date},
		state: models.NewAnalysisState(ticker, date),
	}
	r.log = e.log.With().Str("run_id", r.info.RunID).Str("ticker", ticker).Logger()
	res := &RunResult{RunID: r.info.RunID, Ticker: ticker, Date: date}

	if err := e.validate(ticker, date); err != nil {
		res.Phase = models.PhaseFailed
		res.FailedPhase = models.PhaseAnalyst
		res.Failure = &models.StageFailure{Kind: models.ConfigInvalid, Phase: models.PhaseAnalyst, Cause: err}
		res.State = r.state.Snapshot()
		res.Duration = time.Since(start)
		r.log.Error().Err(err).Msg("run rejected before any stage")
		if e.observer != nil {
			e.observer.OnRunEnd(ctx, res)
		}
		return res
	}

	r.step = &stepper{
		runID:    r.info.RunID,
		budget:   NewRecursionBudget(e.cfg.MaxRecurLimit),
		observer: e.observer,
		log:      r.log,
	}
	if e.observer != nil {
		e.observer.OnRunStart(ctx, r.info)
	}

	phase := models.PhaseAnalyst
	for phase != models.PhaseDone {
		var failure *models.StageFailure
		if err := ctx.Err(); err != nil {
			failure = models.NewStageFailure(models.Cancelled, "", err)
		} else {
			failure = e.runPhase(ctx, r, phase)
		}
		if failure == nil {
			failure = e.checkAdvance(r.state, phase)
		}
		if failure != nil {
			failure.Phase = phase
			res.Phase = models.PhaseFailed
			res.FailedPhase = phase
			res.Failure = failure
			break
		}
		r.log.Debug().Str("phase", string(phase)).Msg("phase complete")
		phase = nextPhase(phase)
	}

	res.State = r.state.Snapshot()
	res.Invocations = r.step.budget.Used()
	if res.Failure == nil {
		res.Phase = models.PhaseDone
		res.FinalDecision = res.State.FinalDecision
		res.Decision = e.processor.Process(ticker, date, res.FinalDecision, r.signals)
	} else {
		// a failed run carries no decision even if the field got written before the abort
		res.State.FinalDecision = ""
	}
	res.Duration = time.Since(start)

	if e.observer != nil {
		e.observer.OnRunEnd(ctx, res)
	}
	return res
}

func (e *Engine) validate(ticker, date string) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if err := e.team.Validate(&e.cfg); err != nil {
		return err
	}
	if err := dataflows.ValidateSymbol(ticker); err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if _, err := time.Parse(consts.DateLayout, date); err != nil {
		return fmt.Errorf("%w: analysis date %q: %v", config.ErrInvalid, date, err)
	}
	return nil
}

func nextPhase(p models.Phase) models.Phase {
	for i, ph := range models.Phases {
		if ph == p && i+1 < len(models.Phases) {
			return models.Phases[i+1]
		}
	}
	return models.PhaseDone
}

func (e *Engine) runPhase(ctx context.Context, r *run, phase models.Phase) *models.StageFailure {
	in := agents.Input{State: r.state, Config: &e.cfg}
	logic := NewConditionalLogic(&e.cfg)

	switch phase {
	case models.PhaseAnalyst:
		return e.runAnalysts(ctx, r, in)
	case models.PhaseResearchDebate:
		return e.debate(ctx, r, phase, models.ResearchDebate, e.team.ResearchDebaters, e.team.ResearchManager, logic, in)
	case models.PhaseTrader:
		return r.single(ctx, phase, e.team.Trader, in)
	case models.PhaseRiskDebate:
		return e.debate(ctx, r, phase, models.RiskDebate, e.team.RiskDebaters, e.team.RiskManager, logic, in)
	case models.PhasePortfolio:
		res := r.step.invoke(ctx, phase, e.team.PortfolioManager, in)
		if !res.OK() {
			return res.Failure
		}
		r.signals = res.Signals
		return nil
	}
	return models.NewStageFailure(models.ConfigInvalid, "", fmt.Errorf("unknown phase %q", phase))
}

func (r *run) single(ctx context.Context, phase models.Phase, stage agents.Stage, in agents.Input) *models.StageFailure {
	res := r.step.invoke(ctx, phase, stage, in)
	return res.Failure
}

func (e *Engine) debate(ctx context.Context, r *run, phase models.Phase, kind models.DebateKind,
	participants []agents.Stage, arbiter agents.Stage, logic *ConditionalLogic, in agents.Input) *models.StageFailure {
	loop := &DebateLoop{
		Kind:         kind,
		Phase:        phase,
		Participants: participants,
		Arbiter:      arbiter,
		MaxRounds:    logic.MaxRounds(kind),
		Budget:       r.step.budget,
		Observer:     r.step.observer,
		RunID:        r.info.RunID,
		Log:          r.log,
	}
	_, failure := loop.Run(ctx, in)
	return failure
}

// runAnalysts runs the selected analysts concurrently. They write disjoint fields, so the
// only shared thing is the budget. When several fail, the first in pipeline order is reported.
func (e *Engine) runAnalysts(ctx context.Context, r *run, in agents.Input) *models.StageFailure {
	results := make([]agents.StageResult, len(e.team.Analysts))
	var wg sync.WaitGroup
	for i, stage := range e.team.Analysts {
		wg.Add(1)
		go func(i int, stage agents.Stage) {
			defer wg.Done()
			results[i] = r.step.invoke(ctx, models.PhaseAnalyst, stage, in)
		}(i, stage)
	}
	wg.Wait()

	for _, res := range results {
		if !res.OK() {
			return res.Failure
		}
	}
	return nil
}

// checkAdvance verifies that the fields the next phase depends on are present.
func (e *Engine) checkAdvance(state *models.AnalysisState, phase models.Phase) *models.StageFailure {
	var required []string
	switch phase {
	case models.PhaseAnalyst:
		for _, key := range e.cfg.SelectedAnalysts {
			if field, ok := agents.AnalystField(key); ok {
				required = append(required, field)
			}
		}
	case models.PhaseResearchDebate:
		required = []string{models.FieldResearchDecision}
	case models.PhaseTrader:
		required = []string{models.FieldTraderPlan}
	case models.PhaseRiskDebate:
		required = []string{models.FieldRiskDecision}
	case models.PhasePortfolio:
		required = []string{models.FieldFinalDecision}
	}
	for _, field := range required {
		if !state.Has(field) {
			return models.NewStageFailure(models.MalformedResponse, "",
				fmt.Errorf("%w: %s missing after %s", errMissingField, field, phase))
		}
	}
	return nil
}

var errMissingField = errors.New("required field not populated")
