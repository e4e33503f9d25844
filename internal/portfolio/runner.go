// Package portfolio runs the pipeline over a list of tickers with bounded concurrency.
package portfolio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/internal/dataflows"
	"github.com/dyike/CortexDesk/internal/graph"
	"github.com/dyike/CortexDesk/models"
)

// Pipeline runs one ticker. *graph.Engine and *graph.TradingAgentsGraph both satisfy it.
type Pipeline interface {
	Run(ctx context.Context, ticker, date string) *graph.RunResult
}

const DefaultWorkers = 3

// Progress is a point-in-time view of a portfolio run, handed to the progress callback.
type Progress struct {
	Total      int
	Completed  int
	Failed     int
	InProgress int
	Last       models.TickerOutcome
	Elapsed    time.Duration
}

type Option func(*Runner)

func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// WithProgress registers fn to be called after each ticker finishes. Calls are serialised.
func WithProgress(fn func(Progress)) Option {
	return func(r *Runner) { r.onProgress = fn }
}

type Runner struct {
	pipeline   Pipeline
	workers    int
	log        zerolog.Logger
	onProgress func(Progress)
}

func NewRunner(p Pipeline, opts ...Option) *Runner {
	r := &Runner{pipeline: p, workers: DefaultWorkers, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.workers <= 0 {
		r.workers = DefaultWorkers
	}
	return r
}

// NormalizeTickers trims and upper-cases tickers, dropping blanks and repeats. Order is kept.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		t = dataflows.NormalizeSymbol(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Run executes one independent pipeline per ticker, at most workers at a time.
// A failing ticker never affects the others; the result always covers every ticker
// in input order.
func (r *Runner) Run(ctx context.Context, tickers []string, date string) *models.PortfolioResult {
	tickers = NormalizeTickers(tickers)
	start := time.Now()
	outcomes := make([]models.TickerOutcome, len(tickers))

	var (
		mu       sync.Mutex
		progress = Progress{Total: len(tickers)}
	)
	report := func(o models.TickerOutcome, begin bool) {
		mu.Lock()
		defer mu.Unlock()
		if begin {
			progress.InProgress++
			return
		}
		progress.InProgress--
		if o.Done() {
			progress.Completed++
		} else {
			progress.Failed++
		}
		progress.Last = o
		progress.Elapsed = time.Since(start)
		if r.onProgress != nil {
			r.onProgress(progress)
		}
	}

	r.log.Info().Int("tickers", len(tickers)).Int("workers", r.workers).Str("date", date).Msg("portfolio run started")

	semaphore := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for i, ticker := range tickers {
		wg.Add(1)
		go func(idx int, ticker string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			report(models.TickerOutcome{}, true)
			outcomes[idx] = r.runOne(ctx, ticker, date)
			report(outcomes[idx], false)
		}(i, ticker)
	}
	wg.Wait()

	result := &models.PortfolioResult{
		Date:     date,
		Outcomes: outcomes,
		Summary:  models.Summarize(outcomes),
	}
	r.log.Info().Int("succeeded", result.Summary.Succeeded).Int("failed", result.Summary.Failed).
		Dur("took", time.Since(start)).Msg("portfolio run finished")
	return result
}

func (r *Runner) runOne(ctx context.Context, ticker, date string) (outcome models.TickerOutcome) {
	outcome = models.TickerOutcome{Ticker: ticker, Phase: models.PhaseFailed}
	defer func() {
		// one broken pipeline must not take the whole portfolio down
		if rec := recover(); rec != nil {
			r.log.Error().Str("ticker", ticker).Interface("panic", rec).Msg("pipeline panicked")
			outcome.Failure = &models.StageFailure{Kind: models.ReasonerError, Cause: fmt.Errorf("panic: %v", rec)}
			outcome.Error = outcome.Failure.Error()
		}
	}()

	res := r.pipeline.Run(ctx, ticker, date)
	if res == nil {
		outcome.Failure = &models.StageFailure{Kind: models.ReasonerError, Cause: fmt.Errorf("pipeline returned no result")}
		outcome.Error = outcome.Failure.Error()
		return outcome
	}

	outcome.RunID = res.RunID
	if res.Done() {
		outcome.Phase = models.PhaseDone
		outcome.FinalDecision = res.FinalDecision
		outcome.Decision = res.Decision
		return outcome
	}
	outcome.Failure = res.Failure
	outcome.FailedPhase = res.FailedPhase
	if res.Failure != nil {
		outcome.Error = res.Failure.Error()
	}
	return outcome
}
