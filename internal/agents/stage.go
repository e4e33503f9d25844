// Package agents implements the pipeline stages. Every stage wraps one reasoner call
// behind the same Run contract; the kind tag tells the engine how to treat a failure.
package agents

import (
	"context"
	"errors"
	"time"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/models"
)

// Kind is the closed set of stage variants.
type Kind int

const (
	KindAnalyst Kind = iota
	KindDebater
	KindArbiter
	KindTrader
	KindRiskEvaluator
	KindPortfolioManager
)

func (k Kind) String() string {
	switch k {
	case KindAnalyst:
		return "analyst"
	case KindDebater:
		return "debater"
	case KindArbiter:
		return "arbiter"
	case KindTrader:
		return "trader"
	case KindRiskEvaluator:
		return "risk_evaluator"
	case KindPortfolioManager:
		return "portfolio_manager"
	}
	return "unknown"
}

// Input is everything a stage may read. Transcript, Round and MaxRounds are set only inside a debate.
type Input struct {
	State      *models.AnalysisState
	Config     *config.Config
	Transcript *models.DebateTranscript
	Round      int
	MaxRounds  int
}

// StageResult is consumed by the caller right away and only kept for logging and recording.
type StageResult struct {
	Stage    string
	Speaker  string
	Kind     Kind
	Output   string
	Signals  map[string]any
	Failure  *models.StageFailure
	Duration time.Duration
}

func (r StageResult) OK() bool {
	return r.Failure == nil
}

// Stage is one role-specific unit of work.
type Stage interface {
	Name() string
	// Speaker is the label used in debate transcripts and reports.
	Speaker() string
	Kind() Kind
	// Run performs at most one state write, and only on success.
	Run(ctx context.Context, in Input) StageResult
}

// classifyReasonerError maps a reasoner error to a failure kind. A done parent context
// means the run was aborted; a deadline on the call alone means the reasoner was too slow.
func classifyReasonerError(parent context.Context, err error) models.FailureKind {
	switch {
	case parent.Err() != nil:
		return models.Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		return models.ReasonerTimeout
	case errors.Is(err, context.Canceled):
		return models.Cancelled
	}
	return models.ReasonerError
}

// classifyProviderError treats NotFound and Unavailable alike: either way the analyst has no input.
func classifyProviderError(parent context.Context, err error) models.FailureKind {
	if parent.Err() != nil {
		return models.Cancelled
	}
	return models.DataProviderUnavailable
}
