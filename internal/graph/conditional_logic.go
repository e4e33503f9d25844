package graph

import (
	"sync/atomic"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/models"
)

// RecursionBudget bounds the total number of stage invocations of one run.
// Every invocation takes one unit; once it reaches zero nothing else may run.
type RecursionBudget struct {
	limit     int64
	remaining atomic.Int64
}

func NewRecursionBudget(limit int) *RecursionBudget {
	b := &RecursionBudget{limit: int64(limit)}
	b.remaining.Store(int64(limit))
	return b
}

// Take consumes one unit and reports whether one was available.
func (b *RecursionBudget) Take() bool {
	for {
		n := b.remaining.Load()
		if n <= 0 {
			return false
		}
		if b.remaining.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

func (b *RecursionBudget) Remaining() int {
	return int(b.remaining.Load())
}

// Used is the number of invocations granted so far.
func (b *RecursionBudget) Used() int {
	return int(b.limit - b.remaining.Load())
}

// ConditionalLogic decides when the debate loops stop.
type ConditionalLogic struct {
	MaxDebateRounds      int
	MaxRiskDiscussRounds int
}

func NewConditionalLogic(cfg *config.Config) *ConditionalLogic {
	return &ConditionalLogic{
		MaxDebateRounds:      cfg.MaxDebateRounds,
		MaxRiskDiscussRounds: cfg.MaxRiskDiscussRounds,
	}
}

// MaxRounds returns the round limit for the given debate.
func (cl *ConditionalLogic) MaxRounds(kind models.DebateKind) int {
	if kind == models.RiskDebate {
		return cl.MaxRiskDiscussRounds
	}
	return cl.MaxDebateRounds
}

// ShouldContinue reports whether another full cycle may start. A round in which nobody
// managed to speak ends the debate early.
func (cl *ConditionalLogic) ShouldContinue(t *models.DebateTranscript) bool {
	if t.EarlyExit {
		return false
	}
	return t.Rounds < cl.MaxRounds(t.Kind)
}
