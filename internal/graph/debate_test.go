package graph

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/models"
)

// scriptedStage is a Stage whose behaviour is decided per call.
type scriptedStage struct {
	name    string
	kind    agents.Kind
	field   string
	calls   atomic.Int32
	fail    models.FailureKind
	onRun   func(in agents.Input)
	lastIn  agents.Input
	outputs func(call int) string
}

func (s *scriptedStage) Name() string      { return s.name }
func (s *scriptedStage) Speaker() string   { return s.name }
func (s *scriptedStage) Kind() agents.Kind { return s.kind }

func (s *scriptedStage) Run(ctx context.Context, in agents.Input) agents.StageResult {
	call := int(s.calls.Add(1))
	s.lastIn = in
	if s.onRun != nil {
		s.onRun(in)
	}
	res := agents.StageResult{Stage: s.name, Speaker: s.name, Kind: s.kind}
	if s.fail != "" {
		res.Failure = models.NewStageFailure(s.fail, s.name, errors.New("scripted failure"))
		return res
	}
	res.Output = fmt.Sprintf("%s says %d", s.name, call)
	if s.outputs != nil {
		res.Output = s.outputs(call)
	}
	if s.field != "" {
		if err := in.State.Set(s.field, res.Output); err != nil {
			res.Failure = models.NewStageFailure(models.MalformedResponse, s.name, err)
		}
	}
	return res
}

func newLoop(kind models.DebateKind, rounds, budget int, arbiter agents.Stage, participants ...agents.Stage) *DebateLoop {
	return &DebateLoop{
		Kind:         kind,
		Phase:        models.PhaseResearchDebate,
		Participants: participants,
		Arbiter:      arbiter,
		MaxRounds:    rounds,
		Budget:       NewRecursionBudget(budget),
		Log:          zerolog.Nop(),
	}
}

func researchInput() agents.Input {
	return agents.Input{State: models.NewAnalysisState("SBER", "2025-01-10")}
}

func TestDebateLoopRoundsThenOneArbiterCall(t *testing.T) {
	for rounds := 1; rounds <= 4; rounds++ {
		t.Run(fmt.Sprintf("rounds=%d", rounds), func(t *testing.T) {
			bull := &scriptedStage{name: "Bull", kind: agents.KindDebater}
			bear := &scriptedStage{name: "Bear", kind: agents.KindDebater}
			judge := &scriptedStage{name: "Judge", kind: agents.KindArbiter, field: models.FieldResearchDecision,
				outputs: func(int) string { return "verdict" }}

			in := researchInput()
			loop := newLoop(models.ResearchDebate, rounds, 100, judge, bull, bear)
			tr, failure := loop.Run(context.Background(), in)
			require.Nil(t, failure)

			assert.EqualValues(t, rounds, bull.calls.Load())
			assert.EqualValues(t, rounds, bear.calls.Load())
			assert.EqualValues(t, 1, judge.calls.Load())
			assert.Equal(t, 2*rounds+1, loop.Budget.Used())

			assert.Equal(t, rounds, tr.Rounds)
			assert.Len(t, tr.Turns, 2*rounds)
			assert.False(t, tr.EarlyExit)
			assert.Equal(t, "verdict", tr.Verdict)
			assert.True(t, tr.Frozen())
			assert.Error(t, tr.Append(models.DebateTurn{}))

			assert.Equal(t, "verdict", in.State.Get(models.FieldResearchDecision))
			stored := in.State.Debate(models.ResearchDebate)
			require.NotNil(t, stored)
			assert.Equal(t, tr.Turns, stored.Turns)
			assert.Equal(t, 2*rounds, judge.lastIn.Transcript.Statements())
		})
	}
}

func TestDebateLoopParticipantsSeeTranscriptSoFar(t *testing.T) {
	var seen []int
	bull := &scriptedStage{name: "Bull", kind: agents.KindDebater}
	bull.onRun = func(in agents.Input) { seen = append(seen, len(in.Transcript.Turns)) }
	bear := &scriptedStage{name: "Bear", kind: agents.KindDebater}
	bear.onRun = func(in agents.Input) { seen = append(seen, len(in.Transcript.Turns)) }
	judge := &scriptedStage{name: "Judge", kind: agents.KindArbiter, field: models.FieldResearchDecision}

	_, failure := newLoop(models.ResearchDebate, 2, 100, judge, bull, bear).Run(context.Background(), researchInput())
	require.Nil(t, failure)
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.Equal(t, 2, bear.lastIn.Round)
	assert.Equal(t, 2, bear.lastIn.MaxRounds)
}

func TestDebateLoopEarlyExitWhenNobodySpeaks(t *testing.T) {
	bull := &scriptedStage{name: "Bull", kind: agents.KindDebater, fail: models.ReasonerError}
	bear := &scriptedStage{name: "Bear", kind: agents.KindDebater, fail: models.ReasonerTimeout}
	judge := &scriptedStage{name: "Judge", kind: agents.KindArbiter, field: models.FieldResearchDecision}

	loop := newLoop(models.ResearchDebate, 3, 100, judge, bull, bear)
	tr, failure := loop.Run(context.Background(), researchInput())
	require.Nil(t, failure)

	assert.Equal(t, 1, tr.Rounds)
	assert.True(t, tr.EarlyExit)
	assert.EqualValues(t, 1, bull.calls.Load())
	assert.EqualValues(t, 1, bear.calls.Load())
	assert.EqualValues(t, 1, judge.calls.Load())

	require.Len(t, tr.Turns, 2)
	assert.True(t, tr.Turns[0].Skipped)
	assert.Equal(t, models.ReasonerTimeout, tr.Turns[1].Failure)
	assert.Zero(t, judge.lastIn.Transcript.Statements())
	assert.Empty(t, judge.lastIn.Transcript.History())
}

func TestDebateLoopSkipsFailedTurnAndContinues(t *testing.T) {
	aggressive := &scriptedStage{name: "Aggressive", kind: agents.KindRiskEvaluator}
	conservative := &scriptedStage{name: "Conservative", kind: agents.KindRiskEvaluator, fail: models.MalformedResponse}
	neutral := &scriptedStage{name: "Neutral", kind: agents.KindRiskEvaluator}
	judge := &scriptedStage{name: "Risk Judge", kind: agents.KindArbiter, field: models.FieldRiskDecision}

	loop := newLoop(models.RiskDebate, 2, 100, judge, aggressive, conservative, neutral)
	loop.Phase = models.PhaseRiskDebate
	tr, failure := loop.Run(context.Background(), researchInput())
	require.Nil(t, failure)

	assert.Equal(t, 2, tr.Rounds)
	assert.False(t, tr.EarlyExit)
	require.Len(t, tr.Turns, 6)
	assert.Equal(t, 4, tr.Statements())
	speakers := make([]string, 0, len(tr.Turns))
	for _, turn := range tr.Turns {
		speakers = append(speakers, turn.Speaker)
	}
	assert.Equal(t, []string{"Aggressive", "Conservative", "Neutral", "Aggressive", "Conservative", "Neutral"}, speakers)
	assert.True(t, tr.Turns[1].Skipped)
	assert.True(t, tr.Turns[4].Skipped)
	assert.EqualValues(t, 1, judge.calls.Load())
}

func TestDebateLoopArbiterFailureIsFatal(t *testing.T) {
	bull := &scriptedStage{name: "Bull", kind: agents.KindDebater}
	bear := &scriptedStage{name: "Bear", kind: agents.KindDebater}
	judge := &scriptedStage{name: "Judge", kind: agents.KindArbiter, fail: models.ReasonerTimeout}

	in := researchInput()
	tr, failure := newLoop(models.ResearchDebate, 1, 100, judge, bull, bear).Run(context.Background(), in)
	require.NotNil(t, failure)
	assert.Nil(t, tr)
	assert.Equal(t, models.ReasonerTimeout, failure.Kind)
	assert.Equal(t, "Judge", failure.Stage)
	assert.Equal(t, models.PhaseResearchDebate, failure.Phase)
	assert.Nil(t, in.State.Debate(models.ResearchDebate))
	assert.False(t, in.State.Has(models.FieldResearchDecision))
}

func TestDebateLoopStopsWhenBudgetRunsOut(t *testing.T) {
	bull := &scriptedStage{name: "Bull", kind: agents.KindDebater}
	bear := &scriptedStage{name: "Bear", kind: agents.KindDebater}
	judge := &scriptedStage{name: "Judge", kind: agents.KindArbiter}

	loop := newLoop(models.ResearchDebate, 2, 3, judge, bull, bear)
	_, failure := loop.Run(context.Background(), researchInput())
	require.NotNil(t, failure)
	assert.Equal(t, models.RecursionLimitExceeded, failure.Kind)
	assert.EqualValues(t, 2, bull.calls.Load())
	assert.EqualValues(t, 1, bear.calls.Load())
	assert.Zero(t, judge.calls.Load())
	assert.Zero(t, loop.Budget.Remaining())
}

func TestDebateLoopCancelledMidRound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bull := &scriptedStage{name: "Bull", kind: agents.KindDebater}
	bull.onRun = func(agents.Input) { cancel() }
	bear := &scriptedStage{name: "Bear", kind: agents.KindDebater}
	judge := &scriptedStage{name: "Judge", kind: agents.KindArbiter}

	_, failure := newLoop(models.ResearchDebate, 2, 100, judge, bull, bear).Run(ctx, researchInput())
	require.NotNil(t, failure)
	assert.Equal(t, models.Cancelled, failure.Kind)
	assert.Zero(t, bear.calls.Load())
	assert.Zero(t, judge.calls.Load())
}

func TestRecursionBudgetConcurrentTake(t *testing.T) {
	b := NewRecursionBudget(50)
	var granted atomic.Int32
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 10; j++ {
				if b.Take() {
					granted.Add(1)
				}
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
	assert.EqualValues(t, 50, granted.Load())
	assert.Equal(t, 50, b.Used())
	assert.False(t, b.Take())
}
