package graph

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/models"
)

// stepper runs single stages on behalf of one run. It owns the cancellation check and the
// budget accounting so the engine and the debate loops count invocations the same way.
type stepper struct {
	runID    string
	budget   *RecursionBudget
	observer Observer
	log      zerolog.Logger
}

func (s *stepper) invoke(ctx context.Context, phase models.Phase, stage agents.Stage, in agents.Input) agents.StageResult {
	if err := ctx.Err(); err != nil {
		return failedResult(stage, models.Cancelled, err)
	}
	if !s.budget.Take() {
		return failedResult(stage, models.RecursionLimitExceeded,
			fmt.Errorf("all %d stage invocations used", s.budget.limit))
	}

	res := stage.Run(ctx, in)
	if s.observer != nil {
		s.observer.OnStage(ctx, s.runID, phase, res)
	}

	ev := s.log.Debug()
	if !res.OK() {
		ev = s.log.Warn().Str("failure", string(res.Failure.Kind)).Err(res.Failure.Cause)
	}
	ev.Str("phase", string(phase)).
		Str("stage", res.Stage).
		Dur("took", res.Duration).
		Int("budget_left", s.budget.Remaining()).
		Msg("stage finished")
	return res
}

func failedResult(stage agents.Stage, kind models.FailureKind, cause error) agents.StageResult {
	return agents.StageResult{
		Stage:   stage.Name(),
		Speaker: stage.Speaker(),
		Kind:    stage.Kind(),
		Failure: models.NewStageFailure(kind, stage.Name(), cause),
	}
}

// abortsRun reports failure kinds that end a debate instead of being skipped.
func abortsRun(kind models.FailureKind) bool {
	return kind == models.Cancelled || kind == models.RecursionLimitExceeded
}

// DebateLoop is a bounded round-robin between opposing participants, settled by one arbiter call.
type DebateLoop struct {
	Kind         models.DebateKind
	Phase        models.Phase
	Participants []agents.Stage
	Arbiter      agents.Stage
	MaxRounds    int

	Budget   *RecursionBudget
	Observer Observer
	RunID    string
	Log      zerolog.Logger
}

// Run plays up to MaxRounds full cycles. A participant that fails is recorded as a skipped
// turn and the cycle carries on; a round without any statement ends the debate early.
// The arbiter then runs exactly once and its failure is returned as the loop's failure.
// On success the frozen transcript is stored in the state.
func (d *DebateLoop) Run(ctx context.Context, in agents.Input) (*models.DebateTranscript, *models.StageFailure) {
	step := &stepper{runID: d.RunID, budget: d.Budget, observer: d.Observer, log: d.Log}
	logic := &ConditionalLogic{MaxDebateRounds: d.MaxRounds, MaxRiskDiscussRounds: d.MaxRounds}
	log := d.Log.With().Str("debate", string(d.Kind)).Logger()

	tr := models.NewDebateTranscript(d.Kind)
	for logic.ShouldContinue(tr) {
		round := tr.Rounds + 1
		spoke := 0
		for _, p := range d.Participants {
			res := step.invoke(ctx, d.Phase, p, agents.Input{
				State:      in.State,
				Config:     in.Config,
				Transcript: tr.Clone(),
				Round:      round,
				MaxRounds:  d.MaxRounds,
			})
			turn := models.DebateTurn{Round: round, Speaker: p.Speaker()}
			if !res.OK() {
				if abortsRun(res.Failure.Kind) {
					return nil, d.fail(res.Failure)
				}
				turn.Skipped = true
				turn.Failure = res.Failure.Kind
				log.Warn().Int("round", round).Str("speaker", p.Speaker()).
					Str("failure", string(res.Failure.Kind)).Msg("turn skipped")
			} else {
				turn.Statement = res.Output
				spoke++
			}
			if err := tr.Append(turn); err != nil {
				return nil, d.fail(models.NewStageFailure(models.MalformedResponse, p.Name(), err))
			}
		}
		tr.Rounds = round
		if spoke == 0 {
			tr.EarlyExit = true
			log.Info().Int("round", round).Msg("no statements this round, ending debate early")
		}
	}

	res := step.invoke(ctx, d.Phase, d.Arbiter, agents.Input{
		State:      in.State,
		Config:     in.Config,
		Transcript: tr.Clone(),
		Round:      tr.Rounds,
		MaxRounds:  d.MaxRounds,
	})
	if !res.OK() {
		return nil, d.fail(res.Failure)
	}

	tr.Verdict = res.Output
	tr.Freeze()
	if err := in.State.SetDebate(tr); err != nil {
		return nil, d.fail(models.NewStageFailure(models.MalformedResponse, d.Arbiter.Name(), err))
	}
	log.Info().Int("rounds", tr.Rounds).Int("statements", tr.Statements()).
		Bool("early_exit", tr.EarlyExit).Msg("debate settled")
	return tr, nil
}

func (d *DebateLoop) fail(f *models.StageFailure) *models.StageFailure {
	f.Phase = d.Phase
	return f
}
