package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/models"
)

// RunInfo identifies a run to observers before any stage has executed.
type RunInfo struct {
	RunID  string
	Ticker string
	Date   string
}

// Observer receives run progress. OnStage may be called from several goroutines at once
// during the analyst phase.
type Observer interface {
	OnRunStart(ctx context.Context, run RunInfo)
	OnStage(ctx context.Context, runID string, phase models.Phase, res agents.StageResult)
	OnRunEnd(ctx context.Context, res *RunResult)
}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	var m multiObserver
	for _, o := range obs {
		if o != nil {
			m = append(m, o)
		}
	}
	return m
}

func (m multiObserver) OnRunStart(ctx context.Context, run RunInfo) {
	for _, o := range m {
		o.OnRunStart(ctx, run)
	}
}

func (m multiObserver) OnStage(ctx context.Context, runID string, phase models.Phase, res agents.StageResult) {
	for _, o := range m {
		o.OnStage(ctx, runID, phase, res)
	}
}

func (m multiObserver) OnRunEnd(ctx context.Context, res *RunResult) {
	for _, o := range m {
		o.OnRunEnd(ctx, res)
	}
}

// LoggerCallback logs run progress and optionally mirrors it as display lines on Out.
// Lines are dropped when nobody drains Out fast enough.
type LoggerCallback struct {
	Log zerolog.Logger
	Out chan string
}

func (cb *LoggerCallback) push(line string) {
	if cb.Out == nil {
		return
	}
	select {
	case cb.Out <- line:
	default:
	}
}

func (cb *LoggerCallback) OnRunStart(ctx context.Context, run RunInfo) {
	cb.Log.Info().Str("run_id", run.RunID).Str("ticker", run.Ticker).Str("date", run.Date).Msg("run started")
	cb.push(fmt.Sprintf("==> %s %s", run.Ticker, run.Date))
}

func (cb *LoggerCallback) OnStage(ctx context.Context, runID string, phase models.Phase, res agents.StageResult) {
	if res.OK() {
		cb.push(fmt.Sprintf("[%s] %s done in %s", phase, res.Speaker, res.Duration.Round(time.Millisecond)))
		return
	}
	cb.Log.Warn().Str("run_id", runID).Str("stage", res.Stage).
		Str("failure", string(res.Failure.Kind)).Msg(res.Failure.Message())
	cb.push(fmt.Sprintf("[%s] %s failed: %s", phase, res.Speaker, res.Failure.Kind))
}

func (cb *LoggerCallback) OnRunEnd(ctx context.Context, res *RunResult) {
	if res.Done() {
		action := models.Hold
		if res.Decision != nil {
			action = res.Decision.Action
		}
		cb.Log.Info().Str("run_id", res.RunID).Str("ticker", res.Ticker).
			Str("action", string(action)).Int("invocations", res.Invocations).
			Dur("took", res.Duration).Msg("run done")
		cb.push(fmt.Sprintf("<== %s %s", res.Ticker, action))
		return
	}
	cb.Log.Error().Str("run_id", res.RunID).Str("ticker", res.Ticker).
		Str("failed_phase", string(res.FailedPhase)).Err(res.Failure).Msg("run failed")
	cb.push(fmt.Sprintf("<== %s failed in %s: %s", res.Ticker, res.FailedPhase, res.Failure.Kind))
}
