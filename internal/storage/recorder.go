package storage

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/internal/graph"
	"github.com/dyike/CortexDesk/internal/storage/sqlite"
	"github.com/dyike/CortexDesk/models"
)

type recordKind int

const (
	recordStart recordKind = iota + 1
	recordStage
	recordFinish
)

type recordEvent struct {
	kind   recordKind
	run    graph.RunInfo
	phase  models.Phase
	stage  agents.StageResult
	result *graph.RunResult
}

// RunRecorder persists runs and their stage results. It is a graph.Observer; writes happen on
// a background goroutine in arrival order so stages never wait on the database.
type RunRecorder struct {
	store *sqlite.Store
	log   zerolog.Logger

	events chan recordEvent
	once   sync.Once
	wg     sync.WaitGroup

	// touched only by the loop goroutine
	seq map[string]int
}

var _ graph.Observer = (*RunRecorder)(nil)

func NewRunRecorder(store *sqlite.Store, log zerolog.Logger) *RunRecorder {
	r := &RunRecorder{
		store:  store,
		log:    log,
		events: make(chan recordEvent, 512),
		seq:    make(map[string]int),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *RunRecorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for ev := range r.events {
		switch ev.kind {
		case recordStart:
			r.handleStart(ctx, ev.run)
		case recordStage:
			r.handleStage(ctx, ev.run.RunID, ev.phase, ev.stage)
		case recordFinish:
			r.handleFinish(ctx, ev.result)
		}
	}
}

func (r *RunRecorder) OnRunStart(ctx context.Context, run graph.RunInfo) {
	r.events <- recordEvent{kind: recordStart, run: run}
}

func (r *RunRecorder) OnStage(ctx context.Context, runID string, phase models.Phase, res agents.StageResult) {
	r.events <- recordEvent{kind: recordStage, run: graph.RunInfo{RunID: runID}, phase: phase, stage: res}
}

func (r *RunRecorder) OnRunEnd(ctx context.Context, res *graph.RunResult) {
	r.events <- recordEvent{kind: recordFinish, result: res}
}

// Close flushes pending events. The recorder must not be used afterwards.
func (r *RunRecorder) Close() {
	r.once.Do(func() {
		close(r.events)
		r.wg.Wait()
	})
}

func (r *RunRecorder) handleStart(ctx context.Context, run graph.RunInfo) {
	err := r.store.CreateRun(ctx, models.RunRecord{
		RunID:     run.RunID,
		Symbol:    run.Ticker,
		TradeDate: run.Date,
		Status:    sqlite.StatusRunning,
		Phase:     string(models.PhaseAnalyst),
	})
	if err != nil {
		r.log.Warn().Err(err).Str("run_id", run.RunID).Msg("record run start")
	}
}

func (r *RunRecorder) handleStage(ctx context.Context, runID string, phase models.Phase, res agents.StageResult) {
	r.seq[runID]++
	ev := models.StageEventRecord{
		RunID:      runID,
		Seq:        r.seq[runID],
		Phase:      string(phase),
		Stage:      res.Stage,
		Agent:      res.Speaker,
		Content:    res.Output,
		Status:     sqlite.StatusDone,
		DurationMs: res.Duration.Milliseconds(),
	}
	if !res.OK() {
		ev.Status = sqlite.StatusFailed
		ev.Content = res.Failure.Error()
	}
	if err := r.store.InsertStageEvent(ctx, ev); err != nil {
		r.log.Warn().Err(err).Str("run_id", runID).Str("stage", res.Stage).Msg("record stage")
	}
}

func (r *RunRecorder) handleFinish(ctx context.Context, res *graph.RunResult) {
	if res == nil {
		return
	}
	delete(r.seq, res.RunID)

	rec := models.RunRecord{
		RunID:         res.RunID,
		Symbol:        res.Ticker,
		TradeDate:     res.Date,
		Status:        sqlite.StatusDone,
		Phase:         string(res.Phase),
		FinalDecision: res.FinalDecision,
	}
	if res.Decision != nil {
		rec.Action = string(res.Decision.Action)
	}
	if !res.Done() {
		rec.Status = sqlite.StatusFailed
		rec.Phase = string(res.FailedPhase)
		if res.Failure != nil {
			rec.FailureKind = string(res.Failure.Kind)
		}
	}
	if err := r.store.FinishRun(ctx, rec); err != nil {
		r.log.Warn().Err(err).Str("run_id", res.RunID).Msg("record run finish")
	}
}
