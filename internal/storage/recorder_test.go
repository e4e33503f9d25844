package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/agents"
	"github.com/dyike/CortexDesk/internal/graph"
	"github.com/dyike/CortexDesk/internal/storage/sqlite"
	"github.com/dyike/CortexDesk/models"
)

func TestRunRecorderPersistsRun(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	rec := NewRunRecorder(store, zerolog.Nop())
	rec.OnRunStart(ctx, graph.RunInfo{RunID: "run-1", Ticker: "SBER", Date: "2025-01-10"})
	rec.OnStage(ctx, "run-1", models.PhaseAnalyst, agents.StageResult{
		Stage: "market_analyst", Speaker: "Market Analyst", Output: "trend is up", Duration: 1500 * time.Millisecond,
	})
	rec.OnStage(ctx, "run-1", models.PhaseTrader, agents.StageResult{
		Stage: "trader", Speaker: "Trader",
		Failure: models.NewStageFailure(models.ReasonerTimeout, "trader", errors.New("deadline")),
	})
	rec.OnRunEnd(ctx, &graph.RunResult{
		RunID: "run-1", Ticker: "SBER", Date: "2025-01-10",
		Phase: models.PhaseFailed, FailedPhase: models.PhaseTrader,
		Failure: &models.StageFailure{Kind: models.ReasonerTimeout, Stage: "trader", Phase: models.PhaseTrader},
	})
	rec.Close()

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, sqlite.StatusFailed, run.Status)
	assert.Equal(t, "trader", run.Phase)
	assert.Equal(t, "ReasonerTimeout", run.FailureKind)
	assert.Empty(t, run.FinalDecision)

	events, err := store.ListStageEvents(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Seq)
	assert.Equal(t, "Market Analyst", events[0].Agent)
	assert.Equal(t, "trend is up", events[0].Content)
	assert.EqualValues(t, 1500, events[0].DurationMs)
	assert.Equal(t, sqlite.StatusFailed, events[1].Status)
	assert.Contains(t, events[1].Content, "ReasonerTimeout")
}

func TestRunRecorderStoresRejectedRun(t *testing.T) {
	ctx := context.Background()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer store.Close()

	rec := NewRunRecorder(store, zerolog.Nop())
	rec.OnRunEnd(ctx, &graph.RunResult{
		RunID: "run-2", Ticker: "SBER", Date: "bad",
		Phase: models.PhaseFailed, FailedPhase: models.PhaseAnalyst,
		Failure: &models.StageFailure{Kind: models.ConfigInvalid},
	})
	rec.Close()

	run, err := store.GetRun(ctx, "run-2")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "ConfigInvalid", run.FailureKind)
}

func TestOpenForConfig(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	store, err := OpenForConfig(cfg)
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, cfg.DBPath)

	cfg.DBPath = ""
	cfg.DataDir = ""
	_, err = OpenForConfig(cfg)
	assert.ErrorIs(t, err, ErrDataDirNotConfigured)
}
