package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CreateRun(ctx, models.RunRecord{RunID: "r1", Symbol: "SBER", TradeDate: "2025-01-10"}))
	require.NoError(t, s.InsertStageEvent(ctx, models.StageEventRecord{RunID: "r1", Seq: 1, Phase: "analyst", Stage: "market_analyst", Content: "report"}))
	require.NoError(t, s.InsertStageEvent(ctx, models.StageEventRecord{RunID: "r1", Seq: 2, Phase: "trader", Stage: "trader", Status: StatusFailed}))
	// duplicate seq is ignored
	require.NoError(t, s.InsertStageEvent(ctx, models.StageEventRecord{RunID: "r1", Seq: 2, Phase: "trader", Stage: "trader"}))

	run, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Equal(t, "SBER", run.Symbol)
	assert.False(t, run.CreatedAt.IsZero())

	require.NoError(t, s.FinishRun(ctx, models.RunRecord{RunID: "r1", Status: StatusFailed, Phase: "trader", FailureKind: "ReasonerError"}))
	run, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	assert.Equal(t, "ReasonerError", run.FailureKind)
	assert.Equal(t, "SBER", run.Symbol)

	events, err := s.ListStageEvents(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "market_analyst", events[0].Stage)
	assert.Equal(t, StatusDone, events[0].Status)
	assert.Equal(t, StatusFailed, events[1].Status)
}

func TestStageEventValidation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	require.NoError(t, s.CreateRun(ctx, models.RunRecord{RunID: "r1", Symbol: "SBER", TradeDate: "2025-01-10"}))

	assert.Error(t, s.InsertStageEvent(ctx, models.StageEventRecord{RunID: "r1", Seq: 0, Stage: "x"}))
	assert.Error(t, s.InsertStageEvent(ctx, models.StageEventRecord{RunID: "r1", Seq: 1}))
	// unknown run violates the foreign key
	assert.Error(t, s.InsertStageEvent(ctx, models.StageEventRecord{RunID: "nope", Seq: 1, Stage: "x"}))
}

func TestListRunsPaging(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateRun(ctx, models.RunRecord{RunID: id, Symbol: "SBER", TradeDate: "2025-01-10"}))
	}

	first, err := s.ListRuns(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "c", first[0].RunID)
	assert.Equal(t, "b", first[1].RunID)

	rest, err := s.ListRuns(ctx, first[1].Id, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a", rest[0].RunID)

	missing, err := s.GetRun(ctx, "zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
