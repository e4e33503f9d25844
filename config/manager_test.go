package config

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerCreatesAndUpdates(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err, "config file not created")

	cfg := mgr.Get()
	cfg.ResultsDir = filepath.Join(dir, "results")
	cfg.MaxDebateRounds = 4

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.UpdateFromJSON(string(data)))

	updated := mgr.Get()
	assert.Equal(t, cfg.ResultsDir, updated.ResultsDir)
	assert.Equal(t, 4, updated.MaxDebateRounds)
}

func TestManagerRejectsInvalidUpdate(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.MaxRecurLimit = 0
	err = mgr.Update(cfg)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, 150, mgr.Get().MaxRecurLimit)
}

func TestManagerSet(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	require.NoError(t, mgr.Set("max_debate_rounds", "5"))
	require.NoError(t, mgr.Set("llm_provider", "openai"))
	require.NoError(t, mgr.Set("selected_analysts", "market, social"))

	cfg := mgr.Get()
	assert.Equal(t, 5, cfg.MaxDebateRounds)
	assert.Equal(t, ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, []string{"market", "social"}, cfg.SelectedAnalysts)

	assert.ErrorIs(t, mgr.Set("no_such_key", "1"), ErrInvalid)
	assert.ErrorIs(t, mgr.Set("selected_analysts", "astrology"), ErrInvalid)
}

func TestManagerGetReturnsCopy(t *testing.T) {
	mgr, err := NewManager(WithConfigDir(t.TempDir()))
	require.NoError(t, err)

	cfg := mgr.Get()
	cfg.SelectedAnalysts[0] = "mutated"
	assert.NotEqual(t, "mutated", mgr.Get().SelectedAnalysts[0])
}

func TestManagerWatchReloads(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(WithConfigDir(dir), WithDebounce(50*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan Config, 1)
	require.NoError(t, mgr.Watch(ctx, func(cfg Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))

	cfg := mgr.Get()
	cfg.MaxRiskDiscussRounds = 7
	require.NoError(t, writeConfigFile(mgr.Path(), cfg))

	select {
	case got := <-reloaded:
		assert.Equal(t, 7, got.MaxRiskDiscussRounds)
	case <-time.After(2 * time.Second):
		t.Fatalf("watcher did not fire on config change")
	}
}

func TestChangedKeys(t *testing.T) {
	before := *DefaultConfigWithRoot(t.TempDir())
	after := *before.Clone()
	assert.Empty(t, ChangedKeys(before, after))

	after.MaxDebateRounds = before.MaxDebateRounds + 1
	after.SelectedAnalysts = []string{"news"}
	assert.Equal(t, []string{"max_debate_rounds", "selected_analysts"}, ChangedKeys(before, after))
}
