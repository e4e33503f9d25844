package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
)

// newTestConfig writes a config rooted in a temp dir and returns its path.
func newTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	_, err := config.NewManager(config.WithConfigPath(path), config.WithInitialConfig(config.DefaultConfigWithRoot(dir)))
	require.NoError(t, err)
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "--config", newTestConfig(t), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "CortexDesk "+Version)
}

func TestConfigShowMasksKeys(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-secret-1234")
	path := newTestConfig(t)

	out, err := execute(t, "--config", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.Contains(t, out, `"llm_provider": "deepseek"`)
	assert.Contains(t, out, "****1234")
	assert.NotContains(t, out, "sk-secret-1234")
}

func TestConfigSetPersists(t *testing.T) {
	path := newTestConfig(t)

	_, err := execute(t, "--config", path, "config", "set", "max_debate_rounds", "4")
	require.NoError(t, err)
	_, err = execute(t, "--config", path, "config", "set", "selected_analysts", "news,market")
	require.NoError(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var stored config.Config
	require.NoError(t, json.Unmarshal(raw, &stored))
	assert.Equal(t, 4, stored.MaxDebateRounds)
	assert.Equal(t, []string{"news", "market"}, stored.SelectedAnalysts)

	_, err = execute(t, "--config", path, "config", "set", "max_debate_rounds", "0")
	assert.ErrorIs(t, err, config.ErrInvalid)
	_, err = execute(t, "--config", path, "config", "set", "no_such_key", "1")
	assert.Error(t, err)
}

func TestConfigValidateReportsMissingKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	out, err := execute(t, "--config", newTestConfig(t), "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "no API key configured for provider deepseek")

	t.Setenv("DEEPSEEK_API_KEY", "sk-test")
	out, err = execute(t, "--config", newTestConfig(t), "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestAnalyzeRejectsBadDate(t *testing.T) {
	_, err := execute(t, "--config", newTestConfig(t), "analyze", "SBER", "--date", "2025-13-40")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date format")
}

func TestPortfolioRequiresTickers(t *testing.T) {
	_, err := execute(t, "--config", newTestConfig(t), "portfolio", " ", "--date", "2025-01-10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one ticker")
}

func TestHistoryEmpty(t *testing.T) {
	out, err := execute(t, "--config", newTestConfig(t), "history")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")

	_, err = execute(t, "--config", newTestConfig(t), "history", "missing-run")
	assert.ErrorContains(t, err, "not found")
}

func TestLoadTickersFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickers.txt")
	require.NoError(t, os.WriteFile(path, []byte("SBER\n# energy\n\n gazp \nLKOH\n"), 0o644))

	tickers, err := loadTickersFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"SBER", "gazp", "LKOH"}, tickers)

	_, err = loadTickersFromFile(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestResolveDate(t *testing.T) {
	d, err := resolveDate("")
	require.NoError(t, err)
	assert.Len(t, d, len(consts.DateLayout))

	d, err = resolveDate("2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10", d)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("abc"))
	assert.True(t, strings.HasSuffix(maskSecret("sk-abcdef"), "cdef"))
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConfigWatchReportsEdits(t *testing.T) {
	path := newTestConfig(t)
	mgr, err := config.NewManager(config.WithConfigPath(path), config.WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	out := &lockedBuffer{}
	a := &app{out: out, mgr: mgr, log: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- watchConfig(ctx, a) }()
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "watching") },
		2*time.Second, 10*time.Millisecond)

	cfg := mgr.Get()
	cfg.MaxDebateRounds = 5
	data, err := json.MarshalIndent(cfg, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "max_debate_rounds") },
		3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 5, mgr.Get().MaxDebateRounds)

	cancel()
	require.NoError(t, <-done)
}
