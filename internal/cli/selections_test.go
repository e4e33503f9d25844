package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
)

func TestApplySelections(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	UserSelections{
		Analysts:      []string{consts.AnalystNews},
		ResearchDepth: MediumResearch,
		LLMProvider:   config.ProviderOpenAI,
		QuickModel:    "gpt-4o-mini",
		DeepModel:     "o4-mini",
	}.Apply(cfg)

	assert.Equal(t, []string{consts.AnalystNews}, cfg.SelectedAnalysts)
	assert.Equal(t, 3, cfg.MaxDebateRounds)
	assert.Equal(t, 3, cfg.MaxRiskDiscussRounds)
	assert.Equal(t, config.ProviderOpenAI, cfg.LLMProvider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.BackendURL)
	assert.Equal(t, "o4-mini", cfg.DeepThinkLLM)
	require.NoError(t, cfg.Validate())
}

func TestApplyEmptySelectionsKeepsConfig(t *testing.T) {
	cfg := config.DefaultConfigWithRoot(t.TempDir())
	before := *cfg.Clone()
	UserSelections{}.Apply(cfg)
	assert.Equal(t, before, *cfg)
}

func TestResearchDepthRounds(t *testing.T) {
	assert.Equal(t, 1, ShallowResearch.Rounds())
	assert.Equal(t, 3, MediumResearch.Rounds())
	assert.Equal(t, 5, DeepResearch.Rounds())
	assert.Equal(t, 1, ResearchDepth("unknown").Rounds())
}

func TestAnalystNamesRoundTrip(t *testing.T) {
	for _, key := range consts.AnalystKeys {
		got, ok := analystKeyFor(analystDisplayName(key))
		require.True(t, ok)
		assert.Equal(t, key, got)
	}
	_, ok := analystKeyFor("Astrologer")
	assert.False(t, ok)
}

func TestProviderModels(t *testing.T) {
	for _, p := range []string{config.ProviderDeepSeek, config.ProviderOpenAI, config.ProviderGemini} {
		quick, deep := providerModels(p)
		assert.NotEmpty(t, quick, p)
		assert.NotEmpty(t, deep, p)
	}
	quick, _ := providerModels("anthropic")
	assert.Empty(t, quick)
}
