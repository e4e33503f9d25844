package cli

import (
	"slices"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/consts"
)

// ResearchDepth controls how many rounds both debates run.
type ResearchDepth string

const (
	ShallowResearch ResearchDepth = "shallow"
	MediumResearch  ResearchDepth = "medium"
	DeepResearch    ResearchDepth = "deep"
)

// Rounds returns the debate rounds for the depth.
func (r ResearchDepth) Rounds() int {
	switch r {
	case MediumResearch:
		return 3
	case DeepResearch:
		return 5
	default:
		return 1
	}
}

// UserSelections holds what the interactive prompts collected.
type UserSelections struct {
	Ticker        string
	AnalysisDate  string
	Analysts      []string
	ResearchDepth ResearchDepth
	LLMProvider   string
	QuickModel    string
	DeepModel     string
}

// Apply writes the selections over cfg. Empty selections leave the configured value alone.
func (s UserSelections) Apply(cfg *config.Config) {
	if len(s.Analysts) > 0 {
		cfg.SelectedAnalysts = slices.Clone(s.Analysts)
	}
	if s.ResearchDepth != "" {
		cfg.MaxDebateRounds = s.ResearchDepth.Rounds()
		cfg.MaxRiskDiscussRounds = s.ResearchDepth.Rounds()
	}
	if s.LLMProvider != "" && s.LLMProvider != cfg.LLMProvider {
		cfg.LLMProvider = s.LLMProvider
		cfg.BackendURL = providerBackendURL(s.LLMProvider)
	}
	if s.QuickModel != "" {
		cfg.QuickThinkLLM = s.QuickModel
	}
	if s.DeepModel != "" {
		cfg.DeepThinkLLM = s.DeepModel
	}
}

var analystNames = map[string]string{
	consts.AnalystMarket:       consts.Agent_MarketAnalyst,
	consts.AnalystSocial:       consts.Agent_SocialAnalyst,
	consts.AnalystNews:         consts.Agent_NewsAnalyst,
	consts.AnalystFundamentals: consts.Agent_FundamentalsAnalyst,
}

// analystDisplayName maps an analyst key to the name shown in prompts.
func analystDisplayName(key string) string {
	if name, ok := analystNames[key]; ok {
		return name
	}
	return key
}

func analystKeyFor(displayName string) (string, bool) {
	for key, name := range analystNames {
		if name == displayName {
			return key, true
		}
	}
	return "", false
}

func providerBackendURL(provider string) string {
	switch provider {
	case config.ProviderDeepSeek:
		return "https://api.deepseek.com"
	case config.ProviderOpenAI:
		return "https://api.openai.com/v1"
	}
	return ""
}

// providerModels returns the quick and deep model choices offered for a provider.
func providerModels(provider string) (quick, deep []string) {
	switch provider {
	case config.ProviderDeepSeek:
		return []string{"deepseek-chat"}, []string{"deepseek-reasoner", "deepseek-chat"}
	case config.ProviderOpenAI:
		return []string{"gpt-4o-mini", "gpt-4o"}, []string{"o4-mini", "gpt-4o"}
	case config.ProviderGemini:
		return []string{"gemini-2.0-flash", "gemini-1.5-flash"}, []string{"gemini-2.5-pro", "gemini-1.5-pro"}
	}
	return nil, nil
}
