package reasoner

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
)

// Pair holds the two model bindings of a run. Managers and the portfolio manager think with Deep,
// everyone else with Quick.
type Pair struct {
	Quick Reasoner
	Deep  Reasoner
}

// NewPair builds the quick and deep reasoners for the configured provider.
func NewPair(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Pair, error) {
	quick, err := New(ctx, cfg, cfg.QuickThinkLLM, log)
	if err != nil {
		return nil, fmt.Errorf("quick model: %w", err)
	}
	if cfg.DeepThinkLLM == cfg.QuickThinkLLM {
		return &Pair{Quick: quick, Deep: quick}, nil
	}
	deep, err := New(ctx, cfg, cfg.DeepThinkLLM, log)
	if err != nil {
		return nil, fmt.Errorf("deep model: %w", err)
	}
	return &Pair{Quick: quick, Deep: deep}, nil
}

// New builds one reasoner for modelName on the configured provider.
func New(ctx context.Context, cfg *config.Config, modelName string, log zerolog.Logger) (Reasoner, error) {
	switch cfg.LLMProvider {
	case config.ProviderDeepSeek:
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:    cfg.DeepSeekAPIKey,
			BaseURL:   cfg.BackendURL,
			Model:     modelName,
			MaxTokens: cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create deepseek model: %w", err)
		}
		return NewChatModelReasoner(modelName, cm, log), nil

	case config.ProviderOpenAI:
		maxTokens := cfg.MaxTokens
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL:   cfg.BackendURL,
			APIKey:    cfg.OpenAIAPIKey,
			Model:     modelName,
			MaxTokens: &maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}
		return NewChatModelReasoner(modelName, cm, log), nil

	case config.ProviderGemini:
		return NewGeminiReasoner(ctx, cfg.GeminiAPIKey, modelName, log)
	}
	return nil, fmt.Errorf("%w: unsupported llm provider %q", config.ErrInvalid, cfg.LLMProvider)
}
