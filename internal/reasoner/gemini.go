package reasoner

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// GeminiReasoner calls the Gemini API through the GenAI SDK.
type GeminiReasoner struct {
	client *genai.Client
	model  string
	log    zerolog.Logger
}

func NewGeminiReasoner(ctx context.Context, apiKey, model string, log zerolog.Logger) (*GeminiReasoner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiReasoner{
		client: client,
		model:  model,
		log:    log.With().Str("component", "reasoner").Str("model", model).Logger(),
	}, nil
}

func (g *GeminiReasoner) Invoke(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	system, prompt := flattenMessages(req.Messages)
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(0.2)),
	}
	if system != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("gemini generate: %w", ctxErr)
		}
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	g.log.Debug().Str("role", req.Role).Int("chars", len(text)).Msg("reasoner call finished")
	return &Response{Text: text}, nil
}

// flattenMessages splits system instructions from the conversation, which Gemini takes as one text turn.
func flattenMessages(msgs []*schema.Message) (system, prompt string) {
	var sys, conv []string
	for _, m := range msgs {
		if m == nil || strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case schema.System:
			sys = append(sys, m.Content)
		case schema.Assistant:
			conv = append(conv, "Assistant: "+m.Content)
		default:
			conv = append(conv, m.Content)
		}
	}
	return strings.Join(sys, "\n\n"), strings.Join(conv, "\n\n")
}
