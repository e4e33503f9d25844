package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
)

// ChatModelReasoner drives any eino chat model.
type ChatModelReasoner struct {
	name  string
	model model.BaseChatModel
	log   zerolog.Logger
}

func NewChatModelReasoner(name string, cm model.BaseChatModel, log zerolog.Logger) *ChatModelReasoner {
	return &ChatModelReasoner{
		name:  name,
		model: cm,
		log:   log.With().Str("component", "reasoner").Str("model", name).Logger(),
	}
}

func (r *ChatModelReasoner) Invoke(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := withTimeout(ctx, req.Timeout)
	defer cancel()

	msg, err := r.model.Generate(ctx, req.Messages)
	if err != nil {
		// the caller classifies deadline errors, keep the context error in the chain
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s generate: %w", r.name, ctxErr)
		}
		return nil, fmt.Errorf("%s generate: %w", r.name, err)
	}
	if msg == nil {
		return &Response{}, nil
	}

	resp := &Response{Text: strings.TrimSpace(msg.Content)}
	for _, call := range msg.ToolCalls {
		var args any
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			r.log.Debug().Err(err).Str("tool", call.Function.Name).Msg("tool call arguments are not json")
			args = call.Function.Arguments
		}
		if resp.Signals == nil {
			resp.Signals = map[string]any{}
		}
		resp.Signals[call.Function.Name] = args
	}

	r.log.Debug().Str("role", req.Role).Int("chars", len(resp.Text)).Msg("reasoner call finished")
	return resp, nil
}
