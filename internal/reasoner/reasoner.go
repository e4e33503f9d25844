// Package reasoner adapts language model backends to the single call the pipeline needs:
// a role, some messages and a deadline in, text and optional structured signals out.
package reasoner

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

type Request struct {
	Role     string
	Messages []*schema.Message
	// Timeout bounds the call. Zero means only the caller's context applies.
	Timeout time.Duration
}

type Response struct {
	Text string
	// Signals holds structured output, e.g. decoded tool call arguments keyed by tool name.
	Signals map[string]any
}

// Reasoner is the pipeline's only generative dependency.
type Reasoner interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
}

// Func lets a plain function act as a Reasoner.
type Func func(ctx context.Context, req Request) (*Response, error)

func (f Func) Invoke(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
