package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// EchoGenerator answers every prompt locally after a fixed latency. Output
// is deterministic for a given prompt.
type EchoGenerator struct {
	latency   time.Duration
	estimator TokenEstimator
	logger    *slog.Logger
}

// NewEchoGenerator creates an echo generator.
func NewEchoGenerator(latency time.Duration, opts ...Option) *EchoGenerator {
	o := buildOptions(opts)
	return &EchoGenerator{
		latency:   latency,
		estimator: o.estimator,
		logger:    o.logger.With("component", "upstream", "mode", "echo"),
	}
}

// Generate implements Generator.
func (g *EchoGenerator) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	if strings.TrimSpace(prompt.Text) == "" {
		return nil, ErrEmptyPrompt
	}

	if g.latency > 0 {
		timer := time.NewTimer(g.latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}

	kind := prompt.Type
	if kind == "" {
		kind = "text"
	}
	text := fmt.Sprintf("[%s] %s", kind, prompt.Text)

	g.logger.Debug("Echo generation", "type", kind, "prompt_length", len(prompt.Text))

	return &Completion{
		Text:       text,
		TokensUsed: estimateUsage(g.estimator, prompt.Text, text),
		Model:      "echo",
	}, nil
}
