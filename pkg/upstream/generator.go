package upstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"mercator-hq/governor/pkg/config"
)

// Prompt is a generation request.
type Prompt struct {
	// Type is the generation kind (for example "text" or "summary").
	Type string `json:"type"`

	// Text is the prompt content.
	Text string `json:"prompt"`

	// MaxTokens caps the completion length. Zero leaves it to the backend.
	MaxTokens int `json:"maxTokens,omitempty"`

	// UserID is forwarded to the backend for abuse tracking.
	UserID string `json:"-"`
}

// Completion is the result of a generation.
type Completion struct {
	// Text is the generated content.
	Text string `json:"generatedText"`

	// TokensUsed is the reported or estimated token usage.
	TokensUsed int `json:"tokensUsed"`

	// Model is the model that produced the completion, when known.
	Model string `json:"model,omitempty"`
}

// Generator performs a generation call.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (*Completion, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt Prompt) (*Completion, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	return f(ctx, prompt)
}

// TokenEstimator estimates token usage from text length.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// Option configures a generator built by New.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	client    *http.Client
	estimator TokenEstimator
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient replaces the HTTP client of the HTTP generator.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.client = client }
}

// WithTokenEstimator sets the estimator used when usage is not reported.
func WithTokenEstimator(e TokenEstimator) Option {
	return func(o *options) { o.estimator = e }
}

// New builds the generator selected by cfg.Mode.
func New(cfg config.UpstreamConfig, opts ...Option) (Generator, error) {
	switch cfg.Mode {
	case "", "echo":
		return NewEchoGenerator(cfg.EchoLatency, opts...), nil
	case "http":
		return NewHTTPGenerator(cfg, opts...)
	default:
		return nil, fmt.Errorf("unknown upstream mode %q", cfg.Mode)
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:    slog.Default(),
		estimator: charEstimator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.estimator == nil {
		o.estimator = charEstimator{}
	}
	return o
}

// charEstimator counts four characters per token.
type charEstimator struct{}

func (charEstimator) EstimateTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}

func estimateUsage(e TokenEstimator, prompt, text string) int {
	return e.EstimateTokens(prompt) + e.EstimateTokens(text)
}
