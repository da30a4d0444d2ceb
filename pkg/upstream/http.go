package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/governor/pkg/config"
)

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 4096

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model,omitempty"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
	User      string        `json:"user,omitempty"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
}

// HTTPGenerator posts chat completion requests to an HTTP endpoint.
// It does not retry; retries are owned by the queue.
type HTTPGenerator struct {
	endpoint  string
	apiKey    string
	model     string
	client    *http.Client
	estimator TokenEstimator
	logger    *slog.Logger
}

// NewHTTPGenerator creates a generator for cfg.Endpoint.
func NewHTTPGenerator(cfg config.UpstreamConfig, opts ...Option) (*HTTPGenerator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("upstream endpoint is required")
	}
	o := buildOptions(opts)

	client := o.client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = config.DefaultUpstreamTimeout
		}
		client = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
			Timeout: timeout,
		}
	}

	return &HTTPGenerator{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		client:    client,
		estimator: o.estimator,
		logger:    o.logger.With("component", "upstream", "mode", "http"),
	}, nil
}

// Generate implements Generator.
func (g *HTTPGenerator) Generate(ctx context.Context, prompt Prompt) (*Completion, error) {
	if strings.TrimSpace(prompt.Text) == "" {
		return nil, ErrEmptyPrompt
	}

	body, err := json.Marshal(chatRequest{
		Model:     g.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt.Text}},
		MaxTokens: prompt.MaxTokens,
		User:      prompt.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("upstream request abandoned: %w", ctxErr)
		}
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		g.logger.Warn("Upstream returned error status",
			"status", resp.StatusCode,
			"duration", time.Since(start),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ParseError{Cause: fmt.Errorf("failed to read response: %w", err)}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, &ParseError{RawResponse: string(raw), Cause: err}
	}
	if len(decoded.Choices) == 0 {
		return nil, &ParseError{RawResponse: string(raw), Cause: errors.New("response has no choices")}
	}

	choice := decoded.Choices[0]
	text := choice.Message.Content
	if text == "" {
		text = choice.Text
	}

	tokens := 0
	if decoded.Usage != nil {
		tokens = decoded.Usage.TotalTokens
		if tokens == 0 {
			tokens = decoded.Usage.PromptTokens + decoded.Usage.CompletionTokens
		}
	}
	if tokens == 0 {
		tokens = estimateUsage(g.estimator, prompt.Text, text)
	}

	g.logger.Debug("Upstream generation completed",
		"model", decoded.Model,
		"tokens", tokens,
		"duration", time.Since(start),
	)

	return &Completion{Text: text, TokensUsed: tokens, Model: decoded.Model}, nil
}
