// Package llm sends chat-completion requests to the Anthropic Messages API.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/nadmax/nexcoach/internal/apperr"
	"github.com/nadmax/nexcoach/internal/config"
	"github.com/nadmax/nexcoach/internal/metrics"
	"golang.org/x/time/rate"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one completion call. Zero MaxTokens and nil Temperature fall
// back to the client defaults.
type Request struct {
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature *float64
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// CompleterFunc adapts a function to the Completer interface.
type CompleterFunc func(ctx context.Context, req Request) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var ErrNoMessages = errors.New("request has no messages")

type Client struct {
	inner       anthropic.Client
	model       anthropic.Model
	maxTokens   int
	temperature float64
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// NewClient builds a client from cfg. The SDK's own retries are disabled:
// a failed call fails the request that needed it.
func NewClient(cfg config.LLM, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Config("llm.new_client", errors.New("anthropic api key not set"))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout.Duration > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout.Duration))
	}

	c := &Client{
		inner:       anthropic.NewClient(opts...),
		model:       anthropic.Model(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
	if cfg.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60), cfg.RequestsPerMinute)
	}

	return c, nil
}

func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return "", apperr.Validation("llm.complete", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperr.Transport("llm.complete", fmt.Errorf("failed to wait for rate limiter: %w", err))
		}
	}

	start := time.Now()
	resp, err := c.inner.Messages.New(ctx, params)
	metrics.RecordUpstreamCall("anthropic", "messages", time.Since(start), err)
	if err != nil {
		c.logger.Error("chat completion failed", "model", c.model, "error", err)
		return "", apperr.Transport("llm.complete", fmt.Errorf("claude API call: %w", err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.logger.Debug("chat completion finished",
		"model", c.model,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	return strings.TrimSpace(text.String()), nil
}

func (c *Client) buildParams(req Request) (anthropic.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return anthropic.MessageNewParams{}, ErrNoMessages
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(block))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		default:
			return anthropic.MessageNewParams{}, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	return params, nil
}

// StripJSONFences removes the markdown code fences models sometimes wrap
// JSON replies in.
func StripJSONFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}
	return s
}
