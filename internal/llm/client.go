package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/config"
)

// Options are per-call generation parameters.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// Completer turns a prompt into text.
type Completer interface {
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

// Client implements Completer on top of langchaingo.
type Client struct {
	model   llms.Model
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient builds a client for the configured provider.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	var (
		model llms.Model
		err   error
	)

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithToken(cfg.APIKey), openai.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init llm: %w", err)
	}

	return NewClientWithModel(model, cfg.Timeout(), logger), nil
}

// NewClientWithModel wraps an existing model.
func NewClientWithModel(model llms.Model, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{model: model, timeout: timeout, logger: logger}
}

// Complete sends a single prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if c.model == nil {
		return "", errors.New("llm client not initialized")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.Model != "" {
		callOpts = append(callOpts, llms.WithModel(opts.Model))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	start := time.Now()
	text, err := llms.GenerateFromSinglePrompt(ctx, c.model, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("llm generation failed: %w", err)
	}
	c.logger.Debug("llm completion",
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("completion_chars", len(text)),
		zap.Duration("latency", time.Since(start)))

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("llm returned an empty completion")
	}
	return text, nil
}
