package llmservice

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"docquery/internal/config"
	"docquery/internal/errs"
)

// Generator produces a completion for a system prompt plus user
// prompt. Implemented by Client and by test fakes.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Client wraps a langchaingo chat model with a circuit breaker and
// bounded retry for transient provider failures.
type Client struct {
	llm         llms.Model
	breaker     *gobreaker.CircuitBreaker
	temperature float64
	maxRetries  uint64
}

// NewClient builds the completion client for the configured provider.
func NewClient(cfg *config.LLMConfig, apiKey string, maxRetries int) (*Client, error) {
	var llm llms.Model
	var err error
	switch cfg.Provider {
	case "ollama":
		llm, err = ollama.New(
			ollama.WithServerURL(cfg.BaseURL),
			ollama.WithModel(cfg.Model),
		)
	default:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(apiKey, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err = openai.New(opts...)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindSynthesis, err, "initializing %s client", cfg.Provider)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 3 && counts.TotalFailures*2 >= counts.Requests
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("Circuit breaker state change")
		},
	})

	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Client{
		llm:         llm,
		breaker:     breaker,
		temperature: cfg.Temperature,
		maxRetries:  uint64(maxRetries),
	}, nil
}

// Generate runs one completion call, retrying transient failures with
// exponential backoff.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextContent{Text: system}},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextContent{Text: prompt}},
		},
	}

	var content string
	op := func() error {
		out, err := c.breaker.Execute(func() (any, error) {
			return c.llm.GenerateContent(ctx, messages, llms.WithTemperature(c.temperature))
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).Msg("Completion call failed, retrying")
			return err
		}
		resp := out.(*llms.ContentResponse)
		if len(resp.Choices) == 0 {
			return backoff.Permanent(errors.New("provider returned no choices"))
		}
		content = resp.Choices[0].Content
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return "", errs.Wrap(errs.KindSynthesis, err, "completion call failed")
	}
	return content, nil
}
