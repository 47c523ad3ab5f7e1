package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/soukbot/tg-product-scraper/internal/config"
	"github.com/soukbot/tg-product-scraper/internal/observability"
)

const (
	circuitBreakerThreshold = 5
	circuitBreakerTimeout   = 1 * time.Minute
)

// jsonObjectRe pulls the first JSON object out of a response that may be
// wrapped in prose or code fences.
var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

type openaiClient struct {
	cfg         *config.Config
	client      *openai.Client
	logger      *zerolog.Logger
	rateLimiter *rate.Limiter

	// Circuit breaker state
	consecutiveFailures int
	circuitOpenUntil    time.Time
	mu                  sync.Mutex
}

// NewOpenAI builds a Client backed by an OpenAI-compatible chat completion
// endpoint. The base URL is configurable so Gemini's compatibility endpoint
// can be used with the same client.
func NewOpenAI(cfg *config.Config, logger *zerolog.Logger) Client {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = cfg.LLMBaseURL
	}

	rps := cfg.RateLimitRPS
	if rps < 1 {
		rps = 1
	}

	return &openaiClient{
		cfg:         cfg,
		client:      openai.NewClientWithConfig(clientCfg),
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(float64(rps)), 5),
	}
}

func (c *openaiClient) checkCircuit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Now().Before(c.circuitOpenUntil) {
		return fmt.Errorf("%w until %v", ErrCircuitOpen, c.circuitOpenUntil)
	}

	return nil
}

func (c *openaiClient) recordSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveFailures = 0
}

func (c *openaiClient) recordFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveFailures++
	if c.consecutiveFailures >= circuitBreakerThreshold {
		c.circuitOpenUntil = time.Now().Add(circuitBreakerTimeout)
		c.logger.Warn().
			Int("consecutive_failures", c.consecutiveFailures).
			Time("open_until", c.circuitOpenUntil).
			Msg("LLM circuit breaker opened")
	}
}

func (c *openaiClient) ExtractProduct(ctx context.Context, text, channelName string) (*ProductFields, error) {
	if err := c.checkCircuit(); err != nil {
		return nil, err
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.LLMTimeout)
	defer cancel()

	start := time.Now()

	resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model: c.cfg.LLMModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: extractionPrompt(text, channelName),
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})

	observability.LLMRequestDuration.WithLabelValues(c.cfg.LLMModel).Observe(time.Since(start).Seconds())

	if err != nil {
		c.recordFailure()
		observability.LLMRequests.WithLabelValues(c.cfg.LLMModel, "error").Inc()

		return nil, fmt.Errorf("llm chat completion error: %w", err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.recordFailure()
		observability.LLMRequests.WithLabelValues(c.cfg.LLMModel, "empty").Inc()

		return nil, ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug().Str("content", content).Msg("LLM response")

	fields, err := parseProductFields(content)
	if err != nil {
		c.recordFailure()
		observability.LLMRequests.WithLabelValues(c.cfg.LLMModel, "malformed").Inc()

		return nil, err
	}

	c.recordSuccess()
	observability.LLMRequests.WithLabelValues(c.cfg.LLMModel, "ok").Inc()

	return fields, nil
}

func parseProductFields(content string) (*ProductFields, error) {
	raw := jsonObjectRe.FindString(content)
	if raw == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedResponse, content)
	}

	var fields ProductFields
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("failed to parse llm response: %w", err)
	}

	return &fields, nil
}
