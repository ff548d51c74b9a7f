package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloo-solutions/docsage/internal/domain"
	"github.com/cloo-solutions/docsage/internal/logger"
	"github.com/cloo-solutions/docsage/internal/telemetry"
)

const (
	defaultGenMaxTokens   = 1500
	defaultGenTemperature = 0.1
	defaultGenTopP        = 0.9
	defaultGenRetries     = 2
	defaultGenTimeout     = 30 * time.Second
)

var errEmptyCompletion = errors.New("model returned an empty completion")

// GenerateOptions are per-call generation settings. Temperature and Retries
// are used as given, so start from DefaultGenerateOptions.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float32
	TopP        float32
	Retries     int
	Timeout     time.Duration
}

// DefaultGenerateOptions returns low-temperature settings with two retries.
func DefaultGenerateOptions() GenerateOptions {
	return GenerateOptions{
		MaxTokens:   defaultGenMaxTokens,
		Temperature: defaultGenTemperature,
		TopP:        defaultGenTopP,
		Retries:     defaultGenRetries,
		Timeout:     defaultGenTimeout,
	}
}

// GenerationError is returned once every attempt has failed.
type GenerationError struct {
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// GenerationClient calls a Generator with per-attempt timeouts and
// exponential backoff between attempts.
type GenerationClient struct {
	generator Generator
	log       *logger.Logger
	sleep     SleepFunc
}

// NewGenerationClient creates a GenerationClient.
func NewGenerationClient(generator Generator, log *logger.Logger) *GenerationClient {
	if log == nil {
		log = logger.Nop()
	}
	return &GenerationClient{
		generator: generator,
		log:       log.With("component", "GenerationClient"),
		sleep:     sleepContext,
	}
}

// WithSleep replaces the backoff sleep, mainly for tests.
func (c *GenerationClient) WithSleep(sleep SleepFunc) *GenerationClient {
	if sleep != nil {
		c.sleep = sleep
	}
	return c
}

// Model returns the underlying model name.
func (c *GenerationClient) Model() string {
	return c.generator.Model()
}

// Generate runs up to Retries+1 attempts. After failed attempt n it sleeps
// 2^n seconds. Cancellation of ctx stops immediately.
func (c *GenerationClient) Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (*domain.GenerationResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "GenerationClient.Generate", telemetry.SpanAttributes{
		Operation: "generate",
		Model:     c.generator.Model(),
	})
	defer span.End()

	if strings.TrimSpace(userPrompt) == "" {
		return nil, domain.ErrEmptyQuery
	}

	opts = c.normalize(opts)
	messages := []domain.Message{
		{Role: domain.RoleSystem, Content: systemPrompt},
		{Role: domain.RoleUser, Content: userPrompt},
	}
	params := domain.GenerationParams{
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	start := time.Now()
	maxAttempts := opts.Retries + 1
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		response, err := c.attempt(ctx, messages, params, opts.Timeout)
		if err == nil {
			elapsed := time.Since(start).Milliseconds()
			if phrase, ok := findRefusal(response); ok {
				c.log.Warn("generated answer contains refusal phrasing",
					"phrase", phrase,
					"attempt", attempt,
				)
			}
			c.log.Debug("generation complete",
				"model", c.generator.Model(),
				"attempts", attempt,
				"duration_ms", elapsed,
			)
			return &domain.GenerationResult{
				Response:         response,
				TokenCount:       utf8.RuneCountInString(response) / 4,
				GenerationTimeMs: elapsed,
				Model:            c.generator.Model(),
				Attempts:         attempt,
			}, nil
		}

		lastErr = err
		if ctx.Err() != nil {
			span.SetError(err)
			return nil, c.failure(attempt, ctx.Err())
		}

		c.log.Warn("generation attempt failed",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"error", err,
		)

		if attempt < maxAttempts {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if err := c.sleep(ctx, backoff); err != nil {
				span.SetError(err)
				return nil, c.failure(attempt, err)
			}
		}
	}

	span.SetError(lastErr)
	c.log.Error("generation failed", "attempts", maxAttempts, "error", lastErr)
	return nil, c.failure(maxAttempts, lastErr)
}

func (c *GenerationClient) attempt(ctx context.Context, messages []domain.Message, params domain.GenerationParams, timeout time.Duration) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	response, err := c.generator.Generate(attemptCtx, messages, params)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(response) == "" {
		return "", errEmptyCompletion
	}
	return response, nil
}

func (c *GenerationClient) normalize(opts GenerateOptions) GenerateOptions {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultGenMaxTokens
	}
	if limit := c.generator.MaxTokens(); limit > 0 && opts.MaxTokens > limit {
		opts.MaxTokens = limit
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultGenTimeout
	}
	return opts
}

func (c *GenerationClient) failure(attempts int, err error) error {
	return domain.NewDomainErrorWithCause(
		domain.ErrCodeGenerationFailed,
		domain.ErrGenerationFailed.Message,
		&GenerationError{Attempts: attempts, Err: err},
	)
}
