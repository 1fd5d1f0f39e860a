// Package openai talks to an OpenAI-compatible API for metadata extraction,
// embeddings and answer generation. All calls go through a shared gate that
// bounds concurrency, spaces requests and retries transient failures.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	sdk "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/dockeep/dockeep/internal/domain"
	"github.com/dockeep/dockeep/internal/metrics"
	"github.com/dockeep/dockeep/internal/retry"
)

// Client is the AI provider transport.
type Client struct {
	api            *sdk.Client
	chatModel      string
	embeddingModel sdk.EmbeddingModel
	dimensions     int
	pool           *ants.Pool
	policy         retry.Policy
	logger         *zap.Logger

	mu          sync.Mutex
	lastCall    time.Time
	minInterval time.Duration
}

// Config holds the provider settings.
type Config struct {
	APIKey          string
	BaseURL         string
	ChatModel       string
	EmbeddingModel  string
	Dimensions      int
	MaxConcurrent   int
	MinCallInterval time.Duration
	Retry           retry.Policy
	Logger          *zap.Logger
}

// New creates the transport. MaxConcurrent bounds in-flight API calls.
func New(cfg *Config) (*Client, error) {
	clientCfg := sdk.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	pool, err := ants.NewPool(maxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("create call pool: %w", err)
	}

	policy := cfg.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.Default()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		api:            sdk.NewClientWithConfig(clientCfg),
		chatModel:      cfg.ChatModel,
		embeddingModel: sdk.EmbeddingModel(cfg.EmbeddingModel),
		dimensions:     cfg.Dimensions,
		pool:           pool,
		policy:         policy,
		logger:         logger,
		minInterval:    cfg.MinCallInterval,
	}, nil
}

// Close releases the call pool.
func (c *Client) Close() {
	c.pool.Release()
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// call runs fn through the concurrency gate with spacing and retries. Submit
// blocks while the pool is saturated, which is the concurrency bound.
func (c *Client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	var wg sync.WaitGroup
	var callErr error
	wg.Add(1)
	if err := c.pool.Submit(func() {
		defer wg.Done()
		callErr = c.policy.Do(ctx, func(ctx context.Context) error {
			c.pace()
			return fn(ctx)
		})
	}); err != nil {
		return fmt.Errorf("submit api call: %w", err)
	}
	wg.Wait()

	metrics.AIRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	status := "ok"
	if callErr != nil {
		status = "error"
	}
	metrics.AIRequestsTotal.WithLabelValues(op, status).Inc()
	return callErr
}

// pace enforces the minimum interval between consecutive API calls. The lock
// is held through the sleep so callers queue behind each other.
func (c *Client) pace() {
	if c.minInterval <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if wait := c.minInterval - time.Since(c.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	c.lastCall = time.Now()
}

// mapError classifies transport failures so callers can distinguish timeouts
// from provider outages.
func mapError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrProviderTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	var reqErr *sdk.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return statusError(op, reqErr.HTTPStatusCode, detail)
	}

	var apiErr *sdk.APIError
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr.HTTPStatusCode, apiErr.Message)
	}

	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrProviderUnavailable)
}

// statusError wraps an HTTP-level API failure. Client errors other than 408
// and 429 cannot succeed on a re-attempt and are marked permanent so the
// retry loop returns them at once.
func statusError(op string, status int, detail string) error {
	err := fmt.Errorf("%s: api error %d: %s: %w", op, status, detail, classify(status))
	if status >= 400 && status < 500 &&
		status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return retry.Permanent(err)
	}
	return err
}

func classify(status int) error {
	if status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout {
		return domain.ErrProviderTimeout
	}
	return domain.ErrProviderUnavailable
}

// extractDetail pulls the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
