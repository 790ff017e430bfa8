package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIEmbedName          = "openai"
	openAIEmbedDefaultModel  = "text-embedding-3-small"
	openAIEmbedMaxBatchInput = 2048
)

// OpenAIEmbedConfig holds configuration for the OpenAI embeddings client.
type OpenAIEmbedConfig struct {
	APIKey            string
	Model             string        // "text-embedding-3-small" (default)
	Dimensions        int           // Optional truncation, 0 keeps the model default
	MaxRetries        int           // Attempts after the first one
	RequestsPerMinute int           // Client-side rate limit, 500 when <= 0
	RetryDelay        time.Duration // Base delay for exponential backoff
	Timeout           time.Duration // HTTP timeout
	BaseURL           string        // Optional (tests)
	HTTPClient        *http.Client  // Optional (tests)
	Logger            *slog.Logger
}

// OpenAIEmbedder implements similarity.Embedder using the official OpenAI SDK.
type OpenAIEmbedder struct {
	model      string
	dimensions int
	maxRetries int
	retryDelay time.Duration
	client     openai.Client
	limiter    *RateLimiter
	logger     *slog.Logger

	promptTokens atomic.Int64
}

// NewOpenAIEmbedder creates a new OpenAI embeddings client.
func NewOpenAIEmbedder(cfg OpenAIEmbedConfig) *OpenAIEmbedder {
	if cfg.Model == "" {
		cfg.Model = openAIEmbedDefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	// retries are driven by retry-go so rate limits honor Retry-After
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIEmbedder{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     openai.NewClient(opts...),
		limiter:    NewRateLimiter(cfg.RequestsPerMinute),
		logger:     cfg.Logger,
	}
}

// Name returns the provider identifier.
func (c *OpenAIEmbedder) Name() string {
	return OpenAIEmbedName
}

// Model returns the embedding model.
func (c *OpenAIEmbedder) Model() string {
	return c.model
}

// LimiterStatus returns the client-side rate limiter state.
func (c *OpenAIEmbedder) LimiterStatus() LimiterStatus {
	return c.limiter.Status()
}

// PromptTokens returns the tokens billed so far.
func (c *OpenAIEmbedder) PromptTokens() int64 {
	return c.promptTokens.Load()
}

// Embed returns one vector per text, in input order.
func (c *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > openAIEmbedMaxBatchInput {
		return nil, fmt.Errorf("batch of %d texts exceeds the limit of %d", len(texts), openAIEmbedMaxBatchInput)
	}

	params := openai.EmbeddingNewParams{
		Input:          openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model:          openai.EmbeddingModel(c.model),
		EncodingFormat: openai.EmbeddingNewParamsEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		params.Dimensions = openai.Int(int64(c.dimensions))
	}

	var resp *openai.CreateEmbeddingResponse
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
			r, err := c.client.Embeddings.New(ctx, params)
			if err != nil {
				err = mapOpenAIError(err)
				if rle, ok := IsRateLimitError(err); ok {
					c.limiter.Record429(rle.RetryAfter)
				}
				return err
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries+1)),
		retry.Delay(c.retryDelay),
		retry.DelayType(retryAfterDelay),
		retry.RetryIf(isRetryable),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			if c.logger != nil {
				c.logger.Warn("retrying embedding request", "attempt", n+1, "error", err)
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range for %d inputs", d.Index, len(texts))
		}
		out[d.Index] = d.Embedding
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	c.promptTokens.Add(resp.Usage.PromptTokens)

	if c.logger != nil {
		c.logger.Debug("embedded batch", "model", c.model, "inputs", len(texts), "prompt_tokens", resp.Usage.PromptTokens)
	}
	return out, nil
}

func isRetryable(err error) bool {
	if _, ok := IsRateLimitError(err); ok {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return false
}

func retryAfterDelay(n uint, err error, config *retry.Config) time.Duration {
	if rle, ok := IsRateLimitError(err); ok && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	return retry.BackOffDelay(n, err, config)
}

func mapOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			retryAfter := time.Duration(0)
			if apiErr.Response != nil {
				retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
			}
			return &RateLimitError{
				Message:    fmt.Sprintf("OpenAI rate limited: %s", apiErr.Message),
				RetryAfter: retryAfter,
				StatusCode: apiErr.StatusCode,
			}
		}
		return &StatusError{Provider: "OpenAI embeddings", StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}
