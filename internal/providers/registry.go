package providers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

// Embedder is the provider side of similarity.Embedder.
type Embedder interface {
	Name() string
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// EmbedderConfig is the config-driven description of an embedder.
type EmbedderConfig struct {
	Provider          string
	APIKey            string
	Model             string
	Dimensions        int
	MaxRetries        int
	RetryDelay        time.Duration
	Timeout           time.Duration
	RequestsPerMinute int
	BaseURL           string
}

// EmbedderFactory builds an Embedder from config.
type EmbedderFactory func(cfg EmbedderConfig, logger *slog.Logger) (Embedder, error)

var embedderFactories = map[string]EmbedderFactory{
	OpenAIEmbedName: func(cfg EmbedderConfig, logger *slog.Logger) (Embedder, error) {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder requires an API key")
		}
		return NewOpenAIEmbedder(OpenAIEmbedConfig{
			APIKey:            cfg.APIKey,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			MaxRetries:        cfg.MaxRetries,
			RetryDelay:        cfg.RetryDelay,
			Timeout:           cfg.Timeout,
			RequestsPerMinute: cfg.RequestsPerMinute,
			BaseURL:           cfg.BaseURL,
			Logger:            logger,
		}), nil
	},
	HashEmbedName: func(cfg EmbedderConfig, _ *slog.Logger) (Embedder, error) {
		return NewHashEmbedder(cfg.Dimensions), nil
	},
}

// NewEmbedder instantiates the embedder named by cfg.Provider.
func NewEmbedder(cfg EmbedderConfig, logger *slog.Logger) (Embedder, error) {
	factory, ok := embedderFactories[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("embedding provider not found: %s (available: %v)", cfg.Provider, EmbedderNames())
	}
	e, err := factory(cfg, logger)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Info("created embedder", "provider", e.Name(), "model", e.Model())
	}
	return e, nil
}

// EmbedderNames returns the registered provider names, sorted.
func EmbedderNames() []string {
	names := make([]string, 0, len(embedderFactories))
	for name := range embedderFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
