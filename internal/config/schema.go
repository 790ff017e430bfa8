package config

import (
	"fmt"
	"time"

	"github.com/jackzampolin/headloc/internal/providers"
	"github.com/jackzampolin/headloc/internal/similarity"
)

// Config holds headloc configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Locator    LocatorCfg    `mapstructure:"locator" yaml:"locator"`
	Embeddings EmbeddingsCfg `mapstructure:"embeddings" yaml:"embeddings"`
	Cache      CacheCfg      `mapstructure:"cache" yaml:"cache"`
	Defaults   DefaultsCfg   `mapstructure:"defaults" yaml:"defaults"`
}

// LocatorCfg tunes matching and the invariant passes.
type LocatorCfg struct {
	// Noise
	SuppressTOC         bool    `mapstructure:"suppress_toc" yaml:"suppress_toc"`
	SuppressRunning     bool    `mapstructure:"suppress_running" yaml:"suppress_running"`
	BandLines           int     `mapstructure:"band_lines" yaml:"band_lines"`
	TOCMinLeaders       int     `mapstructure:"toc_min_leaders" yaml:"toc_min_leaders"`
	TOCMinSectionTokens int     `mapstructure:"toc_min_section_tokens" yaml:"toc_min_section_tokens"`
	RunnerMinPages      int     `mapstructure:"runner_min_pages" yaml:"runner_min_pages"`
	RunnerFraction      float64 `mapstructure:"runner_fraction" yaml:"runner_fraction"`

	// Normalization
	NormalizeConfusables bool `mapstructure:"normalize_confusables" yaml:"normalize_confusables"`
	FoldDiacritics       bool `mapstructure:"fold_diacritics" yaml:"fold_diacritics"`

	// Scoring
	FuzzyThreshold     float64    `mapstructure:"fuzzy_threshold" yaml:"fuzzy_threshold"`
	MinLexical         float64    `mapstructure:"min_lexical" yaml:"min_lexical"`
	MinSemantic        float64    `mapstructure:"min_semantic" yaml:"min_semantic"`
	Weights            WeightsCfg `mapstructure:"weights" yaml:"weights"`
	NumericBonus       float64    `mapstructure:"numeric_bonus" yaml:"numeric_bonus"`
	BandPenalty        float64    `mapstructure:"band_penalty" yaml:"band_penalty"`
	ChildHintBonus     float64    `mapstructure:"child_hint_bonus" yaml:"child_hint_bonus"`
	ChildHintLookahead int        `mapstructure:"child_hint_lookahead" yaml:"child_hint_lookahead"`
	Tiebreak           string     `mapstructure:"tiebreak" yaml:"tiebreak"` // "earliest", "last"

	// Resolution
	WindowPad              int   `mapstructure:"window_pad" yaml:"window_pad"`
	RequireNumericLevels   []int `mapstructure:"require_numeric_levels" yaml:"require_numeric_levels"`
	LastOccurrenceFallback bool  `mapstructure:"last_occurrence_fallback" yaml:"last_occurrence_fallback"`

	// Invariants
	MaxPasses    int    `mapstructure:"max_passes" yaml:"max_passes"`
	DedupePolicy string `mapstructure:"dedupe_policy" yaml:"dedupe_policy"` // "best", "first"

	Semantic SemanticCfg `mapstructure:"semantic" yaml:"semantic"`
}

// WeightsCfg holds the fused score weights.
type WeightsCfg struct {
	Lexical    float64 `mapstructure:"lexical" yaml:"lexical"`
	Position   float64 `mapstructure:"position" yaml:"position"`
	Typography float64 `mapstructure:"typography" yaml:"typography"`
	Semantic   float64 `mapstructure:"semantic" yaml:"semantic"`
}

// SemanticCfg toggles embedding similarity in scoring.
type SemanticCfg struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// EmbeddingsCfg configures the embedding provider used for semantic scoring.
type EmbeddingsCfg struct {
	Provider          string  `mapstructure:"provider" yaml:"provider"` // "openai", "hash"
	Model             string  `mapstructure:"model" yaml:"model"`
	APIKey            string  `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	BaseURL           string  `mapstructure:"base_url" yaml:"base_url"`
	Dimensions        int     `mapstructure:"dimensions" yaml:"dimensions"`
	MaxRetries        int     `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelaySeconds float64 `mapstructure:"retry_delay_seconds" yaml:"retry_delay_seconds"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	BatchSize         int     `mapstructure:"batch_size" yaml:"batch_size"`
	MaxConcurrency    int     `mapstructure:"max_concurrency" yaml:"max_concurrency"`
}

// CacheCfg selects where embeddings are cached.
type CacheCfg struct {
	Type  string   `mapstructure:"type" yaml:"type"` // "memory", "redis"
	Redis RedisCfg `mapstructure:"redis" yaml:"redis"`
}

// RedisCfg holds the Redis connection for the embedding cache.
type RedisCfg struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	Password   string `mapstructure:"password" yaml:"password"` // supports ${ENV_VAR} syntax
	DB         int    `mapstructure:"db" yaml:"db"`
	Prefix     string `mapstructure:"prefix" yaml:"prefix"`
	TTLSeconds int    `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

// DefaultsCfg holds run-wide settings.
type DefaultsCfg struct {
	Workers       int    `mapstructure:"workers" yaml:"workers"` // Max documents located in parallel
	Trace         bool   `mapstructure:"trace" yaml:"trace"`     // Write trace files under the home dir
	RecordMetrics bool   `mapstructure:"record_metrics" yaml:"record_metrics"`
	LogLevel      string `mapstructure:"log_level" yaml:"log_level"` // "debug", "info", "warn", "error"
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Locator: LocatorCfg{
			SuppressTOC:          true,
			SuppressRunning:      true,
			BandLines:            5,
			TOCMinLeaders:        4,
			TOCMinSectionTokens:  6,
			RunnerMinPages:       2,
			RunnerFraction:       0.6,
			NormalizeConfusables: true,
			FoldDiacritics:       true,
			FuzzyThreshold:       0.80,
			MinLexical:           0.30,
			MinSemantic:          0.25,
			Weights: WeightsCfg{
				Lexical:    0.60,
				Position:   0.25,
				Typography: 0.15,
				Semantic:   0.20,
			},
			NumericBonus:           0.25,
			BandPenalty:            0.15,
			ChildHintBonus:         0.05,
			ChildHintLookahead:     30,
			Tiebreak:               "earliest",
			WindowPad:              40,
			RequireNumericLevels:   []int{1},
			LastOccurrenceFallback: true,
			MaxPasses:              2,
			DedupePolicy:           "best",
		},
		Embeddings: EmbeddingsCfg{
			Provider:          "openai",
			Model:             "text-embedding-3-small",
			APIKey:            "${OPENAI_API_KEY}",
			MaxRetries:        5,
			RetryDelaySeconds: 2,
			TimeoutSeconds:    60,
			RequestsPerMinute: 500,
			BatchSize:         64,
			MaxConcurrency:    4,
		},
		Cache: CacheCfg{
			Type: "memory",
			Redis: RedisCfg{
				Addr:       "localhost:6379",
				Prefix:     "headloc:emb:",
				TTLSeconds: 7 * 24 * 3600,
			},
		},
		Defaults: DefaultsCfg{
			Workers:       4,
			Trace:         false,
			RecordMetrics: true,
			LogLevel:      "info",
		},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	l := c.Locator
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"locator.fuzzy_threshold", l.FuzzyThreshold},
		{"locator.min_lexical", l.MinLexical},
		{"locator.min_semantic", l.MinSemantic},
		{"locator.runner_fraction", l.RunnerFraction},
	} {
		if f.v < 0 || f.v > 1 {
			return fmt.Errorf("%s must be in [0, 1], got %v", f.name, f.v)
		}
	}
	switch l.Tiebreak {
	case "earliest", "last":
	default:
		return fmt.Errorf("locator.tiebreak must be earliest or last, got %q", l.Tiebreak)
	}
	switch l.DedupePolicy {
	case "best", "first":
	default:
		return fmt.Errorf("locator.dedupe_policy must be best or first, got %q", l.DedupePolicy)
	}
	if l.MaxPasses < 0 || l.WindowPad < 0 || l.BandLines < 0 || l.ChildHintLookahead < 0 {
		return fmt.Errorf("locator counts must not be negative")
	}
	for _, lvl := range l.RequireNumericLevels {
		if lvl < 1 {
			return fmt.Errorf("locator.require_numeric_levels must hold levels >= 1, got %d", lvl)
		}
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.type must be memory or redis, got %q", c.Cache.Type)
	}
	if c.Defaults.Workers < 1 {
		return fmt.Errorf("defaults.workers must be >= 1, got %d", c.Defaults.Workers)
	}
	return nil
}

// ToEmbedderConfig converts the embeddings section for providers.NewEmbedder.
// It resolves ${ENV_VAR} references in the API key.
func (c *Config) ToEmbedderConfig() providers.EmbedderConfig {
	e := c.Embeddings
	return providers.EmbedderConfig{
		Provider:          e.Provider,
		APIKey:            ResolveEnvVars(e.APIKey),
		Model:             e.Model,
		Dimensions:        e.Dimensions,
		MaxRetries:        e.MaxRetries,
		RetryDelay:        time.Duration(e.RetryDelaySeconds * float64(time.Second)),
		Timeout:           time.Duration(e.TimeoutSeconds) * time.Second,
		RequestsPerMinute: e.RequestsPerMinute,
		BaseURL:           e.BaseURL,
	}
}

// ToRedisConfig converts the cache section for similarity.NewRedisCache.
func (c *Config) ToRedisConfig() similarity.RedisConfig {
	r := c.Cache.Redis
	return similarity.RedisConfig{
		Addr:     r.Addr,
		Password: ResolveEnvVars(r.Password),
		DB:       r.DB,
		Prefix:   r.Prefix,
		TTL:      time.Duration(r.TTLSeconds) * time.Second,
	}
}
