package config

import (
	"errors"
	"fmt"
)

// ErrNoDefault is returned when no default value exists for a config key.
var ErrNoDefault = errors.New("no default exists")

// Entry represents a single documented configuration key.
type Entry struct {
	Key         string `json:"key" yaml:"key"`
	Value       any    `json:"value" yaml:"value"`
	Description string `json:"description" yaml:"description"`
}

// DefaultEntries returns the default configuration entries.
// They seed viper's defaults and back `headloc config defaults`.
func DefaultEntries() []Entry {
	d := DefaultConfig()
	l := d.Locator
	e := d.Embeddings
	return []Entry{
		// ===================
		// Noise
		// ===================
		{
			Key:         "locator.suppress_toc",
			Value:       l.SuppressTOC,
			Description: "Skip lines on table-of-contents pages when searching for headings",
		},
		{
			Key:         "locator.suppress_running",
			Value:       l.SuppressRunning,
			Description: "Skip running headers and footers repeated across pages",
		},
		{
			Key:         "locator.band_lines",
			Value:       l.BandLines,
			Description: "Lines at the top and bottom of each page that form the header/footer band",
		},
		{
			Key:         "locator.toc_min_leaders",
			Value:       l.TOCMinLeaders,
			Description: "Dot-leader lines that mark a page as table of contents",
		},
		{
			Key:         "locator.toc_min_section_tokens",
			Value:       l.TOCMinSectionTokens,
			Description: "Numbered entries ending in a page number (or leader lines) that mark a page as table of contents",
		},
		{
			Key:         "locator.runner_min_pages",
			Value:       l.RunnerMinPages,
			Description: "Minimum pages a band line must repeat on to count as a runner",
		},
		{
			Key:         "locator.runner_fraction",
			Value:       l.RunnerFraction,
			Description: "Fraction of pages a band line must repeat on to count as a runner",
		},

		// ===================
		// Normalization
		// ===================
		{
			Key:         "locator.normalize_confusables",
			Value:       l.NormalizeConfusables,
			Description: "Map OCR confusables (l/I/| next to digits, O next to digits) before matching",
		},
		{
			Key:         "locator.fold_diacritics",
			Value:       l.FoldDiacritics,
			Description: "Strip combining marks before matching",
		},

		// ===================
		// Scoring
		// ===================
		{
			Key:         "locator.fuzzy_threshold",
			Value:       l.FuzzyThreshold,
			Description: "Minimum match score for a candidate to be accepted",
		},
		{
			Key:         "locator.min_lexical",
			Value:       l.MinLexical,
			Description: "Candidates below this lexical similarity are discarded",
		},
		{
			Key:         "locator.min_semantic",
			Value:       l.MinSemantic,
			Description: "Candidates below this semantic similarity are discarded when semantic scoring is on",
		},
		{
			Key:         "locator.weights.lexical",
			Value:       l.Weights.Lexical,
			Description: "Fused score weight of lexical similarity",
		},
		{
			Key:         "locator.weights.position",
			Value:       l.Weights.Position,
			Description: "Fused score weight of vertical position on the page",
		},
		{
			Key:         "locator.weights.typography",
			Value:       l.Weights.Typography,
			Description: "Fused score weight of font prominence",
		},
		{
			Key:         "locator.weights.semantic",
			Value:       l.Weights.Semantic,
			Description: "Fused score weight of embedding similarity",
		},
		{
			Key:         "locator.numeric_bonus",
			Value:       l.NumericBonus,
			Description: "Bonus when the line starts with the heading's numbering",
		},
		{
			Key:         "locator.band_penalty",
			Value:       l.BandPenalty,
			Description: "Ranking penalty for lines inside the header/footer band (acceptance is unaffected)",
		},
		{
			Key:         "locator.child_hint_bonus",
			Value:       l.ChildHintBonus,
			Description: "Bonus when a child number follows the line closely",
		},
		{
			Key:         "locator.child_hint_lookahead",
			Value:       l.ChildHintLookahead,
			Description: "Lines after a candidate searched for a child number",
		},
		{
			Key:         "locator.tiebreak",
			Value:       l.Tiebreak,
			Description: "Candidate tiebreak on equal scores: earliest or last",
		},

		// ===================
		// Resolution
		// ===================
		{
			Key:         "locator.window_pad",
			Value:       l.WindowPad,
			Description: "Lines before the parent anchor a child search may start at",
		},
		{
			Key:         "locator.require_numeric_levels",
			Value:       l.RequireNumericLevels,
			Description: "Outline levels searched by numbering first, with text-only fallback",
		},
		{
			Key:         "locator.last_occurrence_fallback",
			Value:       l.LastOccurrenceFallback,
			Description: "Move a choice on an already claimed line to a later identical line",
		},
		{
			Key:         "locator.max_passes",
			Value:       l.MaxPasses,
			Description: "Maximum invariant enforcement passes",
		},
		{
			Key:         "locator.dedupe_policy",
			Value:       l.DedupePolicy,
			Description: "Which heading keeps a shared line: best (fused score) or first (outline order)",
		},
		{
			Key:         "locator.semantic.enabled",
			Value:       l.Semantic.Enabled,
			Description: "Add embedding similarity to candidate scoring",
		},

		// ===================
		// Embeddings
		// ===================
		{
			Key:         "embeddings.provider",
			Value:       e.Provider,
			Description: "Embedding provider: openai or hash (offline)",
		},
		{
			Key:         "embeddings.model",
			Value:       e.Model,
			Description: "Embedding model name",
		},
		{
			Key:         "embeddings.api_key",
			Value:       e.APIKey,
			Description: "Embedding API key (uses environment variable)",
		},
		{
			Key:         "embeddings.base_url",
			Value:       e.BaseURL,
			Description: "Override the provider API base URL",
		},
		{
			Key:         "embeddings.dimensions",
			Value:       e.Dimensions,
			Description: "Requested embedding dimensions (0 = model default)",
		},
		{
			Key:         "embeddings.max_retries",
			Value:       e.MaxRetries,
			Description: "Maximum retry attempts for failed embedding requests",
		},
		{
			Key:         "embeddings.retry_delay_seconds",
			Value:       e.RetryDelaySeconds,
			Description: "Base delay between embedding retries",
		},
		{
			Key:         "embeddings.timeout_seconds",
			Value:       e.TimeoutSeconds,
			Description: "HTTP timeout in seconds for embedding requests",
		},
		{
			Key:         "embeddings.requests_per_minute",
			Value:       e.RequestsPerMinute,
			Description: "Rate limit in requests per minute for the embedding provider",
		},
		{
			Key:         "embeddings.batch_size",
			Value:       e.BatchSize,
			Description: "Texts per embedding request",
		},
		{
			Key:         "embeddings.max_concurrency",
			Value:       e.MaxConcurrency,
			Description: "Maximum concurrent embedding requests",
		},

		// ===================
		// Cache
		// ===================
		{
			Key:         "cache.type",
			Value:       d.Cache.Type,
			Description: "Embedding cache: memory or redis",
		},
		{
			Key:         "cache.redis.addr",
			Value:       d.Cache.Redis.Addr,
			Description: "Redis address for the embedding cache",
		},
		{
			Key:         "cache.redis.password",
			Value:       d.Cache.Redis.Password,
			Description: "Redis password (supports ${ENV_VAR} syntax)",
		},
		{
			Key:         "cache.redis.db",
			Value:       d.Cache.Redis.DB,
			Description: "Redis database number",
		},
		{
			Key:         "cache.redis.prefix",
			Value:       d.Cache.Redis.Prefix,
			Description: "Key prefix for cached embeddings",
		},
		{
			Key:         "cache.redis.ttl_seconds",
			Value:       d.Cache.Redis.TTLSeconds,
			Description: "Expiry of cached embeddings (0 = never)",
		},

		// ===================
		// Run Defaults
		// ===================
		{
			Key:         "defaults.workers",
			Value:       d.Defaults.Workers,
			Description: "Documents located in parallel by batch runs",
		},
		{
			Key:         "defaults.trace",
			Value:       d.Defaults.Trace,
			Description: "Write trace event files under the home directory",
		},
		{
			Key:         "defaults.record_metrics",
			Value:       d.Defaults.RecordMetrics,
			Description: "Append a metrics record for every run",
		},
		{
			Key:         "defaults.log_level",
			Value:       d.Defaults.LogLevel,
			Description: "Log level: debug, info, warn or error",
		},
	}
}

// GetDefault returns the default entry for a config key.
// Returns nil if no default exists for the key.
func GetDefault(key string) *Entry {
	for _, entry := range DefaultEntries() {
		if entry.Key == key {
			return &entry
		}
	}
	return nil
}

// DefaultValue returns the default value for a config key.
// Returns ErrNoDefault if no default exists for the key.
func DefaultValue(key string) (any, error) {
	def := GetDefault(key)
	if def == nil {
		return nil, fmt.Errorf("%w for key %q", ErrNoDefault, key)
	}
	return def.Value, nil
}
