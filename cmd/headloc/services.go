package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackzampolin/headloc/internal/config"
	"github.com/jackzampolin/headloc/internal/home"
	"github.com/jackzampolin/headloc/internal/metrics"
	"github.com/jackzampolin/headloc/internal/providers"
	"github.com/jackzampolin/headloc/internal/similarity"
	"github.com/jackzampolin/headloc/internal/svcctx"
)

// runFlags are the per-command switches that override config.
type runFlags struct {
	semantic bool
	trace    bool
	noRecord bool
}

// session holds the services of one command invocation.
type session struct {
	ctx      context.Context
	services *svcctx.Services
	cfg      *config.Config
	closers  []func() error
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			s.services.Logger.Warn("failed to close service", "error", err)
		}
	}
}

// loadConfig resolves the config file from --config, the home directory or
// the default search path.
func loadConfig(h *home.Dir) (*config.Manager, error) {
	file := cfgFile
	if file == "" && h.ConfigExists() {
		file = h.ConfigPath()
	}
	return config.NewManager(file)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// newSession builds the services a locate command needs and attaches them
// to ctx.
func newSession(ctx context.Context, flags runFlags) (*session, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, err
	}
	mgr, err := loadConfig(h)
	if err != nil {
		return nil, err
	}
	cfg := mgr.Get()

	level := logLevel
	if level == "" {
		level = cfg.Defaults.LogLevel
	}
	logger, err := newLogger(level)
	if err != nil {
		return nil, err
	}
	mgr.SetLogger(logger)
	if f := mgr.ConfigFile(); f != "" {
		logger.Debug("loaded config", "file", f)
	}

	s := &session{
		cfg: cfg,
		services: &svcctx.Services{
			Logger: logger,
			Home:   h,
			Config: mgr,
		},
	}

	if cfg.Defaults.RecordMetrics && !flags.noRecord {
		if err := h.EnsureExists(); err != nil {
			return nil, err
		}
		s.services.Metrics = metrics.NewRecorder(h.MetricsPath())
	}
	if cfg.Defaults.Trace || flags.trace {
		s.services.TraceDir = h.TracesPath()
	}

	if cfg.Locator.Semantic.Enabled || flags.semantic {
		scorer, closer, err := newScorer(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		s.services.Scorer = scorer
		if closer != nil {
			s.closers = append(s.closers, closer)
		}
	}

	s.ctx = svcctx.WithServices(ctx, s.services)
	return s, nil
}

// newScorer builds the embedding scorer with the configured cache. The
// returned closer, when non-nil, releases the cache connection.
func newScorer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*similarity.EmbeddingScorer, func() error, error) {
	embedder, err := providers.NewEmbedder(cfg.ToEmbedderConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	var (
		cache  similarity.Cache
		closer func() error
	)
	switch cfg.Cache.Type {
	case "redis":
		rc, err := similarity.NewRedisCache(ctx, cfg.ToRedisConfig())
		if err != nil {
			return nil, nil, err
		}
		cache, closer = rc, rc.Close
		logger.Info("using redis embedding cache", "addr", cfg.Cache.Redis.Addr)
	default:
		cache = similarity.NewMemoryCache()
	}

	scorer := similarity.NewEmbeddingScorer(embedder, cache,
		similarity.WithBatchSize(cfg.Embeddings.BatchSize),
		similarity.WithConcurrency(cfg.Embeddings.MaxConcurrency),
	)
	return scorer, closer, nil
}
