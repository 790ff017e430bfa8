// Package svcctx provides service context for dependency injection via context.
// It is separate from the locator and CLI packages to avoid import cycles.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/headloc/internal/config"
	"github.com/jackzampolin/headloc/internal/home"
	"github.com/jackzampolin/headloc/internal/metrics"
	"github.com/jackzampolin/headloc/internal/similarity"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	Logger   *slog.Logger
	Home     *home.Dir
	Config   *config.Manager
	Scorer   *similarity.EmbeddingScorer
	Metrics  *metrics.Recorder
	TraceDir string
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigFrom extracts the config manager from context.
func ConfigFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.Config
	}
	return nil
}

// ScorerFrom extracts the shared embedding scorer from context.
func ScorerFrom(ctx context.Context) *similarity.EmbeddingScorer {
	if s := ServicesFrom(ctx); s != nil {
		return s.Scorer
	}
	return nil
}

// MetricsFrom extracts the metrics recorder from context.
func MetricsFrom(ctx context.Context) *metrics.Recorder {
	if s := ServicesFrom(ctx); s != nil {
		return s.Metrics
	}
	return nil
}

// TraceDirFrom returns the directory trace files are flushed to, or "" when
// tracing to disk is off.
func TraceDirFrom(ctx context.Context) string {
	if s := ServicesFrom(ctx); s != nil {
		return s.TraceDir
	}
	return ""
}
