// Package similarity provides semantic scoring between heading and line text.
package similarity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Scorer returns a similarity in [0,1] between two normalized strings.
type Scorer interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Warmer is implemented by scorers that can precompute state for a set of
// texts in bulk before pairwise scoring starts.
type Warmer interface {
	Warm(ctx context.Context, texts []string) error
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Name() string
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Cache stores vectors by key. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]float64, bool, error)
	Set(ctx context.Context, key string, vec []float64) error
}

// Defaults for EmbeddingScorer.
const (
	DefaultBatchSize   = 64
	DefaultConcurrency = 4
)

// EmbeddingScorer scores pairs by cosine similarity of their embeddings.
type EmbeddingScorer struct {
	embedder    Embedder
	cache       Cache
	batchSize   int
	concurrency int

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures an EmbeddingScorer.
type Option func(*EmbeddingScorer)

// WithBatchSize sets how many texts go into one embedding request.
func WithBatchSize(n int) Option {
	return func(s *EmbeddingScorer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithConcurrency sets how many embedding requests Warm runs at once.
func WithConcurrency(n int) Option {
	return func(s *EmbeddingScorer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewEmbeddingScorer creates a scorer. A nil cache uses a fresh MemoryCache.
func NewEmbeddingScorer(embedder Embedder, cache Cache, opts ...Option) *EmbeddingScorer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	s := &EmbeddingScorer{
		embedder:    embedder,
		cache:       cache,
		batchSize:   DefaultBatchSize,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the embedder name.
func (s *EmbeddingScorer) Name() string {
	return s.embedder.Name()
}

// Stats returns cache hits and misses since creation.
func (s *EmbeddingScorer) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// Similarity returns the cosine similarity of a and b clamped to [0,1].
func (s *EmbeddingScorer) Similarity(ctx context.Context, a, b string) (float64, error) {
	vecs, err := s.vectors(ctx, []string{a, b})
	if err != nil {
		return 0, err
	}
	return Clamp01(Cosine(vecs[0], vecs[1])), nil
}

// Warm embeds every uncached text, batching requests.
func (s *EmbeddingScorer) Warm(ctx context.Context, texts []string) error {
	missing, err := s.missing(ctx, dedupe(texts))
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for start := 0; start < len(missing); start += s.batchSize {
		batch := missing[start:min(start+s.batchSize, len(missing))]
		g.Go(func() error {
			_, err := s.embedAndStore(gctx, batch)
			return err
		})
	}
	return g.Wait()
}

func (s *EmbeddingScorer) vectors(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missing []string
	missingAt := make(map[string][]int)
	for i, text := range texts {
		vec, ok, err := s.cache.Get(ctx, s.key(text))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedding cache: %w", err)
		}
		if ok {
			s.hits.Add(1)
			out[i] = vec
			continue
		}
		if _, seen := missingAt[text]; !seen {
			missing = append(missing, text)
		}
		missingAt[text] = append(missingAt[text], i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := s.embedAndStore(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, text := range missing {
		for _, i := range missingAt[text] {
			out[i] = vecs[j]
		}
	}
	return out, nil
}

func (s *EmbeddingScorer) missing(ctx context.Context, texts []string) ([]string, error) {
	var out []string
	for _, text := range texts {
		_, ok, err := s.cache.Get(ctx, s.key(text))
		if err != nil {
			return nil, fmt.Errorf("failed to read embedding cache: %w", err)
		}
		if !ok {
			out = append(out, text)
		}
	}
	return out, nil
}

func (s *EmbeddingScorer) embedAndStore(ctx context.Context, texts []string) ([][]float64, error) {
	s.misses.Add(int64(len(texts)))
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed %d texts with %s: %w", len(texts), s.embedder.Name(), err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", s.embedder.Name(), len(vecs), len(texts))
	}
	for i, text := range texts {
		if err := s.cache.Set(ctx, s.key(text), vecs[i]); err != nil {
			return nil, fmt.Errorf("failed to write embedding cache: %w", err)
		}
	}
	return vecs, nil
}

func (s *EmbeddingScorer) key(text string) string {
	return CacheKey(s.embedder.Model(), text)
}

// CacheKey derives the cache key for text embedded with model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(text))
	return model + ":" + hex.EncodeToString(sum[:])
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func dedupe(texts []string) []string {
	seen := make(map[string]bool, len(texts))
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
