package providers

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
)

const (
	HashEmbedName          = "hash"
	hashEmbedDefaultDims   = 256
	hashEmbedTrigramWeight = 0.5
)

// HashEmbedder produces deterministic vectors from hashed words and
// character trigrams. It needs no network and is used offline and in tests.
type HashEmbedder struct {
	dims     int
	requests atomic.Int64
}

// NewHashEmbedder creates a HashEmbedder with dims dimensions (256 when <= 0).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = hashEmbedDefaultDims
	}
	return &HashEmbedder{dims: dims}
}

// Name returns the provider identifier.
func (h *HashEmbedder) Name() string {
	return HashEmbedName
}

// Model identifies the vector space for cache keys.
func (h *HashEmbedder) Model() string {
	return "hash-v1"
}

// Requests returns how many Embed calls were made.
func (h *HashEmbedder) Requests() int64 {
	return h.requests.Load()
}

// Embed implements the embedder contract.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.requests.Add(1)
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float64 {
	vec := make([]float64, h.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		vec[h.bucket(word)] += 1
		padded := []rune(" " + word + " ")
		for j := 0; j+3 <= len(padded); j++ {
			vec[h.bucket(string(padded[j:j+3]))] += hashEmbedTrigramWeight
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (h *HashEmbedder) bucket(s string) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(s))
	return int(f.Sum32() % uint32(h.dims))
}
