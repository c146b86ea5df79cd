// Package embed turns node text into vectors. It wraps an Eino embedder
// behind a cache-and-timeout service so the rest of the engine never
// talks to a provider SDK directly.
package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/graph"
)

// Cache is the read-through vector cache, keyed by content hash.
// *store.Store satisfies it.
type Cache interface {
	CachedEmbedding(hash string) ([]float32, bool, error)
	PutCachedEmbedding(hash, model string, vec []float32) error
}

// Service embeds text with caching, a per-call timeout and dimension
// checking. A nil embedder is a valid degraded mode: every Embed call
// returns ErrProviderUnavailable and callers fall back to tag-only
// scoring.
type Service struct {
	embedder embedding.Embedder
	cache    Cache
	cfg      config.EmbeddingConfig

	mu   sync.Mutex
	dims int
}

// NewService wires an embedder to its cache. cache may be nil.
func NewService(embedder embedding.Embedder, cache Cache, cfg config.EmbeddingConfig) *Service {
	return &Service{
		embedder: embedder,
		cache:    cache,
		cfg:      cfg,
		dims:     cfg.Dimensions,
	}
}

// Available reports whether a provider is configured.
func (s *Service) Available() bool {
	return s != nil && s.embedder != nil
}

// Model returns the configured model identifier, used to stamp nodes
// with the model their stored vector came from.
func (s *Service) Model() string {
	if !s.Available() {
		return ""
	}
	if s.cfg.Model != "" {
		return s.cfg.Model
	}
	return s.cfg.Provider
}

// Embed returns the vector for a single text. Identical text embeds to
// the identical cached vector; provider failures come back wrapped in
// ErrProviderUnavailable so capture can degrade instead of failing.
func (s *Service) Embed(ctx context.Context, input string) ([]float32, error) {
	if !s.Available() {
		return nil, graph.ErrProviderUnavailable
	}

	normalized := normalizeInput(input)
	if normalized == "" {
		return nil, graph.ErrProviderUnavailable
	}
	key := cacheKey(s.Model(), normalized)

	if s.cache != nil {
		if vec, ok, err := s.cache.CachedEmbedding(key); err == nil && ok {
			if err := s.checkDims(len(vec)); err != nil {
				return nil, err
			}
			return vec, nil
		}
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	vectors, err := s.embedder.EmbedStrings(ctx, []string{normalized})
	if err != nil {
		return nil, classifyProviderError(err)
	}
	if len(vectors) != 1 {
		return nil, graph.ErrProviderUnavailable
	}

	vec := toFloat32(vectors[0])
	if err := s.checkDims(len(vec)); err != nil {
		return nil, err
	}

	if s.cache != nil {
		// Cache write failures are not worth failing the embed for.
		_ = s.cache.PutCachedEmbedding(key, s.Model(), vec)
	}
	return vec, nil
}

// EmbedBatch embeds many texts in one provider round trip. Vectors come
// back in input order; cached texts are served from the cache and only
// the misses go to the provider. Blank inputs get a nil vector.
func (s *Service) EmbedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	if !s.Available() {
		return nil, graph.ErrProviderUnavailable
	}

	out := make([][]float32, len(inputs))
	var missIdx []int
	var missTexts []string
	for i, input := range inputs {
		normalized := normalizeInput(input)
		if normalized == "" {
			continue
		}
		if s.cache != nil {
			key := cacheKey(s.Model(), normalized)
			if vec, ok, err := s.cache.CachedEmbedding(key); err == nil && ok {
				if err := s.checkDims(len(vec)); err != nil {
					return nil, err
				}
				out[i] = vec
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, normalized)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	vectors, err := s.embedder.EmbedStrings(ctx, missTexts)
	if err != nil {
		return nil, classifyProviderError(err)
	}
	if len(vectors) != len(missTexts) {
		return nil, graph.ErrProviderUnavailable
	}

	for j, v := range vectors {
		vec := toFloat32(v)
		if err := s.checkDims(len(vec)); err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.PutCachedEmbedding(cacheKey(s.Model(), missTexts[j]), s.Model(), vec)
		}
		out[missIdx[j]] = vec
	}
	return out, nil
}

// Dimensions returns the vector size once known, zero before the first
// successful embedding.
func (s *Service) Dimensions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dims
}

// checkDims pins the vector size on first use and rejects drift after.
// A mismatch means the configured model changed under stored vectors,
// which silently corrupts similarity scores if allowed through.
func (s *Service) checkDims(got int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dims == 0 {
		s.dims = got
		return nil
	}
	if got != s.dims {
		return &graph.DimensionMismatchError{Want: s.dims, Got: got}
	}
	return nil
}

// classifyProviderError folds timeouts and transport failures into
// ErrProviderUnavailable. Caller cancellation passes through untouched.
func classifyProviderError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", graph.ErrProviderUnavailable, err)
}

func normalizeInput(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func cacheKey(model, normalized string) string {
	h := sha256.Sum256([]byte(model + "\x00" + normalized))
	return hex.EncodeToString(h[:])
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
