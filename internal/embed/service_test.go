package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/graph"
)

type memCache struct {
	vecs map[string][]float32
	hits int
	puts int
}

func newMemCache() *memCache { return &memCache{vecs: map[string][]float32{}} }

func (c *memCache) CachedEmbedding(hash string) ([]float32, bool, error) {
	vec, ok := c.vecs[hash]
	if ok {
		c.hits++
	}
	return vec, ok, nil
}

func (c *memCache) PutCachedEmbedding(hash, _ string, vec []float32) error {
	c.puts++
	c.vecs[hash] = vec
	return nil
}

type countingEmbedder struct {
	inner embedding.Embedder
	calls int
	err   error
}

func (e *countingEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.inner.EmbedStrings(ctx, texts, opts...)
}

func TestMockEmbedderDeterministic(t *testing.T) {
	m := NewMockEmbedder()
	ctx := context.Background()

	a, err := m.EmbedStrings(ctx, []string{"vector databases for search"})
	require.NoError(t, err)
	b, err := m.EmbedStrings(ctx, []string{"vector databases for search"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a[0], config.MockDimensions)

	var norm float64
	for _, v := range a[0] {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-9)
}

func TestMockEmbedderSharedVocabularyIsCloser(t *testing.T) {
	m := NewMockEmbedder()
	vecs, err := m.EmbedStrings(context.Background(), []string{
		"postgres vector index tuning",
		"tuning a vector index in postgres",
		"sourdough bread hydration ratios",
	})
	require.NoError(t, err)

	cos := func(a, b []float64) float64 {
		var dot float64
		for i := range a {
			dot += a[i] * b[i]
		}
		return dot
	}
	related := cos(vecs[0], vecs[1])
	unrelated := cos(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
}

func TestServiceCachesByContent(t *testing.T) {
	cache := newMemCache()
	counting := &countingEmbedder{inner: NewMockEmbedder()}
	svc := NewService(counting, cache, config.EmbeddingConfig{Provider: config.ProviderMock, Model: "mock"})

	ctx := context.Background()
	v1, err := svc.Embed(ctx, "graph engines")
	require.NoError(t, err)

	// Whitespace-insensitive: normalizes to the same cache key.
	v2, err := svc.Embed(ctx, "  graph \n engines ")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, counting.calls)
	assert.Equal(t, 1, cache.hits)
	assert.Equal(t, 1, cache.puts)
}

func TestServiceEmbedBatchPreservesOrder(t *testing.T) {
	cache := newMemCache()
	counting := &countingEmbedder{inner: NewMockEmbedder()}
	svc := NewService(counting, cache, config.EmbeddingConfig{Provider: config.ProviderMock, Model: "mock"})

	ctx := context.Background()
	texts := []string{"graph engines", "vector databases", "edge lifecycles"}
	batch, err := svc.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 3)

	// One provider round trip for the whole batch.
	assert.Equal(t, 1, counting.calls)

	// Each slot matches what the single-text path produces for that text.
	for i, text := range texts {
		single, err := svc.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i], "vector order must follow input order")
	}
	// The singles above were all served from the batch's cache writes.
	assert.Equal(t, 1, counting.calls)
}

func TestServiceEmbedBatchOnlyMissesHitProvider(t *testing.T) {
	cache := newMemCache()
	counting := &countingEmbedder{inner: NewMockEmbedder()}
	svc := NewService(counting, cache, config.EmbeddingConfig{Provider: config.ProviderMock, Model: "mock"})

	ctx := context.Background()
	warm, err := svc.Embed(ctx, "already cached")
	require.NoError(t, err)
	require.Equal(t, 1, counting.calls)

	batch, err := svc.EmbedBatch(ctx, []string{"fresh text", "already cached", ""})
	require.NoError(t, err)
	require.Len(t, batch, 3)
	assert.Equal(t, 2, counting.calls)
	assert.Equal(t, warm, batch[1])
	assert.Nil(t, batch[2], "blank input gets no vector")
	assert.NotNil(t, batch[0])
}

func TestServiceEmbedBatchProviderFailure(t *testing.T) {
	counting := &countingEmbedder{inner: NewMockEmbedder(), err: errors.New("connection refused")}
	svc := NewService(counting, newMemCache(), config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text"})

	_, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, graph.ErrProviderUnavailable)
}

func TestServiceProviderFailure(t *testing.T) {
	counting := &countingEmbedder{inner: NewMockEmbedder(), err: errors.New("connection refused")}
	svc := NewService(counting, newMemCache(), config.EmbeddingConfig{Provider: config.ProviderOllama, Model: "nomic-embed-text"})

	_, err := svc.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, graph.ErrProviderUnavailable)
}

func TestServiceNoProviderConfigured(t *testing.T) {
	svc := NewService(nil, newMemCache(), config.EmbeddingConfig{Provider: config.ProviderNone})
	assert.False(t, svc.Available())

	_, err := svc.Embed(context.Background(), "anything")
	assert.ErrorIs(t, err, graph.ErrProviderUnavailable)
}

func TestServiceDimensionMismatchIsFatal(t *testing.T) {
	svc := NewService(NewMockEmbedder(), nil, config.EmbeddingConfig{
		Provider:   config.ProviderMock,
		Model:      "mock",
		Dimensions: 768,
	})

	_, err := svc.Embed(context.Background(), "some text")
	var mismatch *graph.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 768, mismatch.Want)
	assert.Equal(t, config.MockDimensions, mismatch.Got)
}

func TestNewEmbedderMockAndNone(t *testing.T) {
	ctx := context.Background()

	m, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: config.ProviderMock})
	require.NoError(t, err)
	assert.NotNil(t, m)

	none, err := NewEmbedder(ctx, config.EmbeddingConfig{Provider: config.ProviderNone})
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = NewEmbedder(ctx, config.EmbeddingConfig{Provider: "huggingface"})
	assert.Error(t, err)
}
