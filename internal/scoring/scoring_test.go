package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/grovegraph/grove/internal/graph"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 0}, []float32{1, 0}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, Cosine([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Zero(t, Cosine(nil, []float32{1, 0}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 0}))
}

func TestCosineDimensionMismatchUsesSharedPrefix(t *testing.T) {
	// Degenerate but must not panic: half-migrated stores can hold
	// vectors of different sizes.
	got := Cosine([]float32{1, 0, 0, 0}, []float32{1, 0})
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 1.0/3.0, Jaccard([]string{"a", "b"}, []string{"b", "c"}), 1e-9)
	assert.Zero(t, Jaccard([]string{"a"}, []string{"b"}))
	// No tags on either side is no evidence of relatedness.
	assert.Zero(t, Jaccard(nil, nil))
	assert.Zero(t, Jaccard([]string{"a"}, nil))
}

func TestRecencyBonus(t *testing.T) {
	now := time.Now()
	halfLife := 30 * 24 * time.Hour

	assert.InDelta(t, 1.0, RecencyBonus(now, now, halfLife), 1e-9)
	assert.InDelta(t, 0.5, RecencyBonus(now.Add(-halfLife), now, halfLife), 1e-9)
	assert.InDelta(t, 0.25, RecencyBonus(now.Add(-2*halfLife), now, halfLife), 1e-9)
	assert.Zero(t, RecencyBonus(time.Time{}, now, halfLife))
	assert.Zero(t, RecencyBonus(now, now, 0))
}

func TestComputeBlendsComponents(t *testing.T) {
	now := time.Now()
	a := &graph.Node{Embedding: []float32{1, 0}, Tags: []string{"x", "y"}, UpdatedAt: now}
	b := &graph.Node{Embedding: []float32{1, 0}, Tags: []string{"x"}, UpdatedAt: now}

	res := Compute(a, b, Params{
		Weights:         DefaultWeights,
		RecencyHalfLife: 30 * 24 * time.Hour,
		Now:             now,
	})

	assert.InDelta(t, 1.0, res.Breakdown.Semantic, 1e-9)
	assert.InDelta(t, 0.5, res.Breakdown.Tag, 1e-9)
	assert.InDelta(t, 1.0, res.Breakdown.Recency, 1e-9)
	want := 0.7*1.0 + 0.25*0.5 + 0.05*1.0
	assert.InDelta(t, want, res.Score, 1e-9)
}

func TestComputeTagOnlyDegradation(t *testing.T) {
	now := time.Now()
	a := &graph.Node{Tags: []string{"x"}, UpdatedAt: now}
	b := &graph.Node{Tags: []string{"x"}, UpdatedAt: now}

	res := Compute(a, b, Params{Weights: DefaultWeights, Now: now})
	assert.Zero(t, res.Breakdown.Semantic)
	assert.InDelta(t, 1.0, res.Breakdown.Tag, 1e-9)
	assert.InDelta(t, 0.25, res.Score, 1e-9)
}

func TestComputeClampsNegativeCosine(t *testing.T) {
	now := time.Now()
	a := &graph.Node{Embedding: []float32{1, 0}, UpdatedAt: now}
	b := &graph.Node{Embedding: []float32{-1, 0}, UpdatedAt: now}

	res := Compute(a, b, Params{Weights: DefaultWeights, Now: now})
	assert.Zero(t, res.Breakdown.Semantic)
	assert.GreaterOrEqual(t, res.Score, 0.0)
}
