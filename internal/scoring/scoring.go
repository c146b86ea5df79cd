// Package scoring computes the hybrid similarity score that drives
// auto-linking: cosine similarity over embeddings, Jaccard overlap over
// tag sets, and a small recency bonus, combined with configurable
// weights. The component breakdown is always returned so edges stay
// explainable after the fact.
package scoring

import (
	"math"
	"time"

	"github.com/grovegraph/grove/internal/graph"
)

// Weights holds the hybrid score combination weights. They are explicit
// configuration, not a contract; only the breakdown retention is.
type Weights struct {
	Semantic float64
	Tag      float64
	Recency  float64
}

// DefaultWeights favour the semantic signal with tags as the main
// corrective and recency as a gentle tiebreaker for live threads.
var DefaultWeights = Weights{Semantic: 0.7, Tag: 0.25, Recency: 0.05}

// Params bundles everything score computation depends on besides the
// two nodes, so results are reproducible in tests.
type Params struct {
	Weights Weights
	// RecencyHalfLife controls the exponential decay of the recency
	// bonus. Zero disables the bonus entirely.
	RecencyHalfLife time.Duration
	// Now anchors recency computation.
	Now time.Time
}

// Result is a hybrid score with its component breakdown.
type Result struct {
	Score     float64
	Breakdown graph.ScoreBreakdown
}

// Compute scores candidate b against subject a. When either node lacks
// an embedding the semantic component is zero and the remaining signals
// carry the score (tag-only degradation).
func Compute(a, b *graph.Node, p Params) Result {
	semantic := clamp01(Cosine(a.Embedding, b.Embedding))
	tag := Jaccard(a.Tags, b.Tags)
	recency := RecencyBonus(b.UpdatedAt, p.Now, p.RecencyHalfLife)

	score := p.Weights.Semantic*semantic + p.Weights.Tag*tag + p.Weights.Recency*recency
	return Result{
		Score: score,
		Breakdown: graph.ScoreBreakdown{
			Semantic: semantic,
			Tag:      tag,
			Recency:  recency,
		},
	}
}

// Cosine computes cosine similarity between two vectors. Nil or empty
// vectors yield 0; on dimension mismatch the shorter length is used so a
// half-migrated store degrades instead of exploding.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	dim := len(a)
	if len(b) < dim {
		dim = len(b)
	}
	var dot, magA, magB float64
	for i := 0; i < dim; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// Jaccard computes |A ∩ B| / |A ∪ B| over two tag sets. Two empty sets
// score 0, not 1: the absence of tags is no evidence of relatedness.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, t := range a {
		setA[t] = true
	}
	setB := make(map[string]bool, len(b))
	for _, t := range b {
		setB[t] = true
	}
	intersection := 0
	union := len(setA)
	for t := range setB {
		if setA[t] {
			intersection++
		} else {
			union++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// RecencyBonus maps a node's last-touched time to (0,1] with exponential
// decay: 1.0 right now, 0.5 after one half-life.
func RecencyBonus(updatedAt, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 || updatedAt.IsZero() {
		return 0
	}
	age := now.Sub(updatedAt)
	if age <= 0 {
		return 1
	}
	return math.Exp2(-float64(age) / float64(halfLife))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
