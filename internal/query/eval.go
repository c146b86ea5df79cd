package query

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/grovegraph/grove/internal/graph"
	"github.com/grovegraph/grove/internal/scoring"
)

// EmbedFunc resolves a similarity term to a vector. A nil EmbedFunc or
// one that reports ErrProviderUnavailable degrades the search to
// boolean filtering without semantic ranking.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Evaluate runs a parsed query over the candidate nodes: tag terms
// filter, similarity terms rank. Results with similarity terms are
// ordered by mean cosine score; without them, most recently updated
// first. Ties always break by node id so output is stable.
func Evaluate(ctx context.Context, expr Expr, nodes []*graph.Node, embed EmbedFunc) ([]graph.ScoredNode, error) {
	vectors, err := resolveSimilarity(ctx, expr, embed)
	if err != nil {
		return nil, err
	}

	var out []graph.ScoredNode
	for _, n := range nodes {
		if n.Deleted() {
			continue
		}
		if expr != nil && !matches(expr, n) {
			continue
		}
		out = append(out, graph.ScoredNode{Node: n, Score: meanCosine(vectors, n.Embedding)})
	}

	ranked := len(vectors) > 0
	sort.Slice(out, func(i, j int) bool {
		if ranked && out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].Node.UpdatedAt.Equal(out[j].Node.UpdatedAt) {
			return out[i].Node.UpdatedAt.After(out[j].Node.UpdatedAt)
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out, nil
}

// resolveSimilarity embeds each similarity term. Provider outages drop
// ranking rather than failing the search; a dimension mismatch is
// configuration drift and propagates.
func resolveSimilarity(ctx context.Context, expr Expr, embed EmbedFunc) ([][]float32, error) {
	texts := SimilarityTexts(expr)
	if len(texts) == 0 || embed == nil {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := embed(ctx, text)
		if err != nil {
			if errors.Is(err, graph.ErrProviderUnavailable) {
				return nil, nil
			}
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func matches(expr Expr, n *graph.Node) bool {
	switch e := expr.(type) {
	case *TagExpr:
		for _, t := range n.Tags {
			if strings.EqualFold(t, e.Name) {
				return true
			}
		}
		return false
	case *SimilarityExpr:
		// Similarity never filters.
		return true
	case *NotExpr:
		return !matches(e.Expr, n)
	case *AndExpr:
		return matches(e.Left, n) && matches(e.Right, n)
	case *OrExpr:
		return matches(e.Left, n) || matches(e.Right, n)
	default:
		return false
	}
}

func meanCosine(vectors [][]float32, embedding []float32) float64 {
	if len(vectors) == 0 || len(embedding) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vectors {
		sum += scoring.Cosine(v, embedding)
	}
	return sum / float64(len(vectors))
}
