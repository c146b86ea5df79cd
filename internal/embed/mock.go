package embed

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/cloudwego/eino/components/embedding"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/text"
)

// mockEmbedder produces deterministic offline embeddings: each token is
// hashed into a handful of vector positions, weighted by its term
// frequency and token weight, then the sum is L2-normalized. Texts that
// share vocabulary land close in cosine space, which is all the linker
// and the tests need.
type mockEmbedder struct{}

// NewMockEmbedder returns the deterministic offline embedder.
func NewMockEmbedder() embedding.Embedder {
	return mockEmbedder{}
}

func (mockEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = mockVector(t)
	}
	return out, nil
}

func mockVector(s string) []float64 {
	vec := make([]float64, config.MockDimensions)
	for tok, count := range text.Tokenize(s) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		state := h.Sum64()
		w := text.TokenWeight(tok) * float64(count)
		for i := 0; i < 8; i++ {
			state = state*6364136223846793005 + 1442695040888963407
			idx := int(state % config.MockDimensions)
			if state&(1<<32) != 0 {
				vec[idx] += w
			} else {
				vec[idx] -= w
			}
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
