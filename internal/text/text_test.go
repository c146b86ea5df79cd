package text

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeToken(t *testing.T) {
	cases := map[string]string{
		"queries":   "query",
		"classes":   "class",
		"branches":  "branch",
		"brushes":   "brush",
		"boxes":     "box",
		"indexing":  "index",
		"indexed":   "index",
		"vectors":   "vector",
		"status":    "status",
		"analysis":  "analysis",
		"class":     "class",
		"go":        "go",
		"the":       "the",
		"embedding": "embedd",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeToken(in), "token %q", in)
	}
}

func TestTokenizeDropsStopwordsAndStems(t *testing.T) {
	counts := Tokenize("The vectors and the indexes are stored in the database")
	assert.Equal(t, 1, counts["vector"])
	assert.Equal(t, 1, counts["index"])
	assert.Equal(t, 1, counts["database"])
	assert.NotContains(t, counts, "the")
	assert.NotContains(t, counts, "and")
}

func TestTokenizeCountsRepeats(t *testing.T) {
	counts := Tokenize("vector vector vectors")
	assert.Equal(t, 3, counts["vector"])
}

func TestTokenWeightDownweightsGenericTech(t *testing.T) {
	assert.Equal(t, 0.4, TokenWeight("stream"))
	assert.Equal(t, 1.0, TokenWeight("database"))
}

func TestExtractTagsHashtagsWin(t *testing.T) {
	tags := ExtractTags("Lots of interesting words here #Database #ml #database", nil, 5)
	assert.Equal(t, []string{"database", "ml"}, tags)
}

func TestExtractTagsLexicalFallback(t *testing.T) {
	text := "postgres postgres postgres vector vector index"
	tags := ExtractTags(text, nil, 3)
	assert.NotEmpty(t, tags)
	assert.Contains(t, tags, "postgre")
	assert.LessOrEqual(t, len(tags), 3)
}

func TestExtractTagsSkipsBlacklist(t *testing.T) {
	tags := ExtractTags("project project project database database", nil, 5)
	assert.NotContains(t, tags, "project")
}

func TestExtractTagsDeterministic(t *testing.T) {
	text := "kubernetes ingress controller routing kubernetes ingress"
	first := ExtractTags(text, nil, 4)
	second := ExtractTags(text, nil, 4)
	assert.Equal(t, first, second)
}
