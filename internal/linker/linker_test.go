package linker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/graph"
	"github.com/grovegraph/grove/internal/store"
)

func newTestLinker(t *testing.T, cfg config.LinkingConfig) (*Linker, *store.Store) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, cfg), s
}

func semanticOnly() config.LinkingConfig {
	return config.LinkingConfig{
		SemanticWeight: 1,
		MinScore:       0.5,
		TopK:           5,
		PoolSize:       10,
	}
}

func addNode(t *testing.T, s *store.Store, title string, vec []float32, tags ...string) *graph.Node {
	t.Helper()
	n := &graph.Node{Title: title, Body: title, Tags: tags}
	require.NoError(t, s.CreateNode(n))
	if vec != nil {
		require.NoError(t, s.SetNodeEmbedding(n.ID, vec, "mock"))
	}
	return n
}

func TestSweepNodeSuggestsAboveThreshold(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	subject := addNode(t, s, "subject", []float32{1, 0, 0})
	near := addNode(t, s, "near", []float32{0.8, 0.6, 0})
	far := addNode(t, s, "far", []float32{0, 1, 0})

	edges, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].Touches(near.ID))
	assert.False(t, edges[0].Touches(far.ID))
	assert.Equal(t, graph.EdgeSuggested, edges[0].State)
	assert.InDelta(t, 0.8, edges[0].Score, 1e-6)
	assert.InDelta(t, 0.8, edges[0].Breakdown.Semantic, 1e-6)
}

func TestSweepNodeIdempotent(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	subject := addNode(t, s, "subject", []float32{1, 0, 0})
	addNode(t, s, "near", []float32{0.9, 0.436, 0})

	first, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.InDelta(t, first[0].Score, second[0].Score, 1e-9)

	all, err := s.ListEdges(graph.EdgeFilter{}, graph.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSweepNodeTagOnlyDegradation(t *testing.T) {
	cfg := config.LinkingConfig{SemanticWeight: 0.7, TagWeight: 0.25, MinScore: 0.2, TopK: 5, PoolSize: 10}
	l, s := newTestLinker(t, cfg)

	// No embeddings anywhere: candidates come from the tag index alone.
	subject := addNode(t, s, "subject", nil, "go", "sqlite")
	tagged := addNode(t, s, "tagged", nil, "go", "sqlite")
	addNode(t, s, "unrelated", nil, "cooking")

	edges, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].Touches(tagged.ID))
	assert.Zero(t, edges[0].Breakdown.Semantic)
	assert.InDelta(t, 1.0, edges[0].Breakdown.Tag, 1e-9)
}

func TestSweepNodeSkipsDecidedPairs(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	subject := addNode(t, s, "subject", []float32{1, 0, 0})
	accepted := addNode(t, s, "accepted", []float32{1, 0, 0})
	rejected := addNode(t, s, "rejected", []float32{0.95, 0.312, 0})

	edges, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, edges, 2)

	for _, e := range edges {
		to := graph.EdgeAccepted
		if e.Touches(rejected.ID) {
			to = graph.EdgeRejected
		}
		applied, err := s.TransitionEdge(e.ID, graph.EdgeSuggested, to, "alice", "")
		require.NoError(t, err)
		require.True(t, applied)
	}

	// A plain resweep leaves both decisions alone.
	edges, err = l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	assert.Empty(t, edges)

	acceptedEdge, err := s.EdgeByPair(subject.ID, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.EdgeAccepted, acceptedEdge.State)
	rejectedEdge, err := s.EdgeByPair(subject.ID, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.EdgeRejected, rejectedEdge.State)
}

func TestSweepNodeForceRevivesRejected(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	subject := addNode(t, s, "subject", []float32{1, 0, 0})
	other := addNode(t, s, "other", []float32{0.9, 0.436, 0})

	edges, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	_, err = s.TransitionEdge(edges[0].ID, graph.EdgeSuggested, graph.EdgeRejected, "alice", "noise")
	require.NoError(t, err)

	edges, err = l.SweepNode(context.Background(), subject.ID, true)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.True(t, edges[0].Touches(other.ID))
	assert.Equal(t, graph.EdgeSuggested, edges[0].State)

	// The revival left an audit trail.
	events, err := s.EdgeEvents(edges[0].ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, graph.EdgeSuggested, events[1].ToState)
	assert.Equal(t, "linker", events[1].Actor)
}

func TestSweepNodeTopKBound(t *testing.T) {
	cfg := semanticOnly()
	cfg.TopK = 2
	l, s := newTestLinker(t, cfg)
	subject := addNode(t, s, "subject", []float32{1, 0, 0})

	vecs := [][]float32{
		{0.99, 0.141, 0},
		{0.95, 0.312, 0},
		{0.9, 0.436, 0},
		{0.85, 0.527, 0},
	}
	for _, v := range vecs {
		addNode(t, s, "cand", v)
	}

	edges, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Greater(t, edges[0].Score, edges[1].Score)
	assert.InDelta(t, 0.99, edges[0].Score, 1e-2)
}

func TestSweepNodeDeterministicTieBreak(t *testing.T) {
	cfg := semanticOnly()
	cfg.TopK = 1
	l, s := newTestLinker(t, cfg)
	subject := addNode(t, s, "subject", []float32{1, 0, 0})

	// Two identical candidates: the winner must be stable across runs.
	addNode(t, s, "twin-a", []float32{0.9, 0.436, 0})
	addNode(t, s, "twin-b", []float32{0.9, 0.436, 0})

	first, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestSweepNodeSkipsTombstoned(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	subject := addNode(t, s, "subject", []float32{1, 0, 0})
	require.NoError(t, s.DeleteNode(subject.ID))

	edges, err := l.SweepNode(context.Background(), subject.ID, false)
	require.NoError(t, err)
	assert.Nil(t, edges)
}

func TestResweepAllClearsCursor(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	addNode(t, s, "a", []float32{1, 0, 0})
	addNode(t, s, "b", []float32{0.9, 0.436, 0})
	addNode(t, s, "c", []float32{0, 1, 0})

	res, err := l.ResweepAll(context.Background(), false, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NodesSwept)
	assert.True(t, res.Completed)
	assert.False(t, res.Resumed)
	assert.Greater(t, res.Suggested, 0)

	cursor, err := s.SweepCursor("resweep")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestResweepAllResumesFromCursor(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	addNode(t, s, "a", []float32{1, 0, 0})
	addNode(t, s, "b", []float32{0.9, 0.436, 0})

	ids, err := s.NodeIDsAfter("", 10)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	// Pretend a previous run stopped after the first node.
	require.NoError(t, s.SetSweepCursor("resweep", ids[0]))

	res, err := l.ResweepAll(context.Background(), false, 10)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.True(t, res.Completed)
	assert.Equal(t, 1, res.NodesSwept)
}

func TestResweepAllHonorsCancellation(t *testing.T) {
	l, s := newTestLinker(t, semanticOnly())
	addNode(t, s, "a", []float32{1, 0, 0})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.ResweepAll(ctx, false, 10)
	assert.ErrorIs(t, err, context.Canceled)
}
