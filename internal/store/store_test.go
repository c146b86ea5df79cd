package store

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovegraph/grove/internal/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateNode(t *testing.T, s *Store, title string, tags ...string) *graph.Node {
	t.Helper()
	n := &graph.Node{Title: title, Body: title + " body", Tags: tags}
	require.NoError(t, s.CreateNode(n))
	return n
}

func TestCreateAndGetNode(t *testing.T) {
	s := newTestStore(t)

	n := &graph.Node{
		Title:     "Vector databases",
		Body:      "Notes on pgvector and friends.",
		Tags:      []string{"database", "ml"},
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, s.CreateNode(n))
	require.NotEmpty(t, n.ID)
	assert.Equal(t, int64(1), n.Version)

	got, err := s.GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "Vector databases", got.Title)
	assert.Equal(t, []string{"database", "ml"}, got.Tags)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, got.Embedding, 1e-6)
	assert.Equal(t, int64(1), got.Version)
	assert.False(t, got.Deleted())
}

func TestGetNodeNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetNode("missing")
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
}

func TestUpdateNodeBumpsVersionAndClearsEmbedding(t *testing.T) {
	s := newTestStore(t)
	n := mustCreateNode(t, s, "draft", "ml")
	require.NoError(t, s.SetNodeEmbedding(n.ID, []float32{1, 0}, "mock"))

	title := "final"
	updated, err := s.UpdateNode(n.ID, 1, graph.NodeChanges{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "final", updated.Title)
	assert.Nil(t, updated.Embedding)

	got, err := s.GetNode(n.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)
	assert.Empty(t, got.EmbeddingModel)
}

func TestUpdateNodeStaleVersionConflict(t *testing.T) {
	s := newTestStore(t)
	n := mustCreateNode(t, s, "shared note")

	title := "writer one"
	_, err := s.UpdateNode(n.ID, 1, graph.NodeChanges{Title: &title})
	require.NoError(t, err)

	title2 := "writer two"
	_, err = s.UpdateNode(n.ID, 1, graph.NodeChanges{Title: &title2})
	var conflict *graph.EditConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, n.ID, conflict.NodeID)
	assert.Equal(t, int64(1), conflict.Given)
	require.NotNil(t, conflict.Current)
	assert.Equal(t, int64(2), conflict.Current.Version)
	assert.Equal(t, "writer one", conflict.Current.Title)

	// The losing write must not have touched the row.
	got, err := s.GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, "writer one", got.Title)
	assert.Equal(t, int64(2), got.Version)
}

func TestSetNodeEmbeddingKeepsVersion(t *testing.T) {
	s := newTestStore(t)
	n := mustCreateNode(t, s, "note")

	require.NoError(t, s.SetNodeEmbedding(n.ID, []float32{0.5, 0.5}, "mock"))
	got, err := s.GetNode(n.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "mock", got.EmbeddingModel)
	assert.InDeltaSlice(t, []float32{0.5, 0.5}, got.Embedding, 1e-6)
}

func TestNodesSharingTags(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateNode(t, s, "a", "ml", "go")
	b := mustCreateNode(t, s, "b", "ml")
	c := mustCreateNode(t, s, "c", "cooking")

	shared, err := s.NodesSharingTags([]string{"ml", "go"}, a.ID)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, b.ID, shared[0].ID)

	none, err := s.NodesSharingTags([]string{"physics"}, c.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDeleteNodeTombstones(t *testing.T) {
	s := newTestStore(t)
	n := mustCreateNode(t, s, "ephemeral", "tmp")
	require.NoError(t, s.DeleteNode(n.ID))

	// Still resolvable by id for edge endpoints.
	got, err := s.GetNode(n.ID)
	require.NoError(t, err)
	assert.True(t, got.Deleted())

	// Gone from listings and tag lookups.
	nodes, err := s.ListNodes(graph.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, nodes)
	shared, err := s.NodesSharingTags([]string{"tmp"}, "")
	require.NoError(t, err)
	assert.Empty(t, shared)
}

func TestNodeIDsAfterPaginates(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		mustCreateNode(t, s, "n")
	}

	first, err := s.NodeIDsAfter("", 3)
	require.NoError(t, err)
	require.Len(t, first, 3)

	rest, err := s.NodeIDsAfter(first[2], 10)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Greater(t, rest[0], first[2])
}

func TestUpsertSuggestedEdgeCanonicalAndIdempotent(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateNode(t, s, "a")
	b := mustCreateNode(t, s, "b")

	e1, err := s.UpsertSuggestedEdge(&graph.Edge{
		SourceID: b.ID, TargetID: a.ID,
		Score:     0.8,
		Breakdown: graph.ScoreBreakdown{Semantic: 0.9, Tag: 0.5, Recency: 1},
	})
	require.NoError(t, err)
	require.NotNil(t, e1)
	src, dst := graph.CanonicalPair(a.ID, b.ID)
	assert.Equal(t, src, e1.SourceID)
	assert.Equal(t, dst, e1.TargetID)

	// Re-suggesting the reversed pair updates the same row.
	e2, err := s.UpsertSuggestedEdge(&graph.Edge{
		SourceID: a.ID, TargetID: b.ID, Score: 0.85,
	})
	require.NoError(t, err)
	require.NotNil(t, e2)
	assert.Equal(t, e1.ID, e2.ID)
	assert.InDelta(t, 0.85, e2.Score, 1e-9)

	all, err := s.ListEdges(graph.EdgeFilter{}, graph.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpsertSuggestedEdgeSkipsDecidedPair(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateNode(t, s, "a")
	b := mustCreateNode(t, s, "b")

	e, err := s.UpsertSuggestedEdge(&graph.Edge{SourceID: a.ID, TargetID: b.ID, Score: 0.7})
	require.NoError(t, err)
	applied, err := s.TransitionEdge(e.ID, graph.EdgeSuggested, graph.EdgeRejected, "alice", "not related")
	require.NoError(t, err)
	require.True(t, applied)

	// A rejected pair is left alone: no new suggestion, score untouched.
	res, err := s.UpsertSuggestedEdge(&graph.Edge{SourceID: a.ID, TargetID: b.ID, Score: 0.99})
	require.NoError(t, err)
	assert.Nil(t, res)

	got, err := s.Edge(e.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.EdgeRejected, got.State)
	assert.InDelta(t, 0.7, got.Score, 1e-9)
}

func TestTransitionEdgeFirstWriterWins(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateNode(t, s, "a")
	b := mustCreateNode(t, s, "b")
	e, err := s.UpsertSuggestedEdge(&graph.Edge{SourceID: a.ID, TargetID: b.ID, Score: 0.6})
	require.NoError(t, err)

	ok, err := s.TransitionEdge(e.ID, graph.EdgeSuggested, graph.EdgeAccepted, "alice", "")
	require.NoError(t, err)
	assert.True(t, ok)

	// Second moderator raced on the same suggested edge and loses.
	ok, err = s.TransitionEdge(e.ID, graph.EdgeSuggested, graph.EdgeRejected, "bob", "dup")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Edge(e.ID)
	require.NoError(t, err)
	assert.Equal(t, graph.EdgeAccepted, got.State)
	assert.Equal(t, "alice", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)

	events, err := s.EdgeEvents(e.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, graph.EdgeSuggested, events[0].FromState)
	assert.Equal(t, graph.EdgeAccepted, events[0].ToState)
	assert.Equal(t, "alice", events[0].Actor)
}

func TestEdgeEventsOrderedTrail(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateNode(t, s, "a")
	b := mustCreateNode(t, s, "b")
	e, err := s.UpsertSuggestedEdge(&graph.Edge{SourceID: a.ID, TargetID: b.ID, Score: 0.6})
	require.NoError(t, err)

	_, err = s.TransitionEdge(e.ID, graph.EdgeSuggested, graph.EdgeAccepted, "alice", "")
	require.NoError(t, err)
	_, err = s.TransitionEdge(e.ID, graph.EdgeAccepted, graph.EdgeSuggested, "alice", "undo")
	require.NoError(t, err)
	_, err = s.TransitionEdge(e.ID, graph.EdgeSuggested, graph.EdgeRejected, "bob", "noise")
	require.NoError(t, err)

	events, err := s.EdgeEvents(e.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	assert.Equal(t, graph.EdgeRejected, events[2].ToState)

	last, err := s.LastEdgeEvent(e.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "noise", last.Reason)
}

func TestBatchTransitionScopedToNode(t *testing.T) {
	s := newTestStore(t)
	hub := mustCreateNode(t, s, "hub")
	x := mustCreateNode(t, s, "x")
	y := mustCreateNode(t, s, "y")
	other := mustCreateNode(t, s, "other")

	for _, pair := range [][2]string{{hub.ID, x.ID}, {hub.ID, y.ID}, {x.ID, other.ID}} {
		_, err := s.UpsertSuggestedEdge(&graph.Edge{SourceID: pair[0], TargetID: pair[1], Score: 0.6})
		require.NoError(t, err)
	}

	n, err := s.BatchTransition(graph.EdgeFilter{NodeID: hub.ID}, graph.EdgeAccepted, "alice", "bulk")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	accepted, err := s.ListEdges(graph.EdgeFilter{State: graph.EdgeAccepted}, graph.Pagination{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, accepted, 2)
	suggested, err := s.ListEdges(graph.EdgeFilter{State: graph.EdgeSuggested}, graph.Pagination{Limit: 10})
	require.NoError(t, err)
	require.Len(t, suggested, 1)
	assert.False(t, suggested[0].Touches(hub.ID))
}

func TestPurgeNodeRemovesEdgesKeepsEvents(t *testing.T) {
	s := newTestStore(t)
	a := mustCreateNode(t, s, "a")
	b := mustCreateNode(t, s, "b")
	e, err := s.UpsertSuggestedEdge(&graph.Edge{SourceID: a.ID, TargetID: b.ID, Score: 0.6})
	require.NoError(t, err)
	_, err = s.TransitionEdge(e.ID, graph.EdgeSuggested, graph.EdgeAccepted, "alice", "")
	require.NoError(t, err)

	require.NoError(t, s.PurgeNode(a.ID))

	_, err = s.GetNode(a.ID)
	assert.ErrorIs(t, err, graph.ErrNodeNotFound)
	_, err = s.Edge(e.ID)
	assert.ErrorIs(t, err, graph.ErrEdgeNotFound)

	// Audit trail outlives the purged edge.
	events, eventsErr := s.EdgeEvents(e.ID)
	require.NoError(t, eventsErr)
	assert.Len(t, events, 1)
}

func TestDocumentChunkRoundTrip(t *testing.T) {
	s := newTestStore(t)
	doc := &graph.Document{Title: "paper", Body: "p1\n\np2"}
	require.NoError(t, s.CreateDocument(doc))

	n1 := mustCreateNode(t, s, "p1")
	n2 := mustCreateNode(t, s, "p2")
	require.NoError(t, s.ReplaceChunks(doc.ID, []graph.Chunk{
		{DocumentID: doc.ID, NodeID: n1.ID, Order: 1, Checksum: "c1"},
		{DocumentID: doc.ID, NodeID: n2.ID, Order: 2, Checksum: "c2"},
	}))

	chunks, err := s.Chunks(doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Order)
	assert.Equal(t, n2.ID, chunks[1].NodeID)

	// Re-capture replaces the set wholesale.
	require.NoError(t, s.ReplaceChunks(doc.ID, []graph.Chunk{
		{DocumentID: doc.ID, NodeID: n1.ID, Order: 1, Checksum: "c1b"},
	}))
	require.NoError(t, s.TouchDocument(doc.ID))

	chunks, err = s.Chunks(doc.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "c1b", chunks[0].Checksum)

	got, err := s.Document(doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
}

func TestSweepCursorLifecycle(t *testing.T) {
	s := newTestStore(t)

	cursor, err := s.SweepCursor("resweep")
	require.NoError(t, err)
	assert.Empty(t, cursor)

	require.NoError(t, s.SetSweepCursor("resweep", "node-0042"))
	cursor, err = s.SweepCursor("resweep")
	require.NoError(t, err)
	assert.Equal(t, "node-0042", cursor)

	require.NoError(t, s.ClearSweepCursor("resweep"))
	cursor, err = s.SweepCursor("resweep")
	require.NoError(t, err)
	assert.Empty(t, cursor)
}

func TestEmbedCache(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.CachedEmbedding("deadbeef")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.PutCachedEmbedding("deadbeef", "mock", []float32{0.25, -0.75}))
	vec, ok, err := s.CachedEmbedding("deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0.25, -0.75}, vec, 1e-6)
}

func TestStoreErrorWrapsSentinel(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.ListNodes(graph.Pagination{Limit: 1})
	assert.True(t, errors.Is(err, graph.ErrStoreUnavailable))
}
