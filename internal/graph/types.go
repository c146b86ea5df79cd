// Package graph defines the data model shared by the store, linker,
// lifecycle and query packages: nodes, edges, edge events, documents and
// the error taxonomy. All types here are in-memory DTOs; persistence is
// owned exclusively by internal/store.
package graph

import "time"

// EdgeState is the lifecycle state of an edge.
type EdgeState string

const (
	EdgeSuggested EdgeState = "suggested"
	EdgeAccepted  EdgeState = "accepted"
	EdgeRejected  EdgeState = "rejected"
)

// Valid reports whether s is one of the three known states.
func (s EdgeState) Valid() bool {
	switch s {
	case EdgeSuggested, EdgeAccepted, EdgeRejected:
		return true
	}
	return false
}

// Node is a unit of captured knowledge.
type Node struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Tags        []string       `json:"tags"`
	TokenCounts map[string]int `json:"tokenCounts,omitempty"`

	// Embedding is nil until computed; a node without an embedding is
	// valid and participates in tag-only scoring.
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embeddingModel,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Version increases on every successful edit and backs optimistic
	// concurrency control.
	Version int64 `json:"version"`

	AuthorID string `json:"authorId,omitempty"`

	// Layout position is UI state only, never used for scoring.
	PosX *float64 `json:"posX,omitempty"`
	PosY *float64 `json:"posY,omitempty"`

	// DeletedAt marks a tombstoned node. Tombstoned nodes are excluded
	// from search and linking but keep their row until purged.
	DeletedAt *time.Time `json:"deletedAt,omitempty"`

	// Chunk provenance (set only for nodes owned by a document).
	ParentDocumentID string `json:"parentDocumentId,omitempty"`
	ChunkOrder       int    `json:"chunkOrder,omitempty"`
}

// Deleted reports whether the node is tombstoned.
func (n *Node) Deleted() bool { return n.DeletedAt != nil }

// ScoreBreakdown records the component scores behind an edge's hybrid
// score. Retained for explain tooling; not used in any decision after
// edge creation.
type ScoreBreakdown struct {
	Semantic float64 `json:"semantic"`
	Tag      float64 `json:"tag"`
	Recency  float64 `json:"recency"`
}

// Edge is an undirected relation between two nodes. SourceID and
// TargetID are stored in canonical order (SourceID < TargetID) so each
// unordered pair has at most one row.
type Edge struct {
	ID        string         `json:"id"`
	SourceID  string         `json:"sourceId"`
	TargetID  string         `json:"targetId"`
	State     EdgeState      `json:"state"`
	Score     float64        `json:"score"`
	Breakdown ScoreBreakdown `json:"scoreBreakdown"`
	CreatedAt time.Time      `json:"createdAt"`
	DecidedAt *time.Time     `json:"decidedAt,omitempty"`
	DecidedBy string         `json:"decidedBy,omitempty"`
}

// Touches reports whether the edge connects the given node.
func (e *Edge) Touches(nodeID string) bool {
	return e.SourceID == nodeID || e.TargetID == nodeID
}

// Other returns the endpoint opposite to nodeID, or "" when the edge
// does not touch nodeID.
func (e *Edge) Other(nodeID string) string {
	switch nodeID {
	case e.SourceID:
		return e.TargetID
	case e.TargetID:
		return e.SourceID
	}
	return ""
}

// CanonicalPair orders two node ids so that the smaller comes first.
// Edges are undirected; canonical ordering is what prevents a duplicate
// B-A row next to an existing A-B row.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// EdgeEvent is an immutable audit record of one edge state transition.
// Events are append-only and totally ordered per edge by Seq.
type EdgeEvent struct {
	Seq       int64     `json:"seq"`
	EdgeID    string    `json:"edgeId"`
	FromState EdgeState `json:"fromState"`
	ToState   EdgeState `json:"toState"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Document groups long-form content whose retrieval units are chunks.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Chunk links a document to the node holding one retrieval unit.
// Chunks are recreated wholesale when their document is re-captured.
type Chunk struct {
	DocumentID string    `json:"documentId"`
	NodeID     string    `json:"nodeId"`
	Order      int       `json:"order"`
	ChunkType  string    `json:"chunkType,omitempty"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"createdAt"`
}

// EdgeFilter selects edges for listing and batch moderation.
type EdgeFilter struct {
	State    EdgeState
	NodeID   string
	MinScore float64
	// MaxScore, when positive, excludes edges scoring above it. Used by
	// threshold sweeps that reject low-value suggestions in bulk.
	MaxScore float64
}

// Pagination bounds list operations.
type Pagination struct {
	Limit  int
	Offset int
}

// DefaultPagination is used when the caller passes a zero Pagination.
var DefaultPagination = Pagination{Limit: 100}

// ScoredNode is a search result: a node plus its similarity rank score.
type ScoredNode struct {
	Node  *Node   `json:"node"`
	Score float64 `json:"score"`
}

// NodeChanges carries the mutable fields of an edit. Nil means "leave
// unchanged"; an empty slice for Tags clears them.
type NodeChanges struct {
	Title *string
	Body  *string
	Tags  []string
}

// Empty reports whether the edit changes nothing.
func (c NodeChanges) Empty() bool {
	return c.Title == nil && c.Body == nil && c.Tags == nil
}

// Stats summarises the graph for status displays.
type Stats struct {
	Nodes     int64 `json:"nodes"`
	Edges     int64 `json:"edges"`
	Suggested int64 `json:"suggested"`
	Documents int64 `json:"documents"`
}
