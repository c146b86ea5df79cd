package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is; the structured types
// below add context and match with errors.As.
var (
	// ErrProviderUnavailable means the embedding backend is down or timed
	// out. Capture degrades to tag-only scoring instead of failing.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")

	// ErrStoreUnavailable wraps storage-layer failures (connection loss,
	// disk full). The current operation aborts cleanly; nothing retries
	// silently.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNoUndoAvailable means the edge has no prior transition to revert
	// or the undo window has elapsed.
	ErrNoUndoAvailable = errors.New("no undo available")

	// ErrPairAlreadyDecided signals the linker to skip a pair whose edge
	// was already accepted or rejected. Never surfaced to users.
	ErrPairAlreadyDecided = errors.New("pair already decided")

	ErrNodeNotFound     = errors.New("node not found")
	ErrEdgeNotFound     = errors.New("edge not found")
	ErrDocumentNotFound = errors.New("document not found")
)

// DimensionMismatchError reports configuration drift between the stored
// embeddings and the active model. Fatal: embedding-dependent writes must
// halt until reconciled.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store has %d, provider returned %d", e.Want, e.Got)
}

// EditConflictError is returned when an edit carries a stale version.
// Current holds the server-side node so the caller can re-merge.
type EditConflictError struct {
	NodeID  string
	Given   int64
	Current *Node
}

func (e *EditConflictError) Error() string {
	current := int64(-1)
	if e.Current != nil {
		current = e.Current.Version
	}
	return fmt.Sprintf("edit conflict on node %s: version %d is stale (current %d)", e.NodeID, e.Given, current)
}

// InvalidTransitionError is returned when a moderation action finds the
// edge in a state it cannot move from. Idempotent cases (accept on
// accepted, reject on rejected) are successes, not this error.
type InvalidTransitionError struct {
	EdgeID string
	From   EdgeState
	To     EdgeState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for edge %s: %s -> %s", e.EdgeID, e.From, e.To)
}

// QueryParseError reports malformed query syntax with a byte position
// into the original query string.
type QueryParseError struct {
	Pos int
	Msg string
}

func (e *QueryParseError) Error() string {
	return fmt.Sprintf("query parse error at position %d: %s", e.Pos, e.Msg)
}

// StoreError wraps a low-level storage failure so that errors.Is(err,
// ErrStoreUnavailable) holds while the cause stays inspectable.
func StoreError(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
