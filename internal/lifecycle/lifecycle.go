// Package lifecycle implements edge moderation: accepting, rejecting
// and undoing suggested links, with every transition recorded in the
// append-only audit trail. All state changes go through version-guarded
// updates in the store, so concurrent moderators resolve to exactly one
// winner without locks.
package lifecycle

import (
	"time"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/graph"
	"github.com/grovegraph/grove/internal/store"
)

// Moderator applies lifecycle transitions to edges.
type Moderator struct {
	store *store.Store
	cfg   config.ModerationConfig

	now func() time.Time
}

// New builds a moderator over the store.
func New(st *store.Store, cfg config.ModerationConfig) *Moderator {
	return &Moderator{store: st, cfg: cfg, now: time.Now}
}

// Accept moves a suggested edge to accepted. Accepting an already
// accepted edge is an idempotent success; accepting a rejected edge is
// an invalid transition. When two moderators race, the store's guarded
// update picks the first writer and the loser re-reads the outcome.
func (m *Moderator) Accept(edgeID, actor string) (*graph.Edge, error) {
	return m.decide(edgeID, graph.EdgeAccepted, actor, "")
}

// Reject moves a suggested edge to rejected with an optional reason.
// Rejecting an already rejected edge succeeds and, when a new reason is
// given, records it as a fresh audit event without touching the edge.
func (m *Moderator) Reject(edgeID, actor, reason string) (*graph.Edge, error) {
	return m.decide(edgeID, graph.EdgeRejected, actor, reason)
}

func (m *Moderator) decide(edgeID string, to graph.EdgeState, actor, reason string) (*graph.Edge, error) {
	edge, err := m.store.Edge(edgeID)
	if err != nil {
		return nil, err
	}

	switch edge.State {
	case to:
		if to == graph.EdgeRejected && reason != "" {
			if err := m.store.UpdateEdgeReason(edgeID, actor, reason); err != nil {
				return nil, err
			}
		}
		return edge, nil

	case graph.EdgeSuggested:
		applied, err := m.store.TransitionEdge(edgeID, graph.EdgeSuggested, to, actor, reason)
		if err != nil {
			return nil, err
		}
		if applied {
			return m.store.Edge(edgeID)
		}
		// Lost the race: the edge moved under us. Re-read and treat a
		// matching outcome as idempotent success.
		current, err := m.store.Edge(edgeID)
		if err != nil {
			return nil, err
		}
		if current.State == to {
			return current, nil
		}
		return nil, &graph.InvalidTransitionError{EdgeID: edgeID, From: current.State, To: to}

	default:
		return nil, &graph.InvalidTransitionError{EdgeID: edgeID, From: edge.State, To: to}
	}
}

// Undo reverts the most recent accept or reject, returning the edge to
// suggested. Only the latest decision is undoable, only within the
// configured window, and an undo cannot itself be undone.
func (m *Moderator) Undo(edgeID, actor string) (*graph.Edge, error) {
	edge, err := m.store.Edge(edgeID)
	if err != nil {
		return nil, err
	}
	if edge.State == graph.EdgeSuggested {
		return nil, graph.ErrNoUndoAvailable
	}

	last, err := m.store.LastEdgeEvent(edgeID)
	if err != nil {
		return nil, err
	}
	if last == nil || last.ToState != edge.State {
		return nil, graph.ErrNoUndoAvailable
	}
	if m.cfg.UndoWindow > 0 && m.now().Sub(last.CreatedAt) > m.cfg.UndoWindow {
		return nil, graph.ErrNoUndoAvailable
	}

	applied, err := m.store.TransitionEdge(edgeID, edge.State, graph.EdgeSuggested, actor, "undo")
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, graph.ErrNoUndoAvailable
	}
	return m.store.Edge(edgeID)
}

// Promote accepts every suggested edge matching the filter in one
// atomic batch. Zero matches is a success, not an error.
func (m *Moderator) Promote(f graph.EdgeFilter, actor string) (int, error) {
	return m.store.BatchTransition(f, graph.EdgeAccepted, actor, "batch promote")
}

// Sweep rejects every suggested edge matching the filter in one atomic
// batch. Typically scoped to a node or capped with MaxScore to clear
// low-value suggestions.
func (m *Moderator) Sweep(f graph.EdgeFilter, actor string) (int, error) {
	return m.store.BatchTransition(f, graph.EdgeRejected, actor, "batch sweep")
}
