package store

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grovegraph/grove/internal/graph"
)

const edgeColumns = `id, source_id, target_id, state, score,
	score_semantic, score_tag, score_recency, created_at, decided_at, decided_by`

// UpsertSuggestedEdge writes a suggested edge for the canonical pair.
// When a suggested edge for the pair already exists its score and
// breakdown are updated in place; accepted and rejected edges are left
// untouched (the ON CONFLICT update is state-guarded). Returns the
// stored edge, or nil when the pair was already decided.
func (s *Store) UpsertSuggestedEdge(e *graph.Edge) (*graph.Edge, error) {
	src, dst := graph.CanonicalPair(e.SourceID, e.TargetID)
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO edges (id, source_id, target_id, state, score,
			score_semantic, score_tag, score_recency, created_at)
		VALUES (?, ?, ?, 'suggested', ?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id) DO UPDATE SET
			score = excluded.score,
			score_semantic = excluded.score_semantic,
			score_tag = excluded.score_tag,
			score_recency = excluded.score_recency
		WHERE edges.state = 'suggested'
	`, e.ID, src, dst, e.Score,
		e.Breakdown.Semantic, e.Breakdown.Tag, e.Breakdown.Recency,
		fmtTime(e.CreatedAt))
	if err != nil {
		return nil, graph.StoreError("upsert edge", err)
	}

	stored, err := s.EdgeByPair(src, dst)
	if err != nil {
		return nil, err
	}
	if stored.State != graph.EdgeSuggested {
		return nil, nil
	}
	return stored, nil
}

// Edge fetches an edge by id.
func (s *Store) Edge(id string) (*graph.Edge, error) {
	row := s.db.QueryRow(`SELECT `+edgeColumns+` FROM edges WHERE id = ?`, id)
	e, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return nil, graph.ErrEdgeNotFound
	}
	if err != nil {
		return nil, graph.StoreError("get edge", err)
	}
	return e, nil
}

// EdgeByPair fetches the edge for an unordered node pair.
func (s *Store) EdgeByPair(a, b string) (*graph.Edge, error) {
	src, dst := graph.CanonicalPair(a, b)
	row := s.db.QueryRow(`
		SELECT `+edgeColumns+` FROM edges WHERE source_id = ? AND target_id = ?
	`, src, dst)
	e, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return nil, graph.ErrEdgeNotFound
	}
	if err != nil {
		return nil, graph.StoreError("get edge by pair", err)
	}
	return e, nil
}

// ListEdges returns edges matching the filter, best score first.
func (s *Store) ListEdges(f graph.EdgeFilter, p graph.Pagination) ([]*graph.Edge, error) {
	if p.Limit <= 0 {
		p = graph.DefaultPagination
	}
	query := `SELECT ` + edgeColumns + ` FROM edges WHERE 1=1`
	var args []any
	if f.State != "" {
		query += ` AND state = ?`
		args = append(args, string(f.State))
	}
	if f.NodeID != "" {
		query += ` AND (source_id = ? OR target_id = ?)`
		args = append(args, f.NodeID, f.NodeID)
	}
	if f.MinScore > 0 {
		query += ` AND score >= ?`
		args = append(args, f.MinScore)
	}
	if f.MaxScore > 0 {
		query += ` AND score < ?`
		args = append(args, f.MaxScore)
	}
	query += ` ORDER BY score DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, p.Limit, p.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, graph.StoreError("list edges", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, graph.StoreError("scan edge", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, graph.StoreError("iterate edges", err)
	}
	return out, nil
}

// EdgesForNode returns all edges touching a node, best score first.
func (s *Store) EdgesForNode(nodeID string) ([]*graph.Edge, error) {
	return s.ListEdges(graph.EdgeFilter{NodeID: nodeID}, graph.Pagination{Limit: 1000})
}

// TransitionEdge atomically moves an edge from one state to another and
// appends the audit event. The UPDATE is guarded by the expected state,
// so of two racing moderators exactly one observes applied == true.
func (s *Store) TransitionEdge(id string, from, to graph.EdgeState, actor, reason string) (applied bool, err error) {
	now := time.Now().UTC()
	err = s.withTx(func(tx *sql.Tx) error {
		var decidedAt, decidedBy any
		if to == graph.EdgeAccepted || to == graph.EdgeRejected {
			decidedAt, decidedBy = fmtTime(now), actor
		}
		res, err := tx.Exec(`
			UPDATE edges SET state = ?, decided_at = ?, decided_by = ?
			WHERE id = ? AND state = ?
		`, string(to), decidedAt, decidedBy, id, string(from))
		if err != nil {
			return graph.StoreError("transition edge", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return graph.StoreError("transition edge", err)
		}
		if n == 0 {
			return nil
		}
		if err := appendEdgeEvent(tx, id, from, to, actor, reason, now); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// BatchTransition moves every suggested edge matching the filter to the
// target state, one audit event per edge, inside a single transaction.
// SQLite gives multi-row atomicity, so the batch is all-or-nothing even
// across unrelated nodes.
func (s *Store) BatchTransition(f graph.EdgeFilter, to graph.EdgeState, actor, reason string) (int, error) {
	now := time.Now().UTC()
	count := 0
	err := s.withTx(func(tx *sql.Tx) error {
		query := `SELECT id FROM edges WHERE state = 'suggested'`
		var args []any
		if f.NodeID != "" {
			query += ` AND (source_id = ? OR target_id = ?)`
			args = append(args, f.NodeID, f.NodeID)
		}
		if f.MinScore > 0 {
			query += ` AND score >= ?`
			args = append(args, f.MinScore)
		}
		if f.MaxScore > 0 {
			query += ` AND score < ?`
			args = append(args, f.MaxScore)
		}
		query += ` ORDER BY id ASC`

		rows, err := tx.Query(query, args...)
		if err != nil {
			return graph.StoreError("select batch edges", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return graph.StoreError("scan batch edge", err)
			}
			ids = append(ids, id)
		}
		_ = rows.Close()
		if err := rows.Err(); err != nil {
			return graph.StoreError("iterate batch edges", err)
		}

		for _, id := range ids {
			res, err := tx.Exec(`
				UPDATE edges SET state = ?, decided_at = ?, decided_by = ?
				WHERE id = ? AND state = 'suggested'
			`, string(to), fmtTime(now), actor, id)
			if err != nil {
				return graph.StoreError("batch transition", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if err := appendEdgeEvent(tx, id, graph.EdgeSuggested, to, actor, reason, now); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateEdgeReason refreshes the latest event's reason semantics for a
// repeated rejection: the edge row keeps its state, a fresh event
// records the new reason.
func (s *Store) UpdateEdgeReason(id string, actor, reason string) error {
	return s.withTx(func(tx *sql.Tx) error {
		return appendEdgeEvent(tx, id, graph.EdgeRejected, graph.EdgeRejected, actor, reason, time.Now().UTC())
	})
}

// LastEdgeEvent returns the most recent audit event for an edge, or nil
// when the edge has no history.
func (s *Store) LastEdgeEvent(edgeID string) (*graph.EdgeEvent, error) {
	row := s.db.QueryRow(`
		SELECT seq, edge_id, from_state, to_state, actor, reason, created_at
		FROM edge_events WHERE edge_id = ?
		ORDER BY seq DESC LIMIT 1
	`, edgeID)
	ev, err := scanEdgeEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, graph.StoreError("last edge event", err)
	}
	return ev, nil
}

// EdgeEvents returns the full ordered audit trail for an edge.
func (s *Store) EdgeEvents(edgeID string) ([]*graph.EdgeEvent, error) {
	rows, err := s.db.Query(`
		SELECT seq, edge_id, from_state, to_state, actor, reason, created_at
		FROM edge_events WHERE edge_id = ?
		ORDER BY seq ASC
	`, edgeID)
	if err != nil {
		return nil, graph.StoreError("edge events", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.EdgeEvent
	for rows.Next() {
		ev, err := scanEdgeEvent(rows)
		if err != nil {
			return nil, graph.StoreError("scan edge event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func appendEdgeEvent(tx *sql.Tx, edgeID string, from, to graph.EdgeState, actor, reason string, at time.Time) error {
	_, err := tx.Exec(`
		INSERT INTO edge_events (edge_id, from_state, to_state, actor, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, edgeID, string(from), string(to), actor, nullable(reason), fmtTime(at))
	if err != nil {
		return graph.StoreError("append edge event", err)
	}
	return nil
}

func scanEdge(row rowScanner) (*graph.Edge, error) {
	var (
		e         graph.Edge
		state     string
		createdAt string
		decidedAt sql.NullString
		decidedBy sql.NullString
	)
	err := row.Scan(&e.ID, &e.SourceID, &e.TargetID, &state, &e.Score,
		&e.Breakdown.Semantic, &e.Breakdown.Tag, &e.Breakdown.Recency,
		&createdAt, &decidedAt, &decidedBy)
	if err != nil {
		return nil, err
	}
	e.State = graph.EdgeState(strings.ToLower(state))
	e.CreatedAt = parseTime(createdAt)
	e.DecidedAt = parseNullableTime(decidedAt)
	e.DecidedBy = decidedBy.String
	return &e, nil
}

func scanEdgeEvent(row rowScanner) (*graph.EdgeEvent, error) {
	var (
		ev        graph.EdgeEvent
		from, to  string
		reason    sql.NullString
		createdAt string
	)
	if err := row.Scan(&ev.Seq, &ev.EdgeID, &from, &to, &ev.Actor, &reason, &createdAt); err != nil {
		return nil, err
	}
	ev.FromState = graph.EdgeState(from)
	ev.ToState = graph.EdgeState(to)
	ev.Reason = reason.String
	ev.CreatedAt = parseTime(createdAt)
	return &ev, nil
}
