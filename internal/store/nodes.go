package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/grovegraph/grove/internal/graph"
)

const nodeColumns = `id, title, body, tags, token_counts, embedding, embedding_model,
	created_at, updated_at, version, author_id, pos_x, pos_y, deleted_at,
	parent_document_id, chunk_order`

// CreateNode inserts a new node, assigning id, timestamps and version 1
// when unset. The tag index is maintained in the same transaction.
func (s *Store) CreateNode(n *graph.Node) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now
	if n.Version == 0 {
		n.Version = 1
	}

	tagsJSON, countsJSON, err := marshalNodeJSON(n)
	if err != nil {
		return err
	}

	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO nodes (`+nodeColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			n.ID, n.Title, n.Body, tagsJSON, countsJSON,
			embeddingToBytes(n.Embedding), nullable(n.EmbeddingModel),
			fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt), n.Version,
			nullable(n.AuthorID), n.PosX, n.PosY, fmtNullableTime(n.DeletedAt),
			nullable(n.ParentDocumentID), nullableInt(n.ChunkOrder),
		)
		if err != nil {
			return graph.StoreError("insert node", err)
		}
		return replaceNodeTags(tx, n.ID, n.Tags)
	})
}

// GetNode fetches a node by id, including tombstoned ones so edge
// endpoints stay resolvable.
func (s *Store) GetNode(id string) (*graph.Node, error) {
	row := s.db.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return nil, graph.ErrNodeNotFound
	}
	if err != nil {
		return nil, graph.StoreError("get node", err)
	}
	return n, nil
}

// UpdateNode applies an edit under optimistic concurrency: the UPDATE is
// guarded by expectedVersion and a zero row count reloads the current
// row into an EditConflictError. The embedding is cleared because edited
// content invalidates it.
func (s *Store) UpdateNode(id string, expectedVersion int64, changes graph.NodeChanges) (*graph.Node, error) {
	var updated *graph.Node
	err := s.withTx(func(tx *sql.Tx) error {
		row := tx.QueryRow(`SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id)
		current, err := scanNode(row)
		if err == sql.ErrNoRows {
			return graph.ErrNodeNotFound
		}
		if err != nil {
			return graph.StoreError("load node", err)
		}
		if current.Deleted() {
			return graph.ErrNodeNotFound
		}

		next := *current
		if changes.Title != nil {
			next.Title = *changes.Title
		}
		if changes.Body != nil {
			next.Body = *changes.Body
		}
		if changes.Tags != nil {
			next.Tags = changes.Tags
		}
		next.Version = expectedVersion + 1
		next.UpdatedAt = time.Now().UTC()
		next.Embedding = nil
		next.EmbeddingModel = ""

		tagsJSON, countsJSON, err := marshalNodeJSON(&next)
		if err != nil {
			return err
		}

		res, err := tx.Exec(`
			UPDATE nodes
			SET title = ?, body = ?, tags = ?, token_counts = ?,
				embedding = NULL, embedding_model = NULL,
				updated_at = ?, version = ?
			WHERE id = ? AND version = ?
		`, next.Title, next.Body, tagsJSON, countsJSON,
			fmtTime(next.UpdatedAt), next.Version, id, expectedVersion)
		if err != nil {
			return graph.StoreError("update node", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return graph.StoreError("update node", err)
		}
		if affected == 0 {
			return &graph.EditConflictError{NodeID: id, Given: expectedVersion, Current: current}
		}
		if err := replaceNodeTags(tx, id, next.Tags); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// SetNodeEmbedding stores a computed embedding. Embeddings are derived
// data, so this does not bump the version.
func (s *Store) SetNodeEmbedding(id string, vec []float32, model string) error {
	res, err := s.db.Exec(`
		UPDATE nodes SET embedding = ?, embedding_model = ? WHERE id = ?
	`, embeddingToBytes(vec), model, id)
	if err != nil {
		return graph.StoreError("set embedding", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return graph.ErrNodeNotFound
	}
	return nil
}

// SetNodeTokenCounts refreshes the lexical cache. Like embeddings this
// is derived data and does not bump the version.
func (s *Store) SetNodeTokenCounts(id string, counts map[string]int) error {
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("marshal token counts: %w", err)
	}
	if _, err := s.db.Exec(`UPDATE nodes SET token_counts = ? WHERE id = ?`, string(countsJSON), id); err != nil {
		return graph.StoreError("set token counts", err)
	}
	return nil
}

// ListNodes returns live (non-tombstoned) nodes, newest first.
func (s *Store) ListNodes(p graph.Pagination) ([]*graph.Node, error) {
	if p.Limit <= 0 {
		p = graph.DefaultPagination
	}
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE deleted_at IS NULL
		ORDER BY updated_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, p.Limit, p.Offset)
	if err != nil {
		return nil, graph.StoreError("list nodes", err)
	}
	defer func() { _ = rows.Close() }()
	return collectNodes(rows)
}

// NodeIDsAfter returns live node ids in ascending id order, strictly
// after cursor. This is the resumable iteration order for graph sweeps.
func (s *Store) NodeIDsAfter(cursor string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id FROM nodes
		WHERE deleted_at IS NULL AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`, cursor, limit)
	if err != nil {
		return nil, graph.StoreError("list node ids", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, graph.StoreError("scan node id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// NodesSharingTags returns live nodes that share at least one of the
// given tags, excluding excludeID. This is the lexical half of the
// candidate pool.
func (s *Store) NodesSharingTags(tags []string, excludeID string) ([]*graph.Node, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(tags))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(tags)+1)
	for _, t := range tags {
		args = append(args, t)
	}
	args = append(args, excludeID)

	rows, err := s.db.Query(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE deleted_at IS NULL
		AND id IN (SELECT DISTINCT node_id FROM node_tags WHERE tag IN (`+placeholders+`))
		AND id != ?
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, graph.StoreError("nodes sharing tags", err)
	}
	defer func() { _ = rows.Close() }()
	return collectNodes(rows)
}

// NodeVector pairs a node id with its stored embedding.
type NodeVector struct {
	ID     string
	Vector []float32
}

// NodeVectors streams stored embeddings for the in-process similarity
// prefilter, most recently touched nodes first so the scan bound keeps
// live threads in the pool.
func (s *Store) NodeVectors(excludeID string, limit int) ([]NodeVector, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.Query(`
		SELECT id, embedding FROM nodes
		WHERE deleted_at IS NULL AND embedding IS NOT NULL AND id != ?
		ORDER BY updated_at DESC, id ASC
		LIMIT ?
	`, excludeID, limit)
	if err != nil {
		return nil, graph.StoreError("node vectors", err)
	}
	defer func() { _ = rows.Close() }()

	var out []NodeVector
	for rows.Next() {
		var nv NodeVector
		var blob []byte
		if err := rows.Scan(&nv.ID, &blob); err != nil {
			return nil, graph.StoreError("scan node vector", err)
		}
		nv.Vector = bytesToEmbedding(blob)
		out = append(out, nv)
	}
	return out, rows.Err()
}

// NodesByIDs loads the given nodes in one query. Missing ids are
// silently skipped; tombstoned nodes are excluded.
func (s *Store) NodesByIDs(ids []string) ([]*graph.Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.Query(`
		SELECT `+nodeColumns+` FROM nodes
		WHERE deleted_at IS NULL AND id IN (`+placeholders+`)
		ORDER BY id ASC
	`, args...)
	if err != nil {
		return nil, graph.StoreError("nodes by ids", err)
	}
	defer func() { _ = rows.Close() }()
	return collectNodes(rows)
}

// DeleteNode tombstones a node. Its edges stay resolvable until purge.
func (s *Store) DeleteNode(id string) error {
	res, err := s.db.Exec(`
		UPDATE nodes SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL
	`, fmtTime(time.Now()), fmtTime(time.Now()), id)
	if err != nil {
		return graph.StoreError("delete node", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return graph.ErrNodeNotFound
	}
	return nil
}

// PurgeNode permanently removes a node and its edges. Edge events are
// retained: the audit log is append-only and outlives its subjects.
func (s *Store) PurgeNode(id string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`DELETE FROM nodes WHERE id = ?`, id)
		if err != nil {
			return graph.StoreError("purge node", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return graph.ErrNodeNotFound
		}
		// node_tags, edges and document_chunks cascade via foreign keys.
		return nil
	})
}

// === helpers ===

func marshalNodeJSON(n *graph.Node) (string, string, error) {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", fmt.Errorf("marshal tags: %w", err)
	}
	counts := n.TokenCounts
	if counts == nil {
		counts = map[string]int{}
	}
	countsJSON, err := json.Marshal(counts)
	if err != nil {
		return "", "", fmt.Errorf("marshal token counts: %w", err)
	}
	return string(tagsJSON), string(countsJSON), nil
}

func replaceNodeTags(tx *sql.Tx, nodeID string, tags []string) error {
	if _, err := tx.Exec(`DELETE FROM node_tags WHERE node_id = ?`, nodeID); err != nil {
		return graph.StoreError("clear node tags", err)
	}
	for _, tag := range tags {
		if _, err := tx.Exec(`
			INSERT INTO node_tags (node_id, tag) VALUES (?, ?)
			ON CONFLICT(node_id, tag) DO NOTHING
		`, nodeID, tag); err != nil {
			return graph.StoreError("index node tag", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*graph.Node, error) {
	var (
		n           graph.Node
		tagsJSON    string
		countsJSON  sql.NullString
		blob        []byte
		model       sql.NullString
		createdAt   string
		updatedAt   string
		authorID    sql.NullString
		posX, posY  sql.NullFloat64
		deletedAt   sql.NullString
		parentDocID sql.NullString
		chunkOrder  sql.NullInt64
	)
	err := row.Scan(&n.ID, &n.Title, &n.Body, &tagsJSON, &countsJSON, &blob, &model,
		&createdAt, &updatedAt, &n.Version, &authorID, &posX, &posY, &deletedAt,
		&parentDocID, &chunkOrder)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &n.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	if countsJSON.Valid && countsJSON.String != "" {
		if err := json.Unmarshal([]byte(countsJSON.String), &n.TokenCounts); err != nil {
			return nil, fmt.Errorf("unmarshal token counts: %w", err)
		}
	}
	n.Embedding = bytesToEmbedding(blob)
	n.EmbeddingModel = model.String
	n.CreatedAt = parseTime(createdAt)
	n.UpdatedAt = parseTime(updatedAt)
	n.AuthorID = authorID.String
	if posX.Valid {
		n.PosX = &posX.Float64
	}
	if posY.Valid {
		n.PosY = &posY.Float64
	}
	n.DeletedAt = parseNullableTime(deletedAt)
	n.ParentDocumentID = parentDocID.String
	if chunkOrder.Valid {
		n.ChunkOrder = int(chunkOrder.Int64)
	}
	return &n, nil
}

func collectNodes(rows *sql.Rows) ([]*graph.Node, error) {
	var out []*graph.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, graph.StoreError("scan node", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, graph.StoreError("iterate nodes", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
