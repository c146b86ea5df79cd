package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/grovegraph/grove/internal/graph"
)

// CreateDocument persists a document record. Chunk nodes are created
// separately by the caller and attached with ReplaceChunks.
func (s *Store) CreateDocument(d *graph.Document) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	d.Version = 1

	_, err := s.db.Exec(`
		INSERT INTO documents (id, title, body, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.Title, d.Body, d.Version, fmtTime(d.CreatedAt), fmtTime(d.UpdatedAt))
	if err != nil {
		return graph.StoreError("create document", err)
	}
	return nil
}

// Document fetches a document by id.
func (s *Store) Document(id string) (*graph.Document, error) {
	var (
		d                    graph.Document
		createdAt, updatedAt string
	)
	err := s.db.QueryRow(`
		SELECT id, title, body, version, created_at, updated_at
		FROM documents WHERE id = ?
	`, id).Scan(&d.ID, &d.Title, &d.Body, &d.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, graph.ErrDocumentNotFound
	}
	if err != nil {
		return nil, graph.StoreError("get document", err)
	}
	d.CreatedAt = parseTime(createdAt)
	d.UpdatedAt = parseTime(updatedAt)
	return &d, nil
}

// ListDocuments returns documents, newest update first.
func (s *Store) ListDocuments(p graph.Pagination) ([]*graph.Document, error) {
	if p.Limit <= 0 {
		p = graph.DefaultPagination
	}
	rows, err := s.db.Query(`
		SELECT id, title, body, version, created_at, updated_at
		FROM documents ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?
	`, p.Limit, p.Offset)
	if err != nil {
		return nil, graph.StoreError("list documents", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*graph.Document
	for rows.Next() {
		var (
			d                    graph.Document
			createdAt, updatedAt string
		)
		if err := rows.Scan(&d.ID, &d.Title, &d.Body, &d.Version, &createdAt, &updatedAt); err != nil {
			return nil, graph.StoreError("scan document", err)
		}
		d.CreatedAt = parseTime(createdAt)
		d.UpdatedAt = parseTime(updatedAt)
		out = append(out, &d)
	}
	return out, rows.Err()
}

// TouchDocument bumps the document's version and updated_at after a
// re-capture replaced its chunks.
func (s *Store) TouchDocument(id string) error {
	res, err := s.db.Exec(`
		UPDATE documents SET version = version + 1, updated_at = ? WHERE id = ?
	`, fmtTime(time.Now().UTC()), id)
	if err != nil {
		return graph.StoreError("touch document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return graph.ErrDocumentNotFound
	}
	return nil
}

// ReplaceChunks swaps a document's chunk set wholesale. Orders start at
// 1 so a zero Order always means "not part of a document".
func (s *Store) ReplaceChunks(documentID string, chunks []graph.Chunk) error {
	now := time.Now().UTC()
	return s.withTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
			return graph.StoreError("clear chunks", err)
		}
		for _, c := range chunks {
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			_, err := tx.Exec(`
				INSERT INTO document_chunks (document_id, node_id, chunk_order, chunk_type, checksum, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, documentID, c.NodeID, c.Order, nullable(c.ChunkType), c.Checksum, fmtTime(createdAt))
			if err != nil {
				return graph.StoreError("insert chunk", err)
			}
		}
		return nil
	})
}

// Chunks returns a document's chunks in order.
func (s *Store) Chunks(documentID string) ([]graph.Chunk, error) {
	rows, err := s.db.Query(`
		SELECT document_id, node_id, chunk_order, chunk_type, checksum, created_at
		FROM document_chunks WHERE document_id = ?
		ORDER BY chunk_order ASC
	`, documentID)
	if err != nil {
		return nil, graph.StoreError("list chunks", err)
	}
	defer func() { _ = rows.Close() }()

	var out []graph.Chunk
	for rows.Next() {
		var (
			c         graph.Chunk
			chunkType sql.NullString
			createdAt string
		)
		if err := rows.Scan(&c.DocumentID, &c.NodeID, &c.Order, &chunkType, &c.Checksum, &createdAt); err != nil {
			return nil, graph.StoreError("scan chunk", err)
		}
		c.ChunkType = chunkType.String
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChunkNodeIDs returns the node ids backing a document's chunks.
func (s *Store) ChunkNodeIDs(documentID string) ([]string, error) {
	chunks, err := s.Chunks(documentID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(chunks))
	for _, c := range chunks {
		ids = append(ids, c.NodeID)
	}
	return ids, nil
}

// DeleteDocument removes the document; chunk rows cascade. The chunk
// nodes themselves are tombstoned by the caller so edge history stays
// intact.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return graph.StoreError("delete document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return graph.ErrDocumentNotFound
	}
	return nil
}
