// Package store is the vector store adapter: the sole owner of the
// SQLite persistence layer for nodes, edges, edge events, documents and
// chunks. Every other component operates on in-memory DTOs from
// internal/graph and goes through this package for any mutation.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grovegraph/grove/internal/graph"
)

// Store wraps the SQLite database. It is safe for concurrent use; SQLite
// serializes writers and the busy timeout absorbs short contention.
type Store struct {
	db *sql.DB
}

// Open creates or opens the graph database under dataDir. Pass
// ":memory:" for an ephemeral store (tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "grove.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection sidesteps modernc's per-connection in-memory
	// databases and keeps transactions strictly ordered.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		tags TEXT NOT NULL DEFAULT '[]',        -- JSON array, mirrored into node_tags
		token_counts TEXT,                      -- JSON object, lexical cache
		embedding BLOB,                         -- little-endian float32, NULL until computed
		embedding_model TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		author_id TEXT,
		pos_x REAL,
		pos_y REAL,
		deleted_at TEXT,                        -- tombstone, purge removes the row
		parent_document_id TEXT,
		chunk_order INTEGER
	);

	-- Tag index table; authoritative tags live in nodes.tags, this is
	-- the lookup structure for candidate pooling and query filters.
	CREATE TABLE IF NOT EXISTS node_tags (
		node_id TEXT NOT NULL,
		tag TEXT NOT NULL,
		PRIMARY KEY (node_id, tag),
		FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,                -- canonical: source_id < target_id
		state TEXT NOT NULL,
		score REAL NOT NULL,
		score_semantic REAL NOT NULL DEFAULT 0,
		score_tag REAL NOT NULL DEFAULT 0,
		score_recency REAL NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		decided_at TEXT,
		decided_by TEXT,
		UNIQUE (source_id, target_id),
		FOREIGN KEY (source_id) REFERENCES nodes(id) ON DELETE CASCADE,
		FOREIGN KEY (target_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	-- Append-only audit log. No foreign key to edges: events outlive
	-- purged edges by design.
	CREATE TABLE IF NOT EXISTS edge_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		edge_id TEXT NOT NULL,
		from_state TEXT NOT NULL,
		to_state TEXT NOT NULL,
		actor TEXT NOT NULL,
		reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		document_id TEXT NOT NULL,
		node_id TEXT NOT NULL,
		chunk_order INTEGER NOT NULL,
		chunk_type TEXT,
		checksum TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (document_id, node_id),
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE,
		FOREIGN KEY (node_id) REFERENCES nodes(id) ON DELETE CASCADE
	);

	-- Embedding cache keyed by content hash (model + normalized text).
	-- Read-through only; correctness never depends on it.
	CREATE TABLE IF NOT EXISTS embed_cache (
		hash TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Resumable batch sweep cursors.
	CREATE TABLE IF NOT EXISTS sweep_state (
		name TEXT PRIMARY KEY,
		cursor TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_node_tags_tag ON node_tags(tag);
	CREATE INDEX IF NOT EXISTS idx_nodes_updated ON nodes(updated_at);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	CREATE INDEX IF NOT EXISTS idx_edges_state ON edges(state);
	CREATE INDEX IF NOT EXISTS idx_edge_events_edge ON edge_events(edge_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return graph.StoreError("begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return graph.StoreError("commit transaction", err)
	}
	return nil
}

// Stats returns graph-level counts for status displays.
func (s *Store) Stats() (graph.Stats, error) {
	var st graph.Stats
	row := s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM nodes WHERE deleted_at IS NULL),
			(SELECT COUNT(*) FROM edges WHERE state = 'accepted'),
			(SELECT COUNT(*) FROM edges WHERE state = 'suggested'),
			(SELECT COUNT(*) FROM documents)
	`)
	if err := row.Scan(&st.Nodes, &st.Edges, &st.Suggested, &st.Documents); err != nil {
		return st, graph.StoreError("stats", err)
	}
	return st, nil
}

// === Sweep cursors ===

// SweepCursor returns the saved cursor for a named sweep, or "" when the
// sweep has not started.
func (s *Store) SweepCursor(name string) (string, error) {
	var cursor string
	err := s.db.QueryRow(`SELECT cursor FROM sweep_state WHERE name = ?`, name).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", graph.StoreError("read sweep cursor", err)
	}
	return cursor, nil
}

// SetSweepCursor records sweep progress so a killed process can resume.
func (s *Store) SetSweepCursor(name, cursor string) error {
	_, err := s.db.Exec(`
		INSERT INTO sweep_state (name, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at
	`, name, cursor, fmtTime(time.Now()))
	if err != nil {
		return graph.StoreError("save sweep cursor", err)
	}
	return nil
}

// ClearSweepCursor removes a finished sweep's cursor.
func (s *Store) ClearSweepCursor(name string) error {
	if _, err := s.db.Exec(`DELETE FROM sweep_state WHERE name = ?`, name); err != nil {
		return graph.StoreError("clear sweep cursor", err)
	}
	return nil
}

// === Embedding cache ===

// CachedEmbedding returns the cached vector for a content hash.
func (s *Store) CachedEmbedding(hash string) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRow(`SELECT vector FROM embed_cache WHERE hash = ?`, hash).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, graph.StoreError("read embed cache", err)
	}
	return bytesToEmbedding(blob), true, nil
}

// PutCachedEmbedding stores a vector under its content hash.
func (s *Store) PutCachedEmbedding(hash, model string, vec []float32) error {
	_, err := s.db.Exec(`
		INSERT INTO embed_cache (hash, model, vector, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, hash, model, embeddingToBytes(vec), fmtTime(time.Now()))
	if err != nil {
		return graph.StoreError("write embed cache", err)
	}
	return nil
}

// === Serialization helpers ===

const timeFormat = time.RFC3339Nano

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Fall back to second precision for rows written by older builds.
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

func fmtNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func embeddingToBytes(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		buf[i*4] = byte(bits)
		buf[i*4+1] = byte(bits >> 8)
		buf[i*4+2] = byte(bits >> 16)
		buf[i*4+3] = byte(bits >> 24)
	}
	return buf
}

func bytesToEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		bits := uint32(buf[i*4]) | uint32(buf[i*4+1])<<8 | uint32(buf[i*4+2])<<16 | uint32(buf[i*4+3])<<24
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
