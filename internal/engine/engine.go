// Package engine is the facade over the graph: capture, edit, search,
// moderation and document ingestion compose the store, embedder, linker
// and lifecycle packages into the operations the CLI exposes. Embedding
// always happens outside store transactions, so a slow provider never
// holds a write lock.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/embed"
	"github.com/grovegraph/grove/internal/graph"
	"github.com/grovegraph/grove/internal/lifecycle"
	"github.com/grovegraph/grove/internal/linker"
	"github.com/grovegraph/grove/internal/query"
	"github.com/grovegraph/grove/internal/store"
	"github.com/grovegraph/grove/internal/text"
)

// maxAutoTags bounds tags derived from note text. Explicit tags are
// never truncated.
const maxAutoTags = 5

// searchScanLimit bounds how many nodes a single search considers.
const searchScanLimit = 5000

// chunkWordBudget caps the size of one document chunk. Paragraphs over
// the budget are split so every chunk stays embeddable in one call.
const chunkWordBudget = 300

// Engine wires the component stack together.
type Engine struct {
	cfg       config.Config
	store     *store.Store
	embedder  *embed.Service
	linker    *linker.Linker
	moderator *lifecycle.Moderator
	validate  *validator.Validate
}

// New opens the store at cfg.DataDir and builds the full stack,
// including the configured embedding provider.
func New(ctx context.Context, cfg config.Config) (*Engine, error) {
	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	embedder, err := embed.NewEmbedder(ctx, cfg.Embedding)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	return NewWithDeps(st, embed.NewService(embedder, st, cfg.Embedding), cfg), nil
}

// NewWithDeps assembles an engine over pre-built dependencies.
func NewWithDeps(st *store.Store, svc *embed.Service, cfg config.Config) *Engine {
	return &Engine{
		cfg:       cfg,
		store:     st,
		embedder:  svc,
		linker:    linker.New(st, cfg.Linking),
		moderator: lifecycle.New(st, cfg.Moderation),
		validate:  validator.New(),
	}
}

// Close releases the underlying store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the persistence layer for read-mostly callers like the
// CLI watcher and status commands.
func (e *Engine) Store() *store.Store {
	return e.store
}

// CaptureInput is a new note.
type CaptureInput struct {
	Title    string   `validate:"required,max=500"`
	Body     string   `validate:"max=100000"`
	Tags     []string `validate:"max=32,dive,max=64"`
	AuthorID string   `validate:"max=128"`

	// Set by document ingestion for chunk nodes.
	parentDocumentID string
	chunkOrder       int

	// Set by document ingestion when the chunk batch was embedded up
	// front. A nil vector with embedded set means the batch degraded.
	embedding []float32
	embedded  bool
}

// CaptureResult is a captured node plus what linking did with it.
type CaptureResult struct {
	Node      *graph.Node
	Suggested []*graph.Edge
	// Degraded is set when the embedding provider was unavailable and
	// linking fell back to tag signals only.
	Degraded bool
}

// CaptureNode stores a note, derives its tags, embeds it and sweeps it
// for auto-link suggestions. A provider outage degrades to tag-only
// linking; a dimension mismatch aborts before anything is written.
func (e *Engine) CaptureNode(ctx context.Context, in CaptureInput) (*CaptureResult, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, err
	}

	combined := in.Title + "\n" + in.Body
	counts := text.Tokenize(combined)
	tags := normalizeTags(in.Tags)
	if len(tags) == 0 {
		tags = text.ExtractTags(combined, counts, maxAutoTags)
	}

	node := &graph.Node{
		Title:            strings.TrimSpace(in.Title),
		Body:             in.Body,
		Tags:             tags,
		TokenCounts:      counts,
		AuthorID:         in.AuthorID,
		ParentDocumentID: in.parentDocumentID,
		ChunkOrder:       in.chunkOrder,
	}

	result := &CaptureResult{Node: node}
	vec, err := in.embedding, error(nil)
	if !in.embedded {
		vec, err = e.embedder.Embed(ctx, combined)
	}
	switch {
	case err == nil && vec != nil:
		node.Embedding = vec
		node.EmbeddingModel = e.embedder.Model()
	case err == nil || errors.Is(err, graph.ErrProviderUnavailable):
		result.Degraded = true
	default:
		return nil, err
	}

	if err := e.store.CreateNode(node); err != nil {
		return nil, err
	}

	suggested, err := e.linker.SweepNode(ctx, node.ID, false)
	if err != nil {
		return nil, err
	}
	result.Suggested = suggested
	return result, nil
}

// EditInput carries an optimistic-concurrency edit. Version must be the
// version the caller last read.
type EditInput struct {
	Version int64    `validate:"required,min=1"`
	Title   *string  `validate:"omitempty,max=500"`
	Body    *string  `validate:"omitempty,max=100000"`
	Tags    []string `validate:"omitempty,max=32,dive,max=64"`
}

// EditNode updates a node under its version guard, then re-embeds and
// re-sweeps it. A stale version returns EditConflictError carrying the
// current node so the caller can merge and retry.
func (e *Engine) EditNode(ctx context.Context, id string, in EditInput) (*CaptureResult, error) {
	if err := e.validate.Struct(in); err != nil {
		return nil, err
	}

	changes := graph.NodeChanges{Title: in.Title, Body: in.Body}
	if in.Tags != nil {
		changes.Tags = normalizeTags(in.Tags)
	}

	node, err := e.store.UpdateNode(id, in.Version, changes)
	if err != nil {
		return nil, err
	}

	combined := node.Title + "\n" + node.Body
	counts := text.Tokenize(combined)
	if err := e.store.SetNodeTokenCounts(node.ID, counts); err != nil {
		return nil, err
	}
	node.TokenCounts = counts

	// Text changed and no explicit tags: re-derive them. This is a
	// second guarded update on the version we just wrote.
	if in.Tags == nil && (in.Title != nil || in.Body != nil) {
		tags := text.ExtractTags(combined, counts, maxAutoTags)
		node, err = e.store.UpdateNode(node.ID, node.Version, graph.NodeChanges{Tags: tags})
		if err != nil {
			return nil, err
		}
	}

	result := &CaptureResult{Node: node}
	vec, err := e.embedder.Embed(ctx, combined)
	switch {
	case err == nil:
		if err := e.store.SetNodeEmbedding(node.ID, vec, e.embedder.Model()); err != nil {
			return nil, err
		}
		node.Embedding = vec
		node.EmbeddingModel = e.embedder.Model()
	case errors.Is(err, graph.ErrProviderUnavailable):
		result.Degraded = true
	default:
		return nil, err
	}

	suggested, err := e.linker.SweepNode(ctx, node.ID, false)
	if err != nil {
		return nil, err
	}
	result.Suggested = suggested
	return result, nil
}

// GetNode fetches a node by id.
func (e *Engine) GetNode(id string) (*graph.Node, error) {
	return e.store.GetNode(id)
}

// ListNodes pages through live nodes, newest first.
func (e *Engine) ListNodes(p graph.Pagination) ([]*graph.Node, error) {
	return e.store.ListNodes(p)
}

// Connection is an edge paired with the neighbor it leads to.
type Connection struct {
	Edge     *graph.Edge
	Neighbor *graph.Node
}

// Connections groups a node's edges by lifecycle state.
type Connections struct {
	Node      *graph.Node
	Accepted  []Connection
	Suggested []Connection
}

// GetNodeConnections returns a node with its accepted links and pending
// suggestions, neighbors resolved. Rejected edges are history, not
// connections, and are not included.
func (e *Engine) GetNodeConnections(id string) (*Connections, error) {
	node, err := e.store.GetNode(id)
	if err != nil {
		return nil, err
	}
	edges, err := e.store.EdgesForNode(id)
	if err != nil {
		return nil, err
	}

	out := &Connections{Node: node}
	for _, edge := range edges {
		if edge.State == graph.EdgeRejected {
			continue
		}
		neighbor, err := e.store.GetNode(edge.Other(id))
		if err != nil {
			if errors.Is(err, graph.ErrNodeNotFound) {
				continue
			}
			return nil, err
		}
		conn := Connection{Edge: edge, Neighbor: neighbor}
		if edge.State == graph.EdgeAccepted {
			out.Accepted = append(out.Accepted, conn)
		} else {
			out.Suggested = append(out.Suggested, conn)
		}
	}
	return out, nil
}

// DeleteNode tombstones a node and rejects its pending suggestions.
// Accepted edges and the audit trail stay for history.
func (e *Engine) DeleteNode(id string) error {
	if err := e.store.DeleteNode(id); err != nil {
		return err
	}
	_, err := e.moderator.Sweep(graph.EdgeFilter{NodeID: id}, "system")
	if err != nil {
		return fmt.Errorf("node deleted but suggestion cleanup failed: %w", err)
	}
	return nil
}

// PurgeNode hard-deletes a node and its edges. Edge events survive.
func (e *Engine) PurgeNode(id string) error {
	return e.store.PurgeNode(id)
}

// Search parses and evaluates a query over the graph. Tag terms filter,
// quoted phrases and bare words rank by embedding similarity.
func (e *Engine) Search(ctx context.Context, rawQuery string, limit int) ([]graph.ScoredNode, error) {
	expr, err := query.Parse(rawQuery)
	if err != nil {
		return nil, err
	}

	nodes, err := e.store.ListNodes(graph.Pagination{Limit: searchScanLimit})
	if err != nil {
		return nil, err
	}

	var embedFn query.EmbedFunc
	if e.embedder.Available() {
		embedFn = e.embedder.Embed
	}
	results, err := query.Evaluate(ctx, expr, nodes, embedFn)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// ListSuggestedEdges returns pending suggestions, best score first.
func (e *Engine) ListSuggestedEdges(nodeID string, p graph.Pagination) ([]*graph.Edge, error) {
	return e.store.ListEdges(graph.EdgeFilter{State: graph.EdgeSuggested, NodeID: nodeID}, p)
}

// AcceptEdge accepts a suggestion.
func (e *Engine) AcceptEdge(edgeID, actor string) (*graph.Edge, error) {
	return e.moderator.Accept(edgeID, actor)
}

// RejectEdge rejects a suggestion with an optional reason.
func (e *Engine) RejectEdge(edgeID, actor, reason string) (*graph.Edge, error) {
	return e.moderator.Reject(edgeID, actor, reason)
}

// UndoEdge reverts the latest decision on an edge.
func (e *Engine) UndoEdge(edgeID, actor string) (*graph.Edge, error) {
	return e.moderator.Undo(edgeID, actor)
}

// EdgeHistory returns the ordered audit trail of an edge.
func (e *Engine) EdgeHistory(edgeID string) ([]*graph.EdgeEvent, error) {
	return e.store.EdgeEvents(edgeID)
}

// PromoteEdges bulk-accepts suggestions matching the filter.
func (e *Engine) PromoteEdges(f graph.EdgeFilter, actor string) (int, error) {
	return e.moderator.Promote(f, actor)
}

// SweepEdges bulk-rejects suggestions matching the filter.
func (e *Engine) SweepEdges(f graph.EdgeFilter, actor string) (int, error) {
	return e.moderator.Sweep(f, actor)
}

// ResweepAutoLinks re-runs suggestion generation for the whole graph,
// resuming from the last checkpoint if a previous run was interrupted.
func (e *Engine) ResweepAutoLinks(ctx context.Context, force bool) (linker.ResweepResult, error) {
	return e.linker.ResweepAll(ctx, force, 50)
}

// Stats summarises the graph.
func (e *Engine) Stats() (graph.Stats, error) {
	return e.store.Stats()
}

// HealthReport is the outcome of checking the store and the embedding
// backend.
type HealthReport struct {
	Stats    graph.Stats
	Provider string
	Model    string
	// Dimensions is the live vector size reported by the provider.
	Dimensions int
	// EmbeddingDisabled is set when no provider is configured; the
	// graph still works in tag-only mode.
	EmbeddingDisabled bool
	// EmbeddingErr is the check failure, nil when the provider answered.
	EmbeddingErr error
}

// Health checks database connectivity and exercises the embedding
// backend with a test string. A store failure is an error; an embedding
// failure is reported in the result so the caller can show both checks.
func (e *Engine) Health(ctx context.Context) (*HealthReport, error) {
	stats, err := e.store.Stats()
	if err != nil {
		return nil, err
	}
	report := &HealthReport{Stats: stats, Provider: e.cfg.Embedding.Provider}
	if !e.embedder.Available() {
		report.EmbeddingDisabled = true
		return report, nil
	}
	report.Model = e.embedder.Model()
	vec, err := e.embedder.Embed(ctx, "health check")
	if err != nil {
		report.EmbeddingErr = err
		return report, nil
	}
	report.Dimensions = len(vec)
	return report, nil
}

// DocumentResult is an ingested document with its chunk nodes.
type DocumentResult struct {
	Document *graph.Document
	Nodes    []*graph.Node
	Degraded bool
}

// CaptureDocument ingests a long text: it is split into paragraph
// chunks, the whole batch is embedded in one provider call, and each
// chunk becomes a node that is swept like any captured note.
func (e *Engine) CaptureDocument(ctx context.Context, title, body string) (*DocumentResult, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("document title is required")
	}
	paragraphs := splitParagraphs(body)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("document body has no content")
	}

	doc := &graph.Document{Title: title, Body: body}
	if err := e.store.CreateDocument(doc); err != nil {
		return nil, err
	}
	return e.ingestChunks(ctx, doc, paragraphs)
}

// RecaptureDocument replaces a document's body and recreates its chunk
// set wholesale: old chunk nodes are tombstoned, fresh ones are
// captured, and the document's version is bumped.
func (e *Engine) RecaptureDocument(ctx context.Context, id, body string) (*DocumentResult, error) {
	doc, err := e.store.Document(id)
	if err != nil {
		return nil, err
	}
	paragraphs := splitParagraphs(body)
	if len(paragraphs) == 0 {
		return nil, fmt.Errorf("document body has no content")
	}

	oldIDs, err := e.store.ChunkNodeIDs(id)
	if err != nil {
		return nil, err
	}
	for _, nodeID := range oldIDs {
		if err := e.DeleteNode(nodeID); err != nil && !errors.Is(err, graph.ErrNodeNotFound) {
			return nil, err
		}
	}

	doc.Body = body
	result, err := e.ingestChunks(ctx, doc, paragraphs)
	if err != nil {
		return nil, err
	}
	if err := e.store.TouchDocument(id); err != nil {
		return nil, err
	}
	doc.Version++
	return result, nil
}

// ingestChunks embeds the paragraph batch up front, captures one node
// per chunk and swaps the document's chunk set in one transaction.
func (e *Engine) ingestChunks(ctx context.Context, doc *graph.Document, paragraphs []string) (*DocumentResult, error) {
	vectors := make([][]float32, len(paragraphs))
	degraded := !e.embedder.Available()
	if !degraded {
		texts := make([]string, len(paragraphs))
		for i, para := range paragraphs {
			texts[i] = chunkTitle(doc.Title, i, len(paragraphs)) + "\n" + para
		}
		batch, err := e.embedder.EmbedBatch(ctx, texts)
		switch {
		case err == nil:
			vectors = batch
		case errors.Is(err, graph.ErrProviderUnavailable):
			degraded = true
		default:
			return nil, err
		}
	}

	result := &DocumentResult{Document: doc, Degraded: degraded}
	chunks := make([]graph.Chunk, 0, len(paragraphs))
	for i, para := range paragraphs {
		capture, err := e.CaptureNode(ctx, CaptureInput{
			Title:            chunkTitle(doc.Title, i, len(paragraphs)),
			Body:             para,
			parentDocumentID: doc.ID,
			chunkOrder:       i + 1,
			embedding:        vectors[i],
			embedded:         true,
		})
		if err != nil {
			return nil, err
		}
		node := capture.Node
		result.Nodes = append(result.Nodes, node)
		result.Degraded = result.Degraded || capture.Degraded

		sum := sha256.Sum256([]byte(para))
		chunks = append(chunks, graph.Chunk{
			DocumentID: doc.ID,
			NodeID:     node.ID,
			Order:      i + 1,
			ChunkType:  "paragraph",
			Checksum:   hex.EncodeToString(sum[:]),
		})
	}
	if err := e.store.ReplaceChunks(doc.ID, chunks); err != nil {
		return nil, err
	}
	return result, nil
}

func chunkTitle(title string, i, total int) string {
	return fmt.Sprintf("%s (%d/%d)", title, i+1, total)
}

// ListDocuments pages through documents, newest update first.
func (e *Engine) ListDocuments(p graph.Pagination) ([]*graph.Document, error) {
	return e.store.ListDocuments(p)
}

// DeleteDocument removes a document and tombstones its chunk nodes.
func (e *Engine) DeleteDocument(id string) error {
	ids, err := e.store.ChunkNodeIDs(id)
	if err != nil {
		return err
	}
	for _, nodeID := range ids {
		if err := e.DeleteNode(nodeID); err != nil && !errors.Is(err, graph.ErrNodeNotFound) {
			return err
		}
	}
	return e.store.DeleteDocument(id)
}

// GetDocument returns a document with its chunk nodes in order.
func (e *Engine) GetDocument(id string) (*graph.Document, []*graph.Node, error) {
	doc, err := e.store.Document(id)
	if err != nil {
		return nil, nil, err
	}
	ids, err := e.store.ChunkNodeIDs(id)
	if err != nil {
		return nil, nil, err
	}
	nodes, err := e.store.NodesByIDs(ids)
	if err != nil {
		return nil, nil, err
	}
	return doc, nodes, nil
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	var out []string
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func splitParagraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(body, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		words := strings.Fields(p)
		if len(words) <= chunkWordBudget {
			out = append(out, p)
			continue
		}
		for start := 0; start < len(words); start += chunkWordBudget {
			end := start + chunkWordBudget
			if end > len(words) {
				end = len(words)
			}
			out = append(out, strings.Join(words[start:end], " "))
		}
	}
	return out
}
