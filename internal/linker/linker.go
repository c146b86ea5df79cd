// Package linker generates suggested edges. After a node is captured or
// edited it is swept: a bounded candidate pool is assembled from
// tag-sharing nodes and the nearest stored vectors, each candidate is
// scored with the hybrid formula, and survivors above the threshold are
// upserted as suggested edges for human moderation. The linker never
// accepts anything on its own.
package linker

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/grovegraph/grove/internal/config"
	"github.com/grovegraph/grove/internal/graph"
	"github.com/grovegraph/grove/internal/scoring"
	"github.com/grovegraph/grove/internal/store"
)

// resweepCursorName keys the persisted resweep position.
const resweepCursorName = "resweep"

// Linker scores candidate pairs and writes suggestions.
type Linker struct {
	store *store.Store
	cfg   config.LinkingConfig

	// now is swappable for deterministic tests.
	now func() time.Time
}

// New builds a linker over the store.
func New(st *store.Store, cfg config.LinkingConfig) *Linker {
	return &Linker{store: st, cfg: cfg, now: time.Now}
}

// SweepNode scores the subject node against its candidate pool and
// upserts suggested edges for every pair at or above the threshold.
// Accepted pairs are skipped, rejected pairs stay suppressed unless
// force is set. Sweeping twice with unchanged inputs changes nothing.
func (l *Linker) SweepNode(ctx context.Context, nodeID string, force bool) ([]*graph.Edge, error) {
	subject, err := l.store.GetNode(nodeID)
	if err != nil {
		return nil, err
	}
	if subject.Deleted() {
		return nil, nil
	}

	candidates, err := l.candidatePool(subject)
	if err != nil {
		return nil, err
	}

	params := scoring.Params{
		Weights: scoring.Weights{
			Semantic: l.cfg.SemanticWeight,
			Tag:      l.cfg.TagWeight,
			Recency:  l.cfg.RecencyWeight,
		},
		RecencyHalfLife: l.cfg.RecencyHalfLife,
		Now:             l.now(),
	}

	type scored struct {
		node   *graph.Node
		result scoring.Result
	}
	var pool []scored
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := scoring.Compute(subject, cand, params)
		if res.Score < l.cfg.MinScore {
			continue
		}
		pool = append(pool, scored{node: cand, result: res})
	}

	// Deterministic ranking: score desc, candidate recency desc, id asc.
	sort.Slice(pool, func(i, j int) bool {
		if pool[i].result.Score != pool[j].result.Score {
			return pool[i].result.Score > pool[j].result.Score
		}
		if !pool[i].node.UpdatedAt.Equal(pool[j].node.UpdatedAt) {
			return pool[i].node.UpdatedAt.After(pool[j].node.UpdatedAt)
		}
		return pool[i].node.ID < pool[j].node.ID
	})

	topK := l.cfg.TopK
	if topK <= 0 {
		topK = 5
	}

	var suggested []*graph.Edge
	for _, sc := range pool {
		if len(suggested) >= topK {
			break
		}
		edge, err := l.suggestPair(subject, sc.node, sc.result, force)
		if err != nil {
			if errors.Is(err, graph.ErrPairAlreadyDecided) {
				continue
			}
			return nil, err
		}
		if edge != nil {
			suggested = append(suggested, edge)
		}
	}
	return suggested, nil
}

// candidatePool assembles the bounded pool: every live node sharing a
// tag with the subject, plus the most similar stored vectors. The pool
// never contains the subject itself.
func (l *Linker) candidatePool(subject *graph.Node) ([]*graph.Node, error) {
	seen := map[string]bool{subject.ID: true}
	var out []*graph.Node

	if len(subject.Tags) > 0 {
		tagged, err := l.store.NodesSharingTags(subject.Tags, subject.ID)
		if err != nil {
			return nil, err
		}
		for _, n := range tagged {
			if !seen[n.ID] {
				seen[n.ID] = true
				out = append(out, n)
			}
		}
	}

	if len(subject.Embedding) > 0 {
		poolSize := l.cfg.PoolSize
		if poolSize <= 0 {
			poolSize = 200
		}
		vectors, err := l.store.NodeVectors(subject.ID, poolSize)
		if err != nil {
			return nil, err
		}
		type neighbor struct {
			id  string
			cos float64
		}
		neighbors := make([]neighbor, 0, len(vectors))
		for _, nv := range vectors {
			neighbors = append(neighbors, neighbor{id: nv.ID, cos: scoring.Cosine(subject.Embedding, nv.Vector)})
		}
		sort.Slice(neighbors, func(i, j int) bool {
			if neighbors[i].cos != neighbors[j].cos {
				return neighbors[i].cos > neighbors[j].cos
			}
			return neighbors[i].id < neighbors[j].id
		})
		var missing []string
		for _, nb := range neighbors {
			if nb.cos <= 0 || seen[nb.id] {
				continue
			}
			seen[nb.id] = true
			missing = append(missing, nb.id)
		}
		if len(missing) > 0 {
			nodes, err := l.store.NodesByIDs(missing)
			if err != nil {
				return nil, err
			}
			out = append(out, nodes...)
		}
	}
	return out, nil
}

// suggestPair writes one suggestion, honouring prior moderation. A
// rejected pair is only revived when force is set; the revival itself is
// audited as a rejected -> suggested transition.
func (l *Linker) suggestPair(subject, candidate *graph.Node, res scoring.Result, force bool) (*graph.Edge, error) {
	existing, err := l.store.EdgeByPair(subject.ID, candidate.ID)
	if err != nil && !errors.Is(err, graph.ErrEdgeNotFound) {
		return nil, err
	}
	if existing != nil {
		switch existing.State {
		case graph.EdgeAccepted:
			return nil, graph.ErrPairAlreadyDecided
		case graph.EdgeRejected:
			if !force {
				return nil, graph.ErrPairAlreadyDecided
			}
			applied, err := l.store.TransitionEdge(existing.ID, graph.EdgeRejected, graph.EdgeSuggested, "linker", "forced resweep")
			if err != nil {
				return nil, err
			}
			if !applied {
				return nil, graph.ErrPairAlreadyDecided
			}
		}
	}

	return l.store.UpsertSuggestedEdge(&graph.Edge{
		SourceID:  subject.ID,
		TargetID:  candidate.ID,
		Score:     res.Score,
		Breakdown: res.Breakdown,
	})
}

// ResweepResult summarizes a full-graph resweep.
type ResweepResult struct {
	NodesSwept int
	Suggested  int
	Resumed    bool
	Completed  bool
}

// ResweepAll re-runs suggestion for every live node in stable id order.
// Progress is checkpointed per batch, so a cancelled resweep resumes
// from where it stopped instead of starting over. The cursor is cleared
// only on full completion.
func (l *Linker) ResweepAll(ctx context.Context, force bool, batchSize int) (ResweepResult, error) {
	if batchSize <= 0 {
		batchSize = 50
	}

	var result ResweepResult
	cursor, err := l.store.SweepCursor(resweepCursorName)
	if err != nil {
		return result, err
	}
	result.Resumed = cursor != ""

	for {
		ids, err := l.store.NodeIDsAfter(cursor, batchSize)
		if err != nil {
			return result, err
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			edges, err := l.SweepNode(ctx, id, force)
			if err != nil {
				if errors.Is(err, graph.ErrNodeNotFound) {
					continue
				}
				return result, err
			}
			result.NodesSwept++
			result.Suggested += len(edges)
		}
		cursor = ids[len(ids)-1]
		if err := l.store.SetSweepCursor(resweepCursorName, cursor); err != nil {
			return result, err
		}
	}

	if err := l.store.ClearSweepCursor(resweepCursorName); err != nil {
		return result, err
	}
	result.Completed = true
	return result, nil
}
