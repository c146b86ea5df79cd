// Package query implements the hybrid search language: boolean tag
// filters combined with quoted similarity phrases, parsed by a small
// recursive-descent parser into an AST that the evaluator walks per
// node. Precedence is NOT over AND over OR; adjacency means AND.
package query

// Expr is a parsed query expression node.
type Expr interface {
	// Pos is the byte offset of the expression in the source query,
	// carried for error reporting.
	Pos() int
}

// TagExpr matches nodes carrying the named tag.
type TagExpr struct {
	Name string
	pos  int
}

func (e *TagExpr) Pos() int { return e.pos }

// SimilarityExpr ranks nodes by semantic closeness to Text. It never
// filters: a similarity term is satisfied by every node and contributes
// to ordering instead.
type SimilarityExpr struct {
	Text string
	// Quoted records whether the term came from a quoted phrase or a
	// bare word.
	Quoted bool
	pos    int
}

func (e *SimilarityExpr) Pos() int { return e.pos }

// NotExpr inverts its operand. Parsing guarantees the operand subtree
// contains no similarity terms.
type NotExpr struct {
	Expr Expr
	pos  int
}

func (e *NotExpr) Pos() int { return e.pos }

// AndExpr requires both operands.
type AndExpr struct {
	Left, Right Expr
}

func (e *AndExpr) Pos() int { return e.Left.Pos() }

// OrExpr requires either operand.
type OrExpr struct {
	Left, Right Expr
}

func (e *OrExpr) Pos() int { return e.Left.Pos() }

// SimilarityTexts collects the similarity terms of an expression in
// source order.
func SimilarityTexts(e Expr) []string {
	var out []string
	walk(e, func(x Expr) {
		if s, ok := x.(*SimilarityExpr); ok {
			out = append(out, s.Text)
		}
	})
	return out
}

func walk(e Expr, fn func(Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch x := e.(type) {
	case *NotExpr:
		walk(x.Expr, fn)
	case *AndExpr:
		walk(x.Left, fn)
		walk(x.Right, fn)
	case *OrExpr:
		walk(x.Left, fn)
		walk(x.Right, fn)
	}
}

func containsSimilarity(e Expr) bool {
	found := false
	walk(e, func(x Expr) {
		if _, ok := x.(*SimilarityExpr); ok {
			found = true
		}
	})
	return found
}
