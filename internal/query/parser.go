package query

import (
	"github.com/grovegraph/grove/internal/graph"
)

// Parse compiles a query string. An empty or blank query parses to a
// nil expression, which the evaluator treats as "match everything".
func Parse(input string) (Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, nil
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &graph.QueryParseError{Pos: t.pos, Msg: "unexpected token"}
	}
	return expr, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &OrExpr{Left: left, Right: right}
	}
	return left, nil
}

// parseAnd handles both explicit AND and adjacency: `tag:ml "vectors"`
// is the same as `tag:ml AND "vectors"`.
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		explicit := t.kind == tokAnd
		if explicit {
			p.next()
			t = p.peek()
		}
		if !startsUnary(t.kind) {
			if explicit {
				return nil, &graph.QueryParseError{Pos: t.pos, Msg: "AND needs a right operand"}
			}
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &AndExpr{Left: left, Right: right}
	}
}

func startsUnary(k tokenKind) bool {
	switch k {
	case tokNot, tokMinus, tokLParen, tokTag, tokPhrase, tokWord:
		return true
	}
	return false
}

func (p *parser) parseUnary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNot:
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		// Negating a similarity term is meaningless: similarity ranks,
		// it does not filter, so there is nothing to invert.
		if containsSimilarity(inner) {
			return nil, &graph.QueryParseError{Pos: t.pos, Msg: "cannot negate a similarity term"}
		}
		return &NotExpr{Expr: inner, pos: t.pos}, nil

	case tokMinus:
		p.next()
		tag := p.peek()
		if tag.kind != tokTag {
			return nil, &graph.QueryParseError{Pos: tag.pos, Msg: "- needs a tag: term"}
		}
		p.next()
		return &NotExpr{Expr: &TagExpr{Name: tag.text, pos: tag.pos}, pos: t.pos}, nil

	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.next()
	switch t.kind {
	case tokLParen:
		expr, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, &graph.QueryParseError{Pos: closing.pos, Msg: "missing closing parenthesis"}
		}
		return expr, nil

	case tokTag:
		return &TagExpr{Name: t.text, pos: t.pos}, nil

	case tokPhrase:
		return &SimilarityExpr{Text: t.text, Quoted: true, pos: t.pos}, nil

	case tokWord:
		return &SimilarityExpr{Text: t.text, pos: t.pos}, nil

	case tokEOF:
		return nil, &graph.QueryParseError{Pos: t.pos, Msg: "unexpected end of query"}

	default:
		return nil, &graph.QueryParseError{Pos: t.pos, Msg: "unexpected token"}
	}
}
