package query

import (
	"strings"
	"unicode"

	"github.com/grovegraph/grove/internal/graph"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokLParen
	tokRParen
	tokAnd
	tokOr
	tokNot
	tokMinus
	tokTag    // tag:NAME
	tokPhrase // "quoted text"
	tokWord   // bare word
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits the query into tokens. Keywords are recognized
// case-insensitively; anything else not punctuation is a bare word.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++

		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++

		case c == '-':
			toks = append(toks, token{kind: tokMinus, pos: i})
			i++

		case c == '"':
			end := strings.IndexByte(input[i+1:], '"')
			if end < 0 {
				return nil, &graph.QueryParseError{Pos: i, Msg: "unterminated quoted phrase"}
			}
			phrase := input[i+1 : i+1+end]
			if strings.TrimSpace(phrase) == "" {
				return nil, &graph.QueryParseError{Pos: i, Msg: "empty quoted phrase"}
			}
			toks = append(toks, token{kind: tokPhrase, text: phrase, pos: i})
			i += end + 2

		default:
			start := i
			for i < len(input) && !isBoundary(rune(input[i])) {
				i++
			}
			word := input[start:i]
			switch strings.ToUpper(word) {
			case "AND":
				toks = append(toks, token{kind: tokAnd, pos: start})
			case "OR":
				toks = append(toks, token{kind: tokOr, pos: start})
			case "NOT":
				toks = append(toks, token{kind: tokNot, pos: start})
			default:
				if name, ok := strings.CutPrefix(word, "tag:"); ok {
					if name == "" {
						return nil, &graph.QueryParseError{Pos: start, Msg: "tag: needs a name"}
					}
					toks = append(toks, token{kind: tokTag, text: strings.ToLower(name), pos: start})
				} else {
					toks = append(toks, token{kind: tokWord, text: word, pos: start})
				}
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(input)})
	return toks, nil
}

func isBoundary(c rune) bool {
	return unicode.IsSpace(c) || c == '(' || c == ')' || c == '"'
}
