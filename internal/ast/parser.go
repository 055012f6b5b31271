package ast

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ankurah/ankurah/internal/value"
)

// Parser is a recursive-descent parser over the predicate/selection grammar:
// boolean AND/OR/NOT over comparisons and IS [NOT] NULL, parenthesized
// grouping, dotted paths, and an optional ORDER BY / LIMIT tail. Keywords
// (ORDER, LIMIT, ...) are only reserved in positions that require them;
// elsewhere they parse as identifiers, matching
// _examples/original_source/ankql/src/grammar.rs's `limit = 1` case.
type Parser struct {
	lexer   *Lexer
	current Token
	peeked  *Token
}

func NewParser(input string) *Parser { return &Parser{lexer: NewLexer(input)} }

func ParseSelection(input string) (Selection, error) {
	p := NewParser(input)
	return p.ParseSelection()
}

func ParsePredicate(input string) (Node, error) {
	p := NewParser(input)
	if err := p.advance(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.current.Type != TokenEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.current.Value, p.current.Pos)
	}
	return node, nil
}

func (p *Parser) ParseSelection() (Selection, error) {
	if err := p.advance(); err != nil {
		return Selection{}, err
	}

	var sel Selection
	if p.current.Type == TokenOrder && p.peekIsBy() {
		sel.Predicate = &True{}
	} else if p.current.Type == TokenEOF {
		return Selection{}, fmt.Errorf("empty selection")
	} else {
		node, err := p.parseOr()
		if err != nil {
			return Selection{}, err
		}
		sel.Predicate = node
	}

	if p.current.Type == TokenOrder {
		if err := p.advance(); err != nil {
			return Selection{}, err
		}
		if p.current.Type != TokenBy {
			return Selection{}, fmt.Errorf("expected BY after ORDER at position %d", p.current.Pos)
		}
		if err := p.advance(); err != nil {
			return Selection{}, err
		}
		for {
			path, err := p.parsePath()
			if err != nil {
				return Selection{}, err
			}
			dir := Asc
			if p.current.Type == TokenAsc {
				if err := p.advance(); err != nil {
					return Selection{}, err
				}
			} else if p.current.Type == TokenDesc {
				dir = Desc
				if err := p.advance(); err != nil {
					return Selection{}, err
				}
			}
			sel.OrderBy = append(sel.OrderBy, OrderByItem{Path: path, Direction: dir})
			if p.current.Type == TokenComma {
				if err := p.advance(); err != nil {
					return Selection{}, err
				}
				continue
			}
			break
		}
	}

	if p.current.Type == TokenLimit {
		if err := p.advance(); err != nil {
			return Selection{}, err
		}
		if p.current.Type != TokenNumber {
			return Selection{}, fmt.Errorf("expected number after LIMIT at position %d", p.current.Pos)
		}
		n, err := strconv.Atoi(p.current.Value)
		if err != nil {
			return Selection{}, fmt.Errorf("invalid LIMIT value %q: %w", p.current.Value, err)
		}
		sel.Limit = &n
		if err := p.advance(); err != nil {
			return Selection{}, err
		}
	}

	if p.current.Type != TokenEOF {
		return Selection{}, fmt.Errorf("unexpected token %q at position %d (expected end of selection)", p.current.Value, p.current.Pos)
	}

	return sel, nil
}

func (p *Parser) peekIsBy() bool {
	tok, err := p.peek()
	return err == nil && tok.Type == TokenBy
}

func (p *Parser) advance() error {
	if p.peeked != nil {
		p.current = *p.peeked
		p.peeked = nil
		return nil
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		return err
	}
	p.current = tok
	return nil
}

func (p *Parser) peek() (Token, error) {
	if p.peeked != nil {
		return *p.peeked, nil
	}
	tok, err := p.lexer.NextToken()
	if err != nil {
		return Token{}, err
	}
	p.peeked = &tok
	return tok, nil
}

func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.current.Type == TokenAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.current.Type == TokenNot {
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Node, error) {
	if p.current.Type == TokenLParen {
		if err := p.advance(); err != nil {
			return nil, err
		}
		node, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.current.Type != TokenRParen {
			return nil, fmt.Errorf("expected ')' at position %d, got %s", p.current.Pos, p.current.Type)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return node, nil
	}
	if p.current.Type == TokenTrue {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &True{}, nil
	}
	if p.current.Type == TokenFalse {
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &False{}, nil
	}
	return p.parseComparisonOrIsNull()
}

// isKeywordReusableAsIdent reports whether tok may be treated as a bare
// identifier when a comparison's LHS is expected, matching ankql's allowance
// for `limit = 1` and similar.
func isKeywordReusableAsIdent(t TokenType) bool {
	switch t {
	case TokenOrder, TokenBy, TokenAsc, TokenDesc, TokenLimit, TokenIn, TokenIs, TokenNull:
		return true
	default:
		return false
	}
}

func (p *Parser) parsePath() (PathExpr, error) {
	if p.current.Type != TokenIdent && !isKeywordReusableAsIdent(p.current.Type) {
		return PathExpr{}, fmt.Errorf("expected field name at position %d, got %s", p.current.Pos, p.current.Type)
	}
	steps := []string{strings.ToLower(p.current.Value)}
	if err := p.advance(); err != nil {
		return PathExpr{}, err
	}
	for p.current.Type == TokenDot {
		if err := p.advance(); err != nil {
			return PathExpr{}, err
		}
		if p.current.Type != TokenIdent && !isKeywordReusableAsIdent(p.current.Type) {
			return PathExpr{}, fmt.Errorf("expected path segment at position %d", p.current.Pos)
		}
		steps = append(steps, strings.ToLower(p.current.Value))
		if err := p.advance(); err != nil {
			return PathExpr{}, err
		}
	}
	return PathExpr{Steps: steps}, nil
}

func (p *Parser) parseComparisonOrIsNull() (Node, error) {
	path, err := p.parsePath()
	if err != nil {
		return nil, err
	}

	if p.current.Type == TokenIs {
		if err := p.advance(); err != nil {
			return nil, err
		}
		negate := false
		if p.current.Type == TokenNot {
			negate = true
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.current.Type != TokenNull {
			return nil, fmt.Errorf("expected NULL at position %d, got %s", p.current.Pos, p.current.Type)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &IsNull{Path: path, Negate: negate}, nil
	}

	var op Op
	switch p.current.Type {
	case TokenEquals:
		op = OpEq
	case TokenNotEquals:
		op = OpNe
	case TokenLess:
		op = OpLt
	case TokenLessEq:
		op = OpLe
	case TokenGreater:
		op = OpGt
	case TokenGreaterEq:
		op = OpGe
	case TokenIn:
		op = OpIn
	default:
		return nil, fmt.Errorf("expected comparison operator at position %d, got %s", p.current.Pos, p.current.Type)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}

	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}

	return &Comparison{Left: PathOperand(path), Op: op, Right: right}, nil
}

func (p *Parser) parseOperand() (Operand, error) {
	switch p.current.Type {
	case TokenString:
		v := LiteralOperand(Lit(value.String(p.current.Value)))
		return v, p.advance()
	case TokenNumber:
		lit, err := numberLiteral(p.current.Value)
		if err != nil {
			return Operand{}, err
		}
		return LiteralOperand(lit), p.advance()
	case TokenTrue:
		return LiteralOperand(Lit(value.Bool(true))), p.advance()
	case TokenFalse:
		return LiteralOperand(Lit(value.Bool(false))), p.advance()
	case TokenIdent:
		// A bare identifier on the RHS is a path reference (a.foo = b.foo),
		// per grammar.rs; single-quoted/double-quoted forms are literals.
		path, err := p.parsePath()
		if err != nil {
			return Operand{}, err
		}
		return PathOperand(path), nil
	default:
		return Operand{}, fmt.Errorf("expected value at position %d, got %s", p.current.Pos, p.current.Type)
	}
}

func numberLiteral(s string) (Literal, error) {
	if strings.ContainsAny(s, ".eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Literal{}, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return Lit(value.F64(f)), nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Literal{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return Lit(value.I64(n)), nil
}
