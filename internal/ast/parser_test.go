package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexerTokenTypes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []TokenType
	}{
		{"simple equality", "status = 'open'", []TokenType{TokenIdent, TokenEquals, TokenString, TokenEOF}},
		{"not equals angle", "priority <> 1", []TokenType{TokenIdent, TokenNotEquals, TokenNumber, TokenEOF}},
		{"dotted path", "licensing.territory = 'US'", []TokenType{TokenIdent, TokenDot, TokenIdent, TokenEquals, TokenString, TokenEOF}},
		{"order by", "ORDER BY year ASC", []TokenType{TokenOrder, TokenBy, TokenIdent, TokenAsc, TokenEOF}},
		{"limit", "LIMIT 5", []TokenType{TokenLimit, TokenNumber, TokenEOF}},
		{"is null", "name IS NOT NULL", []TokenType{TokenIdent, TokenIs, TokenNot, TokenNull, TokenEOF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLexer(tt.input)
			var got []TokenType
			for {
				tok, err := l.NextToken()
				require.NoError(t, err)
				got = append(got, tok.Type)
				if tok.Type == TokenEOF {
					break
				}
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParsePredicateBooleanPrecedence(t *testing.T) {
	n, err := ParsePredicate("a = 1 OR b = 2 AND c = 3")
	require.NoError(t, err)
	or, ok := n.(*Or)
	require.True(t, ok, "AND must bind tighter than OR")
	_, ok = or.Right.(*And)
	assert.True(t, ok)
}

func TestParsePredicateNotRightAssociative(t *testing.T) {
	n, err := ParsePredicate("NOT NOT a = 1")
	require.NoError(t, err)
	outer, ok := n.(*Not)
	require.True(t, ok)
	_, ok = outer.Operand.(*Not)
	assert.True(t, ok)
}

func TestParsePredicateParens(t *testing.T) {
	n, err := ParsePredicate("(a = 1 OR b = 2) AND c = 3")
	require.NoError(t, err)
	and, ok := n.(*And)
	require.True(t, ok)
	_, ok = and.Left.(*Or)
	assert.True(t, ok)
}

func TestParseKeywordAsIdentifier(t *testing.T) {
	// ankql's grammar.rs pathological case: `limit` used as a field name.
	n, err := ParsePredicate("limit = 1")
	require.NoError(t, err)
	cmp, ok := n.(*Comparison)
	require.True(t, ok)
	assert.Equal(t, "limit", cmp.Left.Path.String())
}

func TestParseSelectionOrderByAndLimit(t *testing.T) {
	sel, err := ParseSelection("year >= '2020' ORDER BY year ASC LIMIT 5")
	require.NoError(t, err)
	require.Len(t, sel.OrderBy, 1)
	assert.Equal(t, "year", sel.OrderBy[0].Path.String())
	assert.Equal(t, Asc, sel.OrderBy[0].Direction)
	require.NotNil(t, sel.Limit)
	assert.Equal(t, 5, *sel.Limit)
}

func TestParseSelectionMultipleOrderBy(t *testing.T) {
	sel, err := ParseSelection("a = 1 ORDER BY x DESC, y ASC")
	require.NoError(t, err)
	require.Len(t, sel.OrderBy, 2)
	assert.Equal(t, Desc, sel.OrderBy[0].Direction)
	assert.Equal(t, Asc, sel.OrderBy[1].Direction)
}

func TestParsePathComparison(t *testing.T) {
	n, err := ParsePredicate("a.foo = b.foo")
	require.NoError(t, err)
	cmp := n.(*Comparison)
	assert.True(t, cmp.Left.IsPath())
	assert.True(t, cmp.Right.IsPath())
}

func TestParseDottedJSONPath(t *testing.T) {
	n, err := ParsePredicate("licensing.territory = 'US'")
	require.NoError(t, err)
	cmp := n.(*Comparison)
	assert.Equal(t, []string{"licensing", "territory"}, cmp.Left.Path.Steps)
}
