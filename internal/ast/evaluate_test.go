package ast

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankurah/ankurah/internal/value"
)

// fakeEntity is a minimal Filterable used to test evaluation without pulling
// in the entity package (avoids an import cycle in tests).
type fakeEntity struct {
	collection string
	fields     map[string]value.Value
	json       map[string]any
}

func (f *fakeEntity) Collection() string { return f.collection }

func (f *fakeEntity) PathValue(steps []string) (value.Value, bool) {
	if len(steps) == 1 {
		v, ok := f.fields[steps[0]]
		return v, ok
	}
	// compound path: JSON sub-field traversal (S6).
	cur, ok := f.json[steps[0]]
	if !ok {
		return value.Value{}, false
	}
	for _, step := range steps[1:] {
		m, ok := cur.(map[string]any)
		if !ok {
			return value.Value{}, false
		}
		cur, ok = m[step]
		if !ok {
			return value.Value{}, false
		}
	}
	switch v := cur.(type) {
	case string:
		return value.String(v), true
	case float64:
		return value.F64(v), true
	default:
		return value.Value{}, false
	}
}

// S6 — JSON dotted path.
func TestEvaluateJSONDottedPath(t *testing.T) {
	e := &fakeEntity{
		json: map[string]any{
			"licensing": map[string]any{"territory": "US", "plays": 1000.0},
		},
	}

	n, err := ParsePredicate("licensing.territory = 'US'")
	require.NoError(t, err)
	ok, err := Evaluate(n, e)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = ParsePredicate("licensing.plays > 500")
	require.NoError(t, err)
	ok, err = Evaluate(n, e)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = ParsePredicate("licensing.territory = 'UK'")
	require.NoError(t, err)
	ok, err = Evaluate(n, e)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluateIsNull(t *testing.T) {
	e := &fakeEntity{fields: map[string]value.Value{"name": value.String("x")}}
	n, err := ParsePredicate("missing IS NULL")
	require.NoError(t, err)
	ok, err := Evaluate(n, e)
	require.NoError(t, err)
	assert.True(t, ok)

	n, err = ParsePredicate("name IS NOT NULL")
	require.NoError(t, err)
	ok, err = Evaluate(n, e)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestResolverCastsLiteralToEntityID(t *testing.T) {
	id := value.EntityID{1, 2, 3}
	idStr := value.EntityIDValue(id).String()

	sel, err := ParseSelection("id = '" + idStr + "'")
	require.NoError(t, err)

	r := &Resolver{}
	require.NoError(t, r.ResolveSelection(&sel))

	cmp := sel.Predicate.(*Comparison)
	require.NotNil(t, cmp.Right.Literal)
	assert.Equal(t, value.TypeEntityID, cmp.Right.Literal.Val.Type())
}

func TestResolverLeavesUnresolvableLiteralUnchanged(t *testing.T) {
	sel, err := ParseSelection("name = 'not-a-number'")
	require.NoError(t, err)
	r := &Resolver{}
	require.NoError(t, r.ResolveSelection(&sel))
	cmp := sel.Predicate.(*Comparison)
	assert.Equal(t, value.TypeString, cmp.Right.Literal.Val.Type())
}

func TestFieldsReferenced(t *testing.T) {
	n, err := ParsePredicate("age >= 25 AND (age <= 90 OR name = 'x')")
	require.NoError(t, err)
	fields := FieldsReferenced(n)
	assert.ElementsMatch(t, []string{"age", "name"}, fields)
}
