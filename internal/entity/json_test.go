package entity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankurah/ankurah/internal/eventdag"
	"github.com/ankurah/ankurah/internal/value"
)

func TestJSONDocGetPath(t *testing.T) {
	j := NewJSONDoc()
	j.Set(json.RawMessage(`{"licensing":{"territory":"US","plays":1000}}`))

	v, ok := j.GetPath([]string{"licensing", "territory"})
	require.True(t, ok)
	raw, ok := v.AsJSON()
	require.True(t, ok, "GetPath results are wrapped as Json per spec.md's multi-step-path heuristic")
	assert.JSONEq(t, `"US"`, string(raw))

	_, ok = j.GetPath([]string{"licensing", "missing"})
	assert.False(t, ok)
}

func TestJSONDocWholeDocumentIsLWW(t *testing.T) {
	j := NewJSONDoc()
	idOld := eventdag.NewEvent(value.EntityID{1}, "tracks", nil, eventdag.NewClock()).ID()
	idNew := eventdag.NewEvent(value.EntityID{2}, "tracks", nil, eventdag.NewClock(idOld)).ID()

	descends := func(a, b eventdag.EventID) *bool {
		r := a == idNew && b == idOld
		return &r
	}
	depthFn := func(eventdag.EventID) int { return 0 }

	require.NoError(t, j.ApplyOperations([]byte(`{"a":1}`), ApplyContext{EventID: idOld, Descends: descends, Depth: depthFn}))
	require.NoError(t, j.ApplyOperations([]byte(`{"a":2}`), ApplyContext{EventID: idNew, Descends: descends, Depth: depthFn}))

	v, ok := j.PropertyValue("a")
	require.True(t, ok)
	raw, ok := v.AsJSON()
	require.True(t, ok)
	assert.JSONEq(t, `2`, string(raw), "descendant write must replace the whole document")
}

func TestJSONDocStateRoundTrip(t *testing.T) {
	j := NewJSONDoc()
	j.Set(json.RawMessage(`{"x":1}`))
	diff, ok := j.ToOperations()
	require.True(t, ok)
	ev := eventdag.NewEvent(value.EntityID{1}, "tracks", []eventdag.Operation{{Backend: BackendJSON, Diff: diff}}, eventdag.NewClock())
	j.Stamp(ev.ID(), 0)

	buf, err := j.ToStateBuffer()
	require.NoError(t, err)

	j2 := NewJSONDoc()
	require.NoError(t, j2.LoadStateBuffer(buf))
	v, ok := j2.PropertyValue("x")
	require.True(t, ok)
	raw, ok := v.AsJSON()
	require.True(t, ok)
	assert.JSONEq(t, `1`, string(raw))
}
