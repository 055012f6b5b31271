package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankurah/ankurah/internal/value"
)

func TestTransactionEditIsIdempotentPerEntity(t *testing.T) {
	trx := NewTransaction()
	e := New(value.EntityID{1}, "widgets")

	h1, err := trx.Edit(e)
	require.NoError(t, err)
	h2, err := trx.Edit(e)
	require.NoError(t, err)
	assert.Same(t, h1, h2, "the transaction owns exactly one mutable handle per entity")
}

func TestTransactionCommitInvalidatesHandles(t *testing.T) {
	trx := NewTransaction()
	e := New(value.EntityID{1}, "widgets")
	h, err := trx.Edit(e)
	require.NoError(t, err)
	require.NoError(t, h.Set("name", value.String("sprocket")))

	results, err := trx.Commit()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Same(t, e, results[0].Entity)
	require.NotNil(t, results[0].Event)

	err = h.Set("name", value.String("other"))
	assert.ErrorIs(t, err, ErrHandleInvalid)
}

func TestTransactionRollbackInvalidatesHandles(t *testing.T) {
	trx := NewTransaction()
	e := New(value.EntityID{1}, "widgets")
	h, err := trx.Edit(e)
	require.NoError(t, err)
	trx.Rollback()

	err = h.Set("name", value.String("x"))
	assert.ErrorIs(t, err, ErrHandleInvalid)

	_, err = trx.Edit(e)
	assert.ErrorIs(t, err, ErrHandleInvalid)
}

func TestTransactionCommitSkipsEntitiesWithNoChanges(t *testing.T) {
	trx := NewTransaction()
	e := New(value.EntityID{1}, "widgets")
	_, err := trx.Edit(e)
	require.NoError(t, err)

	results, err := trx.Commit()
	require.NoError(t, err)
	assert.Empty(t, results, "an entity with no dirty backends produces no event")
}
