package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCart_SetQuantityKeepsInsertionOrder(t *testing.T) {
	c := New("buyer-1")
	require.NoError(t, c.SetQuantity("3", 1))
	require.NoError(t, c.SetQuantity("1", 2))
	require.NoError(t, c.SetQuantity("3", 5))

	assert.Equal(t, []Line{{ProductID: "3", Quantity: 5}, {ProductID: "1", Quantity: 2}}, c.Lines)
}

func TestCart_SetQuantityRejectsNonPositive(t *testing.T) {
	c := New("buyer-1")
	assert.ErrorIs(t, c.SetQuantity("1", 0), ErrInvalidQuantity)
	assert.ErrorIs(t, c.SetQuantity("1", -2), ErrInvalidQuantity)
	assert.True(t, c.IsEmpty())
}

func TestCart_Remove(t *testing.T) {
	c := New("buyer-1")
	require.NoError(t, c.SetQuantity("1", 1))
	require.NoError(t, c.SetQuantity("2", 1))

	assert.True(t, c.Remove("1"))
	assert.False(t, c.Remove("1"))
	assert.Equal(t, []Line{{ProductID: "2", Quantity: 1}}, c.Lines)
}

func TestCart_CloneIsIndependent(t *testing.T) {
	c := New("buyer-1")
	require.NoError(t, c.SetQuantity("1", 1))

	clone := c.Clone()
	require.NoError(t, clone.SetQuantity("1", 9))
	assert.Equal(t, 1, c.Lines[0].Quantity)
}

func TestCart_RemoveLinesKeepsLaterEdits(t *testing.T) {
	c := New("buyer-1")
	require.NoError(t, c.SetQuantity("1", 2))
	require.NoError(t, c.SetQuantity("2", 1))
	require.NoError(t, c.SetQuantity("3", 4))

	// "2" was bumped to 5 after the snapshot, "4" was never in it
	snapshot := []Line{{ProductID: "1", Quantity: 2}, {ProductID: "2", Quantity: 1}, {ProductID: "4", Quantity: 1}}
	require.NoError(t, c.SetQuantity("2", 5))

	assert.Equal(t, 1, c.RemoveLines(snapshot))
	assert.Equal(t, []Line{{ProductID: "2", Quantity: 5}, {ProductID: "3", Quantity: 4}}, c.Lines)
	assert.Zero(t, c.RemoveLines(nil))
}
