package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
)

func newTrackedStore() (*Store, *SelectionTracker) {
	store, _ := newTestStore()
	return store, NewSelectionTracker(store)
}

func TestSelectionTracker_DefaultOnAtInsert(t *testing.T) {
	store, tracker := newTrackedStore()

	item, _ := store.AddItem(testIdentity(), "Linen Shirt", 4500, "", 1)

	assert.True(t, tracker.IsSelected(item.LocalID))
}

func TestSelectionTracker_PrunedWithItem(t *testing.T) {
	store, tracker := newTrackedStore()
	item, _ := store.AddItem(testIdentity(), "Linen Shirt", 4500, "", 1)

	store.RemoveItem(item.LocalID)

	assert.False(t, tracker.IsSelected(item.LocalID))
	assert.Empty(t, tracker.Selected())
}

func TestSelectionTracker_Toggle(t *testing.T) {
	store, tracker := newTrackedStore()
	item, _ := store.AddItem(testIdentity(), "Linen Shirt", 4500, "", 1)

	state, ok := tracker.Toggle(item.LocalID)
	assert.True(t, ok)
	assert.False(t, state)

	state, ok = tracker.Toggle(item.LocalID)
	assert.True(t, ok)
	assert.True(t, state)
}

func TestSelectionTracker_Toggle_UnknownItem(t *testing.T) {
	_, tracker := newTrackedStore()

	_, ok := tracker.Toggle("missing")

	assert.False(t, ok)
}

func TestSelectionTracker_SetAll(t *testing.T) {
	store, tracker := newTrackedStore()
	a, _ := store.AddItem(testIdentity(), "Linen Shirt", 4500, "", 1)
	other := testIdentity()
	other.ProductID = 8
	b, _ := store.AddItem(other, "Wool Coat", 12000, "", 1)

	tracker.SetAll(false)
	assert.False(t, tracker.IsSelected(a.LocalID))
	assert.False(t, tracker.IsSelected(b.LocalID))

	tracker.SetAll(true)
	assert.Equal(t, []string{a.LocalID, b.LocalID}, tracker.Selected())
}

func TestSelectionTracker_Restore(t *testing.T) {
	store, tracker := newTrackedStore()
	a, _ := store.AddItem(testIdentity(), "Linen Shirt", 4500, "", 1)
	other := testIdentity()
	other.ProductID = 8
	b, _ := store.AddItem(other, "Wool Coat", 12000, "", 1)

	tracker.Restore(map[string]bool{
		a.LocalID: false,
		"stale":   true,
	})

	assert.False(t, tracker.IsSelected(a.LocalID))
	// Unknown snapshot entries are dropped; items missing from it default on.
	assert.True(t, tracker.IsSelected(b.LocalID))
	assert.False(t, tracker.IsSelected("stale"))
}

func TestSelectionTracker_ReplaceAllDefaultsOn(t *testing.T) {
	store, tracker := newTrackedStore()
	old, _ := store.AddItem(testIdentity(), "Linen Shirt", 4500, "", 1)
	tracker.Toggle(old.LocalID)

	store.ReplaceAll([]domain.LineItem{
		{LocalID: "r1", ProductID: 8, Title: "Wool Coat", UnitPrice: 12000, Quantity: 1, State: domain.SyncStateLinked},
	})

	require.Equal(t, []string{"r1"}, tracker.Selected())
	assert.False(t, tracker.IsSelected(old.LocalID))
}
