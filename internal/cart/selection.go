package cart

import "sync"

// SelectionTracker maintains the set of line items included in the checkout
// total. Items enter the set when they are added to the cart and leave it
// when they are removed; selection state never outlives its item.
type SelectionTracker struct {
	mu       sync.RWMutex
	selected map[string]bool
	store    *Store
}

// NewSelectionTracker creates a tracker bound to a store and registers it as
// a membership observer.
func NewSelectionTracker(store *Store) *SelectionTracker {
	t := &SelectionTracker{
		selected: make(map[string]bool),
		store:    store,
	}
	store.AddObserver(t)
	return t
}

// ItemAdded marks a newly inserted item as selected. New cart entries default
// to being part of the checkout total.
func (t *SelectionTracker) ItemAdded(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected[localID] = true
}

// ItemRemoved prunes the selection entry for a removed item.
func (t *SelectionTracker) ItemRemoved(localID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.selected, localID)
}

// Toggle flips the selection state of an item. Returns the new state and
// whether the item was known.
func (t *SelectionTracker) Toggle(localID string) (bool, bool) {
	if _, ok := t.store.Get(localID); !ok {
		return false, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.selected[localID] = !t.selected[localID]
	return t.selected[localID], true
}

// SetAll sets every current cart item to the given selection state.
func (t *SelectionTracker) SetAll(selected bool) {
	items := t.store.Items()

	t.mu.Lock()
	defer t.mu.Unlock()
	for _, it := range items {
		t.selected[it.LocalID] = selected
	}
}

// IsSelected reports whether the item participates in the selected total.
func (t *SelectionTracker) IsSelected(localID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selected[localID]
}

// Selected returns the local ids of all currently selected items, in cart
// order.
func (t *SelectionTracker) Selected() []string {
	items := t.store.Items()

	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(items))
	for _, it := range items {
		if t.selected[it.LocalID] {
			out = append(out, it.LocalID)
		}
	}
	return out
}

// SelectedMap returns a copy of the selection state keyed by local id.
func (t *SelectionTracker) SelectedMap() map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]bool, len(t.selected))
	for k, v := range t.selected {
		out[k] = v
	}
	return out
}

// Restore replaces the selection state wholesale, used when resuming a
// session from a snapshot. Entries for unknown items are dropped.
func (t *SelectionTracker) Restore(selected map[string]bool) {
	items := t.store.Items()
	known := make(map[string]bool, len(items))
	for _, it := range items {
		known[it.LocalID] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.selected = make(map[string]bool, len(selected))
	for id, sel := range selected {
		if known[id] {
			t.selected[id] = sel
		}
	}
	// Items present in the cart but absent from the snapshot default on.
	for _, it := range items {
		if _, ok := t.selected[it.LocalID]; !ok {
			t.selected[it.LocalID] = true
		}
	}
}
