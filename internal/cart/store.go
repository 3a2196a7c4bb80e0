package cart

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
)

// Emitter receives sync work for items the store mutated. The store calls it
// after releasing its lock, so implementations may block briefly but should
// only enqueue; the actual remote calls happen on worker goroutines.
type Emitter interface {
	EnqueueCreate(item domain.LineItem)
	EnqueueUpdate(item domain.LineItem)
	EnqueueDelete(item domain.LineItem)
}

// Observer is notified of item membership changes. The selection tracker uses
// this to keep its selected set aligned with the cart contents.
type Observer interface {
	ItemAdded(localID string)
	ItemRemoved(localID string)
}

// SelectionView answers whether an item participates in the selected total.
type SelectionView interface {
	IsSelected(localID string) bool
}

// Watcher is invoked after every committed mutation, outside the store lock.
// Snapshot persistence hangs off this.
type Watcher func()

// Store holds the session's optimistic cart. Every mutation applies locally
// first and returns immediately; remote propagation is handed to the emitter.
// Local operations cannot fail.
type Store struct {
	mu        sync.RWMutex
	items     []*domain.LineItem
	index     map[string]int
	emitter   Emitter
	observers []Observer
	watchers  []Watcher
	logger    *slog.Logger
}

// NewStore creates an empty cart store.
func NewStore(emitter Emitter, logger *slog.Logger) *Store {
	return &Store{
		index:   make(map[string]int),
		emitter: emitter,
		logger:  logger,
	}
}

// AddObserver registers a membership observer. Not safe to call once the
// store is in use.
func (s *Store) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Watch registers a post-mutation callback. Not safe to call once the store
// is in use.
func (s *Store) Watch(w Watcher) {
	s.watchers = append(s.watchers, w)
}

func (s *Store) notifyWatchers() {
	for _, w := range s.watchers {
		w()
	}
}

// reindex rebuilds the localID lookup map. Callers must hold the write lock.
func (s *Store) reindex() {
	for k := range s.index {
		delete(s.index, k)
	}
	for i, it := range s.items {
		s.index[it.LocalID] = i
	}
}

// AddItem inserts a line item for the given identity. If an item with the
// same product/variant/size combination is already present the call is a
// no-op and returns the existing item; quantities are never merged.
func (s *Store) AddItem(identity domain.Identity, title string, unitPrice int64, imageRef string, quantity int) (domain.LineItem, bool) {
	if quantity < 1 {
		quantity = 1
	}

	s.mu.Lock()

	for _, existing := range s.items {
		if existing.Identity().StructurallyEqual(identity) {
			item := *existing
			s.mu.Unlock()
			s.logger.Debug("add skipped, item already in cart",
				slog.String("local_id", item.LocalID),
				slog.String("structural_key", identity.StructuralKey()),
			)
			return item, false
		}
	}

	item := &domain.LineItem{
		LocalID:           uuid.New().String(),
		ProductID:         identity.ProductID,
		ProductDocumentID: identity.ProductDocumentID,
		VariantID:         identity.VariantID,
		Size:              identity.Size,
		Title:             title,
		UnitPrice:         unitPrice,
		Quantity:          quantity,
		ImageRef:          imageRef,
		State:             domain.SyncStateLocalOnly,
	}
	s.items = append(s.items, item)
	s.index[item.LocalID] = len(s.items) - 1

	for _, o := range s.observers {
		o.ItemAdded(item.LocalID)
	}

	copied := *item
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EnqueueCreate(copied)
	}
	s.notifyWatchers()
	return copied, true
}

// UpdateQuantity changes an item's quantity, either to an absolute value or
// by a signed increment. The result is clamped to a minimum of 1; lowering
// the count to zero is expressed through RemoveItem, never through quantity.
func (s *Store) UpdateQuantity(localID string, quantity int, mode domain.QuantityMode) (domain.LineItem, bool) {
	s.mu.Lock()

	idx, ok := s.index[localID]
	if !ok {
		s.mu.Unlock()
		return domain.LineItem{}, false
	}

	item := s.items[idx]
	next := quantity
	if mode == domain.QuantityIncrement {
		next = item.Quantity + quantity
	}
	if next < 1 {
		next = 1
	}

	if next == item.Quantity {
		copied := *item
		s.mu.Unlock()
		return copied, true
	}

	item.Quantity = next
	copied := *item
	s.mu.Unlock()

	if s.emitter != nil {
		s.emitter.EnqueueUpdate(copied)
	}
	s.notifyWatchers()
	return copied, true
}

// HintedEmitter is implemented by emitters that accept a caller-supplied
// remote document id for a delete, tried ahead of the item's stored
// identifiers.
type HintedEmitter interface {
	EnqueueDeleteWithHint(item domain.LineItem, documentID string)
}

// RemoveItem deletes the item locally, unconditionally. The removed item,
// with whatever remote identifiers it had, is handed to the emitter so the
// delete fallback chain can run against the remote store.
func (s *Store) RemoveItem(localID string) (domain.LineItem, bool) {
	return s.removeItem(localID, "")
}

// RemoveItemWithHint is RemoveItem with a caller-supplied remote document id
// forwarded to the delete chain.
func (s *Store) RemoveItemWithHint(localID, documentID string) (domain.LineItem, bool) {
	return s.removeItem(localID, documentID)
}

func (s *Store) removeItem(localID, documentID string) (domain.LineItem, bool) {
	s.mu.Lock()

	idx, ok := s.index[localID]
	if !ok {
		s.mu.Unlock()
		return domain.LineItem{}, false
	}

	item := *s.items[idx]
	item.State = domain.SyncStateRemoved
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.reindex()

	for _, o := range s.observers {
		o.ItemRemoved(localID)
	}

	s.mu.Unlock()

	if s.emitter != nil {
		if hinted, ok := s.emitter.(HintedEmitter); ok && documentID != "" {
			hinted.EnqueueDeleteWithHint(item, documentID)
		} else {
			s.emitter.EnqueueDelete(item)
		}
	}
	s.notifyWatchers()
	return item, true
}

// Get returns a copy of the item with the given local id.
func (s *Store) Get(localID string) (domain.LineItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx, ok := s.index[localID]
	if !ok {
		return domain.LineItem{}, false
	}
	return *s.items[idx], true
}

// Items returns copies of all items in insertion order.
func (s *Store) Items() []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LineItem, len(s.items))
	for i, it := range s.items {
		out[i] = *it
	}
	return out
}

// Len returns the number of items in the cart.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Link attaches the remote identifiers returned by a successful create and
// marks the item linked. Returns false when the item was removed while the
// create was in flight.
func (s *Store) Link(localID string, remoteLineID int64, remoteLineDocumentID string) bool {
	s.mu.Lock()

	idx, ok := s.index[localID]
	if !ok {
		s.mu.Unlock()
		return false
	}

	item := s.items[idx]
	item.RemoteLineID = remoteLineID
	item.RemoteLineDocumentID = remoteLineDocumentID
	item.State = domain.SyncStateLinked
	s.mu.Unlock()

	s.notifyWatchers()
	return true
}

// SetState records a sync-state transition for the item. Returns false when
// the item is no longer present.
func (s *Store) SetState(localID string, state domain.SyncState) bool {
	s.mu.Lock()

	idx, ok := s.index[localID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.items[idx].State = state
	s.mu.Unlock()

	s.notifyWatchers()
	return true
}

// ReplaceAll swaps the entire cart contents for the given items, as a
// reconciliation against the remote store does. No sync work is emitted;
// the new contents are by definition already remote.
func (s *Store) ReplaceAll(items []domain.LineItem) {
	s.mu.Lock()

	removed := make([]string, 0, len(s.items))
	for _, it := range s.items {
		removed = append(removed, it.LocalID)
	}

	s.items = make([]*domain.LineItem, len(items))
	for i := range items {
		it := items[i]
		if it.LocalID == "" {
			it.LocalID = uuid.New().String()
		}
		s.items[i] = &it
	}
	s.reindex()

	for _, o := range s.observers {
		for _, id := range removed {
			o.ItemRemoved(id)
		}
		for _, it := range s.items {
			o.ItemAdded(it.LocalID)
		}
	}

	s.mu.Unlock()
	s.notifyWatchers()
}

// Totals computes the sum over all items and over the selected subset.
func (s *Store) Totals(sel SelectionView) domain.Totals {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t domain.Totals
	for _, it := range s.items {
		sub := it.Subtotal()
		t.Cart += sub
		if sel != nil && sel.IsSelected(it.LocalID) {
			t.Selected += sub
		}
	}
	return t
}
