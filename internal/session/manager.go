package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dhanbg/traditionalalley-sub002/internal/bag"
	"github.com/dhanbg/traditionalalley-sub002/internal/cart"
	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/event"
	"github.com/dhanbg/traditionalalley-sub002/internal/identity"
	"github.com/dhanbg/traditionalalley-sub002/internal/syncer"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

// RemoteStore is the full line-item store surface a session needs: the sync
// worker's mutation calls plus the bag provisioning calls.
type RemoteStore interface {
	syncer.RemoteStore
	bag.Store
}

// SnapshotStore persists cart snapshots across sessions.
type SnapshotStore interface {
	Load(ctx context.Context, userID string) (*domain.CartSnapshot, error)
	Save(ctx context.Context, snap *domain.CartSnapshot) error
	Delete(ctx context.Context, userID string) error
}

// Engine bundles the per-user components: the optimistic cart store, its
// selection tracker, the identity resolver with its session cache, and the
// sync worker with its per-item queues.
type Engine struct {
	UserID     string
	Store      *cart.Store
	Tracker    *cart.SelectionTracker
	Resolver   *identity.Resolver
	Worker     *syncer.Worker
	Reconciler *syncer.Reconciler
}

// Snapshot captures the engine's current state for persistence.
func (e *Engine) Snapshot() *domain.CartSnapshot {
	return &domain.CartSnapshot{
		UserID:   e.UserID,
		Items:    e.Store.Items(),
		Selected: e.Tracker.SelectedMap(),
	}
}

// Manager owns one engine per active user. Engines are created lazily on
// first request and restored from their snapshot when one exists.
type Manager struct {
	remote    RemoteStore
	catalog   identity.Catalog
	bags      *bag.Provisioner
	snapshots SnapshotStore
	events    *event.Producer
	opTimeout time.Duration
	logger    *slog.Logger

	mu      sync.Mutex
	engines map[string]*Engine
	boots   map[string]*sync.Mutex
}

// NewManager creates a session manager. The bag provisioner is shared across
// sessions so its per-user cache spans engine rebuilds.
func NewManager(remoteStore RemoteStore, cat identity.Catalog, snapshots SnapshotStore, events *event.Producer, opTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		remote:    remoteStore,
		catalog:   cat,
		bags:      bag.NewProvisioner(remoteStore, logger),
		snapshots: snapshots,
		events:    events,
		opTimeout: opTimeout,
		logger:    logger,
		engines:   make(map[string]*Engine),
		boots:     make(map[string]*sync.Mutex),
	}
}

// bootLock returns the per-user bootstrap mutex, creating it on first use.
// Building and restoring an engine is serialized per user, not manager-wide,
// so one user's slow snapshot load never blocks another user's lookup.
func (m *Manager) bootLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.boots[userID]
	if !ok {
		l = &sync.Mutex{}
		m.boots[userID] = l
	}
	return l
}

// Get returns the engine for a user, building and restoring it on first use.
func (m *Manager) Get(ctx context.Context, userID string) (*Engine, error) {
	if userID == "" {
		return nil, apperrors.InvalidInput("user id is required")
	}

	m.mu.Lock()
	if e, ok := m.engines[userID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	lock := m.bootLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check after acquiring the bootstrap lock; a concurrent caller may
	// have built the engine while we waited.
	m.mu.Lock()
	if e, ok := m.engines[userID]; ok {
		m.mu.Unlock()
		return e, nil
	}
	m.mu.Unlock()

	e := m.build(userID)
	if err := m.restore(ctx, e); err != nil {
		return nil, err
	}

	// Register persistence after restore so loading does not immediately
	// write back what was just read.
	m.watch(e)

	m.mu.Lock()
	m.engines[userID] = e
	m.mu.Unlock()
	return e, nil
}

func (m *Manager) build(userID string) *Engine {
	resolver := identity.NewResolver(m.catalog, m.logger)
	worker := syncer.NewWorker(userID, m.remote, m.bags, resolver, m.events, m.opTimeout, m.logger)
	store := cart.NewStore(worker, m.logger)
	worker.Bind(store)
	tracker := cart.NewSelectionTracker(store)
	reconciler := syncer.NewReconciler(m.remote, m.bags, resolver, store, m.events, m.logger)

	return &Engine{
		UserID:     userID,
		Store:      store,
		Tracker:    tracker,
		Resolver:   resolver,
		Worker:     worker,
		Reconciler: reconciler,
	}
}

func (m *Manager) restore(ctx context.Context, e *Engine) error {
	snap, err := m.snapshots.Load(ctx, e.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	items := make([]domain.LineItem, len(snap.Items))
	for i, it := range snap.Items {
		// A snapshot taken mid-sync may hold a syncing state; the in-flight
		// call belonged to a dead process, so settle on what the item knows.
		if it.Linked() {
			it.State = domain.SyncStateLinked
		} else {
			it.State = domain.SyncStateLocalOnly
		}
		items[i] = it
	}

	e.Store.ReplaceAll(items)
	e.Tracker.Restore(snap.Selected)

	m.logger.InfoContext(ctx, "session restored from snapshot",
		slog.String("user_id", e.UserID),
		slog.Int("items", len(items)),
	)
	return nil
}

// watch hooks snapshot persistence and event publishing onto the store's
// mutation callbacks.
func (m *Manager) watch(e *Engine) {
	e.Store.Watch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := m.snapshots.Save(ctx, e.Snapshot()); err != nil {
			m.logger.WarnContext(ctx, "snapshot save failed",
				slog.String("user_id", e.UserID),
				slog.String("error", err.Error()),
			)
		}

		m.events.CartUpdated(ctx, cartUpdatedData(e))
	})
}

func cartUpdatedData(e *Engine) event.CartUpdatedData {
	items := e.Store.Items()
	totals := e.Store.Totals(e.Tracker)

	data := event.CartUpdatedData{
		UserID:        e.UserID,
		Items:         make([]event.CartItemData, len(items)),
		ItemCount:     len(items),
		CartTotal:     totals.Cart,
		SelectedTotal: totals.Selected,
	}
	for i, it := range items {
		data.Items[i] = event.CartItemData{
			LocalID:   it.LocalID,
			ProductID: it.ProductID,
			VariantID: it.VariantID,
			Size:      it.Size,
			Title:     it.Title,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
			State:     string(it.State),
			Selected:  e.Tracker.IsSelected(it.LocalID),
		}
	}
	return data
}

// Teardown discards a user's engine and snapshot, as on logout or account
// switch. The remote bag is untouched; it belongs to the user, not the
// session. Pending sync operations are allowed to finish.
func (m *Manager) Teardown(ctx context.Context, userID string) error {
	m.mu.Lock()
	e, ok := m.engines[userID]
	delete(m.engines, userID)
	m.mu.Unlock()

	if ok {
		e.Worker.Wait()
	}

	if err := m.snapshots.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}

	m.logger.InfoContext(ctx, "session torn down", slog.String("user_id", userID))
	return nil
}

// Drain waits for every engine's pending sync operations, for graceful
// shutdown.
func (m *Manager) Drain() {
	m.mu.Lock()
	engines := make([]*Engine, 0, len(m.engines))
	for _, e := range m.engines {
		engines = append(engines, e)
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.Worker.Wait()
	}
}
