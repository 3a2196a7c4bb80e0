package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanbg/traditionalalley-sub002/internal/catalog"
	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

// --- Fake Remote Store ---

type fakeRemote struct {
	mu     sync.Mutex
	nextID int64
	items  map[string]*remote.LineItemRecord
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{nextID: 100, items: make(map[string]*remote.LineItemRecord)}
}

func (f *fakeRemote) CreateLineItem(_ context.Context, req remote.CreateLineItemRequest) (*remote.LineItemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	rec := &remote.LineItemRecord{
		ID:         f.nextID,
		DocumentID: "line-doc-" + req.ProductDocumentID,
		Quantity:   req.Quantity,
		VariantID:  req.VariantID,
		Size:       req.Size,
		Product:    remote.ProductRecordRef{DocumentID: req.ProductDocumentID},
	}
	f.items[rec.DocumentID] = rec
	return rec, nil
}

func (f *fakeRemote) UpdateLineItemQuantity(_ context.Context, documentID string, quantity int) (*remote.LineItemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.items[documentID]
	if !ok {
		return nil, apperrors.NotFound("line item", documentID)
	}
	rec.Quantity = quantity
	copied := *rec
	return &copied, nil
}

func (f *fakeRemote) DeleteLineItemByDocumentID(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.items, documentID)
	return nil
}

func (f *fakeRemote) DeleteLineItemByID(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for doc, rec := range f.items {
		if rec.ID == id {
			delete(f.items, doc)
			return nil
		}
	}
	return apperrors.NotFound("line item", "by numeric id")
}

func (f *fakeRemote) ListLineItems(context.Context, string) ([]remote.LineItemRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]remote.LineItemRecord, 0, len(f.items))
	for _, rec := range f.items {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeRemote) FindBagByUser(context.Context, string) (*remote.BagRecord, error) {
	return &remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil
}

func (f *fakeRemote) FindProfileByExternalID(context.Context, string) (*remote.ProfileRecord, error) {
	return nil, nil
}

func (f *fakeRemote) CreateProfile(_ context.Context, externalID string) (*remote.ProfileRecord, error) {
	return &remote.ProfileRecord{ID: 1, DocumentID: "prof-doc-1", ExternalID: externalID}, nil
}

func (f *fakeRemote) CreateBag(context.Context, string) (*remote.BagRecord, error) {
	return &remote.BagRecord{ID: 1, DocumentID: "bag-doc-1"}, nil
}

// --- Fake Snapshot Store ---

type fakeSnapshots struct {
	mu    sync.Mutex
	snaps map[string]*domain.CartSnapshot
	saves int

	// loadHook, when set before use, runs at the start of every Load. Tests
	// use it to stall one user's restore.
	loadHook func(userID string)
}

func newFakeSnapshots() *fakeSnapshots {
	return &fakeSnapshots{snaps: make(map[string]*domain.CartSnapshot)}
}

func (f *fakeSnapshots) Load(_ context.Context, userID string) (*domain.CartSnapshot, error) {
	if f.loadHook != nil {
		f.loadHook(userID)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[userID]
	if !ok {
		return nil, apperrors.NotFound("cart snapshot", userID)
	}
	return snap, nil
}

func (f *fakeSnapshots) Save(_ context.Context, snap *domain.CartSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[snap.UserID] = snap
	f.saves++
	return nil
}

func (f *fakeSnapshots) Delete(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.snaps, userID)
	return nil
}

func (f *fakeSnapshots) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

// --- Fake Catalog ---

type fakeCatalog struct{}

func (fakeCatalog) ProductByID(_ context.Context, id int64) (*catalog.Product, error) {
	return &catalog.Product{ID: id, DocumentID: "prod-doc-7", Title: "Linen Shirt", Price: 4500}, nil
}

func (fakeCatalog) ProductByDocumentID(_ context.Context, documentID string) (*catalog.Product, error) {
	return &catalog.Product{ID: 7, DocumentID: documentID, Title: "Linen Shirt", Price: 4500}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager() (*Manager, *fakeSnapshots) {
	snaps := newFakeSnapshots()
	m := NewManager(newFakeRemote(), fakeCatalog{}, snaps, nil, 5*time.Second, testLogger())
	return m, snaps
}

func TestManager_Get_NewEngine(t *testing.T) {
	m, _ := newTestManager()

	e, err := m.Get(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, "user-1", e.UserID)
	assert.Equal(t, 0, e.Store.Len())
}

func TestManager_Get_SameEnginePerUser(t *testing.T) {
	m, _ := newTestManager()

	a, err := m.Get(context.Background(), "user-1")
	require.NoError(t, err)
	b, err := m.Get(context.Background(), "user-1")
	require.NoError(t, err)
	c, err := m.Get(context.Background(), "user-2")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestManager_Get_EmptyUser(t *testing.T) {
	m, _ := newTestManager()

	_, err := m.Get(context.Background(), "")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestManager_Get_RestoresSnapshot(t *testing.T) {
	m, snaps := newTestManager()
	snaps.snaps["user-1"] = &domain.CartSnapshot{
		UserID: "user-1",
		Items: []domain.LineItem{
			{LocalID: "l1", RemoteLineID: 101, RemoteLineDocumentID: "d101", ProductID: 7, Title: "Linen Shirt", UnitPrice: 4500, Quantity: 2, State: domain.SyncStateSyncing},
			{LocalID: "l2", ProductID: 8, Title: "Wool Coat", UnitPrice: 12000, Quantity: 1, State: domain.SyncStateSyncing},
		},
		Selected: map[string]bool{"l1": false, "l2": true},
	}

	e, err := m.Get(context.Background(), "user-1")

	require.NoError(t, err)
	items := e.Store.Items()
	require.Len(t, items, 2)
	// Mid-sync states settle according to the identifiers the item carries.
	assert.Equal(t, domain.SyncStateLinked, items[0].State)
	assert.Equal(t, domain.SyncStateLocalOnly, items[1].State)
	assert.False(t, e.Tracker.IsSelected("l1"))
	assert.True(t, e.Tracker.IsSelected("l2"))
}

func TestManager_Get_SlowRestoreDoesNotBlockOtherUsers(t *testing.T) {
	m, snaps := newTestManager()

	entered := make(chan struct{})
	release := make(chan struct{})
	snaps.loadHook = func(userID string) {
		if userID == "slow-user" {
			close(entered)
			<-release
		}
	}

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = m.Get(context.Background(), "slow-user")
	}()
	<-entered

	fastDone := make(chan struct{})
	go func() {
		defer close(fastDone)
		_, err := m.Get(context.Background(), "fast-user")
		assert.NoError(t, err)
	}()

	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		t.Fatal("engine lookup blocked behind another user's restore")
	}

	close(release)
	<-slowDone
}

func TestManager_Get_ConcurrentSameUserBuildsOnce(t *testing.T) {
	m, _ := newTestManager()

	engines := make([]*Engine, 8)
	var wg sync.WaitGroup
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := m.Get(context.Background(), "user-1")
			assert.NoError(t, err)
			engines[i] = e
		}(i)
	}
	wg.Wait()

	for _, e := range engines[1:] {
		assert.Same(t, engines[0], e)
	}
}

func TestManager_MutationPersistsSnapshot(t *testing.T) {
	m, snaps := newTestManager()
	e, err := m.Get(context.Background(), "user-1")
	require.NoError(t, err)

	e.Store.AddItem(domain.Identity{ProductID: 7, ProductDocumentID: "prod-doc-7"}, "Linen Shirt", 4500, "", 1)
	e.Worker.Wait()

	assert.Greater(t, snaps.saveCount(), 0)
	snap := snaps.snaps["user-1"]
	require.NotNil(t, snap)
	require.Len(t, snap.Items, 1)
	// The post-link save carries the remote identifiers.
	assert.True(t, snap.Items[0].Linked())
}

func TestManager_Teardown(t *testing.T) {
	m, snaps := newTestManager()
	e, err := m.Get(context.Background(), "user-1")
	require.NoError(t, err)
	e.Store.AddItem(domain.Identity{ProductID: 7, ProductDocumentID: "prod-doc-7"}, "Linen Shirt", 4500, "", 1)
	e.Worker.Wait()

	require.NoError(t, m.Teardown(context.Background(), "user-1"))

	_, ok := snaps.snaps["user-1"]
	assert.False(t, ok)

	// A fresh engine starts empty.
	fresh, err := m.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotSame(t, e, fresh)
	assert.Equal(t, 0, fresh.Store.Len())
}

func TestManager_Drain(t *testing.T) {
	m, _ := newTestManager()
	e, err := m.Get(context.Background(), "user-1")
	require.NoError(t, err)

	e.Store.AddItem(domain.Identity{ProductID: 7, ProductDocumentID: "prod-doc-7"}, "Linen Shirt", 4500, "", 1)
	m.Drain()

	got := e.Store.Items()
	require.Len(t, got, 1)
	assert.Equal(t, domain.SyncStateLinked, got[0].State)
}
