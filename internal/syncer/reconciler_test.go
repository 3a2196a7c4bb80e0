package syncer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhanbg/traditionalalley-sub002/internal/cart"
	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/identity"
	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

// --- Fake Product Resolver ---

type fakeProductResolver struct {
	products map[int64]*identity.ResolvedProduct
	err      error
}

func (f *fakeProductResolver) ResolveProduct(_ context.Context, ref domain.ProductRef, variantID, size string) (*identity.ResolvedProduct, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.products[ref.ID]
	if !ok {
		return nil, apperrors.NotFound("product", ref.String())
	}
	resolved := *p
	resolved.Identity.VariantID = variantID
	resolved.Identity.Size = size
	return &resolved, nil
}

func TestReconciler_ReplacesLocalFromRemote(t *testing.T) {
	fake := newFakeRemoteStore()
	fake.records["d1"] = &remote.LineItemRecord{
		ID: 1, DocumentID: "d1", Quantity: 2,
		VariantID: "red", Size: "M", Product: remote.ProductRecordRef{ID: 7, DocumentID: "prod-doc-7"},
	}

	logger := testLogger()
	store := cart.NewStore(nil, logger)
	tracker := cart.NewSelectionTracker(store)
	store.AddItem(domain.Identity{ProductID: 42}, "Stale Local Item", 100, "", 1)

	products := &fakeProductResolver{products: map[int64]*identity.ResolvedProduct{
		7: {
			Identity:  domain.Identity{ProductID: 7, ProductDocumentID: "prod-doc-7"},
			Title:     "Linen Shirt",
			UnitPrice: 4500,
			ImageRef:  "img-7",
		},
	}}
	rec := NewReconciler(fake, &fakeBagProvider{}, products, store, nil, logger)

	count, err := rec.Reconcile(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 1, count)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "Linen Shirt", items[0].Title)
	assert.Equal(t, int64(4500), items[0].UnitPrice)
	assert.Equal(t, int64(1), items[0].RemoteLineID)
	assert.Equal(t, "d1", items[0].RemoteLineDocumentID)
	assert.Equal(t, domain.SyncStateLinked, items[0].State)
	// Reconciled items are selected by default.
	assert.True(t, tracker.IsSelected(items[0].LocalID))
}

func TestReconciler_EmptyRemoteYieldsEmptyCart(t *testing.T) {
	fake := newFakeRemoteStore()
	logger := testLogger()
	store := cart.NewStore(nil, logger)
	store.AddItem(domain.Identity{ProductID: 42}, "Stale Local Item", 100, "", 1)

	rec := NewReconciler(fake, &fakeBagProvider{}, &fakeProductResolver{}, store, nil, logger)

	count, err := rec.Reconcile(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, store.Len())
}

func TestReconciler_ProductResolutionFailureKeepsIdentifiers(t *testing.T) {
	fake := newFakeRemoteStore()
	fake.records["d1"] = &remote.LineItemRecord{
		ID: 1, DocumentID: "d1", Quantity: 2,
		Product: remote.ProductRecordRef{ID: 7, DocumentID: "prod-doc-7"},
	}

	logger := testLogger()
	store := cart.NewStore(nil, logger)
	rec := NewReconciler(fake, &fakeBagProvider{}, &fakeProductResolver{err: apperrors.Transient("catalog down")}, store, nil, logger)

	count, err := rec.Reconcile(context.Background(), "user-1")

	require.NoError(t, err)
	assert.Equal(t, 1, count)

	items := store.Items()
	require.Len(t, items, 1)
	assert.Equal(t, int64(7), items[0].ProductID)
	assert.Empty(t, items[0].Title)
}

func TestReconciler_ListFailurePropagates(t *testing.T) {
	fake := newFakeRemoteStore()
	fake.fail("list", apperrors.Transient("store down"))

	logger := testLogger()
	store := cart.NewStore(nil, logger)
	store.AddItem(domain.Identity{ProductID: 42}, "Local Item", 100, "", 1)
	rec := NewReconciler(fake, &fakeBagProvider{}, &fakeProductResolver{}, store, nil, logger)

	_, err := rec.Reconcile(context.Background(), "user-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransient))
	// Local state is untouched on a failed reconcile.
	assert.Equal(t, 1, store.Len())
}

func TestReconciler_BagFailurePropagates(t *testing.T) {
	logger := testLogger()
	store := cart.NewStore(nil, logger)
	rec := NewReconciler(newFakeRemoteStore(), &fakeBagProvider{err: apperrors.Transient("store down")}, &fakeProductResolver{}, store, nil, logger)

	_, err := rec.Reconcile(context.Background(), "user-1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrTransient))
}
