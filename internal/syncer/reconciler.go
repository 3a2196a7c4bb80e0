package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/identity"
)

// LocalCart is the slice of the cart store reconciliation writes through.
type LocalCart interface {
	ReplaceAll(items []domain.LineItem)
}

// ProductResolver supplies display fields for remote records, which carry
// only identifiers and quantity.
type ProductResolver interface {
	ResolveProduct(ctx context.Context, ref domain.ProductRef, variantID, size string) (*identity.ResolvedProduct, error)
}

// ReconcilePublisher receives reconciliation notifications.
type ReconcilePublisher interface {
	Reconciled(ctx context.Context, userID string, itemCount int)
}

// Reconciler replaces the local cart wholesale from the remote store,
// treating the remote listing as authoritative at that moment. This is the
// only recovery path from accumulated sync drift; unlike the worker's
// background legs it is user-invoked, so its errors propagate.
type Reconciler struct {
	remote   RemoteStore
	bags     BagProvider
	products ProductResolver
	local    LocalCart
	events   ReconcilePublisher
	logger   *slog.Logger
}

// NewReconciler creates a reconciler for one user session.
func NewReconciler(remoteStore RemoteStore, bags BagProvider, products ProductResolver, local LocalCart, events ReconcilePublisher, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		remote:   remoteStore,
		bags:     bags,
		products: products,
		local:    local,
		events:   events,
		logger:   logger,
	}
}

// Reconcile pulls the remote line items for the user's bag and replaces the
// local cart contents with them. Every resulting item is linked and selected.
func (r *Reconciler) Reconcile(ctx context.Context, userID string) (int, error) {
	bag, err := r.bags.EnsureBag(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("ensure bag: %w", err)
	}

	records, err := r.remote.ListLineItems(ctx, bag.DocumentID)
	if err != nil {
		return 0, fmt.Errorf("list remote line items: %w", err)
	}

	items := make([]domain.LineItem, 0, len(records))
	for _, rec := range records {
		item := domain.LineItem{
			RemoteLineID:         rec.ID,
			RemoteLineDocumentID: rec.DocumentID,
			ProductID:            rec.Product.ID,
			ProductDocumentID:    rec.Product.DocumentID,
			VariantID:            rec.VariantID,
			Size:                 rec.Size,
			Quantity:             rec.Quantity,
			State:                domain.SyncStateLinked,
		}

		ref := domain.ProductRef{ID: rec.Product.ID, DocumentID: rec.Product.DocumentID}
		resolved, err := r.products.ResolveProduct(ctx, ref, rec.VariantID, rec.Size)
		if err != nil {
			// Keep the identifiers we have; the item stays usable for sync
			// even without display fields.
			r.logger.WarnContext(ctx, "product resolution failed during reconcile",
				slog.String("product_ref", ref.String()),
				slog.String("error", err.Error()),
			)
		} else {
			item.ProductID = resolved.Identity.ProductID
			item.ProductDocumentID = resolved.Identity.ProductDocumentID
			item.Title = resolved.Title
			item.UnitPrice = resolved.UnitPrice
			item.ImageRef = resolved.ImageRef
		}

		items = append(items, item)
	}

	r.local.ReplaceAll(items)

	r.logger.InfoContext(ctx, "cart reconciled from remote",
		slog.String("user_id", userID),
		slog.Int("items", len(items)),
	)

	if r.events != nil {
		r.events.Reconciled(ctx, userID, len(items))
	}
	return len(items), nil
}
