package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dhanbg/traditionalalley-sub002/internal/catalog"
	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/remote"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
)

// Catalog is the read surface the resolver needs from the product catalog.
type Catalog interface {
	ProductByID(ctx context.Context, id int64) (*catalog.Product, error)
	ProductByDocumentID(ctx context.Context, documentID string) (*catalog.Product, error)
}

// ResolvedProduct is a product with both identifiers known, plus the display
// fields a cart entry carries.
type ResolvedProduct struct {
	Identity  domain.Identity
	Title     string
	UnitPrice int64
	ImageRef  string
}

// Resolver canonicalizes loose product references into full identities, once
// per session per product. Cart entries carry the resolved identity from then
// on; nothing downstream re-derives it.
type Resolver struct {
	catalog Catalog
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]*catalog.Product
}

// NewResolver creates a resolver with an empty session cache.
func NewResolver(cat Catalog, logger *slog.Logger) *Resolver {
	return &Resolver{
		catalog: cat,
		logger:  logger,
		cache:   make(map[string]*catalog.Product),
	}
}

func (r *Resolver) lookup(ctx context.Context, ref domain.ProductRef) (*catalog.Product, error) {
	r.mu.Lock()
	if p, ok := r.cache[ref.Key()]; ok {
		r.mu.Unlock()
		return p, nil
	}
	r.mu.Unlock()

	var (
		p   *catalog.Product
		err error
	)
	if ref.DocumentID != "" {
		p, err = r.catalog.ProductByDocumentID(ctx, ref.DocumentID)
	} else {
		p, err = r.catalog.ProductByID(ctx, ref.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve product %s: %w", ref, err)
	}

	r.mu.Lock()
	// Cache under both handles so a later lookup by the other scheme hits.
	r.cache[domain.ProductRef{ID: p.ID}.Key()] = p
	if p.DocumentID != "" {
		r.cache[domain.ProductRef{DocumentID: p.DocumentID}.Key()] = p
	}
	r.mu.Unlock()

	return p, nil
}

// ResolveProduct turns a loose product reference plus variant/size choice into
// a canonical identity. The variant choice is validated against the catalog
// record when the product declares variants.
func (r *Resolver) ResolveProduct(ctx context.Context, ref domain.ProductRef, variantID, size string) (*ResolvedProduct, error) {
	if ref.IsZero() {
		return nil, apperrors.InvalidInput("product reference requires an id or a document id")
	}

	p, err := r.lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	if len(p.Variants) > 0 {
		if err := validateVariant(p, variantID, size); err != nil {
			return nil, err
		}
	}

	return &ResolvedProduct{
		Identity: domain.Identity{
			ProductID:         p.ID,
			ProductDocumentID: p.DocumentID,
			VariantID:         variantID,
			Size:              size,
		},
		Title:     p.Title,
		UnitPrice: p.Price,
		ImageRef:  p.ImageRef,
	}, nil
}

func validateVariant(p *catalog.Product, variantID, size string) error {
	if variantID == "" {
		return apperrors.InvalidInput(fmt.Sprintf("product %d requires a variant", p.ID))
	}
	for _, v := range p.Variants {
		if v.ID != variantID {
			continue
		}
		if len(v.Sizes) == 0 || size == "" {
			if len(v.Sizes) > 0 {
				return apperrors.InvalidInput(fmt.Sprintf("variant %s requires a size", variantID))
			}
			return nil
		}
		for _, s := range v.Sizes {
			if s == size {
				return nil
			}
		}
		return apperrors.InvalidInput(fmt.Sprintf("size %s is not available for variant %s", size, variantID))
	}
	return apperrors.InvalidInput(fmt.Sprintf("unknown variant %s for product %d", variantID, p.ID))
}

// ResolveExistingLineItem finds the remote record corresponding to a local
// item, trying identifiers in order of strength: the numeric line id, then
// the line document id, then the product/variant/size combination. When more
// than one record matches structurally the first wins and the ambiguity is
// logged.
func (r *Resolver) ResolveExistingLineItem(item domain.LineItem, records []remote.LineItemRecord) (*remote.LineItemRecord, bool) {
	if item.RemoteLineID != 0 {
		for i := range records {
			if records[i].ID == item.RemoteLineID {
				return &records[i], true
			}
		}
	}

	if item.RemoteLineDocumentID != "" {
		for i := range records {
			if records[i].DocumentID == item.RemoteLineDocumentID {
				return &records[i], true
			}
		}
	}

	identity := item.Identity()
	var matches []*remote.LineItemRecord
	for i := range records {
		rec := &records[i]
		recIdentity := domain.Identity{
			ProductID: rec.Product.ID,
			VariantID: rec.VariantID,
			Size:      rec.Size,
		}
		if identity.StructurallyEqual(recIdentity) {
			matches = append(matches, rec)
		}
	}

	switch len(matches) {
	case 0:
		return nil, false
	case 1:
		return matches[0], true
	default:
		r.logger.Warn("multiple remote records match item structurally, taking first",
			slog.String("local_id", item.LocalID),
			slog.String("structural_key", identity.StructuralKey()),
			slog.Int("matches", len(matches)),
		)
		return matches[0], true
	}
}
