package domain

import "fmt"

// SyncState tracks where a line item sits in the local/remote lifecycle.
// Transitions: local_only -> syncing -> linked on first successful create,
// linked -> syncing -> linked on each subsequent update, any -> removed.
// There is no "confirmed deleted remotely" state; deletion is fire-and-forget
// from the local state's perspective.
type SyncState string

const (
	SyncStateLocalOnly SyncState = "local_only"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateLinked    SyncState = "linked"
	SyncStateRemoved   SyncState = "removed"
)

// QuantityMode selects how an update interprets its quantity argument.
type QuantityMode string

const (
	QuantityAbsolute  QuantityMode = "absolute"
	QuantityIncrement QuantityMode = "increment"
)

// ProductRef is a loosely-typed product reference as the UI supplies it:
// either a numeric store id or a content-addressed document id. Exactly one
// side is expected to be set.
type ProductRef struct {
	ID         int64  `json:"id,omitempty"`
	DocumentID string `json:"document_id,omitempty"`
}

// IsZero reports whether the reference carries neither identifier.
func (r ProductRef) IsZero() bool {
	return r.ID == 0 && r.DocumentID == ""
}

// Key returns a stable cache key for the reference.
func (r ProductRef) Key() string {
	if r.DocumentID != "" {
		return "doc:" + r.DocumentID
	}
	return fmt.Sprintf("id:%d", r.ID)
}

func (r ProductRef) String() string {
	return r.Key()
}

// Identity is the resolved, canonical reference to a product/variant/size
// combination. It is produced exactly once by the identity resolver and
// threaded through the cart store and sync worker, never re-derived at each
// call site.
type Identity struct {
	ProductID         int64  `json:"product_id"`
	ProductDocumentID string `json:"product_document_id"`
	VariantID         string `json:"variant_id,omitempty"`
	Size              string `json:"size,omitempty"`
}

// StructuralKey returns the composite {product, variant, size} descriptor used
// to match against remote records when no remote identifier is known.
func (i Identity) StructuralKey() string {
	return fmt.Sprintf("%d/%s/%s", i.ProductID, i.VariantID, i.Size)
}

// StructurallyEqual reports whether two identities refer to the same
// product/variant/size combination, ignoring document ids.
func (i Identity) StructurallyEqual(other Identity) bool {
	return i.ProductID == other.ProductID &&
		i.VariantID == other.VariantID &&
		i.Size == other.Size
}

// LineItem is one product entry in the local cart, carrying a quantity.
// LocalID is stable for the lifetime of the item in the session. The remote
// identifiers are absent until a create call succeeds; once set they are
// immutable and used for all future update/delete calls on the item.
type LineItem struct {
	LocalID              string    `json:"local_id"`
	RemoteLineID         int64     `json:"remote_line_id,omitempty"`
	RemoteLineDocumentID string    `json:"remote_line_document_id,omitempty"`
	ProductID            int64     `json:"product_id"`
	ProductDocumentID    string    `json:"product_document_id,omitempty"`
	VariantID            string    `json:"variant_id,omitempty"`
	Size                 string    `json:"size,omitempty"`
	Title                string    `json:"title"`
	UnitPrice            int64     `json:"unit_price"`
	Quantity             int       `json:"quantity"`
	ImageRef             string    `json:"image_ref,omitempty"`
	State                SyncState `json:"state"`
}

// Linked reports whether the item carries at least one remote identifier.
func (li *LineItem) Linked() bool {
	return li.RemoteLineID != 0 || li.RemoteLineDocumentID != ""
}

// Identity returns the item's canonical identity tuple.
func (li *LineItem) Identity() Identity {
	return Identity{
		ProductID:         li.ProductID,
		ProductDocumentID: li.ProductDocumentID,
		VariantID:         li.VariantID,
		Size:              li.Size,
	}
}

// Subtotal returns price times quantity for this item (in cents).
func (li *LineItem) Subtotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

// Totals holds the two cart sums: over all items and over selected items only.
type Totals struct {
	Cart     int64 `json:"cart"`
	Selected int64 `json:"selected"`
}

// CartSnapshot is the persisted form of a session's local cart, used to
// restore the optimistic view (including remote identifiers) on resume.
type CartSnapshot struct {
	UserID   string          `json:"user_id"`
	Items    []LineItem      `json:"items"`
	Selected map[string]bool `json:"selected"`
}
