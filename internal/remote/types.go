package remote

// LineItemRecord is one line-item row as the remote store returns it. Every
// record carries both the numeric id and the content-addressed document id;
// the document id is the canonical handle for mutations.
type LineItemRecord struct {
	ID         int64            `json:"id"`
	DocumentID string           `json:"documentId"`
	Quantity   int              `json:"quantity"`
	VariantID  string           `json:"variantId,omitempty"`
	Size       string           `json:"size,omitempty"`
	Product    ProductRecordRef `json:"product"`
}

// ProductRecordRef is the product reference embedded in a line-item record.
type ProductRecordRef struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"documentId"`
}

// BagRecord is a user's bag container in the remote store.
type BagRecord struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"documentId"`
}

// ProfileRecord is the remote user profile a bag hangs off of.
type ProfileRecord struct {
	ID         int64  `json:"id"`
	DocumentID string `json:"documentId"`
	ExternalID string `json:"externalId"`
}

// CreateLineItemRequest is the payload for creating a line item under a bag.
type CreateLineItemRequest struct {
	BagDocumentID     string `json:"bag"`
	ProductDocumentID string `json:"product"`
	VariantID         string `json:"variantId,omitempty"`
	Size              string `json:"size,omitempty"`
	Quantity          int    `json:"quantity"`
}

// UpdateLineItemRequest carries the only mutable field of a line item.
type UpdateLineItemRequest struct {
	Quantity int `json:"quantity"`
}

// CreateBagRequest creates a bag owned by a profile.
type CreateBagRequest struct {
	ProfileDocumentID string `json:"userProfile"`
}

// CreateProfileRequest registers a profile for an external user id.
type CreateProfileRequest struct {
	ExternalID string `json:"externalId"`
}
