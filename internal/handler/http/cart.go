package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dhanbg/traditionalalley-sub002/internal/domain"
	"github.com/dhanbg/traditionalalley-sub002/internal/session"
	apperrors "github.com/dhanbg/traditionalalley-sub002/pkg/errors"
	"github.com/dhanbg/traditionalalley-sub002/pkg/httputil"
	"github.com/dhanbg/traditionalalley-sub002/pkg/validator"
)

// CartHandler handles HTTP requests for the cart sync endpoints. Every local
// mutation responds immediately with the optimistic cart state; the remote
// sync legs never block or fail a response.
type CartHandler struct {
	sessions *session.Manager
	logger   *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(sessions *session.Manager, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// --- Request DTOs ---

// AddItemRequest is the JSON request body for adding an item. The product may
// be referenced by numeric id or document id; at least one is required.
type AddItemRequest struct {
	ProductID         int64  `json:"product_id"`
	ProductDocumentID string `json:"product_document_id"`
	VariantID         string `json:"variant_id"`
	Size              string `json:"size"`
	Quantity          int    `json:"quantity" validate:"gte=0"`
}

// UpdateQuantityRequest is the JSON request body for a quantity change. Any
// quantity value is accepted; the store clamps the result to a minimum of 1.
type UpdateQuantityRequest struct {
	Quantity int    `json:"quantity"`
	Mode     string `json:"mode" validate:"omitempty,oneof=absolute increment"`
}

// SelectionRequest is the JSON request body for bulk selection.
type SelectionRequest struct {
	Selected *bool `json:"selected" validate:"required"`
}

// --- View DTOs ---

// CartItemView is one line item as the UI sees it.
type CartItemView struct {
	LocalID              string `json:"local_id"`
	RemoteLineID         int64  `json:"remote_line_id,omitempty"`
	RemoteLineDocumentID string `json:"remote_line_document_id,omitempty"`
	ProductID            int64  `json:"product_id"`
	ProductDocumentID    string `json:"product_document_id,omitempty"`
	VariantID            string `json:"variant_id,omitempty"`
	Size                 string `json:"size,omitempty"`
	Title                string `json:"title"`
	UnitPrice            int64  `json:"unit_price"`
	Quantity             int    `json:"quantity"`
	Subtotal             int64  `json:"subtotal"`
	ImageRef             string `json:"image_ref,omitempty"`
	State                string `json:"state"`
	Selected             bool   `json:"selected"`
}

// CartView is the full cart response: items, selection, and both totals.
type CartView struct {
	UserID string         `json:"user_id"`
	Items  []CartItemView `json:"items"`
	Totals domain.Totals  `json:"totals"`
}

func buildCartView(e *session.Engine) CartView {
	items := e.Store.Items()
	view := CartView{
		UserID: e.UserID,
		Items:  make([]CartItemView, len(items)),
		Totals: e.Store.Totals(e.Tracker),
	}
	for i, it := range items {
		view.Items[i] = CartItemView{
			LocalID:              it.LocalID,
			RemoteLineID:         it.RemoteLineID,
			RemoteLineDocumentID: it.RemoteLineDocumentID,
			ProductID:            it.ProductID,
			ProductDocumentID:    it.ProductDocumentID,
			VariantID:            it.VariantID,
			Size:                 it.Size,
			Title:                it.Title,
			UnitPrice:            it.UnitPrice,
			Quantity:             it.Quantity,
			Subtotal:             it.Subtotal(),
			ImageRef:             it.ImageRef,
			State:                string(it.State),
			Selected:             e.Tracker.IsSelected(it.LocalID),
		}
	}
	return view
}

// --- Handlers ---

func (h *CartHandler) engine(w http.ResponseWriter, r *http.Request) (*session.Engine, bool) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return nil, false
	}

	e, err := h.sessions.Get(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return nil, false
	}
	return e, true
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	ref := domain.ProductRef{ID: req.ProductID, DocumentID: req.ProductDocumentID}
	resolved, err := e.Resolver.ResolveProduct(r.Context(), ref, req.VariantID, req.Size)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	e.Store.AddItem(resolved.Identity, resolved.Title, resolved.UnitPrice, resolved.ImageRef, req.Quantity)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// UpdateQuantity handles PUT /api/v1/cart/items/{localId}/quantity
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	localID := chi.URLParam(r, "localId")

	var req UpdateQuantityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	mode := domain.QuantityAbsolute
	if req.Mode == string(domain.QuantityIncrement) {
		mode = domain.QuantityIncrement
	}

	if _, ok := e.Store.UpdateQuantity(localID, req.Quantity, mode); !ok {
		httputil.WriteError(w, r, apperrors.NotFound("cart item", localID), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// RemoveItem handles DELETE /api/v1/cart/items/{localId}. An optional
// document_id query parameter supplies a remote document id tried first in
// the delete fallback chain.
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	localID := chi.URLParam(r, "localId")
	hint := r.URL.Query().Get("document_id")

	if _, ok := e.Store.RemoveItemWithHint(localID, hint); !ok {
		httputil.WriteError(w, r, apperrors.NotFound("cart item", localID), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// ToggleSelection handles POST /api/v1/cart/items/{localId}/toggle
func (h *CartHandler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	localID := chi.URLParam(r, "localId")

	if _, ok := e.Tracker.Toggle(localID); !ok {
		httputil.WriteError(w, r, apperrors.NotFound("cart item", localID), h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// SetSelection handles POST /api/v1/cart/selection
func (h *CartHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	var req SelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	e.Tracker.SetAll(*req.Selected)

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// Reconcile handles POST /api/v1/cart/reconcile. Unlike the background sync
// legs this is user-invoked, so remote failures surface as errors.
func (h *CartHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	e, ok := h.engine(w, r)
	if !ok {
		return
	}

	if _, err := e.Reconciler.Reconcile(r.Context(), e.UserID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: buildCartView(e)})
}

// TeardownSession handles DELETE /api/v1/cart/session
func (h *CartHandler) TeardownSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: "authentication required"},
		})
		return
	}

	if err := h.sessions.Teardown(r.Context(), userID); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"status": "cleared"}})
}
