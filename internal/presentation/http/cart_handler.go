package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domcart "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
)

type setCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=999"`
}

type cartLineResponse struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type cartResponse struct {
	BuyerID   string             `json:"buyer_id"`
	Lines     []cartLineResponse `json:"lines"`
	UpdatedAt *time.Time         `json:"updated_at,omitempty"`
}

func toCartResponse(c *domcart.Cart) cartResponse {
	resp := cartResponse{BuyerID: c.BuyerID, Lines: make([]cartLineResponse, 0, len(c.Lines))}
	for _, l := range c.Lines {
		resp.Lines = append(resp.Lines, cartLineResponse{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	if !c.UpdatedAt.IsZero() {
		at := c.UpdatedAt
		resp.UpdatedAt = &at
	}
	return resp
}

func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Cart.Get(r.Context(), principal(r).ID)
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleSetCartItem(w http.ResponseWriter, r *http.Request) {
	var req setCartItemRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err)
		return
	}

	c, err := h.deps.Cart.SetQuantity(r.Context(), principal(r).ID, chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, err := h.deps.Cart.Remove(r.Context(), principal(r).ID, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, toCartResponse(c))
}

func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Cart.Clear(r.Context(), principal(r).ID); err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
