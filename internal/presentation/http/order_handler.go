package httppresentation

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appcheckout "github.com/caffeinepub/kodinar-bazaar/internal/application/checkout"
	apporder "github.com/caffeinepub/kodinar-bazaar/internal/application/order"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
)

type placeOrderResponse struct {
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Payment  string `json:"payment"`
	Total    int64  `json:"total"`
	Currency string `json:"currency"`
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

type orderResponse struct {
	ID               string              `json:"id"`
	BuyerID          string              `json:"buyer_id"`
	Items            []orderItemResponse `json:"items"`
	Total            int64               `json:"total"`
	Currency         string              `json:"currency"`
	Status           string              `json:"status"`
	Payment          string              `json:"payment"`
	DisplayState     string              `json:"display_state"`
	PaymentSessionID string              `json:"payment_session_id,omitempty"`
	PaymentURL       string              `json:"payment_url,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID:   it.ProductID,
			Name:        it.Name,
			Description: it.Description,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal(),
		})
	}
	return orderResponse{
		ID:               o.ID,
		BuyerID:          o.BuyerID,
		Items:            items,
		Total:            o.Total,
		Currency:         o.Currency,
		Status:           string(o.Status),
		Payment:          string(o.Payment),
		DisplayState:     o.DisplayState(),
		PaymentSessionID: o.ExternalPaymentRef,
		PaymentURL:       o.PaymentURL,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrderList(orders []*domorder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.PlaceOrder.Execute(r.Context(), appcheckout.PlaceOrderInput{BuyerID: principal(r).ID})
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	writeJSON(w, http.StatusCreated, placeOrderResponse{
		OrderID:  res.OrderID,
		Status:   string(res.Status),
		Payment:  string(res.Payment),
		Total:    res.Total,
		Currency: res.Currency,
	})
}

func (h *Handler) handleListMyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{Principal: principal(r)})
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	o, err := h.deps.GetOrder.Execute(r.Context(), apporder.GetOrderInput{Principal: principal(r), OrderID: orderID})
	if err != nil {
		h.writeDomainError(w, r, err, ref{orderID: orderID})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

type checkoutLineItemRequest struct {
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`
	UnitAmount  int64  `json:"unit_amount" validate:"gt=0"`
	Currency    string `json:"currency" validate:"omitempty,len=3"`
	Quantity    int    `json:"quantity" validate:"gt=0"`
}

type createCheckoutSessionRequest struct {
	SuccessURL string                    `json:"success_url" validate:"required,url"`
	CancelURL  string                    `json:"cancel_url" validate:"required,url"`
	Items      []checkoutLineItemRequest `json:"items" validate:"omitempty,dive"`
}

type checkoutSessionResponse struct {
	OrderID     string `json:"order_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
	Reused      bool   `json:"reused"`
}

func (h *Handler) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req createCheckoutSessionRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err)
		return
	}

	items := make([]dompayment.LineItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, dompayment.LineItem{
			Name:        it.Name,
			Description: it.Description,
			UnitAmount:  it.UnitAmount,
			Currency:    it.Currency,
			Quantity:    it.Quantity,
		})
	}

	res, err := h.deps.PaymentSession.Execute(r.Context(), appcheckout.CreatePaymentSessionInput{
		BuyerID:    principal(r).ID,
		OrderID:    orderID,
		Items:      items,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		h.writeDomainError(w, r, err, ref{orderID: orderID})
		return
	}

	status := http.StatusCreated
	if res.Reused {
		status = http.StatusOK
	}
	writeJSON(w, status, checkoutSessionResponse{
		OrderID:     res.OrderID,
		SessionID:   res.SessionID,
		RedirectURL: res.RedirectURL,
		Reused:      res.Reused,
	})
}
