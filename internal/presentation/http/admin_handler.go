package httppresentation

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apporder "github.com/caffeinepub/kodinar-bazaar/internal/application/order"
	apppaymentconfig "github.com/caffeinepub/kodinar-bazaar/internal/application/paymentconfig"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
)

type setPaymentConfigRequest struct {
	SecretKey        string   `json:"secret_key" validate:"required"`
	AllowedCountries []string `json:"allowed_countries" validate:"omitempty,dive,len=2"`
}

// paymentConfigResponse never carries the key.
type paymentConfigResponse struct {
	Configured       bool     `json:"configured"`
	Live             bool     `json:"live"`
	AllowedCountries []string `json:"allowed_countries"`
}

func (h *Handler) handleSetPaymentConfig(w http.ResponseWriter, r *http.Request) {
	var req setPaymentConfigRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err)
		return
	}

	res, err := h.deps.SetConfig.Execute(r.Context(), apppaymentconfig.SetInput{
		Principal:        principal(r),
		SecretKey:        req.SecretKey,
		AllowedCountries: req.AllowedCountries,
	})
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	countries := res.AllowedCountries
	if countries == nil {
		countries = []string{}
	}
	writeJSON(w, http.StatusOK, paymentConfigResponse{Configured: true, Live: res.Live, AllowedCountries: countries})
}

func (h *Handler) handleListAllOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.deps.ListOrders.Execute(r.Context(), apporder.ListOrdersInput{Principal: principal(r), All: true})
	if err != nil {
		h.writeDomainError(w, r, err, ref{})
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=paid failed"`
}

type updateOrderStatusResponse struct {
	Order   orderResponse `json:"order"`
	Changed bool          `json:"changed"`
}

func (h *Handler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req updateOrderStatusRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err)
		return
	}
	status, err := domorder.ParseStatus(req.Status)
	if err != nil {
		h.writeDomainError(w, r, err, ref{orderID: orderID})
		return
	}

	res, err := h.deps.UpdateStatus.Execute(r.Context(), apporder.UpdateStatusInput{
		Principal: principal(r),
		OrderID:   orderID,
		Status:    status,
	})
	if err != nil {
		h.writeDomainError(w, r, err, ref{orderID: orderID})
		return
	}
	writeJSON(w, http.StatusOK, updateOrderStatusResponse{Order: toOrderResponse(res.Order), Changed: res.Changed})
}
