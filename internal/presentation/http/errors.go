package httppresentation

import (
	"errors"
	"net/http"

	"github.com/caffeinepub/kodinar-bazaar/internal/application"
	appcheckout "github.com/caffeinepub/kodinar-bazaar/internal/application/checkout"
	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	domcart "github.com/caffeinepub/kodinar-bazaar/internal/domain/cart"
	domcatalog "github.com/caffeinepub/kodinar-bazaar/internal/domain/catalog"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	ProductID string `json:"product_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// ref names the entity a request was about, echoed in error bodies.
type ref struct {
	orderID   string
	sessionID string
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, application.ErrValidation),
		errors.Is(err, domcart.ErrInvalidQuantity),
		errors.Is(err, domcatalog.ErrInvalidQuantity),
		errors.Is(err, dompayment.ErrInvalidKeyFormat),
		errors.Is(err, dompayment.ErrInvalidCountry),
		errors.Is(err, domorder.ErrInvalidStatus),
		errors.Is(err, domorder.ErrTotalOverflow):
		return http.StatusBadRequest, "validation_failed"
	case errors.Is(err, domcart.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, appcheckout.ErrMixedCurrency):
		return http.StatusBadRequest, "mixed_currency"
	case errors.Is(err, domidentity.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, domidentity.ErrUnauthorized):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, domcatalog.ErrInsufficientStock):
		return http.StatusConflict, "out_of_stock"
	case errors.Is(err, domcatalog.ErrProductRemoved):
		return http.StatusConflict, "product_removed"
	case errors.Is(err, appcheckout.ErrNotPayable):
		return http.StatusConflict, "not_payable"
	case errors.Is(err, domorder.ErrConflict), errors.Is(err, domcart.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, appreconcile.ErrSessionMismatch):
		return http.StatusConflict, "session_mismatch"
	case errors.Is(err, domorder.ErrNotFound), errors.Is(err, dompayment.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, dompayment.ErrNotConfigured):
		return http.StatusServiceUnavailable, "payment_not_configured"
	case errors.Is(err, dompayment.ErrGatewayRejected):
		return http.StatusUnprocessableEntity, "gateway_rejected"
	case errors.Is(err, dompayment.ErrGatewayUnavailable):
		return http.StatusBadGateway, "gateway_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error, about ref) {
	status, code := classify(err)
	body := errorResponse{
		Error:     err.Error(),
		Code:      code,
		OrderID:   about.orderID,
		SessionID: about.sessionID,
	}
	var pe *domcatalog.ProductError
	if errors.As(err, &pe) {
		body.ProductID = pe.ProductID
	}
	if status == http.StatusInternalServerError {
		logctx.FromOr(r.Context(), h.log).Error("http_unhandled_error", observability.Err(err))
		body.Error = http.StatusText(status)
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}
