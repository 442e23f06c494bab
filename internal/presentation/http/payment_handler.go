package httppresentation

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

const (
	headerStripeSignature = "Stripe-Signature"
	maxWebhookBytes       = 64 << 10
)

var errWebhookDisabled = errors.New("webhook verification is not configured")

type sessionStatusResponse struct {
	OrderID      string            `json:"order_id"`
	SessionID    string            `json:"session_id"`
	Outcome      string            `json:"outcome"`
	Status       string            `json:"status"`
	Changed      bool              `json:"changed"`
	StillWaiting bool              `json:"still_waiting"`
	Details      map[string]string `json:"details"`
}

// handleSessionStatus serves both the status query and the explicit
// reconcile; a status read always asks the provider.
func (h *Handler) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	res, err := h.deps.Reconcile.Execute(r.Context(), appreconcile.Input{SessionID: sessionID})
	if err != nil {
		h.writeDomainError(w, r, err, ref{sessionID: sessionID})
		return
	}
	details := res.Details
	if details == nil {
		details = map[string]string{}
	}
	writeJSON(w, http.StatusOK, sessionStatusResponse{
		OrderID:      res.OrderID,
		SessionID:    res.SessionID,
		Outcome:      string(res.Outcome),
		Status:       string(res.Status),
		Changed:      res.Changed,
		StillWaiting: res.StillWaiting,
		Details:      details,
	})
}

type webhookResponse struct {
	Received bool `json:"received"`
	Ignored  bool `json:"ignored,omitempty"`
}

// handleWebhook verifies the provider signature and queues the session for
// reconciliation. The payload's own outcome is never trusted.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := logctx.FromOr(r.Context(), h.log)
	if h.deps.Webhooks == nil {
		writeError(w, http.StatusServiceUnavailable, "webhook_not_configured", errWebhookDisabled)
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err)
		return
	}
	n, err := h.deps.Webhooks.Verify(payload, r.Header.Get(headerStripeSignature))
	if err != nil {
		logger.Warn("payment_webhook_rejected", observability.Err(err))
		writeError(w, http.StatusBadRequest, "invalid_signature", dompayment.ErrInvalidSignature)
		return
	}

	if n.SessionID == "" {
		logger.Debug("payment_webhook_ignored",
			observability.F("provider_event_id", n.EventID),
			observability.F("provider_event_type", n.Type),
		)
		writeJSON(w, http.StatusOK, webhookResponse{Received: true, Ignored: true})
		return
	}

	ev := dompayment.NewSessionNotifiedEvent(n.SessionID, n.EventID, n.Type)
	if h.deps.Publisher == nil {
		writeError(w, http.StatusServiceUnavailable, "webhook_not_configured", errWebhookDisabled)
		return
	}
	if err := h.deps.Publisher.Publish(r.Context(), ev); err != nil {
		// the provider retries on any non-2xx
		logger.Error("payment_webhook_enqueue_failed",
			observability.F("session_id", n.SessionID),
			observability.Err(err),
		)
		writeError(w, http.StatusServiceUnavailable, "enqueue_failed", err)
		return
	}
	logger.Info("payment_webhook_accepted",
		observability.F("session_id", n.SessionID),
		observability.F("provider_event_id", n.EventID),
		observability.F("provider_event_type", n.Type),
	)
	writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

type paymentConfiguredResponse struct {
	Configured bool `json:"configured"`
}

func (h *Handler) handlePaymentConfigured(w http.ResponseWriter, r *http.Request) {
	configured := h.deps.ConfigStatus != nil && h.deps.ConfigStatus.IsConfigured(r.Context())
	writeJSON(w, http.StatusOK, paymentConfiguredResponse{Configured: configured})
}
