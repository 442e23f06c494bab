package stripe

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v80/webhook"

	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
)

// WebhookVerifier checks the Stripe-Signature header of provider callbacks.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}
}

func (v *WebhookVerifier) Verify(payload []byte, signature string) (*dompayment.Notification, error) {
	if v.secret == "" {
		return nil, fmt.Errorf("%w: no webhook secret configured", dompayment.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dompayment.ErrInvalidSignature, err)
	}

	n := &dompayment.Notification{
		EventID:    event.ID,
		Type:       string(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}
	if !strings.HasPrefix(n.Type, "checkout.session.") || event.Data == nil {
		return n, nil
	}

	// only the id is taken from the callback; the outcome is re-queried
	var obj struct {
		ID     string `json:"id"`
		Object string `json:"object"`
	}
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("decode webhook object: %w", err)
	}
	if obj.Object == "checkout.session" {
		n.SessionID = obj.ID
	}
	return n, nil
}
