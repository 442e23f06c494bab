package stripe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"

	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
)

const webhookSecret = "whsec_test_secret"

func signed(t *testing.T, payload string) (body []byte, header string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func TestWebhookVerifier_CheckoutSessionEvent(t *testing.T) {
	body, header := signed(t, `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"created": 1700000000,
		"data": {"object": {"id": "cs_test_9", "object": "checkout.session", "payment_status": "unpaid"}}
	}`)

	n, err := NewWebhookVerifier(webhookSecret).Verify(body, header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", n.EventID)
	assert.Equal(t, "checkout.session.completed", n.Type)
	assert.Equal(t, "cs_test_9", n.SessionID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), n.OccurredAt)
}

func TestWebhookVerifier_OtherEventsCarryNoSession(t *testing.T) {
	body, header := signed(t, `{"id":"evt_2","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","object":"payment_intent"}}}`)

	n, err := NewWebhookVerifier(webhookSecret).Verify(body, header)
	require.NoError(t, err)
	assert.Empty(t, n.SessionID)
}

func TestWebhookVerifier_BadSignature(t *testing.T) {
	body, header := signed(t, `{"id":"evt_3","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)

	_, err := NewWebhookVerifier("whsec_other").Verify(body, header)
	assert.ErrorIs(t, err, dompayment.ErrInvalidSignature)

	_, err = NewWebhookVerifier(webhookSecret).Verify(append(body, ' '), header)
	assert.ErrorIs(t, err, dompayment.ErrInvalidSignature)

	_, err = NewWebhookVerifier("").Verify(body, header)
	assert.ErrorIs(t, err, dompayment.ErrInvalidSignature)
}
