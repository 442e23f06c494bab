package httppresentation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v80/webhook"

	appcart "github.com/caffeinepub/kodinar-bazaar/internal/application/cart"
	appcheckout "github.com/caffeinepub/kodinar-bazaar/internal/application/checkout"
	apporder "github.com/caffeinepub/kodinar-bazaar/internal/application/order"
	apppaymentconfig "github.com/caffeinepub/kodinar-bazaar/internal/application/paymentconfig"
	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	domcatalog "github.com/caffeinepub/kodinar-bazaar/internal/domain/catalog"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/identity"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/memory"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/stripe"
	"github.com/caffeinepub/kodinar-bazaar/internal/pkg/keylock"
)

const (
	jwtSecret     = "test-signing-secret"
	webhookSecret = "whsec_router_test"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) named(name string) []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domoutbox.Event
	for _, e := range p.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	router  http.Handler
	catalog *memory.CatalogRepository
	carts   *memory.CartStore
	configs *memory.PaymentConfigStore
	gateway *memory.Gateway
	events  *recordingPublisher
	auth    *identity.JWTVerifier
}

func newHarness(t *testing.T, webhooks dompayment.NotificationVerifier) *harness {
	t.Helper()
	h := &harness{
		catalog: memory.NewCatalogRepository(),
		carts:   memory.NewCartStore(),
		configs: memory.NewPaymentConfigStore(),
		events:  &recordingPublisher{},
		auth:    identity.NewJWTVerifier(jwtSecret, "bazaar"),
	}
	h.gateway = memory.NewGateway(h.configs)
	orders := memory.NewOrderRepository()

	h.addProduct(t, "A", "Handloom towel", 5000, 10)
	h.addProduct(t, "B", "Brass lamp", 10000, 10)
	h.addProduct(t, "C", "Clay pot", 2500, 10)

	deps := Deps{
		Cart: appcart.NewService(h.carts, h.catalog, nil),
		PlaceOrder: appcheckout.NewPlaceOrderUseCase(appcheckout.PlaceOrderDeps{
			Carts:     h.carts,
			Catalog:   h.catalog,
			Stock:     h.catalog,
			Orders:    orders,
			IDs:       orders,
			Gateway:   h.gateway,
			Buyers:    keylock.New(),
			Publisher: h.events,
			Currency:  "INR",
		}, nil),
		PaymentSession: appcheckout.NewCreatePaymentSessionUseCase(orders, h.gateway, h.events, nil),
		Reconcile:      appreconcile.NewUseCase(orders, h.gateway, h.events, nil),
		GetOrder:       apporder.NewGetOrderUseCase(orders, nil),
		ListOrders:     apporder.NewListOrdersUseCase(orders, nil),
		UpdateStatus:   apporder.NewUpdateStatusUseCase(orders, h.events, nil),
		SetConfig:      apppaymentconfig.NewSetUseCase(h.configs, nil),
		ConfigStatus:   apppaymentconfig.NewStatus(h.gateway),
		Auth:           h.auth,
		Webhooks:       webhooks,
		Publisher:      h.events,
	}
	h.router = NewHandler(deps, nil, nil).Router()
	return h
}

func (h *harness) addProduct(t *testing.T, id, name string, price int64, stock int) {
	t.Helper()
	p, err := domcatalog.NewProduct(id, name, "", price, "INR", stock)
	require.NoError(t, err)
	require.NoError(t, h.catalog.Upsert(context.Background(), p))
}

func (h *harness) token(t *testing.T, id string, role domidentity.Role) string {
	t.Helper()
	tok, err := h.auth.Issue(domidentity.Principal{ID: id, Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (h *harness) configure(t *testing.T) {
	t.Helper()
	cfg, err := dompayment.NewConfiguration("sk_test_bazaar", []string{"IN"})
	require.NoError(t, err)
	require.NoError(t, h.configs.Store(context.Background(), cfg))
}

func (h *harness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (h *harness) fillCart(t *testing.T, token string) {
	t.Helper()
	rec := h.do(t, http.MethodPut, "/cart/items/A", token, map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = h.do(t, http.MethodPut, "/cart/items/B", token, map[string]int{"quantity": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestScenario_PaidThroughHostedCheckout(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(t)
	buyer := h.token(t, "buyer-1", domidentity.RoleUser)
	h.fillCart(t, buyer)

	rec := h.do(t, http.MethodPost, "/orders", buyer, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[placeOrderResponse](t, rec)
	assert.Equal(t, int64(20000), placed.Total)
	assert.Equal(t, "pending", placed.Status)
	assert.Equal(t, "awaiting_payment", placed.Payment)
	assert.Equal(t, 8, h.catalog.Stock("A"))
	assert.Equal(t, 9, h.catalog.Stock("B"))
	assert.Equal(t, 10, h.catalog.Stock("C"))

	cart := decode[cartResponse](t, h.do(t, http.MethodGet, "/cart", buyer, nil))
	assert.Empty(t, cart.Lines)

	checkout := map[string]string{
		"success_url": "https://bazaar.example/thanks",
		"cancel_url":  "https://bazaar.example/cart",
	}
	rec = h.do(t, http.MethodPost, "/orders/"+placed.OrderID+"/checkout-session", buyer, checkout)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	session := decode[checkoutSessionResponse](t, rec)
	assert.NotEmpty(t, session.RedirectURL)
	assert.False(t, session.Reused)

	rec = h.do(t, http.MethodPost, "/orders/"+placed.OrderID+"/checkout-session", buyer, checkout)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[checkoutSessionResponse](t, rec)
	assert.Equal(t, session.SessionID, again.SessionID)
	assert.True(t, again.Reused)
	created, _ := h.gateway.Calls()
	assert.Equal(t, 1, created)

	status := decode[sessionStatusResponse](t, h.do(t, http.MethodGet, "/payments/sessions/"+session.SessionID, "", nil))
	assert.Equal(t, "pending", status.Status)
	assert.True(t, status.StillWaiting)

	require.NoError(t, h.gateway.Complete(session.SessionID))

	rec = h.do(t, http.MethodPost, "/payments/sessions/"+session.SessionID+"/reconcile", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	status = decode[sessionStatusResponse](t, rec)
	assert.Equal(t, "paid", status.Status)
	assert.Equal(t, "completed", status.Outcome)
	assert.True(t, status.Changed)

	status = decode[sessionStatusResponse](t, h.do(t, http.MethodPost, "/payments/sessions/"+session.SessionID+"/reconcile", "", nil))
	assert.Equal(t, "paid", status.Status)
	assert.False(t, status.Changed)

	order := decode[orderResponse](t, h.do(t, http.MethodGet, "/orders/"+placed.OrderID, buyer, nil))
	assert.Equal(t, "paid", order.DisplayState)
	assert.Equal(t, session.SessionID, order.PaymentSessionID)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(10000), order.Items[0].Subtotal)
	assert.Len(t, h.events.named("order.paid"), 1)
}

func TestScenario_OutOfStockLeavesCartAndStock(t *testing.T) {
	h := newHarness(t, nil)
	h.addProduct(t, "A", "Handloom towel", 5000, 1)
	buyer := h.token(t, "buyer-2", domidentity.RoleUser)
	h.fillCart(t, buyer)

	rec := h.do(t, http.MethodPost, "/orders", buyer, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	body := decode[errorResponse](t, rec)
	assert.Equal(t, "out_of_stock", body.Code)
	assert.Equal(t, "A", body.ProductID)

	assert.Equal(t, 1, h.catalog.Stock("A"))
	assert.Equal(t, 10, h.catalog.Stock("B"))
	cart := decode[cartResponse](t, h.do(t, http.MethodGet, "/cart", buyer, nil))
	assert.Equal(t, []cartLineResponse{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}}, cart.Lines)

	orders := decode[[]orderResponse](t, h.do(t, http.MethodGet, "/orders", buyer, nil))
	assert.Empty(t, orders)
}

func TestScenario_NoGatewayPlacesWithoutPayment(t *testing.T) {
	h := newHarness(t, nil)
	buyer := h.token(t, "buyer-3", domidentity.RoleUser)
	h.fillCart(t, buyer)

	assert.JSONEq(t, `{"configured":false}`, h.do(t, http.MethodGet, "/payments/config", "", nil).Body.String())

	rec := h.do(t, http.MethodPost, "/orders", buyer, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	placed := decode[placeOrderResponse](t, rec)
	assert.Equal(t, "pending", placed.Status)
	assert.Equal(t, "not_required", placed.Payment)

	order := decode[orderResponse](t, h.do(t, http.MethodGet, "/orders/"+placed.OrderID, buyer, nil))
	assert.Equal(t, "placed", order.DisplayState)

	rec = h.do(t, http.MethodPost, "/orders/"+placed.OrderID+"/checkout-session", buyer, map[string]string{
		"success_url": "https://bazaar.example/thanks",
		"cancel_url":  "https://bazaar.example/cart",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "not_payable", decode[errorResponse](t, rec).Code)
	created, queried := h.gateway.Calls()
	assert.Zero(t, created)
	assert.Zero(t, queried)
}

func TestRouter_PriceChangeAfterPlacementKeepsTotal(t *testing.T) {
	h := newHarness(t, nil)
	buyer := h.token(t, "buyer-4", domidentity.RoleUser)
	h.fillCart(t, buyer)

	placed := decode[placeOrderResponse](t, h.do(t, http.MethodPost, "/orders", buyer, nil))
	require.NoError(t, h.catalog.SetPrice(context.Background(), "A", 9900))

	order := decode[orderResponse](t, h.do(t, http.MethodGet, "/orders/"+placed.OrderID, buyer, nil))
	assert.Equal(t, int64(20000), order.Total)
	assert.Equal(t, int64(5000), order.Items[0].UnitPrice)
}

func TestRouter_Authentication(t *testing.T) {
	h := newHarness(t, nil)
	buyer := h.token(t, "buyer-5", domidentity.RoleUser)
	admin := h.token(t, "ops", domidentity.RoleAdmin)

	rec := h.do(t, http.MethodGet, "/cart", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[errorResponse](t, rec).Code)

	rec = h.do(t, http.MethodGet, "/admin/orders", buyer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodPut, "/admin/payments/config", buyer, map[string]any{"secret_key": "sk_test_x"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/admin/orders", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_OrdersAreScopedToTheirBuyer(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.token(t, "buyer-6", domidentity.RoleUser)
	other := h.token(t, "buyer-7", domidentity.RoleUser)
	admin := h.token(t, "ops", domidentity.RoleAdmin)
	h.fillCart(t, owner)
	placed := decode[placeOrderResponse](t, h.do(t, http.MethodPost, "/orders", owner, nil))

	rec := h.do(t, http.MethodGet, "/orders/"+placed.OrderID, other, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, placed.OrderID, decode[errorResponse](t, rec).OrderID)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/orders/"+placed.OrderID, admin, nil).Code)
	assert.Len(t, decode[[]orderResponse](t, h.do(t, http.MethodGet, "/admin/orders", admin, nil)), 1)
	assert.Empty(t, decode[[]orderResponse](t, h.do(t, http.MethodGet, "/orders", other, nil)))
}

func TestRouter_PaymentConfiguration(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.token(t, "ops", domidentity.RoleAdmin)

	rec := h.do(t, http.MethodPut, "/admin/payments/config", admin, map[string]any{"secret_key": "pk_test_public"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_failed", decode[errorResponse](t, rec).Code)

	rec = h.do(t, http.MethodPut, "/admin/payments/config", admin, map[string]any{
		"secret_key":        "sk_live_secret123",
		"allowed_countries": []string{"in", "us"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret123")
	assert.JSONEq(t, `{"configured":true,"live":true,"allowed_countries":["IN","US"]}`, rec.Body.String())

	assert.JSONEq(t, `{"configured":true}`, h.do(t, http.MethodGet, "/payments/config", "", nil).Body.String())
}

func TestRouter_AdminStatusOverride(t *testing.T) {
	h := newHarness(t, nil)
	buyer := h.token(t, "buyer-8", domidentity.RoleUser)
	admin := h.token(t, "ops", domidentity.RoleAdmin)
	h.fillCart(t, buyer)
	placed := decode[placeOrderResponse](t, h.do(t, http.MethodPost, "/orders", buyer, nil))
	path := "/admin/orders/" + placed.OrderID + "/status"

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPut, path, admin, map[string]string{"status": "pending"}).Code)

	res := decode[updateOrderStatusResponse](t, h.do(t, http.MethodPut, path, admin, map[string]string{"status": "failed"}))
	assert.True(t, res.Changed)
	assert.Equal(t, "failed", res.Order.Status)

	res = decode[updateOrderStatusResponse](t, h.do(t, http.MethodPut, path, admin, map[string]string{"status": "paid"}))
	assert.False(t, res.Changed)
	assert.Equal(t, "failed", res.Order.Status)
}

func TestRouter_ReconcileGatewayOutageKeepsOrderPending(t *testing.T) {
	h := newHarness(t, nil)
	h.configure(t)
	buyer := h.token(t, "buyer-9", domidentity.RoleUser)
	h.fillCart(t, buyer)
	placed := decode[placeOrderResponse](t, h.do(t, http.MethodPost, "/orders", buyer, nil))
	session := decode[checkoutSessionResponse](t, h.do(t, http.MethodPost, "/orders/"+placed.OrderID+"/checkout-session", buyer, map[string]string{
		"success_url": "https://bazaar.example/thanks",
		"cancel_url":  "https://bazaar.example/cart",
	}))

	h.gateway.FailNextQuery(dompayment.ErrGatewayUnavailable)
	rec := h.do(t, http.MethodPost, "/payments/sessions/"+session.SessionID+"/reconcile", "", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, session.SessionID, decode[errorResponse](t, rec).SessionID)

	order := decode[orderResponse](t, h.do(t, http.MethodGet, "/orders/"+placed.OrderID, buyer, nil))
	assert.Equal(t, "pending", order.Status)

	rec = h.do(t, http.MethodGet, "/payments/sessions/cs_unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_Validation(t *testing.T) {
	h := newHarness(t, nil)
	buyer := h.token(t, "buyer-10", domidentity.RoleUser)

	rec := h.do(t, http.MethodPut, "/cart/items/A", buyer, map[string]int{"quantity": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode[errorResponse](t, rec).Error, "quantity")

	rec = h.do(t, http.MethodPut, "/cart/items/A", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPut, "/cart/items/ghost", buyer, map[string]int{"quantity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "product_removed", decode[errorResponse](t, rec).Code)

	rec = h.do(t, http.MethodPost, "/orders", buyer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "empty_cart", decode[errorResponse](t, rec).Code)
}

func TestRouter_RequestIDIsEchoed(t *testing.T) {
	h := newHarness(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))

	rec = h.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
	assert.Equal(t, "ok", rec.Body.String())
}

func signedWebhook(t *testing.T, payload string) *http.Request {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(sp.Payload))
	req.Header.Set(headerStripeSignature, sp.Header)
	return req
}

func TestRouter_WebhookQueuesReconciliation(t *testing.T) {
	h := newHarness(t, stripe.NewWebhookVerifier(webhookSecret))

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, signedWebhook(t, `{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_42","object":"checkout.session"}}}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	queued := h.events.named("payment.session_notified")
	require.Len(t, queued, 1)
	ev := queued[0].(dompayment.SessionNotifiedEvent)
	assert.Equal(t, "cs_42", ev.SessionID)
	assert.Equal(t, "evt_1", ev.ProviderEventID)

	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, signedWebhook(t, `{"id":"evt_2","object":"event","type":"charge.refunded","data":{"object":{"id":"ch_1","object":"charge"}}}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"ignored":true}`, rec.Body.String())
	assert.Len(t, h.events.named("payment.session_notified"), 1)
}

func TestRouter_WebhookRejections(t *testing.T) {
	h := newHarness(t, stripe.NewWebhookVerifier(webhookSecret))

	req := signedWebhook(t, `{"id":"evt_3","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1","object":"checkout.session"}}}`)
	req.Header.Set(headerStripeSignature, "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decode[errorResponse](t, rec).Code)
	assert.Empty(t, h.events.named("payment.session_notified"))

	h.events.err = errors.New("queue full")
	rec = httptest.NewRecorder()
	h.router.ServeHTTP(rec, signedWebhook(t, `{"id":"evt_4","object":"event","type":"checkout.session.expired","data":{"object":{"id":"cs_2","object":"checkout.session"}}}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	disabled := newHarness(t, nil)
	rec = httptest.NewRecorder()
	disabled.router.ServeHTTP(rec, signedWebhook(t, `{}`))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
