package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	appcart "github.com/caffeinepub/kodinar-bazaar/internal/application/cart"
	appcheckout "github.com/caffeinepub/kodinar-bazaar/internal/application/checkout"
	apporder "github.com/caffeinepub/kodinar-bazaar/internal/application/order"
	apppaymentconfig "github.com/caffeinepub/kodinar-bazaar/internal/application/paymentconfig"
	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	domidentity "github.com/caffeinepub/kodinar-bazaar/internal/domain/identity"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "kodinar-bazaar.http"
	maxBodyBytes         = 1 << 20
)

// Authenticator turns an Authorization header into a caller.
type Authenticator interface {
	Authenticate(header string) (domidentity.Principal, error)
}

// Deps are the use cases behind the routes. Webhooks may be nil when no
// provider signing secret is configured.
type Deps struct {
	Cart           *appcart.Service
	PlaceOrder     *appcheckout.PlaceOrderUseCase
	PaymentSession *appcheckout.CreatePaymentSessionUseCase
	Reconcile      *appreconcile.UseCase
	GetOrder       *apporder.GetOrderUseCase
	ListOrders     *apporder.ListOrdersUseCase
	UpdateStatus   *apporder.UpdateStatusUseCase
	SetConfig      *apppaymentconfig.SetUseCase
	ConfigStatus   *apppaymentconfig.Status
	Auth           Authenticator
	Webhooks       dompayment.NotificationVerifier
	Publisher      domoutbox.Publisher
}

type Handler struct {
	deps     Deps
	validate *validator.Validate
	log      observability.Logger
	tel      observability.Observability
}

func NewHandler(deps Deps, logger observability.Logger, tel observability.Observability) *Handler {
	tel = observability.OrNop(tel)
	if logger == nil {
		logger = tel.Logger()
	}
	return &Handler{
		deps:     deps,
		validate: newValidator(),
		log:      logger.With(observability.F("component", componentHTTPHandler)),
		tel:      tel,
	}
}

type authMode int

const (
	public authMode = iota
	authenticated
)

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Every route: Trace → request logger + HTTP metrics → access log → auth → handler
	h.handle(r, http.MethodGet, "/health", public, h.handleHealth)

	h.handle(r, http.MethodGet, "/cart", authenticated, h.handleGetCart)
	h.handle(r, http.MethodPut, "/cart/items/{productID}", authenticated, h.handleSetCartItem)
	h.handle(r, http.MethodDelete, "/cart/items/{productID}", authenticated, h.handleRemoveCartItem)
	h.handle(r, http.MethodDelete, "/cart", authenticated, h.handleClearCart)

	h.handle(r, http.MethodPost, "/orders", authenticated, h.handlePlaceOrder)
	h.handle(r, http.MethodGet, "/orders", authenticated, h.handleListMyOrders)
	h.handle(r, http.MethodGet, "/orders/{orderID}", authenticated, h.handleGetOrder)
	h.handle(r, http.MethodPost, "/orders/{orderID}/checkout-session", authenticated, h.handleCreateCheckoutSession)

	h.handle(r, http.MethodGet, "/payments/sessions/{sessionID}", public, h.handleSessionStatus)
	h.handle(r, http.MethodPost, "/payments/sessions/{sessionID}/reconcile", public, h.handleSessionStatus)
	h.handle(r, http.MethodPost, "/payments/webhook", public, h.handleWebhook)
	h.handle(r, http.MethodGet, "/payments/config", public, h.handlePaymentConfigured)

	h.handle(r, http.MethodPut, "/admin/payments/config", authenticated, h.handleSetPaymentConfig)
	h.handle(r, http.MethodGet, "/admin/orders", authenticated, h.handleListAllOrders)
	h.handle(r, http.MethodPut, "/admin/orders/{orderID}/status", authenticated, h.handleUpdateOrderStatus)

	return r
}

func (h *Handler) handle(r chi.Router, method, pattern string, mode authMode, handler http.HandlerFunc) {
	route := method + " " + pattern

	var next http.Handler = handler
	if mode == authenticated {
		next = h.withAuth(next)
	}
	wrapped := h.withTrace(
		ObservabilityMiddleware(
			h.log,
			func(r *http.Request) string { return r.Header.Get(headerRequestID) },
			h.tel,
		)(h.withAccessLog(next)),
	)

	r.Method(method, pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		// stable route template for low-cardinality labels
		wrapped.ServeHTTP(w, req.WithContext(contextWithRoute(req.Context(), route)))
	}))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withAuth rejects requests without a valid bearer token and places the
// caller on the context. Role checks belong to the use cases.
func (h *Handler) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Auth == nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", domidentity.ErrUnauthenticated)
			return
		}
		p, err := h.deps.Auth.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			logctx.FromOr(r.Context(), h.log).Debug("http_auth_rejected", observability.Err(err))
			writeError(w, http.StatusUnauthorized, "unauthenticated", domidentity.ErrUnauthenticated)
			return
		}
		ctx := domidentity.WithPrincipal(r.Context(), p)
		ctx = logctx.With(ctx, logctx.FromOr(ctx, h.log).With(observability.F("buyer_id", p.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tracer := otel.Tracer(tracerName)
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		spanName := route
		if spanName == "unknown" {
			spanName = r.Method + " " + r.URL.Path
		}
		template := route
		if idx := strings.Index(template, " "); idx >= 0 {
			template = template[idx+1:]
		}
		if template == "unknown" || template == "" {
			template = r.URL.Path
		}

		ctxWithSpan, span := tracer.Start(parentCtx,
			spanName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", template),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctxWithSpan))
	})
}

func principal(r *http.Request) domidentity.Principal {
	p, _ := domidentity.FromContext(r.Context())
	return p
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report json names in validation messages
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var errEmptyBody = errors.New("request body is empty")

// decodeJSON reads a bounded JSON body into dst and validates it.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return h.validateStruct(dst)
}

func (h *Handler) validateStruct(dst any) error {
	err := h.validate.Struct(dst)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
		}
		return errors.New(strings.Join(msgs, "; "))
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
