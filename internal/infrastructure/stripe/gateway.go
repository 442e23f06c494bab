package stripe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"
	stripego "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/checkout/session"

	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
)

const (
	opCreateSession = "create_session"
	opQuerySession  = "query_session"

	defaultTimeout = 10 * time.Second
)

// Gateway creates and queries Stripe Checkout Sessions. The secret key is
// read from the config store on every call, so an admin update takes effect
// without a restart.
type Gateway struct {
	configs dompayment.ConfigStore
	backend stripego.Backend
	breaker *gobreaker.CircuitBreaker[*stripego.CheckoutSession]
	log     observability.Logger
}

type options struct {
	apiURL     string
	timeout    time.Duration
	transport  http.RoundTripper
	breaker    gobreaker.Settings
	breakerSet bool
}

type Option func(*options)

// WithAPIURL points the client at another API host, e.g. an httptest server.
func WithAPIURL(u string) Option { return func(o *options) { o.apiURL = u } }

func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithTransport(rt http.RoundTripper) Option { return func(o *options) { o.transport = rt } }

func WithBreakerSettings(s gobreaker.Settings) Option {
	return func(o *options) { o.breaker, o.breakerSet = s, true }
}

func NewGateway(configs dompayment.ConfigStore, tel observability.Observability, opts ...Option) *Gateway {
	tel = observability.OrNop(tel)
	o := options{timeout: defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	log := tel.Logger().With(observability.F("component", "stripe_gateway"))

	cfg := &stripego.BackendConfig{
		HTTPClient: &http.Client{
			Timeout:   o.timeout,
			Transport: newCanonicalTransport(o.transport),
		},
		// retries are the caller's decision
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &leveledLogger{log: log},
	}
	if o.apiURL != "" {
		cfg.URL = stripego.String(o.apiURL)
	}

	transitions := tel.Metrics().Counter(observability.MGatewayBreakerState)
	settings := o.breaker
	if !o.breakerSet {
		settings = gobreaker.Settings{
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
		}
	}
	settings.Name = "stripe"
	settings.IsSuccessful = func(err error) bool { return err == nil || !isTransportFailure(err) }
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		transitions.Add(1, observability.L(observability.LabelState, to.String()))
		log.Warn("gateway_breaker_state_changed",
			observability.F("from", from.String()),
			observability.F("to", to.String()),
		)
	}

	return &Gateway{
		configs: configs,
		backend: stripego.GetBackendWithConfig(stripego.APIBackend, cfg),
		breaker: gobreaker.NewCircuitBreaker[*stripego.CheckoutSession](settings),
		log:     log,
	}
}

func (g *Gateway) IsConfigured(ctx context.Context) bool {
	_, ok := g.configs.Load(ctx)
	return ok
}

func (g *Gateway) client(ctx context.Context) (*session.Client, dompayment.Configuration, bool) {
	cfg, ok := g.configs.Load(ctx)
	if !ok {
		return nil, cfg, false
	}
	return &session.Client{B: g.backend, Key: cfg.SecretKey}, cfg, true
}

func (g *Gateway) CreateSession(ctx context.Context, req dompayment.CreateSessionRequest) (*dompayment.Session, error) {
	c, cfg, ok := g.client(ctx)
	if !ok {
		return nil, &dompayment.GatewayError{Op: opCreateSession, Ref: req.OrderID, Err: dompayment.ErrNotConfigured}
	}
	if err := dompayment.ValidateItems(req.Items); err != nil {
		return nil, &dompayment.GatewayError{Op: opCreateSession, Ref: req.OrderID, Err: err}
	}

	params := sessionParams(req, cfg)
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	s, err := g.breaker.Execute(func() (*stripego.CheckoutSession, error) {
		return c.New(params)
	})
	if err != nil {
		return nil, classify(opCreateSession, req.OrderID, err)
	}
	if s.URL == "" {
		return nil, &dompayment.GatewayError{
			Op: opCreateSession, Ref: req.OrderID,
			Err: fmt.Errorf("%w: session %s has no redirect url", dompayment.ErrGatewayRejected, s.ID),
		}
	}
	return &dompayment.Session{ID: s.ID, OrderID: req.OrderID, RedirectURL: s.URL}, nil
}

func (g *Gateway) QuerySessionStatus(ctx context.Context, sessionID string) (*dompayment.SessionStatus, error) {
	c, _, ok := g.client(ctx)
	if !ok {
		return nil, &dompayment.GatewayError{Op: opQuerySession, Ref: sessionID, Err: dompayment.ErrNotConfigured}
	}
	if sessionID == "" {
		return nil, &dompayment.GatewayError{Op: opQuerySession, Err: dompayment.ErrSessionNotFound}
	}

	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx
	s, err := g.breaker.Execute(func() (*stripego.CheckoutSession, error) {
		return c.Get(sessionID, params)
	})
	if err != nil {
		return nil, classify(opQuerySession, sessionID, err)
	}
	return statusOf(s), nil
}

func sessionParams(req dompayment.CreateSessionRequest, cfg dompayment.Configuration) *stripego.CheckoutSessionParams {
	lines := make([]*stripego.CheckoutSessionLineItemParams, 0, len(req.Items))
	for _, it := range req.Items {
		product := &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripego.String(it.Name),
		}
		if it.Description != "" {
			product.Description = stripego.String(it.Description)
		}
		lines = append(lines, &stripego.CheckoutSessionLineItemParams{
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripego.String(it.Currency),
				UnitAmount:  stripego.Int64(it.UnitAmount),
				ProductData: product,
			},
			Quantity: stripego.Int64(int64(it.Quantity)),
		})
	}

	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		LineItems:         lines,
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.OrderID),
	}
	params.AddMetadata("order_id", req.OrderID)
	if len(cfg.AllowedCountries) > 0 {
		params.ShippingAddressCollection = &stripego.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripego.StringSlice(cfg.AllowedCountries),
		}
	}
	return params
}

func outcomeOf(s *stripego.CheckoutSession) dompayment.Outcome {
	switch {
	case s.PaymentStatus == stripego.CheckoutSessionPaymentStatusPaid,
		s.PaymentStatus == stripego.CheckoutSessionPaymentStatusNoPaymentRequired:
		return dompayment.OutcomeCompleted
	case s.Status == stripego.CheckoutSessionStatusExpired:
		return dompayment.OutcomeFailed
	default:
		return dompayment.OutcomePending
	}
}

func statusOf(s *stripego.CheckoutSession) *dompayment.SessionStatus {
	orderID := s.ClientReferenceID
	if orderID == "" {
		orderID = s.Metadata["order_id"]
	}
	outcome := outcomeOf(s)
	return &dompayment.SessionStatus{
		SessionID: s.ID,
		OrderID:   orderID,
		Outcome:   outcome,
		Details: map[string]string{
			"outcome":        string(outcome),
			"status":         string(s.Status),
			"payment_status": string(s.PaymentStatus),
			"amount_total":   strconv.FormatInt(s.AmountTotal, 10),
			"currency":       string(s.Currency),
		},
	}
}

func classify(op, ref string, err error) error {
	var sentinel error
	var se *stripego.Error
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		sentinel = dompayment.ErrGatewayUnavailable
	case errors.As(err, &se):
		switch {
		case se.Code == stripego.ErrorCodeResourceMissing, se.HTTPStatusCode == http.StatusNotFound:
			sentinel = dompayment.ErrSessionNotFound
		case se.HTTPStatusCode == http.StatusTooManyRequests, se.HTTPStatusCode >= 500, se.HTTPStatusCode == 0:
			sentinel = dompayment.ErrGatewayUnavailable
		default:
			sentinel = dompayment.ErrGatewayRejected
		}
	default:
		sentinel = dompayment.ErrGatewayUnavailable
	}
	return &dompayment.GatewayError{Op: op, Ref: ref, Err: fmt.Errorf("%w: %w", sentinel, err)}
}

// isTransportFailure reports failures that say nothing about the request
// itself: the network, provider outages and throttling.
func isTransportFailure(err error) bool {
	var se *stripego.Error
	if errors.As(err, &se) {
		return se.HTTPStatusCode == 0 || se.HTTPStatusCode == http.StatusTooManyRequests || se.HTTPStatusCode >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

type leveledLogger struct{ log observability.Logger }

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.log.Debug("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.log.Debug("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.log.Warn("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.log.Warn("stripe_sdk", observability.F("detail", fmt.Sprintf(format, v...)))
}
