package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
)

type fakeSession struct {
	session dompayment.Session
	amount  int64
	outcome dompayment.Outcome
}

// Gateway is an in-process payment provider. Sessions stay pending until
// Complete or Expire is called. Used by tests and by deployments without a
// provider account.
type Gateway struct {
	mu          sync.Mutex
	configs     dompayment.ConfigStore
	sessions    map[string]*fakeSession
	idempotency map[string]string
	seq         int
	queryErr    error
	createErr   error
	createCalls int
	queryCalls  int
}

func NewGateway(configs dompayment.ConfigStore) *Gateway {
	return &Gateway{
		configs:     configs,
		sessions:    make(map[string]*fakeSession),
		idempotency: make(map[string]string),
	}
}

func (g *Gateway) IsConfigured(ctx context.Context) bool {
	if g.configs == nil {
		return false
	}
	_, ok := g.configs.Load(ctx)
	return ok
}

func (g *Gateway) CreateSession(ctx context.Context, req dompayment.CreateSessionRequest) (*dompayment.Session, error) {
	if !g.IsConfigured(ctx) {
		return nil, &dompayment.GatewayError{Op: "create_session", Ref: req.OrderID, Err: dompayment.ErrNotConfigured}
	}
	if err := dompayment.ValidateItems(req.Items); err != nil {
		return nil, &dompayment.GatewayError{Op: "create_session", Ref: req.OrderID, Err: err}
	}
	amount, err := dompayment.SumLineItems(req.Items)
	if err != nil {
		return nil, &dompayment.GatewayError{Op: "create_session", Ref: req.OrderID, Err: err}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++

	if g.createErr != nil {
		err := g.createErr
		g.createErr = nil
		return nil, &dompayment.GatewayError{Op: "create_session", Ref: req.OrderID, Err: err}
	}
	if id, ok := g.idempotency[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		s := g.sessions[id].session
		return &s, nil
	}

	g.seq++
	id := "cs_fake_" + strconv.Itoa(g.seq)
	s := dompayment.Session{
		ID:          id,
		OrderID:     req.OrderID,
		RedirectURL: "https://checkout.invalid/pay/" + id,
	}
	g.sessions[id] = &fakeSession{
		session: s,
		amount:  amount,
		outcome: dompayment.OutcomePending,
	}
	if req.IdempotencyKey != "" {
		g.idempotency[req.IdempotencyKey] = id
	}
	return &s, nil
}

func (g *Gateway) QuerySessionStatus(ctx context.Context, sessionID string) (*dompayment.SessionStatus, error) {
	if !g.IsConfigured(ctx) {
		return nil, &dompayment.GatewayError{Op: "query_session", Ref: sessionID, Err: dompayment.ErrNotConfigured}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryCalls++

	if g.queryErr != nil {
		err := g.queryErr
		g.queryErr = nil
		return nil, &dompayment.GatewayError{Op: "query_session", Ref: sessionID, Err: err}
	}
	fs, ok := g.sessions[sessionID]
	if !ok {
		return nil, &dompayment.GatewayError{Op: "query_session", Ref: sessionID, Err: dompayment.ErrSessionNotFound}
	}
	return &dompayment.SessionStatus{
		SessionID: sessionID,
		OrderID:   fs.session.OrderID,
		Outcome:   fs.outcome,
		Details: map[string]string{
			"amount_total": strconv.FormatInt(fs.amount, 10),
			"outcome":      string(fs.outcome),
		},
	}, nil
}

// Complete marks the session as paid.
func (g *Gateway) Complete(sessionID string) error {
	return g.settle(sessionID, dompayment.OutcomeCompleted)
}

// Expire marks the session as abandoned.
func (g *Gateway) Expire(sessionID string) error {
	return g.settle(sessionID, dompayment.OutcomeFailed)
}

// FailNextQuery makes the next status query return err.
func (g *Gateway) FailNextQuery(err error) {
	g.mu.Lock()
	g.queryErr = err
	g.mu.Unlock()
}

// FailNextCreate makes the next session creation return err.
func (g *Gateway) FailNextCreate(err error) {
	g.mu.Lock()
	g.createErr = err
	g.mu.Unlock()
}

func (g *Gateway) Calls() (create, query int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.createCalls, g.queryCalls
}

func (g *Gateway) settle(sessionID string, outcome dompayment.Outcome) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fs, ok := g.sessions[sessionID]
	if !ok {
		return fmt.Errorf("fake gateway: %w: %s", dompayment.ErrSessionNotFound, sessionID)
	}
	fs.outcome = outcome
	return nil
}
