package workerpresentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability/zaplogger"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

type captureSubscriber struct {
	handlers map[string]domoutbox.Handler
}

func (s *captureSubscriber) Subscribe(name string, h domoutbox.Handler) {
	if s.handlers == nil {
		s.handlers = map[string]domoutbox.Handler{}
	}
	s.handlers[name] = h
}

// fakeReconciler returns failures in order, then err.
type fakeReconciler struct {
	calls    []string
	res      *appreconcile.Result
	err      error
	failures []error
}

func (f *fakeReconciler) Execute(_ context.Context, cmd appreconcile.Input) (*appreconcile.Result, error) {
	f.calls = append(f.calls, cmd.SessionID)
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	return f.res, f.err
}

func setup(rec *fakeReconciler) (domoutbox.Handler, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	sub := &captureSubscriber{}
	w := NewReconcileWorker(sub, rec, zaplogger.Wrap(zap.New(core)), nil)
	w.retryDelay = time.Millisecond
	w.Start()
	return sub.handlers["payment.session_notified"], logs
}

func TestReconcileWorker_ReconcilesNotifiedSession(t *testing.T) {
	rec := &fakeReconciler{res: &appreconcile.Result{OrderID: "7", SessionID: "cs_1", Status: domorder.StatusPaid, Changed: true}}
	handle, logs := setup(rec)
	require.NotNil(t, handle)

	err := handle(context.Background(), dompayment.NewSessionNotifiedEvent("cs_1", "evt_9", "checkout.session.completed"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_1"}, rec.calls)

	entries := logs.FilterMessage("payment_notification_reconciled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "evt_9", fields["event_id"])
	assert.Equal(t, "reconcile_worker", fields["component"])
	assert.Equal(t, "7", fields["order_id"])
	assert.Equal(t, "paid", fields["status"])
}

func TestReconcileWorker_TransientFailureIsReturnedAfterRetry(t *testing.T) {
	rec := &fakeReconciler{err: &dompayment.GatewayError{Op: "query_session", Ref: "cs_2", Err: dompayment.ErrGatewayUnavailable}}
	handle, logs := setup(rec)

	err := handle(context.Background(), dompayment.NewSessionNotifiedEvent("cs_2", "evt_1", "checkout.session.completed"))
	assert.ErrorIs(t, err, dompayment.ErrGatewayUnavailable)
	assert.Equal(t, []string{"cs_2", "cs_2"}, rec.calls)
	assert.Equal(t, 1, logs.FilterMessage("payment_notification_retrying").Len())
	assert.Equal(t, 1, logs.FilterMessage("payment_notification_reconcile_failed").Len())
}

func TestReconcileWorker_RetrySucceedsAfterTransientFailure(t *testing.T) {
	rec := &fakeReconciler{
		failures: []error{&dompayment.GatewayError{Op: "query_session", Ref: "cs_3", Err: dompayment.ErrGatewayUnavailable}},
		res:      &appreconcile.Result{OrderID: "8", SessionID: "cs_3", Status: domorder.StatusPaid, Changed: true},
	}
	handle, logs := setup(rec)

	err := handle(context.Background(), dompayment.NewSessionNotifiedEvent("cs_3", "evt_2", "checkout.session.completed"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cs_3", "cs_3"}, rec.calls)
	assert.Zero(t, logs.FilterMessage("payment_notification_reconcile_failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("payment_notification_reconciled").Len())
}

func TestReconcileWorker_CancelledContextSkipsRetry(t *testing.T) {
	rec := &fakeReconciler{err: &dompayment.GatewayError{Op: "query_session", Ref: "cs_4", Err: dompayment.ErrGatewayUnavailable}}
	core, _ := observer.New(zapcore.DebugLevel)
	sub := &captureSubscriber{}
	w := NewReconcileWorker(sub, rec, zaplogger.Wrap(zap.New(core)), nil)
	w.retryDelay = time.Hour
	w.Start()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sub.handlers["payment.session_notified"](ctx, dompayment.NewSessionNotifiedEvent("cs_4", "", "checkout.session.completed"))
	assert.ErrorIs(t, err, dompayment.ErrGatewayUnavailable)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, rec.calls, 1)
}

func TestReconcileWorker_UnknownSessionIsDropped(t *testing.T) {
	rec := &fakeReconciler{err: errors.Join(appreconcile.ErrNotFound, errors.New("no order for session"))}
	handle, logs := setup(rec)

	err := handle(context.Background(), dompayment.NewSessionNotifiedEvent("cs_404", "", "checkout.session.expired"))
	assert.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("payment_notification_unknown_session").Len())
}

func TestReconcileWorker_IgnoresOtherEvents(t *testing.T) {
	rec := &fakeReconciler{}
	handle, _ := setup(rec)

	require.NoError(t, handle(context.Background(), domorder.OrderPaidEvent{OrderID: "1"}))
	assert.Empty(t, rec.calls)
}

func TestWithEventContext_GeneratesEventID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zaplogger.Wrap(zap.New(core))

	ctx := WithEventContext(context.Background(), base, nil, map[string]string{"event": "order.paid", "empty": ""})
	logctx.FromOr(ctx, base).Info("handled")

	fields := logs.All()[0].ContextMap()
	assert.NotEmpty(t, fields["event_id"])
	assert.Equal(t, "order.paid", fields["event"])
	assert.NotContains(t, fields, "empty")
	assert.NotContains(t, fields, "trace_id")
}
