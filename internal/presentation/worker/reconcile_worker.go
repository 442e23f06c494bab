package workerpresentation

import (
	"context"
	"errors"
	"time"

	appreconcile "github.com/caffeinepub/kodinar-bazaar/internal/application/reconcile"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

const (
	componentReconcileWorker = "reconcile_worker"
	defaultRetryDelay        = 2 * time.Second
)

type Reconciler interface {
	Execute(ctx context.Context, cmd appreconcile.Input) (*appreconcile.Result, error)
}

// ReconcileWorker turns verified provider notifications into reconciliation
// runs. The notification only names the session; the outcome always comes
// from querying the provider.
type ReconcileWorker struct {
	subscriber domoutbox.Subscriber
	reconciler Reconciler
	log        observability.Logger
	tel        observability.Observability
	retryDelay time.Duration
}

func NewReconcileWorker(subscriber domoutbox.Subscriber, reconciler Reconciler, logger observability.Logger, tel observability.Observability) *ReconcileWorker {
	tel = observability.OrNop(tel)
	if logger == nil {
		logger = tel.Logger()
	}
	return &ReconcileWorker{
		subscriber: subscriber,
		reconciler: reconciler,
		log:        logger,
		tel:        tel,
		retryDelay: defaultRetryDelay,
	}
}

func (w *ReconcileWorker) Start() {
	if w.subscriber == nil || w.reconciler == nil {
		return
	}
	w.subscriber.Subscribe(dompayment.SessionNotifiedEvent{}.EventName(), w.handleSessionNotified)
}

func (w *ReconcileWorker) handleSessionNotified(ctx context.Context, e domoutbox.Event) error {
	evt, ok := e.(dompayment.SessionNotifiedEvent)
	if !ok {
		return nil
	}

	ctx = WithEventContext(ctx, logctx.FromOr(ctx, w.log), w.tel, map[string]string{
		"event_id":  evt.ProviderEventID,
		"event":     evt.EventName(),
		"component": componentReconcileWorker,
	})
	logger := logctx.FromOr(ctx, w.log)

	res, err := w.reconciler.Execute(ctx, appreconcile.Input{SessionID: evt.SessionID})
	if err != nil && !errors.Is(err, appreconcile.ErrNotFound) {
		// one more attempt; after that the buyer's status poll reconciles the order
		logger.Info("payment_notification_retrying",
			observability.F("session_id", evt.SessionID),
			observability.F("retry_in", w.retryDelay.String()),
			observability.Err(err),
		)
		if waitErr := sleep(ctx, w.retryDelay); waitErr != nil {
			err = errors.Join(err, waitErr)
		} else {
			res, err = w.reconciler.Execute(ctx, appreconcile.Input{SessionID: evt.SessionID})
		}
	}
	if err != nil {
		if errors.Is(err, appreconcile.ErrNotFound) {
			// sessions opened by another deployment on the same account
			logger.Warn("payment_notification_unknown_session",
				observability.F("session_id", evt.SessionID),
			)
			return nil
		}
		logger.Warn("payment_notification_reconcile_failed",
			observability.F("session_id", evt.SessionID),
			observability.F("provider_event_type", evt.ProviderType),
			observability.Err(err),
		)
		return err
	}

	logger.Info("payment_notification_reconciled",
		observability.F("session_id", evt.SessionID),
		observability.F("order_id", res.OrderID),
		observability.F("status", string(res.Status)),
		observability.F("changed", res.Changed),
	)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
