package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

const (
	componentOutbox    = "outbox"
	defaultQueueSize   = 1024
	defaultConcurrency = 8
	handlerTimeout     = 30 * time.Second

	// AllEvents subscribes a handler to every event name.
	AllEvents = "*"
)

var ErrClosed = errors.New("outbox: bus stopped")

// Bus is an in-process event bus. Events are delivered at most once and are
// lost on shutdown; consumers that need durability re-read the order ledger.
type Bus struct {
	mu          sync.RWMutex
	subs        map[string][]domoutbox.Handler
	queue       chan domoutbox.Event
	startOnce   sync.Once
	stopOnce    sync.Once
	stopped     chan struct{}
	done        chan struct{}
	cancel      context.CancelFunc
	concurrency int
	log         observability.Logger
	delivered   observability.Counter // external_requests_total{peer="outbox_handler",endpoint=event,outcome}
}

type Option func(*Bus)

func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queue = make(chan domoutbox.Event, n)
		}
	}
}

func WithConcurrency(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func NewBus(logger observability.Logger, tel observability.Observability, opts ...Option) *Bus {
	tel = observability.OrNop(tel)
	if logger == nil {
		logger = tel.Logger()
	}
	b := &Bus{
		subs:        make(map[string][]domoutbox.Handler),
		queue:       make(chan domoutbox.Event, defaultQueueSize),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
		concurrency: defaultConcurrency,
		log:         logger.With(observability.F("component", componentOutbox)),
		delivered:   tel.Metrics().Counter(observability.MExternalRequests),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Subscribe(eventName string, h domoutbox.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[eventName] = append(b.subs[eventName], h)
}

func (b *Bus) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
		b.cancel = cancel
		go b.dispatchLoop(bg)
		logctx.FromOr(ctx, b.log).Info("event_bus_started")
	})
}

// Stop refuses new events, delivers what is already queued and waits for
// the dispatcher, bounded by ctx.
func (b *Bus) Stop(ctx context.Context) {
	b.stopOnce.Do(func() {
		close(b.stopped)
		logger := logctx.FromOr(ctx, b.log)

		select {
		case <-b.done:
		case <-ctx.Done():
			logger.Warn("event_bus_drain_aborted", observability.F("pending", len(b.queue)))
		}
		if b.cancel != nil {
			b.cancel()
		}
		logger.Info("event_bus_stopped")
	})
}

func (b *Bus) Publish(ctx context.Context, e domoutbox.Event) error {
	if e == nil {
		return nil
	}
	logger := logctx.FromOr(ctx, b.log).With(observability.F("event", e.EventName()))

	select {
	case <-b.stopped:
		return ErrClosed
	default:
	}

	select {
	case b.queue <- e:
		logger.Debug("event_enqueued")
		return nil
	case <-b.stopped:
		return ErrClosed
	case <-ctx.Done():
		logger.Warn("event_enqueue_aborted", observability.Err(ctx.Err()))
		return ctx.Err()
	}
}

func (b *Bus) dispatchLoop(ctx context.Context) {
	defer close(b.done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-b.queue:
			b.fanout(ctx, e)
		case <-b.stopped:
			// drain what was accepted before Stop
			for {
				select {
				case e := <-b.queue:
					b.fanout(ctx, e)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) handlers(name string) []domoutbox.Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	hs := make([]domoutbox.Handler, 0, len(b.subs[name])+len(b.subs[AllEvents]))
	hs = append(hs, b.subs[name]...)
	hs = append(hs, b.subs[AllEvents]...)
	return hs
}

func (b *Bus) fanout(ctx context.Context, e domoutbox.Event) {
	name := e.EventName()
	handlers := b.handlers(name)
	logger := b.log.With(observability.F("event", name))

	if len(handlers) == 0 {
		logger.Debug("event_dropped_no_subscriber")
		return
	}

	sem := make(chan struct{}, b.concurrency)
	var wg sync.WaitGroup

	for _, h := range handlers {
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			outcome := "success"
			defer func() {
				if r := recover(); r != nil {
					outcome = "panic"
					logger.Error("event_handler_panic",
						observability.F("panic", r),
						observability.F("stack", string(debug.Stack())),
					)
				}
				b.delivered.Add(1,
					observability.L(observability.LabelPeer, "outbox_handler"),
					observability.L(observability.LabelEndpoint, name),
					observability.L(observability.LabelOutcome, outcome),
				)
				<-sem
				wg.Done()
			}()

			hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
			defer cancel()
			hctx = logctx.With(hctx, logger)
			if err := h(hctx, e); err != nil {
				outcome = "error"
				logger.Warn("event_handler_error", observability.Err(err))
			}
		}()
	}

	wg.Wait()
	logger.Debug("event_fanned_out", observability.F("handlers", len(handlers)))
}
