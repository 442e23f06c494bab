package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"

	domcatalog "github.com/caffeinepub/kodinar-bazaar/internal/domain/catalog"
	domorder "github.com/caffeinepub/kodinar-bazaar/internal/domain/order"
	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	dompayment "github.com/caffeinepub/kodinar-bazaar/internal/domain/payment"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"
)

const (
	envelopeVersion = 1
	writeTimeout    = 5 * time.Second
	peerKafka       = "kafka"
)

// Envelope is the wire format of every forwarded event.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// MessageWriter is the part of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter returns a synchronous writer that hashes on the message key, so
// all events of one order land on one partition in publish order.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Forwarder copies bus events to a Kafka topic.
type Forwarder struct {
	w        MessageWriter
	producer string
	log      observability.Logger
	sent     observability.Counter
	latency  observability.Histogram
}

func NewForwarder(w MessageWriter, producer string, tel observability.Observability) *Forwarder {
	tel = observability.OrNop(tel)
	return &Forwarder{
		w:        w,
		producer: producer,
		log:      tel.Logger().With(observability.F("component", "kafka_forwarder")),
		sent:     tel.Metrics().Counter(observability.MExternalRequests),
		latency:  tel.Metrics().Histogram(observability.MExternalRequestDuration),
	}
}

// Handle is a domoutbox.Handler. A failed write is returned to the bus,
// which logs it; the ledger stays the source of truth.
func (f *Forwarder) Handle(ctx context.Context, e domoutbox.Event) error {
	msg, err := f.message(ctx, e)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	start := time.Now()
	err = f.w.WriteMessages(wctx, msg)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	f.sent.Add(1,
		observability.L(observability.LabelPeer, peerKafka),
		observability.L(observability.LabelEndpoint, e.EventName()),
		observability.L(observability.LabelOutcome, outcome),
	)
	f.latency.Observe(time.Since(start).Seconds(),
		observability.L(observability.LabelPeer, peerKafka),
		observability.L(observability.LabelEndpoint, e.EventName()),
	)
	if err != nil {
		return fmt.Errorf("forward %s: %w", e.EventName(), err)
	}
	logctx.FromOr(ctx, f.log).Debug("event_forwarded", observability.F("key", string(msg.Key)))
	return nil
}

func (f *Forwarder) Close() error { return f.w.Close() }

func (f *Forwarder) message(ctx context.Context, e domoutbox.Event) (kafka.Message, error) {
	payload, occurred := payloadOf(e)
	raw, err := json.Marshal(payload)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s payload: %w", e.EventName(), err)
	}

	var key string
	if k, ok := e.(domoutbox.Keyed); ok {
		key = k.EventKey()
	}
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	env := Envelope{
		EventID:       uuid.NewString(),
		EventType:     e.EventName(),
		EventVersion:  envelopeVersion,
		OccurredAt:    occurred,
		Producer:      f.producer,
		CorrelationID: key,
		Payload:       raw,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		env.TraceID = sc.TraceID().String()
	}
	value, err := json.Marshal(env)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  occurred,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
		},
	}, nil
}

type linePayload struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

func lines(ls []domcatalog.Line) []linePayload {
	out := make([]linePayload, len(ls))
	for i, l := range ls {
		out[i] = linePayload{ProductID: l.ProductID, Qty: l.Quantity}
	}
	return out
}

func payloadOf(e domoutbox.Event) (any, time.Time) {
	switch ev := e.(type) {
	case domorder.OrderPlacedEvent:
		return struct {
			OrderID    string `json:"order_id"`
			BuyerID    string `json:"buyer_id"`
			TotalCents int64  `json:"total_cents"`
			Currency   string `json:"currency"`
			Payment    string `json:"payment"`
			ItemCount  int    `json:"item_count"`
		}{ev.OrderID, ev.BuyerID, ev.Total, ev.Currency, string(ev.Payment), ev.ItemCount}, ev.OccurredAt
	case domorder.PaymentSessionCreatedEvent:
		return struct {
			OrderID   string `json:"order_id"`
			SessionID string `json:"session_id"`
		}{ev.OrderID, ev.SessionID}, ev.OccurredAt
	case domorder.OrderPaidEvent:
		return struct {
			OrderID    string `json:"order_id"`
			SessionID  string `json:"session_id"`
			TotalCents int64  `json:"total_cents"`
		}{ev.OrderID, ev.SessionID, ev.Total}, ev.OccurredAt
	case domorder.OrderPaymentFailedEvent:
		return struct {
			OrderID   string `json:"order_id"`
			SessionID string `json:"session_id"`
		}{ev.OrderID, ev.SessionID}, ev.OccurredAt
	case domcatalog.StockReservedEvent:
		return struct {
			OrderID string        `json:"order_id"`
			Items   []linePayload `json:"items"`
		}{ev.OrderID, lines(ev.Lines)}, ev.OccurredAt
	case domcatalog.StockReleasedEvent:
		return struct {
			BuyerID string        `json:"buyer_id"`
			Items   []linePayload `json:"items"`
			Reason  string        `json:"reason"`
		}{ev.BuyerID, lines(ev.Lines), ev.Reason}, ev.OccurredAt
	case dompayment.SessionNotifiedEvent:
		return struct {
			SessionID       string `json:"session_id"`
			ProviderEventID string `json:"provider_event_id"`
			ProviderType    string `json:"provider_type"`
		}{ev.SessionID, ev.ProviderEventID, ev.ProviderType}, ev.OccurredAt
	default:
		return e, time.Time{}
	}
}
