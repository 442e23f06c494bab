package application

import (
	"context"
	"time"

	domoutbox "github.com/caffeinepub/kodinar-bazaar/internal/domain/outbox"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	spanPrefix      = "UC."
	publishPeer     = "outbox"
	publishTimeout  = 300 * time.Millisecond
	outcomeSuccess  = "success"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

// Instrument carries the RED instruments of one use case. Build it once in
// the use case constructor; never inside Execute.
type Instrument struct {
	useCase string
	span    string
	tracer  observability.Tracer
	log     observability.Logger

	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}
	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewInstrument(tel observability.Observability, service, useCase, spanName string) *Instrument {
	tel = observability.OrNop(tel)
	m := tel.Metrics()
	return &Instrument{
		useCase:      useCase,
		span:         spanPrefix + spanName,
		tracer:       tel.Tracer(),
		log:          tel.Logger().With(observability.F("service", service)),
		reqCounter:   m.Counter(observability.MUsecaseRequests),
		durHistogram: m.Histogram(observability.MUsecaseDuration),
		extCounter:   m.Counter(observability.MExternalRequests),
		extHistogram: m.Histogram(observability.MExternalRequestDuration),
	}
}

// Run is one execution of a use case.
type Run struct {
	in      *Instrument
	ctx     context.Context
	span    trace.Span
	start   time.Time
	Logger  observability.Logger
	outcome string
	status  string
	fields  []observability.Field
}

// Begin starts the span and the clock. Always pair with End in a defer.
func (in *Instrument) Begin(ctx context.Context, attrs ...attribute.KeyValue) (context.Context, *Run) {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", in.useCase))
	attrs = append(attrs, attribute.String("use_case", in.useCase))
	ctx, span := in.tracer.Start(ctx, in.span, attrs...)
	return ctx, &Run{
		in:      in,
		ctx:     ctx,
		span:    span,
		start:   time.Now(),
		Logger:  logger,
		outcome: outcomeSuccess,
		status:  "OK",
	}
}

// Fail marks the run as failed with a status code and returns err unchanged.
func (r *Run) Fail(status string, err error) error {
	r.outcome, r.status = outcomeError, status
	return err
}

// Status overrides the status text without changing the outcome.
func (r *Run) Status(status string) { r.status = status }

func (r *Run) Field(key string, value any) {
	r.fields = append(r.fields, observability.F(key, value))
}

func (r *Run) Event(name string, attrs ...attribute.KeyValue) {
	if r.span != nil {
		r.span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

func (r *Run) SetAttributes(attrs ...attribute.KeyValue) {
	if r.span != nil {
		r.span.SetAttributes(attrs...)
	}
}

// End records span status, RED metrics and the use_case_done log line.
func (r *Run) End(err error) {
	lat := time.Since(r.start).Seconds()
	if err != nil && r.outcome == outcomeSuccess {
		r.outcome = outcomeError
		if r.status == "OK" {
			r.status = "ERROR"
		}
	}

	if r.span != nil {
		if err != nil {
			r.span.RecordError(err)
			r.span.SetStatus(codes.Error, r.status)
		} else {
			r.span.SetStatus(codes.Ok, r.status)
		}
		r.span.End()
	}

	r.in.reqCounter.Add(1,
		observability.L(observability.LabelUseCase, r.in.useCase),
		observability.L(observability.LabelOutcome, r.outcome),
	)
	r.in.durHistogram.Observe(lat,
		observability.L(observability.LabelUseCase, r.in.useCase),
	)

	fields := []observability.Field{
		observability.F("outcome", r.outcome),
		observability.F("status", r.status),
		observability.F("latency_seconds", lat),
	}
	if sc := trace.SpanContextFromContext(r.ctx); sc.IsValid() {
		fields = append(fields,
			observability.F("trace_id", sc.TraceID().String()),
			observability.F("span_id", sc.SpanID().String()),
		)
	}
	fields = append(fields, r.fields...)
	if err != nil {
		fields = append(fields, observability.Err(err))
	}

	r.Logger.Info("use_case_done", fields...)
}

// External records one call to a collaborator outside the process.
func (r *Run) External(peer, endpoint string, start time.Time, err error) {
	outcome := outcomeSuccess
	switch {
	case err == nil:
	case context.Cause(r.ctx) != nil:
		outcome = outcomeCanceled
	default:
		outcome = outcomeError
	}
	r.in.extCounter.Add(1,
		observability.L(observability.LabelPeer, peer),
		observability.L(observability.LabelEndpoint, endpoint),
		observability.L(observability.LabelOutcome, outcome),
	)
	r.in.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L(observability.LabelPeer, peer),
		observability.L(observability.LabelEndpoint, endpoint),
	)
}

// Publish hands e to the publisher within a short deadline. Failures are
// logged and recorded on the run; they never fail the use case.
func (r *Run) Publish(ctx context.Context, publisher domoutbox.Publisher, e domoutbox.Event) {
	if publisher == nil || e == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	start := time.Now()
	err := publisher.Publish(pubCtx, e)
	if err == nil && pubCtx.Err() != nil {
		err = pubCtx.Err()
	}
	r.External(publishPeer, e.EventName(), start, err)

	if err != nil {
		r.Field("event_publish_error", err.Error())
		r.Logger.Warn("event_publish_failed",
			observability.F("event", e.EventName()),
			observability.Err(err),
		)
		return
	}
	r.Event(e.EventName())
}
