package observability

import (
	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability/prometrics"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

type registeredMetrics struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram
}

func (m *registeredMetrics) Counter(name observability.MetricKey) observability.Counter {
	if m == nil || m.counters == nil {
		return observability.NopCounter()
	}
	if c, ok := m.counters[name]; ok && c != nil {
		return c
	}
	return observability.NopCounter()
}

func (m *registeredMetrics) Histogram(name observability.MetricKey) observability.Histogram {
	if m == nil || m.histograms == nil {
		return observability.NopHistogram()
	}
	if h, ok := m.histograms[name]; ok && h != nil {
		return h
	}
	return observability.NopHistogram()
}

type counterDef struct {
	key    observability.MetricKey
	help   string
	labels []string
}

type histogramDef struct {
	key     observability.MetricKey
	help    string
	buckets []float64
	labels  []string
}

var counterDefs = []counterDef{
	{observability.MUsecaseRequests, "Total number of use case invocations.",
		[]string{observability.LabelUseCase, observability.LabelOutcome}},
	{observability.MHTTPRequests, "Total number of HTTP requests.",
		[]string{observability.LabelMethod, observability.LabelRoute, observability.LabelStatus}},
	{observability.MExternalRequests, "Calls to collaborators outside the process.",
		[]string{observability.LabelPeer, observability.LabelEndpoint, observability.LabelOutcome}},
	{observability.MPaymentReconcile, "Payment session reconciliations by provider outcome.",
		[]string{observability.LabelOutcome}},
	{observability.MGatewayBreakerState, "Payment gateway circuit breaker state changes.",
		[]string{observability.LabelState}},
}

var histogramDefs = []histogramDef{
	{observability.MUsecaseDuration, "Duration of use case execution in seconds.", nil,
		[]string{observability.LabelUseCase}},
	{observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", nil,
		[]string{observability.LabelMethod, observability.LabelRoute, observability.LabelStatus}},
	{observability.MExternalRequestDuration, "Duration of external calls in seconds.",
		[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		[]string{observability.LabelPeer, observability.LabelEndpoint}},
}

// Instruments creates every metric the service records in reg.
func Instruments(reg prometrics.Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := make(map[observability.MetricKey]observability.Counter, len(counterDefs))
	for _, d := range counterDefs {
		counters[d.key] = reg.Counter(string(d.key), d.help, d.labels...)
	}
	histograms := make(map[observability.MetricKey]observability.Histogram, len(histogramDefs))
	for _, d := range histogramDefs {
		histograms[d.key] = reg.Histogram(string(d.key), d.help, d.buckets, d.labels...)
	}
	return counters, histograms
}

// New assembles an Observability provider backed by the supplied tracer, logger, and metric instruments.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	var metrics observability.Metrics = observability.NopMetrics()
	if len(counters) > 0 || len(histograms) > 0 {
		m := &registeredMetrics{
			counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
			histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
		}
		for k, v := range counters {
			if v != nil {
				m.counters[k] = v
			}
		}
		for k, v := range histograms {
			if v != nil {
				m.histograms[k] = v
			}
		}
		metrics = m
	}

	return &provider{
		tracer:  tracer,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *provider) Tracer() observability.Tracer { return p.tracer }

func (p *provider) Logger() observability.Logger { return p.logger }

func (p *provider) Metrics() observability.Metrics { return p.metrics }
