package observability

const (
	MUsecaseRequests         MetricKey = "usecase_requests_total"
	MUsecaseDuration         MetricKey = "usecase_duration_seconds"
	MHTTPRequests            MetricKey = "http_requests_total"
	MHTTPRequestDuration     MetricKey = "http_request_duration_seconds"
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
	MPaymentReconcile        MetricKey = "payment_reconcile_total"
	MGatewayBreakerState     MetricKey = "payment_gateway_breaker_transitions_total"
)

// Label keys shared by the metric definitions and their call sites.
const (
	LabelUseCase  = "use_case"
	LabelOutcome  = "outcome"
	LabelPeer     = "peer"
	LabelEndpoint = "endpoint"
	LabelMethod   = "method"
	LabelRoute    = "route"
	LabelStatus   = "status"
	LabelState    = "state"
)
