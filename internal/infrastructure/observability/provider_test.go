package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caffeinepub/kodinar-bazaar/internal/infrastructure/observability/prometrics"
	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
)

func TestProvider_RecordsRegisteredMetrics(t *testing.T) {
	reg := prometrics.New("", "")
	counters, histograms := Instruments(reg)
	tel := New(nil, nil, counters, histograms)

	tel.Metrics().Counter(observability.MPaymentReconcile).Add(1, observability.L(observability.LabelOutcome, "completed"))
	tel.Metrics().Histogram(observability.MUsecaseDuration).Observe(0.2, observability.L(observability.LabelUseCase, "place_order"))
	// wrong label set is dropped, not panicking
	tel.Metrics().Counter(observability.MPaymentReconcile).Add(1, observability.L("bogus", "x"))

	rec := httptest.NewRecorder()
	reg.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `payment_reconcile_total{outcome="completed"} 1`)
	assert.Contains(t, string(body), `usecase_duration_seconds_count{use_case="place_order"} 1`)
}

func TestProvider_UnknownKeysAreNop(t *testing.T) {
	tel := New(nil, nil, nil, nil)
	assert.NotPanics(t, func() {
		tel.Metrics().Counter("nope").Add(1)
		tel.Metrics().Histogram("nope").Observe(1)
		tel.Logger().Info("x")
	})
}

func TestInstruments_RegisteringTwiceReusesCollectors(t *testing.T) {
	reg := prometrics.New("", "")
	Instruments(reg)
	assert.NotPanics(t, func() { Instruments(reg) })
}
