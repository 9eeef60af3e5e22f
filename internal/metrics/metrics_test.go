package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"marketanalytics/webclient/internal/apiclient"
	"marketanalytics/webclient/internal/result"
	"marketanalytics/webclient/internal/store"
)

func find(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			return m
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func TestObserveCall(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveCall("login", 200, apiclient.OutcomeOK, 20*time.Millisecond)
	c.ObserveCall("login", 200, apiclient.OutcomeOK, 30*time.Millisecond)
	c.ObserveCall("login", 401, apiclient.OutcomeHTTP, 10*time.Millisecond)

	ok := find(t, reg, "webclient_api_calls_total", map[string]string{"op": "login", "outcome": "ok"})
	assert.Equal(t, 2.0, ok.GetCounter().GetValue())
	failed := find(t, reg, "webclient_api_calls_total", map[string]string{"outcome": "http_error", "status": "401"})
	assert.Equal(t, 1.0, failed.GetCounter().GetValue())
	latency := find(t, reg, "webclient_api_call_duration_seconds", map[string]string{"op": "login"})
	assert.Equal(t, uint64(3), latency.GetHistogram().GetSampleCount())
}

func TestObserveStoreEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe(store.Event{Kind: store.KindTransition, Slot: store.SlotReviews, Status: result.StatusLoading})
	c.Observe(store.Event{Kind: store.KindTransition, Slot: store.SlotReviews, Status: result.StatusSuccess})
	c.Observe(store.Event{Kind: store.KindNavigation, Screen: store.ScreenProducts})

	m := find(t, reg, "webclient_slot_transitions_total", map[string]string{"slot": "reviews", "status": "success"})
	assert.Equal(t, 1.0, m.GetCounter().GetValue())
	nav := find(t, reg, "webclient_navigations_total", map[string]string{"screen": "products"})
	assert.Equal(t, 1.0, nav.GetCounter().GetValue())
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRequest(http.MethodGet, "", 404)
	RegisterGauge(reg, "webclient_workspaces", "Live workspaces.", func() float64 { return 2 })

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	body, _ := io.ReadAll(w.Body)
	assert.Contains(t, string(body), `webclient_http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, string(body), "webclient_workspaces 2")
}
