package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/services/materializer"
)

func family(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/rules/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})

	for _, path := range []string{"/api/rules/a", "/api/rules/b", "/api/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/rules/{id}", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/health", "200")))

	f := family(t, m, "tally_http_requests_total")
	assert.Len(t, f.GetMetric(), 2)
}

func TestRecordMaterialization(t *testing.T) {
	m := New()
	m.RecordMaterialization(&materializer.Report{Succeeded: 7, Failed: 3})
	m.RecordMaterialization(&materializer.Report{Succeeded: 1, Skipped: 2})
	m.RecordMaterialization(nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.batches))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.materializedItems.WithLabelValues("created")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.materializedItems.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.materializedItems.WithLabelValues("skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.materializedItems.WithLabelValues("cancelled")))
}

func TestRecordPreview(t *testing.T) {
	m := New()
	m.RecordPreview(12)
	m.RecordPreview(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.previews))
	h := family(t, m, "tally_occurrences_generated").GetMetric()[0].GetHistogram()
	assert.Equal(t, uint64(2), h.GetSampleCount())
	assert.Equal(t, 15.0, h.GetSampleSum())
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RecordPreview(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "tally_previews_total 1"), body)
	assert.Contains(t, body, "go_goroutines")
}
