package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRPCCall("client", "mixFetch", "ok", time.Millisecond)
		m.RecordDecode("json", 10)
		m.BlobStaged()
		m.BlobReleased(true)
		m.RecordTransition("loaded", "ready")
		m.RecordModuleFault("primary")
		NewTimer(m, "server", "setupMixFetch").Stop("ok")
	})
	assert.Equal(t, Snapshot{}, m.Snapshot())
}

func TestRecordRPCCall(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	timer := NewTimer(m, "client", "mixFetch")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCInFlight.WithLabelValues("client")))
	timer.Stop("ok")
	NewTimer(m, "client", "mixFetch").Stop("not_ready")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.RPCInFlight.WithLabelValues("client")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("client", "mixFetch", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCCalls.WithLabelValues("client", "mixFetch", "not_ready")))

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalCalls)
	assert.Equal(t, int64(1), snap.FailedCalls)
}

func TestBlobGauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.BlobStaged()
	m.BlobStaged()
	m.BlobReleased(false)
	m.BlobReleased(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlobsStaged))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BlobsPending))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlobsExpired))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics(prometheus.NewRegistry())

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/blobs/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blobs/blob_123", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/blobs/:id", "204")))
}
