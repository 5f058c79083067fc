package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Recording(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)

	m.CacheHit("memory")
	m.CacheHit("memory")
	m.CacheMiss("redis")
	m.CacheEvicted(3)
	m.SourceFetched("news", "ok", 10*time.Millisecond)
	m.ScoringFailed()
	m.Analyzed(0.4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("redis")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheEvictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SourceFetches.WithLabelValues("news", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.CacheHit("memory")
	m.CacheMiss("memory")
	m.CacheEvicted(1)
	m.SourceFetched("x", "ok", time.Second)
	m.ScoringFailed()
	m.Analyzed(1)
}

func TestHandler_ServesPipelineMetrics(t *testing.T) {
	reg := NewRegistry()
	m := New(reg)
	m.Analyzed(-0.5)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "bitpredector_aggregate_analyses_total 1"))
}
