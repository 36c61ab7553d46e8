package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/core"
	"github.com/VanDung-dev/HieraChain-BlockSTM/hierachain-engine/types"
)

func TestObserveBlock(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.ObserveBlock(&core.BlockOutput{
		Mode: core.ModeParallel,
		Results: []core.TxnResult{
			{Index: 0, Status: types.Keep()},
			{Index: 1, Status: types.KeepFailed("insufficient balance")},
			{Index: 2, Status: types.Retry()},
			{Index: 3, Status: types.Keep()},
		},
		Stats: core.Stats{Workers: 4, Executions: 6, Validations: 7, ValidationAborts: 2, Dependencies: 1},
	}, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlocksTotal.WithLabelValues("parallel")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("keep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionsTotal.WithLabelValues("retry")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Executions))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Validations))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ValidationAborts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dependencies))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Workers))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BlockLatency))
}

func TestRecordFallbackAndRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordFallback(core.FallbackModuleConflict)
	m.RecordFallback(core.FallbackModuleConflict)
	m.RecordRequest("arrow", "ok", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.FallbacksTotal.WithLabelValues("module_conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("arrow", "ok")))
}

func TestSeparateRegistries(t *testing.T) {
	// Registering twice on distinct registries must not panic.
	a := NewMetrics(prometheus.NewRegistry(), "test")
	b := NewMetrics(prometheus.NewRegistry(), "test")
	a.RecordFallback(core.FallbackIncarnationLimit)
	assert.Equal(t, 0.0, testutil.ToFloat64(b.FallbacksTotal.WithLabelValues("incarnation_limit")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")
	m.RecordFallback(core.FallbackSpeculativeAbort)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.True(t, strings.Contains(string(body), `test_fallbacks_total{reason="speculative_abort"} 1`))
}
