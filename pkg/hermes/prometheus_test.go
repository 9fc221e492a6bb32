package hermes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheusMetrics(reg)

	// Test Counter
	m.IncCounter("test_counter", 1, Label{Key: "tag", Value: "A"})
	m.IncCounter("test_counter", 2, Label{Key: "tag", Value: "A"})

	// Test Histogram
	m.ObserveHistogram("test_histogram", 0.5, Label{Key: "tag", Value: "B"})

	// Test Gauge
	m.SetGauge("test_gauge", 10, Label{Key: "tag", Value: "C"})
	m.SetGauge("test_gauge", 20, Label{Key: "tag", Value: "C"})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.counters["test_counter"].WithLabelValues("A")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.gauges["test_gauge"].WithLabelValues("C")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.histograms["test_histogram"]))

	// A second instance on the same registry shares the collectors.
	again := NewPrometheusMetrics(reg)
	again.IncCounter("test_counter", 1, Label{Key: "tag", Value: "A"})
	assert.Equal(t, 4.0, testutil.ToFloat64(m.counters["test_counter"].WithLabelValues("A")))
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusMetrics(reg).SetGauge("persephone_test_gauge", 7)

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "persephone_test_gauge 7")
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewSlogAdapterFor(&buf, "json", "info")
	require.NoError(t, err)

	ctx := context.Background()
	logger.Info(ctx, "Backtest finished", map[string]any{"backend": "arima", "mape": 0.12})
	logger.Warn(ctx, "Gate failed", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Backtest finished", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "arima", entry["backend"])
	assert.Equal(t, 0.12, entry["mape"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	assert.Equal(t, "WARN", entry["level"])
}

func TestSlogAdapter_Options(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewSlogAdapterFor(&buf, "text", "error")
	require.NoError(t, err)
	logger.Info(context.Background(), "hidden", nil)
	logger.Error(context.Background(), "shown", map[string]any{"k": 1})
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown k=1")

	_, err = NewSlogAdapterFor(&buf, "xml", "info")
	assert.Error(t, err)
	_, err = NewSlogAdapterFor(&buf, "json", "loud")
	assert.Error(t, err)
}
