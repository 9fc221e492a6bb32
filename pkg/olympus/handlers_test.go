package olympus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const backtestBody = `{
	"series": {"data": [
		{"week": "2024-W01", "value": 10},
		{"week": "2024-W02", "value": 12},
		{"week": "2024-W03", "value": 11},
		{"week": "2024-W04", "value": 13},
		{"week": "2024-W05", "value": 14}
	]},
	"cutoff": "2024-W04",
	"backend": "mean"
	%s
}`

func post(t *testing.T, srv *httptest.Server, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandlers_Backtest(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewHandlers(svc).Routes())
	defer srv.Close()

	resp := post(t, srv, "/backtests", sprintfBody(""))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.Len(t, report.Results, 1)
	assert.InDelta(t, 6.5, report.Results[0].MSE, 1e-12)

	got, err := http.Get(srv.URL + "/reports/" + report.ID)
	require.NoError(t, err)
	defer got.Body.Close()
	require.Equal(t, http.StatusOK, got.StatusCode)

	var loaded Report
	require.NoError(t, json.NewDecoder(got.Body).Decode(&loaded))
	assert.Equal(t, report.ID, loaded.ID)
}

func TestHandlers_BacktestGateRejected(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewHandlers(svc).Routes())
	defer srv.Close()

	resp := post(t, srv, "/backtests", sprintfBody(`, "gate": "mape < 0.01"`))
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	require.NotNil(t, report.Passed)
	assert.False(t, *report.Passed)
}

func TestHandlers_Errors(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewHandlers(svc).Routes())
	defer srv.Close()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed body", "/backtests", `{`, http.StatusBadRequest},
		{"no series", "/backtests", `{"cutoff": "2024-W04", "backend": "mean"}`, http.StatusBadRequest},
		{"unknown backend", "/backtests", `{"series": {"name": "signups"}, "cutoff": "2024-W04", "backend": "lstm"}`, http.StatusBadRequest},
		{"empty validation", "/backtests", `{"series": {"name": "signups"}, "cutoff": "2030-W01", "backend": "mean"}`, http.StatusBadRequest},
		{"insufficient history", "/backtests", `{"series": {"name": "signups"}, "cutoff": "2024-W02", "backend": "arima", "params": {"order": [3, 0, 0]}}`, http.StatusUnprocessableEntity},
		{"bad gate", "/sweeps", `{"series": {"name": "signups"}, "backend": "mean", "min_train": 4, "gate": "mape +"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp, err := http.Get(srv.URL + "/reports/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/backtests")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandlers_Sweep(t *testing.T) {
	svc, _ := newTestService(t)
	srv := httptest.NewServer(NewHandlers(svc).Routes())
	defer srv.Close()

	resp := post(t, srv, "/sweeps", `{"series": {"name": "signups"}, "backend": "naive", "min_train": 8, "horizon": 2, "step": 2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Len(t, report.Results, 2)
}

func TestHandlers_ListBackends(t *testing.T) {
	svc, _ := newTestService(t)
	rec := httptest.NewRecorder()
	NewHandlers(svc).Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/backends", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["backends"], "prophet")
	assert.Contains(t, body["backends"], "arima")
}

func sprintfBody(extra string) string {
	return fmt.Sprintf(backtestBody, extra)
}
