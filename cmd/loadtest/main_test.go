package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig(t *testing.T) {
	t.Setenv("IBUY_LOADTEST_TOKEN", "env-token")

	cfg, err := parseConfig([]string{"-url=http://api.local/", "-total=10", "-concurrency=2"})
	require.NoError(t, err)
	assert.Equal(t, "http://api.local", cfg.baseURL)
	assert.Equal(t, "env-token", cfg.token)
	assert.Equal(t, modeCheckout, cfg.mode)
	assert.Equal(t, 10, cfg.total)
}

func TestParseConfig_Errors(t *testing.T) {
	t.Setenv("IBUY_LOADTEST_TOKEN", "")

	tests := map[string][]string{
		"checkout without token": {"-mode=checkout"},
		"bad mode":               {"-mode=browse"},
		"zero concurrency":       {"-mode=cart", "-concurrency=0"},
		"zero product":           {"-mode=cart", "-product=0"},
		"unknown flag":           {"-nope"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseConfig(args)
			require.Error(t, err)
		})
	}
}

// fakeStore отвечает как REST API магазина на три вызова сценария.
func fakeStore(t *testing.T, orderStatus int) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var orders atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("POST /store/carts/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "0b5b2b62-5d0f-4a49-9ad2-6e2f1c1f4c11"})
	})
	mux.HandleFunc("POST /store/carts/{id}/items/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /store/orders/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "JWT token", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		orders.Add(1)
		w.WriteHeader(orderStatus)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &orders
}

func TestRunner_Checkout(t *testing.T) {
	srv, orders := fakeStore(t, http.StatusCreated)

	r := &runner{
		cfg: config{
			baseURL: srv.URL, token: "token", productID: 1, quantity: 1,
			mode: modeCheckout, total: 6, concurrency: 3, timeout: time.Second,
		},
		client: srv.Client(),
		col:    newCollector(),
	}
	result := r.run(context.Background())

	assert.EqualValues(t, 6, result.TotalScenarios)
	assert.Zero(t, result.FailedScenarios)
	assert.EqualValues(t, 6, orders.Load())
	assert.EqualValues(t, 6, result.Operations["place_order"].Statuses["201"])
}

func TestRunner_CountsFailures(t *testing.T) {
	srv, _ := fakeStore(t, http.StatusBadRequest)

	r := &runner{
		cfg: config{
			baseURL: srv.URL, token: "token", productID: 1, quantity: 1,
			mode: modeCheckout, total: 2, concurrency: 1, timeout: time.Second,
		},
		client: srv.Client(),
		col:    newCollector(),
	}
	result := r.run(context.Background())

	assert.EqualValues(t, 2, result.FailedScenarios)
	assert.InDelta(t, 1.0, result.ErrorRate, 0.0001)
	assert.EqualValues(t, 2, result.Operations["place_order"].Failed)
}

func TestRunner_CartModeSkipsCheckout(t *testing.T) {
	srv, orders := fakeStore(t, http.StatusCreated)

	r := &runner{
		cfg: config{
			baseURL: srv.URL, productID: 1, quantity: 1,
			mode: modeCart, total: 3, concurrency: 2, timeout: time.Second,
		},
		client: srv.Client(),
		col:    newCollector(),
	}
	result := r.run(context.Background())

	assert.EqualValues(t, 3, result.TotalScenarios)
	assert.Zero(t, orders.Load())
	assert.NotContains(t, result.Operations, "place_order")
}

func TestDispatch_Duration(t *testing.T) {
	jobs := make(chan struct{})
	done := make(chan int)
	go func() {
		n := 0
		for range jobs {
			n++
		}
		done <- n
	}()

	dispatch(context.Background(), jobs, config{duration: 20 * time.Millisecond})
	assert.Positive(t, <-done)
}

func TestLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{4, 1, 3, 2})

	assert.Equal(t, 1.0, summary.Min)
	assert.Equal(t, 4.0, summary.Max)
	assert.Equal(t, 2.5, summary.Avg)
	assert.Equal(t, 2.5, summary.P50)
	assert.Zero(t, buildLatencySummary(nil))
	assert.Zero(t, percentile(nil, 50))
	assert.Zero(t, ratio(1, 0))
}

func TestReportOutput(t *testing.T) {
	col := newCollector()
	col.record(scenarioOp, 10*time.Millisecond, 0, true)
	col.record("create_cart", 5*time.Millisecond, http.StatusCreated, true)
	result := col.buildReport(time.Now(), time.Second)

	var buf bytes.Buffer
	printReport(&buf, result, modeCart)
	assert.Contains(t, buf.String(), "mode=cart total=1 failed=0")
	assert.Contains(t, buf.String(), "create_cart: calls=1")

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeJSONReport(path, result))
	written, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(written, &decoded))
	assert.Equal(t, int64(1), decoded.TotalScenarios)

	require.Error(t, writeJSONReport("../outside.json", result))
	require.Error(t, writeJSONReport("reports/../../outside.json", result))
}

func TestWriteJSONReport_RelativePath(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, writeJSONReport("./report.json", report{}))
	_, err := os.Stat("report.json")
	require.NoError(t, err)
}
