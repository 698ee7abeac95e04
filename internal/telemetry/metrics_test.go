// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveResult("completed", 2*time.Second)
	m.ObserveResult("completed", time.Second)
	m.ObserveResult("cancelled", 0)
	m.ObserveDelta()
	m.ObserveDelta()
	m.PersistFailures.Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.StreamResults.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StreamResults.WithLabelValues("cancelled")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Deltas))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StreamDuration))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveResult("failed", time.Second)
	m.ObserveDelta()
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveDelta()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "relaychat_stream_deltas_total 1")
}

func TestNew_IndependentRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}
