// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Metrics holds every collector relaychat records.
type Metrics struct {
	Registry *prometheus.Registry

	// StreamResults counts finished submissions by final status.
	StreamResults *prometheus.CounterVec

	// Deltas counts content fragments applied to messages.
	Deltas prometheus.Counter

	// StreamDuration observes seconds from placeholder to final status.
	StreamDuration prometheus.Histogram

	// PersistFailures counts failed write-throughs.
	PersistFailures prometheus.Counter
}

// New creates the collectors in a fresh registry that also carries the
// standard Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		StreamResults: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relaychat_stream_results_total",
			Help: "Finished response streams by final status",
		}, []string{"status"}),
		Deltas: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaychat_stream_deltas_total",
			Help: "Content deltas applied to assistant messages",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaychat_stream_duration_seconds",
			Help:    "Seconds from request start to final stream status",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relaychat_persist_failures_total",
			Help: "Failed writes of conversation state to the storage backend",
		}),
	}
}

// ObserveResult records one finished stream.
func (m *Metrics) ObserveResult(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StreamResults.WithLabelValues(status).Inc()
	if elapsed > 0 {
		m.StreamDuration.Observe(elapsed.Seconds())
	}
}

// ObserveDelta records one applied delta.
func (m *Metrics) ObserveDelta() {
	if m == nil {
		return
	}
	m.Deltas.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger log.FieldLogger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
