// SPDX-License-Identifier: GPL-3.0-or-later
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass metrics
var (
	PassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_passes_total",
			Help: "Total number of triage passes",
		},
		[]string{"result"},
	)

	PassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "triage_pass_duration_seconds",
			Help:    "Duration of triage passes in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	LastPassTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "triage_last_pass_timestamp_seconds",
			Help: "Unix time of the last pass that got past listing",
		},
	)
)

// Message metrics
var (
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_messages_total",
			Help: "Total number of messages by outcome and the stage they stopped at",
		},
		[]string{"status", "stage"},
	)

	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_decisions_total",
			Help: "Total number of classification decisions by label",
		},
		[]string{"label"},
	)

	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_model_tokens_total",
			Help: "Total number of model tokens consumed",
		},
		[]string{"kind"},
	)
)

const (
	PassOk     = "ok"
	PassFailed = "failed"
)

// Serve exposes the default registry on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
