// Package metrics holds the Prometheus collectors lakeview exports on
// its metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueriesTotal counts proxy queries by statement and outcome.
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeview_queries_total",
			Help: "Total number of queries served by the proxy",
		},
		[]string{"statement", "status"},
	)
	// QueryDuration is the latency of proxy queries.
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lakeview_query_duration_seconds",
			Help:    "Proxy query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"statement"},
	)
	// ManifestLoads counts schema manifest loads that missed the cache.
	ManifestLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeview_manifest_loads_total",
			Help: "Total number of schema manifest loads",
		},
		[]string{"schema", "status"},
	)
	// SplitWalk counts split generation progress by outcome: "listed" and
	// "pruned" directories, "emitted" splits.
	SplitWalk = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lakeview_split_walk_total",
			Help: "Split generation progress by outcome",
		},
		[]string{"outcome"},
	)
	// BytesRead is the decompressed volume consumed by record cursors.
	BytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeview_record_bytes_read_total",
			Help: "Decompressed bytes consumed by record cursors",
		},
	)
	// RowsRead counts records produced by record cursors.
	RowsRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lakeview_record_rows_read_total",
			Help: "Records produced by record cursors",
		},
	)
)

// Status labels an outcome for the counters above.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Serve exposes the default registry on addr under /metrics until ctx is
// done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
