package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opencensus.io/stats/view"

	"github.com/filecoin-project/venus-chain/pkg/config"
)

// NewExporter creates a prometheus exporter for every registered view, backed by a
// fresh registry that also carries the go runtime and process collectors.
func NewExporter(namespace string) (*prometheus.Exporter, error) {
	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	pe, err := prometheus.NewExporter(prometheus.Options{
		Namespace: namespace,
		Registry:  registry,
	})
	if err != nil {
		return nil, err
	}
	view.RegisterExporter(pe)
	return pe, nil
}

// RegisterPrometheusEndpoint serves /metrics on the configured address until ctx is done.
// It is a noop when metrics are disabled.
func RegisterPrometheusEndpoint(ctx context.Context, cfg *config.MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}

	pe, err := NewExporter(cfg.Namespace)
	if err != nil {
		return err
	}
	view.SetReportingPeriod(10 * time.Second)

	mux := http.NewServeMux()
	mux.Handle("/metrics", pe)
	srv := &http.Server{
		Addr:              cfg.PrometheusEndpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("failed to serve metrics: %s", err)
		}
	}()
	go func() {
		<-ctx.Done()
		view.UnregisterExporter(pe)
		_ = srv.Close()
	}()
	return nil
}
