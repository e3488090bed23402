// Package metrics gathers and exposes the Prometheus metrics of the dropdock
// daemons: an exporter owning the registry and scrape endpoint, and the
// request instrumentation for the web service handlers.
package metrics

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Exporter owns a daemon's metric registry and serves the scrape endpoint.
// The registry starts out with the standard Go and process collectors;
// daemon-specific collectors register through Registry.
type Exporter struct {
	registry   *prometheus.Registry
	httpServer *http.Server

	mu   sync.RWMutex
	addr net.Addr
}

// Config holds the configuration for the scrape endpoint.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewExporter creates an exporter listening on the configured host and port.
func NewExporter(cfg Config) *Exporter {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &Exporter{
		registry: registry,
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Registry returns the registerer for daemon collectors.
func (e *Exporter) Registry() prometheus.Registerer {
	return e.registry
}

// ListenAndServe starts serving the scrape endpoint. It blocks until the
// exporter is shut down or closed.
func (e *Exporter) ListenAndServe() error {
	listener, err := net.Listen("tcp", e.httpServer.Addr)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.addr = listener.Addr()
	e.mu.Unlock()

	return e.httpServer.Serve(listener)
}

// Shutdown gracefully stops the exporter.
func (e *Exporter) Shutdown(ctx context.Context) error {
	return e.httpServer.Shutdown(ctx)
}

// Close stops the exporter without waiting for in-flight scrapes.
func (e *Exporter) Close() error {
	return e.httpServer.Close()
}

// Addr returns the address the exporter is listening on, or "" before
// ListenAndServe bound its listener.
func (e *Exporter) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.addr == nil {
		return ""
	}
	return e.addr.String()
}
