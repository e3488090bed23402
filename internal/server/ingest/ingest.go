// Package ingest runs the journal cataloging service: the worker pool that
// drains upload journals into the database, plus the metrics exporter,
// managed as one unit with a shared lifecycle.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Service ties the journal worker pool and the metrics exporter together.
// Either one stopping requests a graceful stop of the other.
type Service struct {
	pool    WorkerPool
	metrics MetricsServer

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context requests a graceful stop.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc

	teardownTimeout time.Duration

	running chan struct{} // Closed when Run has returned.
}

// WorkerPool drains journal records until its context is canceled.
type WorkerPool interface {
	Run(ctx context.Context) error
}

// MetricsServer serves the scrape endpoint.
type MetricsServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
}

type options struct {
	teardownTimeout time.Duration
}

// Option is a function which tweaks the creation of the Service.
type Option func(*options)

// WithTeardownTimeout overrides how long Run waits for the second subsystem
// once the first one has stopped.
func WithTeardownTimeout(d time.Duration) Option {
	return func(o *options) { o.teardownTimeout = d }
}

var (
	// errServiceClosed is returned when the service is already closed.
	errServiceClosed = errors.New("service closed")

	// ErrTeardownTimeout is returned when the service takes too long to shut down.
	// A force Quit may be required to cleanup the service.
	ErrTeardownTimeout = errors.New("service teardown timed out")
)

// New creates a new ingest service with the provided worker pool and metrics server.
func New(ctx context.Context, pool WorkerPool, metrics MetricsServer, args ...Option) *Service {
	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	opts := options{
		teardownTimeout: 2 * time.Minute,
	}
	for _, arg := range args {
		arg(&opts)
	}

	running := make(chan struct{})
	close(running) // Not running yet, so Quit must not block.
	return &Service{
		pool:    pool,
		metrics: metrics,

		ctx:            ctx,
		cancel:         cancel,
		gracefulCtx:    gCtx,
		gracefulCancel: gCancel,

		teardownTimeout: opts.teardownTimeout,

		running: running,
	}
}

// Run starts the ingest service and blocks until both subsystems have
// stopped, or until one has stopped and the other exceeded the teardown
// timeout.
func (s *Service) Run() error {
	select {
	case <-s.gracefulCtx.Done():
		return errServiceClosed
	default:
	}

	s.running = make(chan struct{})
	defer close(s.running)
	defer s.cancel()

	slog.Info("Ingest service started")

	type result struct {
		subsystem string
		err       error
	}
	results := make(chan result, 2)
	go func() { results <- result{"journal workers", s.drainJournals()} }()
	go func() { results <- result{"metrics exporter", s.serveMetrics()} }()

	first := <-results
	if first.err != nil {
		slog.Error("Ingest subsystem failed", "subsystem", first.subsystem, "err", first.err)
	}
	slog.Info("Waiting for the remaining ingest subsystem", "stopped", first.subsystem)

	select {
	case second := <-results:
		return errors.Join(first.err, second.err)
	case <-time.After(s.teardownTimeout):
		slog.Warn("Ingest service teardown timed out")
		return errors.Join(first.err, ErrTeardownTimeout)
	}
}

// drainJournals runs the worker pool and requests a service stop when it
// returns. A return caused by our own cancellation is not an error.
func (s *Service) drainJournals() error {
	defer s.gracefulCancel()

	err := s.pool.Run(s.gracefulCtx)
	if err == nil || errors.Is(err, s.gracefulCtx.Err()) {
		slog.Info("Journal workers stopped")
		return nil
	}
	return fmt.Errorf("journal workers: %v", err)
}

// serveMetrics runs the metrics exporter and requests a service stop when it
// returns.
func (s *Service) serveMetrics() error {
	defer s.gracefulCancel()

	served := make(chan error, 1)
	go func() {
		err := s.metrics.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		served <- err
	}()

	select {
	case err := <-served:
		if err != nil {
			return fmt.Errorf("metrics exporter: %v", err)
		}
		return nil
	case <-s.ctx.Done():
		slog.Info("Closing metrics exporter", "reason", s.ctx.Err())
		s.metrics.Close()
		return nil
	case <-s.gracefulCtx.Done():
		if err := s.metrics.Shutdown(s.ctx); err != nil {
			return fmt.Errorf("metrics exporter shutdown: %v", err)
		}
		slog.Info("Metrics exporter stopped")
		return nil
	}
}

// Quit stops the ingest service.
// Blocks until the service has finished running.
func (s *Service) Quit(force bool) {
	slog.Info("Stopping ingest service")

	if force {
		s.cancel()
		s.metrics.Close()
	} else {
		s.gracefulCancel()
	}

	<-s.running
}
