// Package workers runs one journal drain loop per allowed namespace,
// following the allow-list as the configuration is reloaded.
package workers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Reload events come in bursts while the configuration file is
	// rewritten; hold the resync until they settle.
	settleDelay = 5 * time.Second

	baseRetryDelay = 5 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Pool owns the per-namespace drain loops.
type Pool struct {
	cm   dConfigManager
	proc dProcessor

	mu     sync.Mutex
	drains map[string]context.CancelFunc
	wg     sync.WaitGroup

	active prometheus.Gauge
}

type dConfigManager interface {
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	AllowList() []string
	IsAllowed(string) bool
}

type dProcessor interface {
	Process(ctx context.Context, namespace string) error
}

// New creates a worker pool draining journals through proc for every
// namespace cm allows.
func New(cm dConfigManager, proc dProcessor, reg prometheus.Registerer) (*Pool, error) {
	active := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ingest_active_workers",
		Help: "Number of namespace drain loops currently running.",
	})
	if err := reg.Register(active); err != nil {
		return nil, fmt.Errorf("failed to register active workers gauge: %v", err)
	}

	return &Pool{
		cm:     cm,
		proc:   proc,
		drains: make(map[string]context.CancelFunc),
		active: active,
	}, nil
}

// Run starts a drain loop per allowed namespace and resyncs the set whenever
// the configuration changes. It blocks until the context is canceled and all
// drains have stopped, or until the configuration watch breaks.
//
// Always returns a non-nil error, either the context error or a watch error.
func (p *Pool) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloads, watchErrs, err := p.cm.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	slog.Info("Journal drain pool started")
	p.resync(ctx)

	settle := time.NewTimer(settleDelay)
	if !settle.Stop() {
		<-settle.C
	}
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Context canceled, stopping drain pool")
			p.wg.Wait()
			return ctx.Err()

		case _, ok := <-reloads:
			if !ok {
				return errors.New("configuration reload channel closed unexpectedly")
			}
			if !settle.Stop() {
				select {
				case <-settle.C:
				default:
				}
			}
			settle.Reset(settleDelay)

		case <-settle.C:
			slog.Info("Resyncing namespace drains after configuration change")
			p.resync(ctx)

		case err, ok := <-watchErrs:
			if !ok {
				return errors.New("configuration watch error channel closed unexpectedly")
			}
			if err != nil {
				slog.Error("Configuration watcher error", "err", err)
			}
		}
	}
}

// resync stops drains for namespaces no longer allowed and starts drains for
// newly allowed ones.
func (p *Pool) resync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for namespace, cancel := range p.drains {
		if p.cm.IsAllowed(namespace) {
			continue
		}
		slog.Info("Stopping namespace drain", "namespace", namespace)
		cancel()
		delete(p.drains, namespace)
	}

	for _, namespace := range p.cm.AllowList() {
		if _, ok := p.drains[namespace]; ok {
			continue
		}
		nsCtx, cancel := context.WithCancel(ctx)
		p.drains[namespace] = cancel
		slog.Info("Starting namespace drain", "namespace", namespace)
		p.wg.Add(1)
		go p.drainNamespace(nsCtx, namespace)
	}
}

// drainNamespace catalogs journal records for a single namespace until ctx
// is canceled, backing off after consecutive failures.
func (p *Pool) drainNamespace(ctx context.Context, namespace string) {
	defer p.wg.Done()

	p.active.Inc()
	defer p.active.Dec()

	failures := 0
	for ctx.Err() == nil {
		err := p.proc.Process(ctx, namespace)
		if err == nil {
			failures = 0
			continue
		}
		if errors.Is(err, ctx.Err()) {
			return
		}

		failures++
		slog.Warn("Journal processing failed", "namespace", namespace, "failures", failures, "err", err)
		select {
		case <-time.After(retryDelay(failures)):
		case <-ctx.Done():
			slog.Debug("Namespace drain stopped", "namespace", namespace)
			return
		}
	}
}

// retryDelay jitters up to an exponential cap so failing namespaces do not
// hit the database in lockstep.
func retryDelay(failures int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < failures && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	// #nosec:G404 We don't need cryptographic randomness for jitter.
	return time.Duration(rand.Int63n(int64(delay)))
}
