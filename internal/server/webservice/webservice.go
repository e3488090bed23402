// Package webservice provides the HTTP server that stores uploaded files and
// serves namespace listings, downloads and usage information.
package webservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dropdock/dropdock/internal/server/metrics"
	"github.com/dropdock/dropdock/internal/server/sessions"
	"github.com/dropdock/dropdock/internal/server/webservice/handlers"
)

// Server is a struct that holds the HTTP server and its configuration.
type Server struct {
	httpServer *http.Server
	cm         dConfigManager
	spool      *sessions.Store

	// This context is used to interrupt any action.
	// It must be the parent of gracefulCtx.
	ctx    context.Context
	cancel context.CancelFunc

	// This context waits until the next blocking Recv to interrupt.
	gracefulCtx    context.Context
	gracefulCancel context.CancelFunc
}

// StaticConfig holds the static configuration for the server.
type StaticConfig struct {
	ConfigPath string
	FilesDir   string
	JournalDir string
	SpoolDir   string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	RequestTimeout  time.Duration
	MaxHeaderBytes  int
	MaxUploadBytes  int
	SessionStaleAge time.Duration

	ListenHost string
	ListenPort int
}

type dConfigManager interface {
	Load() error
	Watch(context.Context) (<-chan struct{}, <-chan error, error)
	IsAllowed(string) bool
	Quota(string) int64
	AllowList() []string
}

// New creates a new Server instance with the given config manager and static configuration.
func New(ctx context.Context, cm dConfigManager, registry prometheus.Registerer, sc StaticConfig) (*Server, error) {
	if err := cm.Load(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}

	spool, err := sessions.New(sc.SpoolDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	gCtx, gCancel := context.WithCancel(ctx)

	s := Server{
		cm:     cm,
		spool:  spool,
		ctx:    ctx,
		cancel: cancel,

		gracefulCtx:    gCtx,
		gracefulCancel: gCancel}

	mm := metrics.NewRequestMetrics(registry)
	store := handlers.NewStore(cm, sc.FilesDir, sc.JournalDir, int64(sc.MaxUploadBytes),
		handlers.WithUploadRecorder(mm))
	sessionsHandler := handlers.NewSessions(store, spool)

	mux := http.NewServeMux()
	mux.Handle("POST /v1/{namespace}/files/{path...}", mm.Instrument("upload", handlers.NewUpload(store)))
	mux.Handle("GET /v1/{namespace}/files/{path...}", mm.Instrument("download", handlers.NewDownload(store)))
	mux.Handle("GET /v1/{namespace}/entries", mm.Instrument("entries", handlers.NewEntries(store)))
	mux.Handle("GET /v1/{namespace}/entries/{path...}", mm.Instrument("entries", handlers.NewEntries(store)))
	mux.Handle("POST /v1/{namespace}/folders/{path...}", mm.Instrument("folders", handlers.NewFolders(store)))
	mux.Handle("POST /v1/{namespace}/sessions", mm.Instrument("session_start", http.HandlerFunc(sessionsHandler.Start)))
	mux.Handle("PATCH /v1/{namespace}/sessions/{id}", mm.Instrument("session_append", http.HandlerFunc(sessionsHandler.Append)))
	mux.Handle("POST /v1/{namespace}/sessions/{id}/commit", mm.Instrument("session_commit", http.HandlerFunc(sessionsHandler.Commit)))
	mux.Handle("GET /v1/{namespace}/usage", mm.Instrument("usage", handlers.NewUsage(store)))
	mux.Handle("GET /version", mm.Instrument("version", http.HandlerFunc(handlers.VersionHandler)))

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", sc.ListenHost, sc.ListenPort),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		Handler:        http.TimeoutHandler(mux, sc.RequestTimeout, ""),
		MaxHeaderBytes: sc.MaxHeaderBytes,
	}

	if sc.SessionStaleAge > 0 {
		go s.cleanStaleSessions(sc.SessionStaleAge)
	}

	return &s, nil
}

// Run starts the HTTP server and listens for incoming requests.
func (s *Server) Run() error {
	slog.Info("Starting server", "addr", s.httpServer.Addr)

	// already asked to quit?
	select {
	case <-s.gracefulCtx.Done():
		return errors.New("server is already shutting down")
	default:
	}

	_, watchErr, err := s.cm.Watch(s.gracefulCtx)
	if err != nil {
		return fmt.Errorf("failed to start watching configuration: %v", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-s.gracefulCtx.Done():
		slog.Info("Graceful shutdown initiated")
		// use parent ctx so if you call s.cancel() elsewhere it unblocks Shutdown immediately
		if err := s.httpServer.Shutdown(s.ctx); err != nil {
			slog.Error("Graceful shutdown failed", "err", err)
			return err
		}
		slog.Info("Server shut down gracefully")
		// now kill everything else (watchers, handlers, etc.)
		s.cancel()
		return nil

	case err := <-serverErr:
		if err != nil {
			slog.Error("Server encountered error", "err", err)
			s.cancel()
			return err
		}
		// unlikely: ListenAndServe returned nil
		s.cancel()
		return nil
	case err := <-watchErr:
		if err != nil {
			slog.Error("Config watcher encountered unrecoverable error", "err", err)
		}
		errC := s.httpServer.Close()
		s.cancel()

		return errors.Join(err, errC)
	}
}

// Quit shuts down the HTTP server gracefully.
func (s *Server) Quit(force bool) {
	defer s.cancel()

	if force {
		s.httpServer.Close()
		s.cancel()
	} else {
		s.gracefulCancel()
	}
	slog.Info("Server quit")
}

// cleanStaleSessions periodically removes abandoned upload sessions.
func (s *Server) cleanStaleSessions(maxAge time.Duration) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.spool.CleanStale(maxAge); err != nil {
				slog.Warn("Failed to clean stale upload sessions", "err", err)
			}
		}
	}
}
