// Package httpserver exposes the registry's read-only API over HTTP: material
// lookups, credential and transfer listings, paginated history, and the
// verification predicate. Write operations stay in-process.
//
// Readiness is derived from the things the API actually depends on — the
// registry's writer loop and the artifact store — plus an operator-driven
// drain flag, so a drained or degraded instance reports the concrete causes
// instead of a bare 503.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"

	"github.com/bioledger/bioregistry/common"
	"github.com/bioledger/bioregistry/interfaces"
	"github.com/bioledger/bioregistry/metrics"
)

// RegistryStatus is the slice of registry state the health endpoints report
// on. *registry.Registry satisfies it.
type RegistryStatus interface {
	BlockHeight() uint64
	Draining() bool
}

// HTTPServerConfig holds the listener and lifecycle settings.
type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string
	EnablePprof bool
	Log         *slog.Logger

	// Metrics injects an externally created metrics listener whose collector
	// is already wired into the registry. When nil and MetricsAddr is set, a
	// fresh one is created.
	Metrics *metrics.MetricsServer

	// DrainDuration is the advisory window reported to load balancers by the
	// drain endpoint.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// Server wires the API handler, health endpoints and the metrics listener.
type Server struct {
	cfg      *HTTPServerConfig
	log      *slog.Logger
	status   RegistryStatus
	store    interfaces.ArtifactStore
	draining atomic.Bool

	srv        *http.Server
	metricsSrv *metrics.MetricsServer
	collector  *metrics.Collector
	handler    *Handler
}

// ServerOption configures optional server dependencies.
type ServerOption func(*Server)

// WithRegistryStatus ties readiness to the registry's writer state and
// reports its block height on health responses.
func WithRegistryStatus(status RegistryStatus) ServerOption {
	return func(srv *Server) { srv.status = status }
}

// WithArtifactStoreHealth includes the artifact store's availability in
// readiness checks.
func WithArtifactStoreHealth(store interfaces.ArtifactStore) ServerOption {
	return func(srv *Server) { srv.store = store }
}

// New creates the server. When MetricsAddr is set and no metrics listener is
// injected, New also creates a metrics listener whose collector is returned by
// Collector.
func New(cfg *HTTPServerConfig, handler *Handler, opts ...ServerOption) (*Server, error) {
	srv := &Server{
		cfg:     cfg,
		log:     cfg.Log,
		handler: handler,
	}
	for _, opt := range opts {
		opt(srv)
	}

	switch {
	case cfg.Metrics != nil:
		srv.metricsSrv = cfg.Metrics
	case cfg.MetricsAddr != "":
		collector, metricsSrv, err := metrics.New(common.PackageName, cfg.MetricsAddr)
		if err != nil {
			return nil, err
		}
		srv.collector = collector
		srv.metricsSrv = metricsSrv
	}

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

// Collector returns the metrics collector, nil when metrics are disabled or
// when the metrics listener was injected through HTTPServerConfig.Metrics.
func (srv *Server) Collector() *metrics.Collector {
	return srv.collector
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	mux.With(srv.httpLogger).Get("/api/v1/materials/{material_id}", srv.handler.HandleGetMaterial)
	mux.With(srv.httpLogger).Get("/api/v1/materials/{material_id}/credentials", srv.handler.HandleGetCredentials)
	mux.With(srv.httpLogger).Get("/api/v1/materials/{material_id}/transfers", srv.handler.HandleGetTransfers)
	mux.With(srv.httpLogger).Get("/api/v1/materials/{material_id}/history", srv.handler.HandleGetHistory)
	mux.With(srv.httpLogger).Get("/api/v1/materials/{material_id}/verify", srv.handler.HandleVerify)

	mux.With(srv.httpLogger).Get("/livez", srv.handleLiveness)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadiness)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

// healthStatus is the payload of every health and lifecycle endpoint.
type healthStatus struct {
	Status       string   `json:"status"`
	Version      string   `json:"version,omitempty"`
	BlockHeight  *uint64  `json:"block_height,omitempty"`
	Problems     []string `json:"problems,omitempty"`
	DrainSeconds int64    `json:"drain_seconds,omitempty"`
}

func (srv *Server) writeHealth(w http.ResponseWriter, code int, st healthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(st); err != nil {
		srv.log.Error("Failed to encode health response", "err", err)
	}
}

// readinessProblems collects everything currently standing between this
// instance and serving traffic.
func (srv *Server) readinessProblems(ctx context.Context) []string {
	var problems []string
	if srv.draining.Load() {
		problems = append(problems, "draining")
	}
	if srv.status != nil && srv.status.Draining() {
		problems = append(problems, "registry writer stopped")
	}
	if srv.store != nil && !srv.store.Available(ctx) {
		problems = append(problems, "artifact store unavailable")
	}
	return problems
}

func (srv *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	srv.writeHealth(w, http.StatusOK, healthStatus{Status: "alive", Version: common.Version})
}

func (srv *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	st := healthStatus{}
	if srv.status != nil {
		height := srv.status.BlockHeight()
		st.BlockHeight = &height
	}

	if problems := srv.readinessProblems(r.Context()); len(problems) > 0 {
		st.Status = "not ready"
		st.Problems = problems
		srv.writeHealth(w, http.StatusServiceUnavailable, st)
		return
	}
	st.Status = "ready"
	srv.writeHealth(w, http.StatusOK, st)
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	if srv.draining.CompareAndSwap(false, true) {
		srv.log.Info("Drain requested, readiness withdrawn",
			slog.Duration("advisoryWindow", srv.cfg.DrainDuration))
	}
	srv.writeHealth(w, http.StatusOK, healthStatus{
		Status:       "draining",
		DrainSeconds: int64(srv.cfg.DrainDuration / time.Second),
	})
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	if srv.draining.CompareAndSwap(true, false) {
		srv.log.Info("Undrain requested, readiness restored")
	}
	srv.writeHealth(w, http.StatusOK, healthStatus{Status: "ready"})
}

// ListenAndServe runs the API and metrics listeners until ctx is cancelled,
// then withdraws readiness and shuts both down gracefully. It returns the
// first listener error, or nil on a clean shutdown.
func (srv *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api listener: %w", err)
		}
	}()
	if srv.metricsSrv != nil {
		go func() {
			srv.log.Info("Starting metrics server", "metricsAddress", srv.cfg.MetricsAddr)
			if err := srv.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics listener: %w", err)
			}
		}()
	}

	select {
	case err := <-errCh:
		srv.stop()
		return err
	case <-ctx.Done():
		srv.stop()
		return nil
	}
}

// stop withdraws readiness first so health probes fail fast, then closes the
// listeners within the configured grace window.
func (srv *Server) stop() {
	srv.draining.Store(true)

	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()

	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server stopped")
	}
	if srv.metricsSrv != nil {
		if err := srv.metricsSrv.Shutdown(ctx); err != nil {
			srv.log.Error("Metrics server shutdown failed", "err", err)
		}
	}
}
