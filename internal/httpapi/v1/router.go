// Package v1 wires the HTTP surface of the payments service.
// It keeps handlers thin, delegating business rules to the service layer.
package v1

import (
    "log/slog"
    "net/http"

    chi "github.com/go-chi/chi/v5"
    chimw "github.com/go-chi/chi/v5/middleware"

    "github.com/tinoosan/payments/internal/retry"
    "github.com/tinoosan/payments/internal/service/payment"
    "github.com/tinoosan/payments/internal/service/query"
)

// Server wires handlers and middleware using Chi.
type Server struct {
    payments payment.Service
    queries  query.Service
    retry    retry.Retryer
    ready    []ReadyChecker
    log      *slog.Logger
    rt       *chi.Mux
}

// New constructs the HTTP server with routes and middleware. ready lists the
// dependencies probed by /readyz.
func New(payments payment.Service, queries query.Service, retryer retry.Retryer, logger *slog.Logger, ready ...ReadyChecker) *Server {
    r := chi.NewRouter()
    r.Use(chimw.RequestID)
    r.Use(chimw.StripSlashes)
    r.Use(requestLogger(logger))
    r.Use(recoverer(logger))
    r.Use(metricsMiddleware)

    if retryer == nil { retryer = retry.NewExponentialBackOff(retry.Config{MaxAttempts: 1}) }
    s := &Server{
        payments: payments,
        queries:  queries,
        retry:    retryer,
        ready:    ready,
        log:      logger,
        rt:       r,
    }
    s.routes()
    return s
}

// Handler exposes the configured http.Handler.
func (s *Server) Handler() http.Handler { return s.rt }

// routes declares the public HTTP API endpoints and attaches any per-route middleware.
func (s *Server) routes() {
    // Bank webhook
    s.rt.With(s.validateWebhook()).Post("/api/webhook/bank", s.postBankWebhook)
    // Organizations
    s.rt.Get("/api/organizations/{inn}/balance", s.getBalance)
    s.rt.Get("/api/organizations/{inn}/balance/history", s.getBalanceHistory)
    // Admin lookups (read-only)
    s.rt.Get("/api/organizations", s.listOrganizations)
    s.rt.Get("/api/payments", s.searchPayments)
    // Health and metrics (unversioned)
    s.rt.Get("/healthz", s.healthz)
    s.rt.Get("/readyz", s.readyz)
    s.rt.Handle("/metrics", metricsHandler())
}
