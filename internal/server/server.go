// Package server exposes the SQL proxy over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/acme/autocert"

	"github.com/wemarka/wmai/internal/log"
	"github.com/wemarka/wmai/internal/observability"
)

// Proxy routes. The sql-executor path is an alias kept for older deployments.
const (
	ExecuteSQLPath  = "/functions/v1/execute-sql"
	SQLExecutorPath = "/functions/v1/sql-executor"
)

// Server routes proxy calls and health checks. It listens either on plain
// HTTP or on HTTPS with an ACME-managed certificate.
type Server struct {
	router *chi.Mux
	proxy  http.Handler

	httpServer   *http.Server
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// JWTSecret, when set, requires callers of the proxy to present a bearer
	// token signed with it.
	JWTSecret string

	// Telemetry, when set, traces and measures every request.
	Telemetry *observability.Telemetry
}

func New(proxy http.Handler) *Server {
	return NewWithConfig(proxy, ServerConfig{})
}

func NewWithConfig(proxy http.Handler, cfg ServerConfig) *Server {
	s := &Server{
		router: chi.NewRouter(),
		proxy:  proxy,
	}
	s.setupRoutes(cfg)
	return s
}

func (s *Server) setupRoutes(cfg ServerConfig) {
	// CORS middleware for browser-based apps. Preflight requests reach the
	// proxy handler, which answers them itself.
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:     []string{"authorization", "x-client-info", "apikey", "content-type"},
		ExposedHeaders:     []string{log.RequestIDHeader},
		AllowCredentials:   false,
		MaxAge:             300,
		OptionsPassthrough: true,
	}))

	// Telemetry wraps the request logger so its line carries the span.
	if cfg.Telemetry != nil {
		s.router.Use(observability.HTTPMiddleware(cfg.Telemetry, "wmai"))
	}
	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.SetHeader("Content-Type", "application/json"))

	s.router.Get("/health", s.handleHealth)

	s.router.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(RequireJWT(cfg.JWTSecret))
		}
		r.Handle(ExecuteSQLPath, s.proxy)
		r.Handle(SQLExecutorPath, s.proxy)
	})
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS serves on addr with a Let's Encrypt certificate for
// cfg.Domain. A plain HTTP server on cfg.HTTPAddr answers ACME challenges and
// redirects everything else to HTTPS.
func (s *Server) ListenAndServeTLS(addr string, cfg HTTPSConfig) error {
	if err := ValidateDomain(cfg.Domain); err != nil {
		return err
	}
	if cfg.CertDir == "" {
		cfg.CertDir = "./certs"
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":80"
	}

	s.autocertMgr = NewAutocertManager(cfg)
	s.httpsServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		TLSConfig:         NewTLSConfig(s.autocertMgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpRedirect = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.autocertMgr.HTTPHandler(HTTPRedirectHandler(cfg.Domain)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http redirect server failed", "addr", cfg.HTTPAddr, "error", err.Error())
		}
	}()

	return s.httpsServer.ListenAndServeTLS("", "")
}

// Shutdown stops whichever listeners were started, HTTPS first so no new
// proxy calls arrive while the redirect listener drains.
func (s *Server) Shutdown(ctx context.Context) error {
	listeners := []struct {
		name string
		srv  *http.Server
	}{
		{"HTTPS server", s.httpsServer},
		{"HTTP redirect server", s.httpRedirect},
		{"HTTP server", s.httpServer},
	}

	var errs []error
	for _, l := range listeners {
		if l.srv == nil {
			continue
		}
		if err := l.srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		}
	}
	return errors.Join(errs...)
}
