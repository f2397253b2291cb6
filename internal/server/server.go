package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/libranet/apiserver/config"
	"github.com/libranet/apiserver/internal/db"
	"github.com/libranet/apiserver/internal/handlers"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	services   *Services
}

// New constructs a Server with basic middleware and defaults.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	svc, err := NewServices(ctx, cfg, dbConn, logger)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	router := NewRouter(cfg, svc)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		services:   svc,
	}, nil
}

// NewRouter mounts every API and page route on a chi router.
func NewRouter(cfg config.Config, svc *Services) *chi.Mux {
	authn := handlers.NewAuthenticator(svc.Tokens)
	cookies := handlers.CookieConfig{
		Secure: cfg.Auth.CookieSecure,
		MaxAge: svc.Tokens.TTL(),
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	handlers.UserRouter(router, svc.Users, authn, cookies)
	handlers.BookRouter(router, svc.Books, authn.RequireAuth)
	handlers.BookRequestRouter(router, svc.Requests, authn.RequireAuth)
	handlers.TransactionRouter(router, svc.Loans, authn.RequireAuth)
	handlers.PageRouter(router, cfg.StaticDir)
	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, then releases the database and
// broker connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.services != nil {
		_ = s.services.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
