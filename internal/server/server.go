// Package server is the Librarium HTTP server with graceful shutdown.
// It serves plain HTTP. TLS is terminated in front of it.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/librarium/internal/api/handlers"
	"github.com/bigkaa/librarium/internal/api/middleware"
	"github.com/bigkaa/librarium/internal/config"
	"github.com/bigkaa/librarium/internal/domain/model"
)

// Server is the Librarium HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New creates the server with its routes and middleware.
// limiter may be nil, which disables rate limiting.
func New(cfg *config.Config, logger *slog.Logger, handler *handlers.APIHandler, jwtAuth *middleware.JWTAuth, limiter *middleware.RateLimiter) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(logger, handler, jwtAuth, limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "http_server")),
		cfg:        cfg,
	}
}

// NewRouter registers every route.
func NewRouter(logger *slog.Logger, h *handlers.APIHandler, jwtAuth *middleware.JWTAuth, limiter *middleware.RateLimiter) http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.RequestLogger(logger))

	limit := func(scope string) func(http.Handler) http.Handler {
		if limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return limiter.Middleware(scope)
	}

	// Probes and metrics are scraped directly, without auth.
	router.Get("/health/live", h.HealthLive)
	router.Get("/health/ready", h.HealthReady)
	router.Get("/metrics", h.GetMetrics)
	router.Get("/.well-known/jwks.json", h.GetJWKS)

	router.Route("/api/v1", func(r chi.Router) {
		// --- Public ---
		r.With(limit("sign-up")).Post("/auth/sign-up", h.SignUp)
		r.With(limit("sign-in")).Post("/auth/sign-in", h.SignIn)
		r.With(limit("card-upload")).Post("/uploads/card", h.UploadCard)

		r.Get("/books", h.ListBooks)
		r.Get("/books/latest", h.LatestBooks)
		r.Get("/books/{id}", h.GetBook)

		// --- Signed-in users ---
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware())
			r.Use(middleware.RequireRole(model.RoleUser))

			r.Post("/books/{id}/borrow", h.BorrowBook)
			r.Get("/me/borrow-records", h.MyBorrowRecords)
		})

		// --- Admins ---
		r.Route("/admin", func(r chi.Router) {
			r.Use(jwtAuth.Middleware())
			r.Use(middleware.RequireRole(model.RoleAdmin))

			r.Get("/dashboard", h.GetDashboard)

			r.Get("/books", h.AdminListBooks)
			r.Post("/books", h.CreateBook)
			r.Put("/books/{id}", h.UpdateBook)
			r.Delete("/books/{id}", h.DeleteBook)

			r.Get("/users", h.ListUsers)
			r.Patch("/users/{id}/status", h.UpdateUserStatus)
			r.Patch("/users/{id}/role", h.UpdateUserRole)
			r.Delete("/users/{id}", h.DeleteUser)

			r.Get("/borrow-records", h.ListBorrowRecords)
			r.Get("/borrow-records/{id}", h.GetBorrowRecord)
			r.Post("/borrow-records/{id}/return", h.ReturnBorrowRecord)

			r.Post("/notices/overdue", h.SendOverdueNotices)
			r.Post("/uploads", h.UploadAsset)
		})
	})

	return router
}

// Run starts the server and waits for SIGINT or SIGTERM, then shuts down
// gracefully.
func (s *Server) Run() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP server started",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		s.logger.Info("Shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Graceful shutdown in progress")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}
