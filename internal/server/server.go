// Package server wires the dependency graph and defines every route.
//
// COMPOSITION ROOT:
// New() assembles the whole chain in one place:
//
//	sqlite.DB → services (auth, profile, analytics) → handlers → router
//
// Each layer only receives what it needs — services get repository
// interfaces, handlers get services, nothing reaches around a layer.
// main.go stays minimal: load config, call New, call Start.
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
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/cardlink/internal/auth"
	"github.com/sakif/cardlink/internal/config"
	"github.com/sakif/cardlink/internal/handler"
	"github.com/sakif/cardlink/internal/middleware"
	"github.com/sakif/cardlink/internal/qrcode"
	sqliteRepo "github.com/sakif/cardlink/internal/repository/sqlite"
	"github.com/sakif/cardlink/internal/service"
	"github.com/sakif/cardlink/internal/upload"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Server owns the router and the database connection. The connection is
// closed during graceful shutdown, after in-flight requests drain.
type Server struct {
	router   *chi.Mux
	cfg      *config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	limiters []*middleware.IPRateLimiter
}

// New opens the database and assembles the full dependency graph.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Close stops the limiter cleanup goroutines and closes the database.
// Start calls it on shutdown; tests call it directly.
func (s *Server) Close() error {
	for _, l := range s.limiters {
		l.Stop()
	}
	return s.db.Close()
}

// setupRoutes configures middleware, builds the service/handler chain, and
// registers every route.
//
// MIDDLEWARE ORDER MATTERS: RequestID first (so everything downstream can
// log it), RealIP before the rate limiters (they key on client IP),
// Recoverer before the logger (a panic still gets a logged 500).
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	// === Shared infrastructure ===
	tokens, err := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.JWTRefreshSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	cookies := auth.NewCookieWriter(s.cfg.IsProduction())
	google := auth.NewGoogleProvider(s.cfg.GoogleClientID, s.cfg.GoogleClientSecret, s.cfg.GoogleCallbackURL)
	requireAuth := auth.RequireAuth(tokens)

	// === Services ===
	authService := service.NewAuthService(s.db, tokens, auth.NewPasswordService(), s.logger)
	profileService := service.NewProfileService(s.db, qrcode.New(s.cfg.UploadDir), s.cfg.FrontendURL, s.logger)
	analyticsService := service.NewAnalyticsService(s.db, s.db, s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, google, cookies, s.cfg.FrontendURL, s.logger)
	profileHandler := handler.NewProfileHandler(profileService, upload.New(s.cfg.UploadDir), s.logger)
	analyticsHandler := handler.NewAnalyticsHandler(analyticsService, s.logger)

	// Separate limiters: probing login must not burn the register budget.
	loginLimiter := middleware.NewIPRateLimiter(s.cfg.LoginRateLimit, s.cfg.LoginRateWindow)
	registerLimiter := middleware.NewIPRateLimiter(s.cfg.RegisterRateLimit, s.cfg.RegisterRateWindow)
	s.limiters = append(s.limiters, loginLimiter, registerLimiter)

	// === Infrastructure routes ===
	s.router.Get("/", s.handleRoot)
	s.router.Get("/health", s.handleHealth)

	// QR images and avatars are plain static files under the upload dir.
	fileServer := http.FileServer(http.Dir(s.cfg.UploadDir))
	s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", fileServer))

	// === API routes ===
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(registerLimiter.Handler).Post("/register", authHandler.HandleRegister)
			r.With(loginLimiter.Handler).Post("/login", authHandler.HandleLogin)
			r.Post("/refresh", authHandler.HandleRefresh)
			r.Post("/logout", authHandler.HandleLogout)
			r.With(requireAuth).Get("/me", authHandler.HandleMe)

			r.Get("/google", authHandler.HandleGoogleLogin)
			r.Get("/google/callback", authHandler.HandleGoogleCallback)
		})

		r.Route("/profiles", func(r chi.Router) {
			// Authenticated routes first: chi matches literal segments
			// before wildcards, but keeping /{slug} registered LAST makes
			// the precedence explicit to readers too.
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/", profileHandler.HandleCreate)
				r.Get("/my-profiles", profileHandler.HandleListMine)
				r.Post("/upload-avatar", profileHandler.HandleUploadAvatar)
				r.Get("/edit/{id}", profileHandler.HandleGetForEdit)
				r.Post("/{id}/regenerate-qr", profileHandler.HandleRegenerateQR)
				r.Put("/{id}", profileHandler.HandleUpdate)
				r.Delete("/{id}", profileHandler.HandleDelete)
			})

			// Public card page — what a scanned QR code resolves to.
			r.Get("/{slug}", profileHandler.HandleGetBySlug)
		})

		r.Route("/analytics", func(r chi.Router) {
			// Tracking is anonymous; the dashboard is owner-only.
			r.Post("/track", analyticsHandler.HandleTrack)
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/{profileId}", analyticsHandler.HandleGetSummary)
				r.Get("/{profileId}/export", analyticsHandler.HandleExportCSV)
			})
		})
	})

	return nil
}

// handleRoot identifies the service.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"service":"cardlink-api","version":%q,"status":"running"}`, Version)
}

// handleHealth reports database connectivity: 200 when the ping succeeds,
// 503 otherwise. Load balancers poll this.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unhealthy","database":"unreachable"}`))
		return
	}
	w.Write([]byte(`{"status":"healthy","database":"connected"}`))
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s
// budget), close the database (flushes the WAL, releases the file lock).
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.cfg.Port),
			slog.String("environment", s.cfg.Environment),
			slog.String("database", s.cfg.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Router exposes the configured mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
