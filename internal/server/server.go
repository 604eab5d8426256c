// Package server is the composition root of the API: it builds the stores,
// services and handlers, mounts them on a chi router and runs the HTTP
// server until it is told to stop.
//
// ROUTES (all under /api/v1, trailing slash optional):
//
//	POST   /auth/signup/                                   anyone (rate limited)
//	POST   /auth/token/                                    anyone (rate limited)
//	GET    /users/me/  PATCH /users/me/                    OwnerOnly
//	*      /users/ /users/{username}/                      AdminOnly
//	*      /categories/ /genres/ /titles/                  AdminWriteOnly
//	*      /titles/{id}/reviews/...  .../comments/...      AuthenticatedOrReadOnly + AuthorOrPrivilegedWrite
//
// The route gates only do collection-level checks; instance checks happen
// in the services where the row is loaded.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/sakif/yamdb/internal/auth"
	"github.com/sakif/yamdb/internal/config"
	"github.com/sakif/yamdb/internal/handler"
	"github.com/sakif/yamdb/internal/middleware"
	"github.com/sakif/yamdb/internal/notify"
	"github.com/sakif/yamdb/internal/policy"
	sqliteRepo "github.com/sakif/yamdb/internal/repository/sqlite"
	"github.com/sakif/yamdb/internal/service"
)

// discussion guards reviews and comments.
var discussion = policy.All("discussion", policy.AuthenticatedOrReadOnly, policy.AuthorOrPrivilegedWrite)

// Server represents the HTTP server and all its dependencies.
// It owns db and closes it when Start returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New wires every layer on top of db. notifier delivers confirmation codes;
// use NewNotifier to pick one from the configuration.
func New(cfg config.Config, db *sqliteRepo.DB, notifier notify.Notifier, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.JWTAccessTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	codes, err := auth.NewCodeGenerator(cfg.CodeLength, cfg.CodeAlphabet)
	if err != nil {
		return nil, fmt.Errorf("creating code generator: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}
	s.setupRoutes(tokens, codes, notifier)
	return s, nil
}

// NewNotifier returns an SMTP notifier when SMTP_HOST is set and a
// log-only notifier otherwise.
func NewNotifier(cfg config.Config, logger *slog.Logger) notify.Notifier {
	if cfg.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; confirmation codes will only be logged")
		return notify.NewLogNotifier(cfg.EmailFrom, logger)
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
		Timeout:  cfg.SMTPTimeout,
	}, logger)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes(tokens *auth.TokenService, codes *auth.CodeGenerator, notifier notify.Notifier) {
	users := s.db.Users()

	// === Services ===
	authService := service.NewAuthService(users, codes, tokens, notifier, s.logger)
	userService := service.NewUserService(users, s.logger)
	categoryService := service.NewTermService("category", s.db.Categories(), s.logger)
	genreService := service.NewTermService("genre", s.db.Genres(), s.logger)
	titleService := service.NewTitleService(s.db.Titles(), s.db.Categories(), s.db.Genres(), s.logger)
	reviewService := service.NewReviewService(s.db.Titles(), s.db.Reviews(), s.logger)
	commentService := service.NewCommentService(s.db.Reviews(), s.db.Comments(), s.logger)

	// === Handlers ===
	authHandler := handler.NewAuthHandler(authService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	categoryHandler := handler.NewTermHandler(categoryService, s.logger)
	genreHandler := handler.NewTermHandler(genreService, s.logger)
	titleHandler := handler.NewTitleHandler(titleService, s.logger)
	reviewHandler := handler.NewReviewHandler(reviewService, s.logger)
	commentHandler := handler.NewCommentHandler(commentService, s.logger)

	// === Global Middleware ===
	// Order matters: the request id must exist before Logger reads it.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.StripSlashes)

	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(tokens, users, s.logger))

		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(s.config.AuthRateLimit, time.Minute))
			r.Post("/signup", authHandler.HandleSignUp)
			r.Post("/token", authHandler.HandleToken)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(middleware.Authorize(policy.OwnerOnly)).Get("/me", userHandler.HandleMe)
			r.With(middleware.Authorize(policy.OwnerOnly)).Patch("/me", userHandler.HandleUpdateMe)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(policy.AdminOnly))
				r.Get("/", userHandler.HandleList)
				r.Post("/", userHandler.HandleCreate)
				r.Get("/{username}", userHandler.HandleGet)
				r.Patch("/{username}", userHandler.HandleUpdate)
				r.Delete("/{username}", userHandler.HandleDelete)
			})
		})

		mountTerms(r, "/categories", categoryHandler)
		mountTerms(r, "/genres", genreHandler)

		r.Route("/titles", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.Authorize(policy.AdminWriteOnly))
				r.Get("/", titleHandler.HandleList)
				r.Post("/", titleHandler.HandleCreate)
				r.Get("/{title_id}", titleHandler.HandleGet)
				r.Patch("/{title_id}", titleHandler.HandleUpdate)
				r.Delete("/{title_id}", titleHandler.HandleDelete)
			})

			r.Route("/{title_id}/reviews", func(r chi.Router) {
				r.Use(middleware.Authorize(discussion))
				r.Get("/", reviewHandler.HandleList)
				r.Post("/", reviewHandler.HandleCreate)
				r.Get("/{review_id}", reviewHandler.HandleGet)
				r.Patch("/{review_id}", reviewHandler.HandleUpdate)
				r.Delete("/{review_id}", reviewHandler.HandleDelete)

				r.Route("/{review_id}/comments", func(r chi.Router) {
					r.Get("/", commentHandler.HandleList)
					r.Post("/", commentHandler.HandleCreate)
					r.Get("/{comment_id}", commentHandler.HandleGet)
					r.Patch("/{comment_id}", commentHandler.HandleUpdate)
					r.Delete("/{comment_id}", commentHandler.HandleDelete)
				})
			})
		})
	})
}

func mountTerms(r chi.Router, pattern string, h *handler.TermHandler) {
	r.Route(pattern, func(r chi.Router) {
		r.Use(middleware.Authorize(policy.AdminWriteOnly))
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleCreate)
		r.Delete("/{slug}", h.HandleDelete)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Start serves until SIGINT or SIGTERM, then drains in-flight requests for
// up to 30 seconds and closes the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
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
