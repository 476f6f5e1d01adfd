package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/revuhq/revu/internal/auth"
	"github.com/revuhq/revu/internal/config"
	"github.com/revuhq/revu/internal/review"
	"github.com/revuhq/revu/internal/server/handler"
	"github.com/revuhq/revu/internal/storage"
	"github.com/revuhq/revu/internal/tasks"
)

// NewRouter creates and configures a new HTTP router with middleware and API
// routes. Auth endpoints are public; everything under /api/review and
// /api/tasks requires a valid access token.
func NewRouter(
	cfg *config.Config,
	svc *review.Service,
	store storage.Store,
	tokens *auth.TokenManager,
	taskMgr *tasks.Manager,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	authHandler := handler.NewAuthHandler(store, tokens, logger)
	reviewHandler := handler.NewReviewHandler(cfg, svc, taskMgr, logger)
	taskHandler := handler.NewTaskHandler(taskMgr)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
		})

		r.Group(func(r chi.Router) {
			r.Use(tokens.Middleware)

			r.Route("/review", func(r chi.Router) {
				r.Post("/upload", reviewHandler.Upload)
				r.Get("/history", reviewHandler.History)
				r.Get("/file", reviewHandler.GetFile)
				r.Post("/remove", reviewHandler.Remove)
			})

			r.Get("/tasks/{id}", taskHandler.Get)
		})
	})

	return r
}
