package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/creator-waitlist/internal/config"
	"github.com/ignite/creator-waitlist/internal/pkg/httputil"
)

// NewRouter configures all routes.
func NewRouter(cfg config.ServerConfig, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	h := NewWaitlistHandlers(deps)

	if deps.Health != nil {
		r.Get("/health", deps.Health.HandleHealth)
		r.Get("/health/live", deps.Health.HandleLiveness)
		r.Get("/health/ready", deps.Health.HandleReadiness)
	}

	r.Route("/api/waitlist", func(r chi.Router) {
		// Public endpoints.
		r.Post("/", h.HandleSignup)
		r.Get("/unsubscribe", h.HandleUnsubscribe)
		r.Post("/unsubscribe", h.HandleUnsubscribe)

		// Internal and operator endpoints.
		r.Group(func(r chi.Router) {
			r.Use(requireAdminToken(cfg.AdminToken))
			r.Post("/notify", h.HandleNotify)
			r.Post("/events", h.HandleEvent)
			r.Get("/stats", h.HandleStats)
		})
	})

	return r
}

// requireAdminToken guards operator routes with a static bearer token. An
// empty token leaves the routes open, which is only sensible behind a
// private network.
func requireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				httputil.Error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
