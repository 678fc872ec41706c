package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/clientads/adserver/pkg/api/store"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Ad selection is unauthenticated: the requesting client embeds no
	// credential.
	r.Get("/ads/select", s.handleSelectAd)

	// Auth endpoints.
	r.Post("/auth/login", s.handleLogin)
	r.Post("/auth/register", s.handleRegister)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(s.requireAuth)

		r.Get("/me", s.handleMe)
		r.Post("/apps", s.handleAddApp)

		r.Get("/ads", s.handleListAds)
		r.Post("/ads", s.handleCreateAd)
		r.Put("/ads/{id}", s.handleUpdateAd)
		r.Delete("/ads/{id}", s.handleDeleteAd)

		r.Get("/config/{clientId}", s.handleGetConfig)
		r.Put("/config/{clientId}", s.handleUpsertConfig)

		// Admin endpoints.
		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(store.RoleAdmin))

			r.Post("/admin/users", s.handleAdminCreateUser)
		})
	})

	return r
}

// corsMiddleware returns a CORS handler configured from the server config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	origins := s.cfg.Server.CORSOrigins

	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Reflect the requesting origin so credentials work from any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}
