package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Long-lived connections: no timeout, no compression
	r.Group(func(r chi.Router) {
		r.Get("/api/voicecards/events", s.HandleVoiceCardEvents)
		r.Get("/api/blobs/{key}", s.HandleDownloadBlob)
	})

	// API routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))
		r.Use(middleware.Compress(5))

		// Public routes (no auth required)
		r.Post("/api/auth/signup", s.HandleSignup)
		r.Post("/api/auth/signin", s.HandleSignin)
		r.Post("/api/auth/refresh", s.HandleRefreshToken)

		r.Get("/api/voicecards", s.HandleListVoiceCards)
		r.Get("/api/voicecards/{id}", s.HandleGetVoiceCard)
		r.Get("/api/voicecards/{id}/replies", s.HandleListReplies)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)

			r.Post("/api/auth/signout", s.HandleSignout)
			r.Get("/api/me", s.HandleGetCurrentUser)
			r.Patch("/api/me", s.HandleUpdateCurrentUser)
			r.Delete("/api/me", s.HandleDeleteCurrentUser)
			r.Put("/api/blobs/{key}", s.HandleUploadBlob)
			r.Post("/api/voicecards", s.HandleCreateVoiceCard)
		})
	})

	return r
}
