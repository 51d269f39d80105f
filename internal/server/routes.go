// Package server sets up the HTTP server and registers API routes for go-certgen.
//
// RegisterRoutes returns an http.Handler with all API endpoints for sessions,
// certificate generation and verification.
//
// Expected outputs:
// - Session endpoints are available under /api/sessions
// - Verification is available under /api/verify and /verify
// - CORS and logging middleware are enabled
package server

import (
	"net"
	"net/http"

	_ "go-certgen/docs"
	"go-certgen/internal/handlers"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// Only allow requests from localhost to /swagger/*
func localhostOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, _ := net.SplitHostPort(r.RemoteAddr)
		if host != "127.0.0.1" && host != "::1" && host != "localhost" {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) RegisterRoutes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.With(localhostOnly).Get("/swagger/*", httpSwagger.WrapHandler)

	h := handlers.NewAPIHandler(s.SessionManager, s.UploadDir, s.OutputDir, s.Deps)
	r.Route("/api/sessions", func(api chi.Router) {
		api.Post("/", h.CreateSession)
		api.Post("/{sessionID}/template", h.UploadTemplate)
		api.Post("/{sessionID}/data", h.UploadData)
		api.Post("/{sessionID}/signature", h.UploadSignature)
		api.Post("/{sessionID}/actions/analyze", h.Analyze)
		api.Post("/{sessionID}/actions/generate", h.Generate)
		api.Get("/{sessionID}/files/{filename}", h.DownloadFile)
	})
	r.Get("/api/verify/{certID}", h.VerifyAPI)
	r.Get("/verify/{certID}", h.VerifyPage)

	return r
}
