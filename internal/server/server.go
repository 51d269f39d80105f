// Package server provides the HTTP server setup for go-certgen.
//
// NewServer creates and configures the HTTP server, session manager, and file directories.
//
// Expected outputs:
// - Server listens on the configured port (default 8080)
// - Expired sessions and their files are cleaned up periodically
//
// Usage:
//
//	server := server.NewServer(ctx, cfg, deps)
//	server.ListenAndServe()
//
// See internal/server/routes.go for route registration.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go-certgen/internal/config"
	"go-certgen/internal/handlers"
	"go-certgen/internal/session"

	"go.uber.org/zap"
)

type Server struct {
	SessionManager *session.SessionManager
	UploadDir      string
	OutputDir      string
	Deps           handlers.Dependencies
}

// NewServer builds the HTTP server. The session janitor runs until ctx is
// cancelled.
func NewServer(ctx context.Context, cfg *config.Config, deps handlers.Dependencies) (*http.Server, *Server, error) {
	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.OutputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	srv := &Server{
		SessionManager: session.NewSessionManager(),
		UploadDir:      cfg.Server.UploadDir,
		OutputDir:      cfg.Server.OutputDir,
		Deps:           deps,
	}

	// Cleanup goroutine for expired sessions/files
	go func() {
		ticker := time.NewTicker(cfg.Server.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := srv.SessionManager.Expire(cfg.Server.SessionTTL); n > 0 {
					deps.Logger.Info("expired sessions removed", zap.Int("count", n))
				}
			}
		}
	}()

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.RegisterRoutes(),
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return server, srv, nil
}
