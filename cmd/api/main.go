// Package main API.
//
// go-certgen provides a REST API for generating signed, verifiable PDF
// certificates from a template and a data file.
//
//	Schemes: http
//	BasePath: /
//	Version: 1.0.0
//	Host: localhost:8080
//
//	Consumes:
//	- application/json
//	- multipart/form-data
//
//	Produces:
//	- application/json
//	- application/zip
//	- text/html
//
// swagger:meta
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go-certgen/internal/batch"
	"go-certgen/internal/config"
	"go-certgen/internal/handlers"
	"go-certgen/internal/ledger"
	"go-certgen/internal/pdf"
	"go-certgen/internal/server"
	"go-certgen/internal/signing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, logger *zap.Logger, done chan bool, cleanupFunc func()) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	logger.Info("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Cleanup all session files and temp files
	if cleanupFunc != nil {
		logger.Info("cleaning directories")
		cleanupFunc()
	}

	logger.Info("server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func cleanupDirs(dirs ...string) {
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				_ = os.Remove(filepath.Join(dir, entry.Name()))
			}
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	if level == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// openLedger connects to Postgres when a database URL is configured and
// falls back to an in-memory ledger otherwise.
func openLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ledger.Store, func(), error) {
	if cfg.Database.URL == "" {
		logger.Warn("DATABASE_URL not set, certificates are kept in memory only")
		return ledger.NewMemoryStore(), func() {}, nil
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store, err := ledger.NewPostgresStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func run() error {
	cfg, err := config.Load("config.json")
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Cleanup uploads/ and output/ on startup
	cleanup := func() { cleanupDirs(cfg.Server.UploadDir, cfg.Server.OutputDir) }
	cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	signer, err := signing.NewSigner(cfg.Signing.Key)
	if err != nil {
		return err
	}
	provider := pdf.NewProvider(pdf.WithLogger(logger))
	orchestrator := batch.New(provider, signer, store,
		batch.WithLogger(logger),
		batch.WithBaseURL(cfg.Server.BaseURL),
		batch.WithPostProcessor(pdf.StampProperties),
		batch.WithMerger(pdf.Merge),
	)

	apiServer, _, err := server.NewServer(ctx, cfg, handlers.Dependencies{
		Batch:   orchestrator,
		Ledger:  store,
		Signer:  signer,
		Overlay: cfg.Overlay,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	logger.Info("starting server", zap.String("addr", apiServer.Addr), zap.String("base_url", cfg.Server.BaseURL))

	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(apiServer, logger, done, cleanup)

	if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}

	// Wait for the graceful shutdown to complete
	<-done
	logger.Info("graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
