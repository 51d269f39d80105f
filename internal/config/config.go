// Package config loads service configuration: built-in defaults, then an
// optional JSON file, then environment variables (a .env file is read
// first when present).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `json:"server"`
	Signing  SigningConfig  `json:"signing"`
	Database DatabaseConfig `json:"database"`
	Logging  LoggingConfig  `json:"logging"`
	Overlay  OverlayConfig  `json:"overlay"`
}

type ServerConfig struct {
	Port            int           `json:"port"`
	BaseURL         string        `json:"base_url"`
	UploadDir       string        `json:"upload_dir"`
	OutputDir       string        `json:"output_dir"`
	SessionTTL      time.Duration `json:"session_ttl"`
	CleanupInterval time.Duration `json:"cleanup_interval"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
}

// SigningConfig holds the key certificates are signed with.
type SigningConfig struct {
	Key string `json:"key"`
}

// DatabaseConfig selects the ledger. An empty URL keeps records in memory.
type DatabaseConfig struct {
	URL string `json:"url"`
}

type LoggingConfig struct {
	// Level is "production" for JSON logs; anything else is development.
	Level string `json:"level"`
}

// OverlayConfig holds the default overlay positions.
type OverlayConfig struct {
	QRPosition        string `json:"qr_position"`
	SignaturePosition string `json:"signature_position"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			BaseURL:         "http://localhost:8080",
			UploadDir:       "uploads",
			OutputDir:       "output",
			SessionTTL:      30 * time.Minute,
			CleanupInterval: 10 * time.Minute,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     time.Minute,
		},
		Logging: LoggingConfig{Level: "development"},
		Overlay: OverlayConfig{
			QRPosition:        "bottom-right",
			SignaturePosition: "bottom-center",
		},
	}
}

// Load loads configuration from file and environment variables. A missing
// file is not an error; a malformed one is.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	config := Default()
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		config.Server.Port = p
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid SESSION_TTL %q: %w", ttl, err)
		}
		config.Server.SessionTTL = d
	}

	for env, field := range map[string]*string{
		"BASE_URL":           &config.Server.BaseURL,
		"UPLOAD_DIR":         &config.Server.UploadDir,
		"OUTPUT_DIR":         &config.Server.OutputDir,
		"SIGNING_KEY":        &config.Signing.Key,
		"DATABASE_URL":       &config.Database.URL,
		"LOG_LEVEL":          &config.Logging.Level,
		"QR_POSITION":        &config.Overlay.QRPosition,
		"SIGNATURE_POSITION": &config.Overlay.SignaturePosition,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	return nil
}

// Validate reports settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Signing.Key == "" {
		return errors.New("signing key is required (set SIGNING_KEY)")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if c.Server.SessionTTL <= 0 || c.Server.CleanupInterval <= 0 {
		return errors.New("session TTL and cleanup interval must be positive")
	}
	return nil
}

// Addr returns the listen address.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
