// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. A local '.env' file is
loaded first when present so development machines do not need exported variables.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Mailer, Storage) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

// # Configuration Schema

// Config holds all runtime configuration for the AuthKeeper API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis), used for the cleanup lock
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing and lifetimes
	JWTSecret         string        `env:"JWT_SECRET,required"`
	AccessTokenTTL    time.Duration `env:"ACCESS_JWT_EXPIRES_IN"     envDefault:"15m"`
	RefreshTokenTTL   time.Duration `env:"REFRESH_JWT_EXPIRES_IN"    envDefault:"720h"`
	RefreshCookieDays int           `env:"REFRESH_COOKIE_EXPIRES_IN" envDefault:"30"`
	BcryptCost        int           `env:"BCRYPT_COST"               envDefault:"12"`

	// FrontendURL is the public web app origin, used for reset links and CORS.
	FrontendURL string `env:"FRONTEND_URL,required"`

	// Transactional email (Resend)
	ResendAPIKey string `env:"RESEND_API_KEY,required"`
	MailFrom     string `env:"MAIL_FROM" envDefault:"AuthKeeper@royalexchangex.com"`

	// Object Storage (S3-compatible) for profile photos
	BucketName            string        `env:"BUCKET_NAME"`
	BucketRegion          string        `env:"BUCKET_REGION"            envDefault:"us-east-1"`
	BucketAccessKey       string        `env:"BUCKET_ACCESS_KEY"`
	BucketSecretAccessKey string        `env:"BUCKET_SECRET_ACCESS_KEY"`
	BucketEndpoint        string        `env:"BUCKET_ENDPOINT"`
	PhotoURLTTL           time.Duration `env:"PHOTO_URL_TTL"            envDefault:"1h"`
	MaxPhotoBytes         int64         `env:"MAX_PHOTO_BYTES"          envDefault:"5242880"`

	// IP geolocation used to annotate security emails
	GeolocationURL     string        `env:"GEOLOCATION_URL"     envDefault:"https://ipapi.co"`
	GeolocationTimeout time.Duration `env:"GEOLOCATION_TIMEOUT" envDefault:"3s"`

	// Cleanup of accounts that never verified their email
	CleanupSchedule     string        `env:"CLEANUP_SCHEDULE"     envDefault:"0 0 * * *"`
	UnverifiedRetention time.Duration `env:"UNVERIFIED_RETENTION" envDefault:"24h"`
	CleanupTimeout      time.Duration `env:"CLEANUP_TIMEOUT"      envDefault:"5m"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// A missing .env file is the normal case outside development.
	_ = godotenv.Load()

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values that parse correctly but cannot be used.
func (c *Config) Validate() error {
	var errs []error

	if c.AccessTokenTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_JWT_EXPIRES_IN must be positive"))
	}
	if c.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("REFRESH_JWT_EXPIRES_IN must be positive"))
	}
	if c.RefreshCookieDays <= 0 {
		errs = append(errs, errors.New("REFRESH_COOKIE_EXPIRES_IN must be positive"))
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}
	if c.UnverifiedRetention <= 0 {
		errs = append(errs, errors.New("UNVERIFIED_RETENTION must be positive"))
	}
	if c.MaxPhotoBytes <= 0 {
		errs = append(errs, errors.New("MAX_PHOTO_BYTES must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid values: %w", errors.Join(errs...))
	}
	return nil
}

// RefreshCookieMaxAge converts the configured day count into a cookie lifetime.
func (c *Config) RefreshCookieMaxAge() time.Duration {
	return time.Duration(c.RefreshCookieDays) * 24 * time.Hour
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
