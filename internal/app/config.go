package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOCK_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOCK_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	JWTSecret   string `usage:"HMAC secret for bearer token validation (STOCK_JWT_SECRET)" flag:"jwt-secret"`
	RedisAddr   string `default:"" usage:"Redis address for the catalog cache; empty disables caching" flag:"redis-addr"`
	Sweep       SweepConfig
	Email       EmailConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// SweepConfig controls the reservation expiry sweeper.
type SweepConfig struct {
	Interval time.Duration `default:"1h" usage:"How often expired reservations are swept" flag:"sweep-interval"`
}

// EmailConfig controls the SES notification sender. With an empty sender
// address notifications are logged instead of emailed.
type EmailConfig struct {
	Sender          string `default:"" usage:"From address for customer notifications" flag:"email-sender"`
	AWSRegion       string `default:"us-east-1" usage:"AWS region for SES" flag:"aws-region"`
	AWSAccessKeyID  string `usage:"AWS access key id for SES" flag:"aws-access-key-id"`
	AWSSecretKey    string `usage:"AWS secret access key for SES" flag:"aws-secret-key"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins []string `default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files, and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "STOCK",
		Files:     []string{"config.yaml", "/etc/sistema-stock/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required: set STOCK_DATABASE_URL or DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT secret is required: set STOCK_JWT_SECRET")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables
// (Railway, Render, etc.) that use standard names like DATABASE_URL and
// PORT to the application's STOCK_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
