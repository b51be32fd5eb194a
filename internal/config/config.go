package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	BackendSurreal = "surreal"
	BackendBadger  = "badger"
	BackendMemory  = "memory"
)

const (
	devJWTSecret   = "dev-only-insecure-secret"
	minPresenceTTL = 3 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	ServerAddr     string   `env:"SERVER_ADDR" envDefault:":8080"`
	AppEnv         string   `env:"APP_ENV" envDefault:"development"`
	LogFormat      string   `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`
	HTTPRateLimit  float64  `env:"HTTP_RATE_LIMIT" envDefault:"20"`

	JWTSecret  string        `env:"JWT_SECRET"`
	JWTIssuer  string        `env:"JWT_ISSUER" envDefault:"gobychat"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"168h"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"surreal"`
	DBUrl          string `env:"SURREAL_URL"`
	DBNs           string `env:"SURREAL_NS"`
	DBDb           string `env:"SURREAL_DB"`
	DBUser         string `env:"SURREAL_USER"`
	DBPass         string `env:"SURREAL_PASS"`
	BadgerPath     string `env:"BADGER_PATH" envDefault:"data/badger"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	PresenceTTL   time.Duration `env:"PRESENCE_TTL" envDefault:"90s"`

	WSSendBuffer    int     `env:"WS_SEND_BUFFER" envDefault:"64"`
	WSMessageRate   float64 `env:"WS_MESSAGE_RATE" envDefault:"5"`
	WSMessageBurst  int     `env:"WS_MESSAGE_BURST" envDefault:"10"`
	MaxPayloadBytes int     `env:"MAX_PAYLOAD_BYTES" envDefault:"4096"`

	TracingEnabled     bool   `env:"PUBSUB_TRACING_ENABLED" envDefault:"false"`
	TracingServiceName string `env:"PUBSUB_TRACING_SERVICE_NAME" envDefault:"gobychat"`
	TracingZipkinURL   string `env:"PUBSUB_TRACING_ZIPKIN_URL" envDefault:"http://localhost:9411/api/v2/spans"`
}

// Load reads an optional .env file, parses the environment into a Config and
// validates it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, relying on environment variables")
	}
	return parse(env.Options{})
}

// FromMap builds a Config from an explicit variable set instead of the process
// environment. Unset variables take their defaults.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if cfg.JWTSecret == "" && !cfg.IsProduction() {
		cfg.JWTSecret = devJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate checks the settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageBackend {
	case BackendSurreal:
		if c.DBUrl == "" || c.DBNs == "" || c.DBDb == "" {
			errs = append(errs, errors.New("SURREAL_URL, SURREAL_NS and SURREAL_DB are required for the surreal backend"))
		}
	case BackendBadger:
		if c.BadgerPath == "" {
			errs = append(errs, errors.New("BADGER_PATH is required for the badger backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}

	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.WSSendBuffer <= 0 {
		errs = append(errs, errors.New("WS_SEND_BUFFER must be positive"))
	}
	if c.PresenceTTL < minPresenceTTL {
		errs = append(errs, fmt.Errorf("PRESENCE_TTL must be at least %s", minPresenceTTL))
	}
	if c.MaxPayloadBytes <= 0 {
		errs = append(errs, errors.New("MAX_PAYLOAD_BYTES must be positive"))
	}

	return errors.Join(errs...)
}
