// Package config handles application configuration via environment variables.
// It uses kelseyhightower/envconfig for parsing and provides sensible defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"trackrater/src/core/domain"
)

// Config holds all application configuration.
// Values are loaded from environment variables with the prefix "APP".
// Example: APP_PORT=8080, APP_LOG_LEVEL=debug
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Auth     AuthConfig
	Redis    RedisConfig
	Rating   RatingConfig
	Realtime RealtimeConfig
	Queue    QueueConfig

	// Criteria is loaded from Rating.CriteriaFile, or the built-in set.
	Criteria []domain.Criterion `ignored:"true"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Port is the HTTP server port (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// Host is the HTTP server host (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// ReadTimeout is the maximum duration for reading the entire request (default: 10s)
	ReadTimeout time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`

	// WriteTimeout is the maximum duration before timing out writes of the response (default: 30s)
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`

	// ShutdownTimeout is the maximum duration to wait for active connections to finish (default: 30s)
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Driver selects the store: postgres or memory (default: postgres)
	Driver string `envconfig:"DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"trackrater"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	// Migrate applies the embedded schema migrations at startup (default: true)
	Migrate bool `envconfig:"DB_MIGRATE" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is the log level: debug, info, warn, error (default: info)
	Level string `envconfig:"LOG_LEVEL" default:"info"`

	// Format is the log format: json, text, plain (default: plain)
	Format string `envconfig:"LOG_FORMAT" default:"plain"`
}

// AuthConfig holds credentials for callers.
type AuthConfig struct {
	// JWTSecret signs and verifies bearer tokens issued by the login service.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// JWTIssuer is the expected "iss" claim; empty accepts any issuer.
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"trackrater"`

	// BotAPIToken guards the submission intake API (X-Bot-Token header).
	BotAPIToken string `envconfig:"BOT_API_TOKEN"`
}

// RedisConfig configures the optional broadcast mirror.
type RedisConfig struct {
	// URL is a redis:// URL; empty disables the mirror.
	URL string `envconfig:"REDIS_URL"`

	// ChannelPrefix prefixes every mirrored channel: <prefix>:<room>
	ChannelPrefix string `envconfig:"REDIS_CHANNEL_PREFIX" default:"trackrater"`
}

// RatingConfig configures the rating panel.
type RatingConfig struct {
	// CriteriaFile is an optional YAML list of {key, label}.
	CriteriaFile string `envconfig:"CRITERIA_FILE"`

	// PublicBaseURL prefixes track page and media URLs.
	PublicBaseURL string `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
}

// RealtimeConfig configures the websocket hub.
type RealtimeConfig struct {
	// AllowedOrigins is a comma separated list; empty allows any origin.
	AllowedOrigins []string `envconfig:"WS_ALLOWED_ORIGINS"`

	PingInterval    time.Duration `envconfig:"WS_PING_INTERVAL" default:"25s"`
	MaxMessageBytes int64         `envconfig:"WS_MAX_MESSAGE_BYTES" default:"65536"`
	SendBuffer      int           `envconfig:"WS_SEND_BUFFER" default:"64"`
}

// QueueConfig configures queue views.
type QueueConfig struct {
	ViewLimit int `envconfig:"QUEUE_VIEW_LIMIT" default:"100"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

// UseMemory reports whether the in-process store is selected.
func (c *DatabaseConfig) UseMemory() bool {
	return strings.EqualFold(c.Driver, "memory")
}

// Addr returns the server address in host:port format.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from environment variables.
// It returns an error if required variables are missing or invalid.
func Load() (*Config, error) {
	var cfg Config

	// Each section is processed with the bare prefix so env vars stay flat
	// (APP_PORT rather than APP_SERVER_PORT).
	sections := []struct {
		name   string
		target any
	}{
		{"server", &cfg.Server},
		{"database", &cfg.Database},
		{"log", &cfg.Log},
		{"auth", &cfg.Auth},
		{"redis", &cfg.Redis},
		{"rating", &cfg.Rating},
		{"realtime", &cfg.Realtime},
		{"queue", &cfg.Queue},
	}
	for _, s := range sections {
		if err := envconfig.Process("APP", s.target); err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", s.name, err)
		}
	}

	criteria, err := LoadCriteria(cfg.Rating.CriteriaFile)
	if err != nil {
		return nil, err
	}
	cfg.Criteria = criteria

	if cfg.Queue.ViewLimit <= 0 {
		cfg.Queue.ViewLimit = domain.DefaultQueueViewLimit
	}
	return &cfg, nil
}

type criteriaFile struct {
	Criteria []domain.Criterion `yaml:"criteria"`
}

// LoadCriteria reads the scoring axes from a YAML file. An empty path yields
// the built-in criteria.
func LoadCriteria(path string) ([]domain.Criterion, error) {
	if strings.TrimSpace(path) == "" {
		return append([]domain.Criterion(nil), domain.DefaultCriteria...), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read criteria file: %w", err)
	}
	return ParseCriteria(raw)
}

// ParseCriteria decodes a criteria document and validates the keys.
func ParseCriteria(raw []byte) ([]domain.Criterion, error) {
	var doc criteriaFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse criteria file: %w", err)
	}
	if len(doc.Criteria) == 0 {
		return nil, fmt.Errorf("criteria file defines no criteria")
	}
	seen := make(map[string]bool, len(doc.Criteria))
	out := make([]domain.Criterion, 0, len(doc.Criteria))
	for i, c := range doc.Criteria {
		c.Key = strings.TrimSpace(c.Key)
		c.Label = strings.TrimSpace(c.Label)
		if c.Key == "" {
			return nil, fmt.Errorf("criterion %d has no key", i)
		}
		if seen[c.Key] {
			return nil, fmt.Errorf("duplicate criterion key %q", c.Key)
		}
		seen[c.Key] = true
		if c.Label == "" {
			c.Label = c.Key
		}
		out = append(out, c)
	}
	return out, nil
}
