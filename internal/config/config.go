package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server             ServerConfig    `envPrefix:"SERVER_"`
	Database           DatabaseConfig  `envPrefix:"DB_"`
	PrivilegedDatabase DatabaseConfig  `envPrefix:"SERVICE_DB_"`
	Store              StoreConfig     `envPrefix:"STORE_"`
	Redis              RedisConfig     `envPrefix:"REDIS_"`
	Cache              CacheConfig     `envPrefix:"CACHE_"`
	Log                LogConfig       `envPrefix:"LOG_"`
	CORS               CORSConfig      `envPrefix:"CORS_"`
	Metrics            MetricsConfig   `envPrefix:"METRICS_"`
	Auth               AuthConfig      `envPrefix:"AUTH_"`
	Functions          FunctionsConfig `envPrefix:"FUNCTIONS_"`
	AuthAdmin          AuthAdminConfig `envPrefix:"AUTH_ADMIN_"`
	Notifier           NotifierConfig  `envPrefix:"NOTIFIER_"`
	Bootstrap          BootstrapConfig `envPrefix:"BOOTSTRAP_"`
	Monitor            MonitorConfig   `envPrefix:"MONITOR_"`
}

type ServerConfig struct {
	Host         string        `env:"HOST" envDefault:"0.0.0.0"`
	Port         int           `env:"PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"60s"`
}

type DatabaseConfig struct {
	Host            string        `env:"HOST" envDefault:"localhost"`
	Port            int           `env:"PORT" envDefault:"5432"`
	User            string        `env:"USER" envDefault:"postgres"`
	Password        string        `env:"PASSWORD"`
	DBName          string        `env:"NAME" envDefault:"cabinet"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"warn"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// StoreConfig selects the persistence backend
type StoreConfig struct {
	Driver  string `env:"DRIVER" envDefault:"postgres"` // postgres or memory
	Migrate bool   `env:"MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	PoolSize int    `env:"POOL_SIZE" envDefault:"10"`
}

type CacheConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Type    string `env:"TYPE" envDefault:"memory"` // memory or redis
	Prefix  string `env:"PREFIX" envDefault:"cabinet"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AllowedMethods []string `env:"ALLOWED_METHODS" envSeparator:"," envDefault:"GET,POST,PUT,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS" envSeparator:"," envDefault:"Accept,Authorization,Content-Type,X-Request-ID"`
}

type MetricsConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"true"`
}

// AuthConfig verifies session tokens and guards the server functions
type AuthConfig struct {
	JWTSecret  string `env:"JWT_SECRET"`
	Issuer     string `env:"ISSUER"`
	ServiceKey string `env:"SERVICE_KEY"`
}

// FunctionsConfig points at the privileged server functions. An empty
// BaseURL runs them in-process.
type FunctionsConfig struct {
	BaseURL string        `env:"BASE_URL"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"15s"`
}

type AuthAdminConfig struct {
	URL        string `env:"URL"`
	ServiceKey string `env:"SERVICE_KEY"`
}

type NotifierConfig struct {
	WebhookURL string `env:"WEBHOOK_URL"`
	APIKey     string `env:"API_KEY"`
	LoginURL   string `env:"LOGIN_URL" envDefault:"http://localhost:3000/login"`
}

// BootstrapConfig tunes retries and timeouts of the bootstrap flow
type BootstrapConfig struct {
	CallTimeout        time.Duration `env:"CALL_TIMEOUT" envDefault:"12s"`
	MaxAttempts        int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BaseDelay          time.Duration `env:"BASE_DELAY" envDefault:"500ms"`
	DefaultCabinetName string        `env:"DEFAULT_CABINET_NAME" envDefault:"Mon Cabinet"`
	Origin             string        `env:"ORIGIN" envDefault:"cabinet-bootstrap"`
}

type MonitorConfig struct {
	MaxNotifications int           `env:"MAX_NOTIFICATIONS" envDefault:"3"`
	Window           time.Duration `env:"WINDOW" envDefault:"1h"`
	RemediateTimeout time.Duration `env:"REMEDIATE_TIMEOUT" envDefault:"30s"`
}

// Load reads configuration from the environment, after loading .env if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for missing or inconsistent values
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid SERVER_PORT %d", c.Server.Port))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("AUTH_JWT_SECRET is required"))
	}
	if c.Auth.ServiceKey == "" {
		errs = append(errs, errors.New("AUTH_SERVICE_KEY is required"))
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("invalid STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.Cache.Type {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("invalid CACHE_TYPE %q", c.Cache.Type))
	}
	if c.Bootstrap.MaxAttempts < 1 {
		errs = append(errs, errors.New("BOOTSTRAP_MAX_ATTEMPTS must be at least 1"))
	}
	if c.Bootstrap.CallTimeout <= 0 {
		errs = append(errs, errors.New("BOOTSTRAP_CALL_TIMEOUT must be positive"))
	}
	if c.AuthAdmin.URL != "" && c.AuthAdmin.ServiceKey == "" {
		errs = append(errs, errors.New("AUTH_ADMIN_SERVICE_KEY is required when AUTH_ADMIN_URL is set"))
	}

	return errors.Join(errs...)
}

// PrivilegedDatabaseConfigured reports whether a separate service-role connection is set
func (c *Config) PrivilegedDatabaseConfigured() bool {
	return c.PrivilegedDatabase.Password != "" || c.PrivilegedDatabase.User != c.Database.User
}
