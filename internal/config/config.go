package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Database       DatabaseConfig       `yaml:"database"`
	Auth           AuthConfig           `yaml:"auth"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CORS           CORSConfig           `yaml:"cors"`
	Logging        LoggingConfig        `yaml:"logging"`
	Tracing        TracingConfig        `yaml:"tracing"`
	Redis          RedisConfig          `yaml:"redis"`
	Email          EmailConfig          `yaml:"email"`
	AdminBootstrap AdminBootstrapConfig `yaml:"admin_bootstrap"`
	Jobs           JobsConfig           `yaml:"jobs"`
	Environment    string               `yaml:"environment"`
}

type ServerConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	BaseURL      string `yaml:"base_url"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle_connections"`
}

type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	JWTIssuer         string        `yaml:"jwt_issuer"`
	AccessExpiry      time.Duration `yaml:"access_expiry"`
	RefreshExpiry     time.Duration `yaml:"refresh_expiry"`
	AllowRegisterRole bool          `yaml:"allow_register_role"`
}

type RateLimitConfig struct {
	PublicPerMinute   int      `yaml:"public_per_minute"`
	UserPerMinute     int      `yaml:"user_per_minute"`
	AdminPerMinute    int      `yaml:"admin_per_minute"`
	LoginPer15Minutes int      `yaml:"login_per_15_minutes"`
	TrustedProxyCIDRs []string `yaml:"trusted_proxy_cidrs"`
}

type CORSConfig struct {
	AllowedOrigins  []string `yaml:"allowed_origins"`
	AllowAllOrigins bool     `yaml:"allow_all_origins"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
	ServiceName  string  `yaml:"service_name"`
}

// RedisConfig enables the token state cache when Addr is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TokenTTL time.Duration `yaml:"token_ttl"`
}

func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type EmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	From         string `yaml:"from"`
	ResendAPIKey string `yaml:"resend_api_key"`
}

type AdminBootstrapConfig struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Password  string `yaml:"password"`
	Email     string `yaml:"email"`
}

type JobsConfig struct {
	Enabled            bool          `yaml:"enabled"`
	Workers            int           `yaml:"workers"`
	TokenPurgeInterval time.Duration `yaml:"token_purge_interval"`
	TokenRetention     time.Duration `yaml:"token_retention"`
	RetryTokenPurge    int           `yaml:"retry_token_purge"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			BaseURL:      "http://localhost:8080",
			MaxBodyBytes: 1 << 20,
		},
		Database: DatabaseConfig{
			MaxConnections: 25,
			MaxIdle:        5,
		},
		Auth: AuthConfig{
			JWTIssuer:     "lgn-api",
			AccessExpiry:  24 * time.Hour,
			RefreshExpiry: 7 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			PublicPerMinute:   60,
			UserPerMinute:     300,
			AdminPerMinute:    0,
			LoginPer15Minutes: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:    "stdout",
			SampleRate:  1.0,
			ServiceName: "lgn-api",
		},
		Redis: RedisConfig{
			TokenTTL: 5 * time.Minute,
		},
		Email: EmailConfig{
			From: "LGN <no-reply@lgn.local>",
		},
		Jobs: JobsConfig{
			Enabled:            true,
			Workers:            2,
			TokenPurgeInterval: 24 * time.Hour,
			TokenRetention:     7 * 24 * time.Hour,
			RetryTokenPurge:    3,
		},
		Environment: "development",
	}
}

// LoadDotEnv seeds the process environment from .env files. Variables that
// are already set are left untouched and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads defaults, overlays the YAML file at path (when non-empty)
// and then the environment.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)

	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.BaseURL = getEnv("SERVER_BASE_URL", cfg.Server.BaseURL)
	cfg.Server.MaxBodyBytes = int64(getEnvInt("SERVER_MAX_BODY_BYTES", int(cfg.Server.MaxBodyBytes)))

	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MaxIdle = getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", cfg.Database.MaxIdle)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.JWTIssuer = getEnv("JWT_ISSUER", cfg.Auth.JWTIssuer)
	cfg.Auth.AccessExpiry = getEnvDuration("JWT_EXPIRATION", cfg.Auth.AccessExpiry)
	cfg.Auth.RefreshExpiry = getEnvDuration("JWT_REFRESH_EXPIRATION", cfg.Auth.RefreshExpiry)
	cfg.Auth.AllowRegisterRole = getEnvBool("AUTH_ALLOW_REGISTER_ROLE", cfg.Auth.AllowRegisterRole)

	cfg.RateLimit.PublicPerMinute = getEnvInt("RATE_LIMIT_PUBLIC", cfg.RateLimit.PublicPerMinute)
	cfg.RateLimit.UserPerMinute = getEnvInt("RATE_LIMIT_USER", cfg.RateLimit.UserPerMinute)
	cfg.RateLimit.AdminPerMinute = getEnvInt("RATE_LIMIT_ADMIN", cfg.RateLimit.AdminPerMinute)
	cfg.RateLimit.LoginPer15Minutes = getEnvInt("RATE_LIMIT_LOGIN", cfg.RateLimit.LoginPer15Minutes)
	cfg.RateLimit.TrustedProxyCIDRs = getEnvList("TRUSTED_PROXY_CIDRS", cfg.RateLimit.TrustedProxyCIDRs)

	cfg.CORS.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", cfg.CORS.AllowedOrigins)
	cfg.CORS.AllowAllOrigins = cfg.Environment != "production" && len(cfg.CORS.AllowedOrigins) == 0

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)
	cfg.Tracing.ServiceName = getEnv("OTEL_SERVICE_NAME", cfg.Tracing.ServiceName)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getEnvInt("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.TokenTTL = getEnvDuration("REDIS_TOKEN_TTL", cfg.Redis.TokenTTL)

	cfg.Email.Enabled = getEnvBool("EMAIL_ENABLED", cfg.Email.Enabled)
	cfg.Email.From = getEnv("EMAIL_FROM", cfg.Email.From)
	cfg.Email.ResendAPIKey = getEnv("RESEND_API_KEY", cfg.Email.ResendAPIKey)

	cfg.AdminBootstrap.FirstName = getEnv("ADMIN_FIRST_NAME", cfg.AdminBootstrap.FirstName)
	cfg.AdminBootstrap.LastName = getEnv("ADMIN_LAST_NAME", cfg.AdminBootstrap.LastName)
	cfg.AdminBootstrap.Password = getEnv("ADMIN_PASSWORD", cfg.AdminBootstrap.Password)
	cfg.AdminBootstrap.Email = getEnv("ADMIN_EMAIL", cfg.AdminBootstrap.Email)

	cfg.Jobs.Enabled = getEnvBool("JOBS_ENABLED", cfg.Jobs.Enabled)
	cfg.Jobs.Workers = getEnvInt("JOBS_WORKERS", cfg.Jobs.Workers)
	cfg.Jobs.TokenPurgeInterval = getEnvDuration("JOB_TOKEN_PURGE_INTERVAL", cfg.Jobs.TokenPurgeInterval)
	cfg.Jobs.TokenRetention = getEnvDuration("JOB_TOKEN_RETENTION", cfg.Jobs.TokenRetention)
	cfg.Jobs.RetryTokenPurge = getEnvInt("JOB_RETRY_TOKEN_PURGE", cfg.Jobs.RetryTokenPurge)
}

func (c Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.Auth.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if len(c.CORS.AllowedOrigins) == 0 {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS is required in production")
		}
	}
	if c.Email.Enabled && c.Email.ResendAPIKey == "" {
		return fmt.Errorf("RESEND_API_KEY is required when EMAIL_ENABLED is true")
	}
	if c.Auth.AccessExpiry <= 0 || c.Auth.RefreshExpiry <= 0 {
		return fmt.Errorf("token expirations must be positive")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvDuration accepts Go durations ("15m") or a bare number of
// milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
