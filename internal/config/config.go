package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Auth      AuthConfig
	FreeTrial FreeTrialConfig
	Retake    RetakeConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Name        string
	SSLMode     string
	MaxConns    int32
	AutoMigrate bool
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL string
}

// AuthConfig describes how session tokens minted by the identity provider
// are verified.
type AuthConfig struct {
	TokenSecret string
	Issuer      string
	AdminRole   string
}

type FreeTrialConfig struct {
	// Timezone decides where the daily usage bucket rolls over.
	Timezone       string
	PolicyCacheTTL time.Duration
}

// Location resolves Timezone, falling back to UTC.
func (c FreeTrialConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type RetakeConfig struct {
	// CountSource is "lineage" or "attempt".
	CountSource string
}

type RateLimitConfig struct {
	MaxRequests int
	WindowSec   int
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	return fromKoanf(k)
}

func fromKoanf(k *koanf.Koanf) (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:        k.String("db.host"),
			Port:        k.Int("db.port"),
			User:        k.String("db.user"),
			Password:    k.String("db.password"),
			Name:        k.String("db.name"),
			SSLMode:     k.String("db.sslmode"),
			MaxConns:    int32(k.Int("db.max.conns")),
			AutoMigrate: k.Bool("db.auto.migrate"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Auth: AuthConfig{
			TokenSecret: k.String("auth.token.secret"),
			Issuer:      k.String("auth.issuer"),
			AdminRole:   k.String("auth.admin.role"),
		},
		FreeTrial: FreeTrialConfig{
			Timezone: k.String("freetrial.timezone"),
		},
		Retake: RetakeConfig{
			CountSource: k.String("retake.count.source"),
		},
		RateLimit: RateLimitConfig{
			MaxRequests: k.Int("ratelimit.max.requests"),
			WindowSec:   k.Int("ratelimit.window.sec"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "examprep"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "examprep"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Auth.AdminRole == "" {
		cfg.Auth.AdminRole = "admin"
	}
	if cfg.FreeTrial.Timezone == "" {
		cfg.FreeTrial.Timezone = "UTC"
	}
	if cfg.Retake.CountSource == "" {
		cfg.Retake.CountSource = "lineage"
	}
	if cfg.RateLimit.WindowSec == 0 {
		cfg.RateLimit.WindowSec = 60
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "debug"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	var err error
	shutdownStr := k.String("server.shutdown.timeout")
	if shutdownStr == "" {
		shutdownStr = "30s"
	}
	cfg.Server.ShutdownTimeout, err = time.ParseDuration(shutdownStr)
	if err != nil {
		return nil, fmt.Errorf("parsing server shutdown timeout: %w", err)
	}

	cacheTTLStr := k.String("freetrial.policy.cache.ttl")
	if cacheTTLStr == "" {
		cacheTTLStr = "5m"
	}
	cfg.FreeTrial.PolicyCacheTTL, err = time.ParseDuration(cacheTTLStr)
	if err != nil {
		return nil, fmt.Errorf("parsing free trial policy cache ttl: %w", err)
	}

	return cfg, nil
}
