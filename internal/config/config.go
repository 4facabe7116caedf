// Package config loads runtime settings from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Addr           string
	RateLimitRPS   float64
	RateLimitBurst int
}

type MongoConfig struct {
	URI      string
	Database string
}

type CacheConfig struct {
	Backend             string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	HistoryTTL          time.Duration
	DashboardTTL        time.Duration
	DashboardCurrentTTL time.Duration
}

type AuthConfig struct {
	JWTSecret string
	JWTExpiry time.Duration
}

type MQTTConfig struct {
	Broker      string
	Username    string
	Password    string
	TopicPrefix string
}

type LogConfig struct {
	Level  string
	Format string
}

type Config struct {
	HTTP  HTTPConfig
	Mongo MongoConfig
	Cache CacheConfig
	Auth  AuthConfig
	MQTT  MQTTConfig
	Log   LogConfig

	LocalTZ              string
	Location             *time.Location
	HistoryPageSize      int
	DashboardPeriodCap   int
	DashboardRecentLimit int
	AuditBuffer          int
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("RATE_LIMIT_RPS", 20.0)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB", "fleet_logbook")
	v.SetDefault("LOCAL_TZ", "America/Sao_Paulo")
	v.SetDefault("CACHE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_HISTORY_TTL", "5m")
	v.SetDefault("CACHE_DASHBOARD_TTL", "5m")
	v.SetDefault("CACHE_DASHBOARD_CURRENT_TTL", "1h")
	v.SetDefault("DASHBOARD_PERIOD_CAP", 5000)
	v.SetDefault("DASHBOARD_RECENT_LIMIT", 50)
	v.SetDefault("HISTORY_PAGE_SIZE", 20)
	v.SetDefault("JWT_EXPIRY", "24h")
	v.SetDefault("MQTT_TOPIC_PREFIX", "fleet-logbook")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("AUDIT_BUFFER", 256)
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)
	return v
}

// FromViper builds and validates a Config from an already populated viper
// instance. Unset keys fall back to the defaults.
func FromViper(v *viper.Viper) (*Config, error) {
	defaults(v)

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:           v.GetString("HTTP_ADDR"),
			RateLimitRPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			RateLimitBurst: v.GetInt("RATE_LIMIT_BURST"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGO_URI"),
			Database: v.GetString("MONGO_DB"),
		},
		Cache: CacheConfig{
			Backend:             strings.ToLower(strings.TrimSpace(v.GetString("CACHE_BACKEND"))),
			RedisAddr:           v.GetString("REDIS_ADDR"),
			RedisPassword:       v.GetString("REDIS_PASSWORD"),
			RedisDB:             v.GetInt("REDIS_DB"),
			HistoryTTL:          v.GetDuration("CACHE_HISTORY_TTL"),
			DashboardTTL:        v.GetDuration("CACHE_DASHBOARD_TTL"),
			DashboardCurrentTTL: v.GetDuration("CACHE_DASHBOARD_CURRENT_TTL"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
			JWTExpiry: v.GetDuration("JWT_EXPIRY"),
		},
		MQTT: MQTTConfig{
			Broker:      v.GetString("MQTT_BROKER"),
			Username:    v.GetString("MQTT_USERNAME"),
			Password:    v.GetString("MQTT_PASSWORD"),
			TopicPrefix: v.GetString("MQTT_TOPIC_PREFIX"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		LocalTZ:              v.GetString("LOCAL_TZ"),
		HistoryPageSize:      v.GetInt("HISTORY_PAGE_SIZE"),
		DashboardPeriodCap:   v.GetInt("DASHBOARD_PERIOD_CAP"),
		DashboardRecentLimit: v.GetInt("DASHBOARD_RECENT_LIMIT"),
		AuditBuffer:          v.GetInt("AUDIT_BUFFER"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	loc, err := time.LoadLocation(cfg.LocalTZ)
	if err != nil {
		return fmt.Errorf("LOCAL_TZ %q: %w", cfg.LocalTZ, err)
	}
	cfg.Location = loc

	switch cfg.Cache.Backend {
	case BackendMemory:
	case BackendRedis:
		if cfg.Cache.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be %q or %q, got %q", BackendMemory, BackendRedis, cfg.Cache.Backend)
	}

	ttls := map[string]time.Duration{
		"CACHE_HISTORY_TTL":           cfg.Cache.HistoryTTL,
		"CACHE_DASHBOARD_TTL":         cfg.Cache.DashboardTTL,
		"CACHE_DASHBOARD_CURRENT_TTL": cfg.Cache.DashboardCurrentTTL,
		"JWT_EXPIRY":                  cfg.Auth.JWTExpiry,
	}
	for key, ttl := range ttls {
		if ttl <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	counts := map[string]int{
		"HISTORY_PAGE_SIZE":      cfg.HistoryPageSize,
		"DASHBOARD_PERIOD_CAP":   cfg.DashboardPeriodCap,
		"DASHBOARD_RECENT_LIMIT": cfg.DashboardRecentLimit,
		"AUDIT_BUFFER":           cfg.AuditBuffer,
		"RATE_LIMIT_BURST":       cfg.HTTP.RateLimitBurst,
	}
	for key, n := range counts {
		if n <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if cfg.HTTP.RateLimitRPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be positive")
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Mongo.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	return nil
}
