package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	CORS      CORSConfig
	Log       LogConfig
	LMS       LMSConfig
	Reconcile ReconcileConfig
	Exports   ExportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LMSConfig describes the external learning-management system connection.
// One session token is fetched per run and shared read-only across lookups.
type LMSConfig struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	CourseID     string
	Timeout      time.Duration
}

// ReconcileConfig tunes the identity reconciliation runner.
type ReconcileConfig struct {
	// Workers > 1 enables the bounded concurrent mode. The external source's
	// rate limiting under concurrency is unverified, so sequential stays the
	// default.
	Workers            int
	AcceptThreshold    float64
	Scorer             string
	LookupCacheTTL     time.Duration
	LookupCacheEnabled bool
}

// ExportsConfig controls gradesheet export storage and signed URLs.
type ExportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.LMS = LMSConfig{
		BaseURL:      v.GetString("LMS_BASE_URL"),
		TokenURL:     v.GetString("LMS_TOKEN_URL"),
		ClientID:     v.GetString("LMS_CLIENT_ID"),
		ClientSecret: v.GetString("LMS_CLIENT_SECRET"),
		CourseID:     v.GetString("LMS_COURSE_ID"),
		Timeout:      parseDuration(v.GetString("LMS_TIMEOUT"), 15*time.Second),
	}

	cfg.Reconcile = ReconcileConfig{
		Workers:            v.GetInt("RECONCILE_WORKERS"),
		AcceptThreshold:    v.GetFloat64("RECONCILE_ACCEPT_THRESHOLD"),
		Scorer:             v.GetString("RECONCILE_SCORER"),
		LookupCacheTTL:     parseDuration(v.GetString("RECONCILE_LOOKUP_CACHE_TTL"), 10*time.Minute),
		LookupCacheEnabled: v.GetBool("RECONCILE_LOOKUP_CACHE"),
	}

	cfg.Exports = ExportsConfig{
		StorageDir:      v.GetString("EXPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("EXPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("EXPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "markbook")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LMS_BASE_URL", "http://localhost:9000")
	v.SetDefault("LMS_TOKEN_URL", "http://localhost:9000/oauth/token")
	v.SetDefault("LMS_CLIENT_ID", "")
	v.SetDefault("LMS_CLIENT_SECRET", "")
	v.SetDefault("LMS_COURSE_ID", "")
	v.SetDefault("LMS_TIMEOUT", "15s")

	v.SetDefault("RECONCILE_WORKERS", 1)
	v.SetDefault("RECONCILE_ACCEPT_THRESHOLD", 0.3)
	v.SetDefault("RECONCILE_SCORER", "name")
	v.SetDefault("RECONCILE_LOOKUP_CACHE", false)
	v.SetDefault("RECONCILE_LOOKUP_CACHE_TTL", "10m")

	v.SetDefault("EXPORTS_STORAGE_DIR", "./exports")
	v.SetDefault("EXPORTS_SIGNED_URL_SECRET", "dev_exports_secret")
	v.SetDefault("EXPORTS_SIGNED_URL_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
