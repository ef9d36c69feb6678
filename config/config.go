package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnIdleTime time.Duration
}

// URL builds a postgres:// connection string, escaping credentials.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User), url.QueryEscape(c.Password), c.Host, c.Port, url.QueryEscape(c.Name), c.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type Config struct {
	AppEnv string
	Port   string

	Database DatabaseConfig
	Redis    RedisConfig

	JWTSecret string
	JWTTTL    time.Duration

	AllowedOrigins []string
	// TrustedProxies are IPs/CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string

	UploadDir      string
	MaxUploadBytes int64

	// Timezone used for day ranges in reports and check-in messages.
	Timezone string

	Validation struct {
		AccuracyThresholdMeters float64
		MaxSpeedKmh             float64
	}

	Cache struct {
		GeofenceTTL time.Duration
		CheckInLock time.Duration
	}

	RateLimit struct {
		Window     time.Duration
		GeneralMax int
		CheckInMax int
	}

	SeedAdmin struct {
		Email    string
		Password string
		Name     string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads .env (when present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.AppEnv = getEnv("APP_ENV", "development")
	cfg.Port = getEnv("PORT", "3001")

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASS", "postgres")
	cfg.Database.Name = getEnv("DB_NAME", "geoproof")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = int32(getEnvInt("DB_MAX_CONNS", 10))
	cfg.Database.MinConns = int32(getEnvInt("DB_MIN_CONNS", 1))
	cfg.Database.MaxConnIdleTime = getEnvDuration("DB_MAX_CONN_IDLE", 5*time.Minute)

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLED", true)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.JWTTTL = getEnvDuration("JWT_TTL", 24*time.Hour)

	cfg.AllowedOrigins = splitList(getEnv("FRONTEND_ORIGIN", "http://localhost:3000"))
	cfg.TrustedProxies = splitList(os.Getenv("TRUSTED_PROXIES"))

	cfg.UploadDir = getEnv("UPLOAD_DIR", "uploads")
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20))

	cfg.Timezone = getEnv("APP_TIMEZONE", "Asia/Jakarta")

	cfg.Validation.AccuracyThresholdMeters = getEnvFloat("ACCURACY_THRESHOLD_M", 100)
	cfg.Validation.MaxSpeedKmh = getEnvFloat("MAX_SPEED_KMH", 200)

	cfg.Cache.GeofenceTTL = getEnvDuration("GEOFENCE_CACHE_TTL", 30*time.Second)
	cfg.Cache.CheckInLock = getEnvDuration("CHECKIN_LOCK_TTL", 10*time.Second)

	cfg.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute)
	cfg.RateLimit.GeneralMax = getEnvInt("RATE_LIMIT_MAX_REQUESTS", 100)
	cfg.RateLimit.CheckInMax = getEnvInt("SUBMIT_RATE_LIMIT_MAX", 10)

	cfg.SeedAdmin.Email = os.Getenv("ADMIN_EMAIL")
	cfg.SeedAdmin.Password = os.Getenv("ADMIN_PASSWORD")
	cfg.SeedAdmin.Name = getEnv("ADMIN_NAME", "Administrator")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	var problems []string
	if cfg.JWTSecret == "" {
		problems = append(problems, "missing env: JWT_SECRET")
	}
	if cfg.Validation.AccuracyThresholdMeters <= 0 {
		problems = append(problems, "ACCURACY_THRESHOLD_M must be positive")
	}
	if cfg.Validation.MaxSpeedKmh <= 0 {
		problems = append(problems, "MAX_SPEED_KMH must be positive")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		problems = append(problems, "APP_TIMEZONE: "+err.Error())
	}
	if len(problems) > 0 {
		return cfg, errors.New(strings.Join(problems, "; "))
	}

	return cfg, nil
}

// Location resolves Timezone, falling back to a fixed WIB offset when the
// host has no tzdata.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("WIB", 7*60*60)
	}
	return loc
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

