package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Environment        string
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration
	RequestTimeout     time.Duration
	ServingHost        string

	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	ResetTTL        time.Duration
	VerifyTTL       time.Duration
	BcryptCost      int
	SessionTTL      time.Duration
	CSRFTokenTTL    time.Duration
	MaxBodyBytes    int64
	MaxUploadBytes  int64
	UploadMIMETypes []string

	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	DBConnLifetime time.Duration
	DBConnIdleTime time.Duration
	DBHealthPeriod time.Duration
	SessionBackend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSOrigins []string

	RateLimitWindow time.Duration
	RateLimitMax    int
	BurstWindow     time.Duration
	BurstThreshold  int
	BucketMaxIdle   time.Duration
	CleanupInterval time.Duration

	AlertWebhookURL  string
	AlertTimeout     time.Duration
	AlertMinSeverity string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment:        getEnv("ENVIRONMENT", EnvDevelopment),
		ServerPort:         getEnv("SERVER_PORT", "8080"),
		ServerReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		ServerWriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", 30*time.Second),
		ServingHost:        getEnv("SERVING_HOST", ""),

		JWTSecret:       strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:       getEnv("JWT_ISSUER", "request-shield"),
		JWTAudience:     getEnv("JWT_AUDIENCE", "request-shield-clients"),
		AccessTTL:       getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:      getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		ResetTTL:        getDuration("JWT_RESET_TTL", 30*time.Minute),
		VerifyTTL:       getDuration("JWT_VERIFY_TTL", 24*time.Hour),
		BcryptCost:      getInt("BCRYPT_COST", 12),
		SessionTTL:      getDuration("SESSION_TTL", 168*time.Hour),
		CSRFTokenTTL:    getDuration("CSRF_TOKEN_TTL", 24*time.Hour),
		MaxBodyBytes:    getInt64("MAX_BODY_BYTES", 1<<20),
		MaxUploadBytes:  getInt64("MAX_UPLOAD_BYTES", 10<<20),
		UploadMIMETypes: splitCSV(getEnv("UPLOAD_MIME_TYPES", "image/*,application/pdf")),

		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 2)),
		DBConnLifetime: getDuration("DB_CONN_LIFETIME", 30*time.Minute),
		DBConnIdleTime: getDuration("DB_CONN_IDLE_TIME", 5*time.Minute),
		DBHealthPeriod: getDuration("DB_HEALTH_PERIOD", 30*time.Second),
		SessionBackend: getEnv("SESSION_BACKEND", "postgres"),

		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: strings.TrimSpace(os.Getenv("REDIS_PASSWORD")),
		RedisDB:       getInt("REDIS_DB", 0),

		CORSOrigins: splitCSV(getEnv("CORS_ORIGINS", "*")),

		RateLimitWindow: getDuration("RATE_LIMIT_WINDOW", time.Minute),
		RateLimitMax:    getInt("RATE_LIMIT_MAX", 200),
		BurstWindow:     getDuration("BURST_WINDOW", 10*time.Second),
		BurstThreshold:  getInt("BURST_THRESHOLD", 50),
		BucketMaxIdle:   getDuration("BUCKET_MAX_IDLE", 24*time.Hour),
		CleanupInterval: getDuration("CLEANUP_INTERVAL", 10*time.Minute),

		AlertWebhookURL:  strings.TrimSpace(os.Getenv("ALERT_WEBHOOK_URL")),
		AlertTimeout:     getDuration("ALERT_TIMEOUT", 5*time.Second),
		AlertMinSeverity: getEnv("ALERT_MIN_SEVERITY", "high"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.Environment != EnvDevelopment && c.Environment != EnvProduction {
		return fmt.Errorf("ENVIRONMENT must be %q or %q", EnvDevelopment, EnvProduction)
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}

	if c.RateLimitWindow <= 0 || c.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit window and max must be positive")
	}

	if c.BurstThreshold <= 0 || c.BurstWindow <= 0 {
		return fmt.Errorf("burst threshold and window must be positive")
	}

	if c.SessionBackend != "postgres" && c.SessionBackend != "memory" {
		return fmt.Errorf("SESSION_BACKEND must be %q or %q", "postgres", "memory")
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getInt64(key string, fallback int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
