package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	Session   SessionConfig
	Lockout   LockoutConfig
	RateLimit RateLimitConfig
	Guard     GuardConfig
	Cache     CacheConfig
	Affiliate AffiliateConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	ClientURL      string
	BackendURL     string
	TrustedProxies []string
	RequestTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type SessionConfig struct {
	Timeout          time.Duration
	RefreshThreshold time.Duration
}

type LockoutConfig struct {
	MaxFailedAttempts int
	Duration          time.Duration
}

type RateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	// Strict profile guards authentication endpoints
	StrictWindow      time.Duration
	StrictMaxRequests int
}

type GuardConfig struct {
	ViolationThreshold int
	ViolationWindow    time.Duration
	BlockDuration      time.Duration
	Whitelist          []string
}

type CacheConfig struct {
	TTL time.Duration
}

type AffiliateConfig struct {
	Endpoint  string
	AppID     string
	AppSecret string
	Timeout   time.Duration
}

// Load reads configuration from the environment. Duration options keep the
// *_MS names the ops tooling already uses; values are integer milliseconds.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("NODE_ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "affiliate_admin"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			ConnectTimeout:    getEnvAsDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			ClientURL:      getEnv("CLIENT_URL", "http://localhost:3000"),
			BackendURL:     getEnv("BACKEND_URL", "http://localhost:8080"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES"),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Session: SessionConfig{
			Timeout:          getEnvAsMillis("SESSION_TIMEOUT_MS", 7*24*time.Hour),
			RefreshThreshold: getEnvAsMillis("SESSION_REFRESH_THRESHOLD_MS", 24*time.Hour),
		},
		Lockout: LockoutConfig{
			MaxFailedAttempts: getEnvAsInt("MAX_FAILED_LOGIN_ATTEMPTS", 5),
			Duration:          time.Duration(getEnvAsInt("ACCOUNT_LOCKOUT_MINUTES", 30)) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Window:            getEnvAsMillis("RATE_LIMIT_WINDOW_MS", 1*time.Minute),
			MaxRequests:       getEnvAsInt("RATE_LIMIT_MAX_REQUESTS", 60),
			StrictWindow:      getEnvAsMillis("STRICT_RATE_LIMIT_WINDOW_MS", 15*time.Minute),
			StrictMaxRequests: getEnvAsInt("STRICT_RATE_LIMIT_MAX_REQUESTS", 20),
		},
		Guard: GuardConfig{
			ViolationThreshold: getEnvAsInt("VIOLATION_THRESHOLD", 10),
			ViolationWindow:    getEnvAsMillis("VIOLATION_WINDOW_MS", 15*time.Minute),
			BlockDuration:      getEnvAsMillis("BLOCK_DURATION_MS", 1*time.Hour),
			Whitelist:          getEnvAsList("IP_WHITELIST"),
		},
		Cache: CacheConfig{
			TTL: getEnvAsMillis("CACHE_TTL_MS", 5*time.Minute),
		},
		Affiliate: AffiliateConfig{
			Endpoint:  getEnv("SHOPEE_API_URL", "https://open-api.affiliate.shopee.vn/graphql"),
			AppID:     getEnv("SHOPEE_APP_ID", ""),
			AppSecret: getEnv("SHOPEE_APP_SECRET", ""),
			Timeout:   getEnvAsDuration("AFFILIATE_TIMEOUT", 10*time.Second),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}
	if cfg.IsProduction() && (cfg.Affiliate.AppID == "" || cfg.Affiliate.AppSecret == "") {
		return nil, fmt.Errorf("SHOPEE_APP_ID and SHOPEE_APP_SECRET are required in production")
	}
	if cfg.Lockout.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("MAX_FAILED_LOGIN_ATTEMPTS must be positive")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// AllowedOrigins returns the origin allow-list seeded from CLIENT_URL and
// BACKEND_URL plus any extra configured origins.
func (c *ServerConfig) AllowedOrigins() []string {
	origins := []string{c.ClientURL, c.BackendURL}
	origins = append(origins, getEnvAsList("ALLOWED_ORIGINS")...)
	return dedupe(origins)
}

// AllowedReferers returns the referer prefix allow-list.
func (c *ServerConfig) AllowedReferers() []string {
	referers := []string{c.ClientURL, c.BackendURL}
	referers = append(referers, getEnvAsList("ALLOWED_REFERERS")...)
	return dedupe(referers)
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

// getEnvAsMillis parses an integer-milliseconds option.
func getEnvAsMillis(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.ParseInt(value, 10, 64); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
