package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/GTDGit/gtd_auth/internal/utils"
)

// Config holds all application configuration loaded from environment variables.
// It is loaded once at start and passed explicitly to every component.
type Config struct {
	Port string
	Env  string

	DB        DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Password  PasswordConfig
	Hasher    HasherConfig
	RateLimit RateLimitConfig
	SMTP      SMTPConfig
	Notify    NotifyConfig

	// AllowedOrigins are the CORS hosts (host[:port]) allowed to call the API.
	AllowedOrigins []string
}

// DatabaseConfig contains PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MigrationsPath string
	MaxOpenConns   int
	MaxIdleConns   int
}

// RedisConfig contains Redis connection parameters. An empty Host selects the
// in-process cache.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// AuthConfig controls token signing and lifetimes.
type AuthConfig struct {
	JWTSecret  string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	ResetTTL   time.Duration
	VerifyTTL  time.Duration
}

// PasswordConfig holds password policy thresholds.
type PasswordConfig struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
	Denylist      []string
}

// HasherConfig holds argon2id cost parameters.
type HasherConfig struct {
	MemoryKiB uint32
	Time      uint32
	Threads   uint8
	KeyLength uint32
}

// RateLimitRule is a fixed-window budget.
type RateLimitRule struct {
	Limit  int
	Window time.Duration
}

// RateLimitConfig holds one rule per limited action.
type RateLimitConfig struct {
	Login         RateLimitRule
	LoginIP       RateLimitRule
	Register      RateLimitRule
	PasswordReset RateLimitRule
	Refresh       RateLimitRule
	InvalidAuth   RateLimitRule
}

// SMTPConfig contains outbound mail server settings. An empty Host logs
// messages instead of sending them.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// NotifyConfig controls asynchronous delivery.
type NotifyConfig struct {
	Workers        int
	QueueSize      int
	MaxRetries     uint64
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	FrontendURL    string
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first.
func Load() (*Config, error) {
	// Missing .env is fine; production relies on real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}

	// Server
	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("ENV", "development")
	cfg.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"localhost:3000", "127.0.0.1:3000"})

	// Database
	cfg.DB = DatabaseConfig{
		Host:           getEnv("DB_HOST", ""),
		Port:           getEnv("DB_PORT", "5432"),
		User:           getEnv("DB_USER", ""),
		Password:       getEnv("DB_PASSWORD", ""),
		Name:           getEnv("DB_NAME", ""),
		SSLMode:        getEnv("DB_SSLMODE", "disable"),
		MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "file://migrations"),
		MaxOpenConns:   getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:   getEnvInt("DB_MAX_IDLE_CONNS", 5),
	}

	// Redis
	cfg.Redis = RedisConfig{
		Host:     getEnv("REDIS_HOST", ""),
		Port:     getEnv("REDIS_PORT", "6379"),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	// Password policy
	cfg.Password = PasswordConfig{
		MinLength:     getEnvInt("PASSWORD_MIN_LENGTH", 8),
		MaxLength:     getEnvInt("PASSWORD_MAX_LENGTH", 128),
		RequireUpper:  getEnvBool("PASSWORD_REQUIRE_UPPER", true),
		RequireLower:  getEnvBool("PASSWORD_REQUIRE_LOWER", true),
		RequireDigit:  getEnvBool("PASSWORD_REQUIRE_DIGIT", true),
		RequireSymbol: getEnvBool("PASSWORD_REQUIRE_SYMBOL", true),
		Denylist:      getEnvList("PASSWORD_DENYLIST", DefaultDenylist),
	}

	// Hasher
	cfg.Hasher = HasherConfig{
		MemoryKiB: uint32(getEnvInt("ARGON2_MEMORY_KIB", 64*1024)),
		Time:      uint32(getEnvInt("ARGON2_TIME", 1)),
		Threads:   uint8(getEnvInt("ARGON2_THREADS", 4)),
		KeyLength: uint32(getEnvInt("ARGON2_KEY_LENGTH", 32)),
	}

	// SMTP
	cfg.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     getEnvInt("SMTP_PORT", 587),
		Username: getEnv("SMTP_USER", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("EMAIL_FROM", "no-reply@example.com"),
	}
	cfg.Notify = NotifyConfig{
		Workers:     getEnvInt("EMAIL_WORKERS", 2),
		QueueSize:   getEnvInt("EMAIL_QUEUE_SIZE", 100),
		MaxRetries:  uint64(getEnvInt("EMAIL_MAX_RETRIES", 3)),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
	}

	// Tokens
	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", "gtd_auth")

	// Durations
	var err error
	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.Auth.AccessTTL, "ACCESS_TOKEN_TTL", "15m"},
		{&cfg.Auth.RefreshTTL, "REFRESH_TOKEN_TTL", "168h"},
		{&cfg.Auth.ResetTTL, "RESET_TOKEN_TTL", "30m"},
		{&cfg.Auth.VerifyTTL, "VERIFY_TOKEN_TTL", "24h"},
		{&cfg.SMTP.Timeout, "SMTP_TIMEOUT", "10s"},
		{&cfg.Notify.RetryBaseDelay, "EMAIL_RETRY_BASE_DELAY", "1s"},
		{&cfg.Notify.RetryMaxDelay, "EMAIL_RETRY_MAX_DELAY", "30s"},
	}
	for _, d := range durations {
		if *d.dst, err = parseDurationEnv(d.key, d.def); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
	}

	// Rate limits
	rules := []struct {
		dst    *RateLimitRule
		prefix string
		limit  int
		window string
	}{
		{&cfg.RateLimit.Login, "RATE_LIMIT_LOGIN", 5, "1m"},
		{&cfg.RateLimit.LoginIP, "RATE_LIMIT_LOGIN_IP", 20, "1m"},
		{&cfg.RateLimit.Register, "RATE_LIMIT_REGISTER", 10, "1h"},
		{&cfg.RateLimit.PasswordReset, "RATE_LIMIT_PASSWORD_RESET", 3, "15m"},
		{&cfg.RateLimit.Refresh, "RATE_LIMIT_REFRESH", 30, "1m"},
		{&cfg.RateLimit.InvalidAuth, "RATE_LIMIT_INVALID_AUTH", 10, "1m"},
	}
	for _, r := range rules {
		r.dst.Limit = getEnvInt(r.prefix+"_LIMIT", r.limit)
		if r.dst.Window, err = parseDurationEnv(r.prefix+"_WINDOW", r.window); err != nil {
			return nil, fmt.Errorf("invalid %s_WINDOW: %w", r.prefix, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultDenylist holds passwords rejected regardless of their composition.
var DefaultDenylist = []string{
	"password", "password1", "password123", "12345678", "123456789",
	"qwerty123", "letmein", "welcome1", "admin123", "iloveyou",
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	if c.DB.Host == "" || c.DB.User == "" || c.DB.Name == "" {
		return errors.New("database configuration incomplete: ensure DB_HOST, DB_USER, and DB_NAME are set")
	}
	if len(c.Auth.JWTSecret) < utils.MinSecretBytes {
		return errors.New("JWT_SECRET must be set and at least 32 bytes long")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return errors.New("token lifetimes invalid: REFRESH_TOKEN_TTL must exceed ACCESS_TOKEN_TTL > 0")
	}
	if c.Password.MinLength <= 0 || c.Password.MaxLength < c.Password.MinLength {
		return errors.New("password length bounds invalid")
	}
	if c.Hasher.MemoryKiB == 0 || c.Hasher.Time == 0 || c.Hasher.Threads == 0 || c.Hasher.KeyLength < 16 {
		return errors.New("argon2 parameters invalid")
	}
	return nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// getEnvInt returns the value of an environment variable as an integer or a default if empty/invalid.
func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// getEnvList splits a comma-separated variable, dropping empty entries.
func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return append([]string(nil), def...)
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseDurationEnv reads an environment variable and parses it as time.Duration.
// If the variable is empty, it falls back to the provided default value.
func parseDurationEnv(key, def string) (time.Duration, error) {
	raw := getEnv(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be >= 0")
	}
	return d, nil
}
