package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// MFA store backends
const (
	MFAStoreMemory = "memory"
	MFAStoreRedis  = "redis"
)

// Config holds the API server configuration
type Config struct {
	Port         int
	Host         string
	AppEnv       string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	DatabaseURL  string
	StoreTimeout time.Duration

	JWTSecret    string
	FullTokenTTL time.Duration
	TempTokenTTL time.Duration
	MFACodeTTL   time.Duration
	BcryptCost   int

	MFAStore      string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CORSOrigins   []string
	PublicBaseURL string

	EnableKafka  bool
	KafkaBrokers string

	EnableConsul bool
	ConsulAddr   string
	ConsulToken  string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	if err := ValidateEnv([]string{"JWT_SECRET"}); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:         getEnvInt("PORT", 8080),
		Host:         GetEnvOrDefault("HOST", "localhost"),
		AppEnv:       GetEnvOrDefault("APP_ENV", "development"),
		ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),

		DatabaseURL:  databaseURL(),
		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		JWTSecret:    os.Getenv("JWT_SECRET"),
		FullTokenTTL: getEnvDuration("FULL_TOKEN_TTL", 24*time.Hour),
		TempTokenTTL: getEnvDuration("TEMP_TOKEN_TTL", 5*time.Minute),
		MFACodeTTL:   getEnvDuration("MFA_CODE_TTL", 5*time.Minute),
		BcryptCost:   getEnvInt("BCRYPT_COST", bcrypt.DefaultCost),

		MFAStore:      strings.ToLower(GetEnvOrDefault("MFA_STORE", MFAStoreMemory)),
		RedisAddr:     GetEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CORSOrigins:   splitList(GetEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:8081,http://localhost:19006")),
		PublicBaseURL: strings.TrimRight(GetEnvOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),

		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		EnableConsul: os.Getenv("ENABLE_CONSUL") == "true",
		ConsulAddr:   GetEnvOrDefault("CONSUL_HTTP_ADDR", "localhost:8500"),
		ConsulToken:  os.Getenv("CONSUL_HTTP_TOKEN"),
	}
	cfg.EnableKafka = cfg.KafkaBrokers != "" && GetEnvOrDefault("ENABLE_KAFKA", "true") == "true"

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that env parsing can't express
func (c *Config) Validate() error {
	if err := ValidateJWTSecret(c.JWTSecret); err != nil {
		return err
	}
	if c.MFAStore != MFAStoreMemory && c.MFAStore != MFAStoreRedis {
		return fmt.Errorf("MFA_STORE must be %q or %q, got %q", MFAStoreMemory, MFAStoreRedis, c.MFAStore)
	}
	if c.FullTokenTTL <= 0 || c.TempTokenTTL <= 0 || c.MFACodeTTL <= 0 {
		return fmt.Errorf("token and code TTLs must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return nil
}

// IsProduction reports whether APP_ENV is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from DB_* parts
func databaseURL() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	u := url.URL{
		Scheme: "postgres",
		User: url.UserPassword(
			GetEnvOrDefault("DB_USERNAME", "packtrack"),
			GetEnvOrDefault("DB_PASSWORD", "packtrack"),
		),
		Host: fmt.Sprintf("%s:%s", GetEnvOrDefault("DB_HOST", "localhost"), GetEnvOrDefault("DB_PORT", "5432")),
		Path: GetEnvOrDefault("DB_DATABASE", "packtrack"),
	}
	q := u.Query()
	q.Set("sslmode", GetEnvOrDefault("DB_SSLMODE", "disable"))
	if schema := os.Getenv("DB_SCHEMA"); schema != "" {
		q.Set("search_path", schema)
	}
	u.RawQuery = q.Encode()

	return u.String()
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
