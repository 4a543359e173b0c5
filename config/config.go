package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	AWS      AWSConfig
	Invites  InvitesConfig
	Feed     FeedConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
	// RunWorker starts the media verification worker inside the API process.
	RunWorker bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/aerodrome?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds settings for verifying identity tokens issued by the identity provider.
type JWTConfig struct {
	Secret    string
	Issuer    string   // empty = not checked
	Audiences []string // empty = not checked
}

// AWSConfig holds AWS credentials and the observation media bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	Endpoint             string // optional, for S3-compatible stores
	MediaBucket          string
	PresignExpireMinutes int
}

// InvitesConfig holds the invite policy points.
type InvitesConfig struct {
	CollaboratorsMayMint bool
	DefaultExpireHours   int // used when a mint request gives no expiry; 0 = never expires
	TokenLength          int
	ValidatePerMinute    int // per client IP on the public validate endpoint
}

// FeedConfig holds aerodrome feed settings.
type FeedConfig struct {
	SummaryCacheSeconds int
	DefaultLimit        int
	MaxLimit            int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
			RunWorker:          getEnvBool("RUN_WORKER", true),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "aerodrome"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:    getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", ""),
			Audiences: splitTrim(getEnv("JWT_AUDIENCE", "authenticated"), ","),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "sa-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			MediaBucket:          getEnv("AWS_S3_MEDIA_BUCKET", "observation-media"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Invites: InvitesConfig{
			CollaboratorsMayMint: getEnvBool("INVITES_COLLABORATORS_MAY_MINT", false),
			DefaultExpireHours:   getEnvInt("INVITES_DEFAULT_EXPIRE_HOURS", 168),
			TokenLength:          getEnvInt("INVITES_TOKEN_LENGTH", 32),
			ValidatePerMinute:    getEnvInt("INVITES_VALIDATE_PER_MINUTE", 30),
		},
		Feed: FeedConfig{
			SummaryCacheSeconds: getEnvInt("FEED_SUMMARY_CACHE_SECONDS", 60),
			DefaultLimit:        getEnvInt("FEED_DEFAULT_LIMIT", 30),
			MaxLimit:            getEnvInt("FEED_MAX_LIMIT", 100),
		},
	}
	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.Feed.MaxLimit <= 0 {
		cfg.Feed.MaxLimit = 100
	}
	if cfg.Feed.DefaultLimit <= 0 || cfg.Feed.DefaultLimit > cfg.Feed.MaxLimit {
		cfg.Feed.DefaultLimit = cfg.Feed.MaxLimit
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
