package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Meeting  MeetingConfig
	Lookup   LookupConfig
	AWS      AWSConfig
	App      AppConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/lightbluetent?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds the secret shared with the sign-on gateway that issues principal tokens.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// MeetingConfig points at the remote conferencing API.
type MeetingConfig struct {
	URL            string // e.g. https://bbb.example.org/bigbluebutton/api/
	Secret         string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// LookupConfig configures the person directory used to prefill display names.
type LookupConfig struct {
	URL       string
	CacheSize int
}

// AWSConfig holds AWS credentials and the logo bucket.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	LogosBucket     string
	Endpoint        string // optional, for S3-compatible stores such as MinIO
}

// AppConfig holds portal behaviour switches.
type AppConfig struct {
	Environment      string // "production" switches gin to release mode
	PublicBaseURL    string // used for logout/invite links handed to the meeting service
	DefaultLogo      string
	HasDirectoryPage bool
	EnableSignups    bool
	Timezone         string
	SupportEmail     string
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

// Location resolves the configured timezone, falling back to UTC.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("POSTGRES_HOSTNAME", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getEnv("APPLICATION_DB", "lightbluetent"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 12),
		},
		Meeting: MeetingConfig{
			URL:            getEnv("BIGBLUEBUTTON_URL", ""),
			Secret:         getEnv("BIGBLUEBUTTON_SECRET", ""),
			ConnectTimeout: time.Duration(getEnvInt("MEETING_CONNECT_TIMEOUT_MS", 500)) * time.Millisecond,
			ReadTimeout:    time.Duration(getEnvInt("MEETING_READ_TIMEOUT_SEC", 10)) * time.Second,
		},
		Lookup: LookupConfig{
			URL:       getEnv("LOOKUP_URL", "https://www.lookup.cam.ac.uk"),
			CacheSize: getEnvInt("LOOKUP_CACHE_SIZE", 1024),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			LogosBucket:     getEnv("AWS_S3_LOGOS_BUCKET", "lightbluetent-logos"),
			Endpoint:        getEnv("AWS_S3_ENDPOINT", ""),
		},
		App: AppConfig{
			Environment:      getEnv("APP_ENV", "development"),
			PublicBaseURL:    strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
			DefaultLogo:      getEnv("DEFAULT_LOGO", "default.png"),
			HasDirectoryPage: getEnvBool("HAS_DIRECTORY_PAGE", false),
			EnableSignups:    getEnvBool("ENABLE_SIGNUPS", true),
			Timezone:         getEnv("TIMEZONE", "Europe/London"),
			SupportEmail:     getEnv("SUPPORT_EMAIL", "support@srcf.net"),
		},
	}
	if cfg.Meeting.URL != "" && !strings.HasSuffix(cfg.Meeting.URL, "/") {
		cfg.Meeting.URL += "/"
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

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
