package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
)

type PostgresConfig struct {
	Host     string
	User     string
	Password string
	DBName   string
	Port     string
	SSLMode  string
}

// DSN renders the gorm postgres connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		p.Host, p.User, p.Password, p.DBName, p.Port, p.SSLMode)
}

// app config
type Config struct {
	Port           string
	Env            string
	AllowedOrigins []string

	StoreBackend string
	Postgres     PostgresConfig
	SQLitePath   string
	MongoURI     string
	MongoDB      string

	// empty disables the redis notifier and channel relay
	RedisAddr string

	AIProvider string

	RoomTokenSecret string
	RoomTokenTTL    time.Duration

	ArchiveEnabled   bool
	ArchiveSchedule  string
	ArchiveRetention time.Duration

	SubmissionCacheTTL time.Duration

	GitHubAPIURL string
	GitHubToken  string
}

// loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:           getEnvOrDefault("PORT", "8080"),
		Env:            getEnvOrDefault("APP_ENV", "production"),
		AllowedOrigins: splitList(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:3000")),
		StoreBackend:   strings.ToLower(getEnvOrDefault("STORE_BACKEND", BackendMemory)),
		Postgres: PostgresConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DBName:   getEnvOrDefault("POSTGRES_DB", "roomsync"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		},
		SQLitePath:         getEnvOrDefault("SQLITE_PATH", "roomsync.db"),
		MongoURI:           getEnvOrDefault("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:            getEnvOrDefault("MONGO_DB", "roomsync"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		AIProvider:         strings.ToLower(getEnvOrDefault("AI_PROVIDER", "none")),
		RoomTokenSecret:    os.Getenv("ROOM_TOKEN_SECRET"),
		RoomTokenTTL:       getEnvDuration("ROOM_TOKEN_TTL", 4*time.Hour),
		ArchiveEnabled:     getEnvOrDefault("ARCHIVE_ENABLED", "false") == "true",
		ArchiveSchedule:    getEnvOrDefault("ARCHIVE_SCHEDULE", "0 3 * * *"),
		ArchiveRetention:   getEnvDuration("ARCHIVE_RETENTION", 7*24*time.Hour),
		SubmissionCacheTTL: getEnvDuration("SUBMISSION_CACHE_TTL", 15*time.Minute),
		GitHubAPIURL:       strings.TrimRight(getEnvOrDefault("GITHUB_API_URL", "https://api.github.com"), "/"),
		GitHubToken:        os.Getenv("GITHUB_TOKEN"),
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validateConfig(cfg *Config) error {
	switch cfg.StoreBackend {
	case BackendMemory, BackendPostgres, BackendSQLite, BackendMongo:
	default:
		return errors.New("unsupported store backend: " + cfg.StoreBackend + ". Currently supported: memory, postgres, sqlite, mongo")
	}
	switch cfg.AIProvider {
	case "gemini", "none":
	default:
		return errors.New("unsupported AI provider: " + cfg.AIProvider + ". Currently supported: gemini, none")
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT %q: %w", cfg.Port, err)
	}
	if _, err := cron.ParseStandard(cfg.ArchiveSchedule); err != nil {
		return fmt.Errorf("invalid ARCHIVE_SCHEDULE %q: %w", cfg.ArchiveSchedule, err)
	}
	if cfg.ArchiveRetention <= 0 {
		return errors.New("ARCHIVE_RETENTION must be positive")
	}
	// Gemini validation is handled by gemini.NewConfig()
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
