package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/digkill/genstudio/internal/database"
)

// Config aggregates runtime configuration for the studio and its providers.
type Config struct {
	LogLevel slog.Level

	StateDriver            string
	StateDSN               string
	DefaultCreditAllotment int

	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string

	PrimaryMediaAPIKey    string
	PrimaryMediaBaseURL   string
	PrimaryMediaModel     string
	SecondaryMediaBaseURL string
	RequestTimeout        time.Duration

	AdminListenAddr string
	AdminUsername   string
	AdminPassword   string

	BotToken string

	S3Endpoint      string
	S3Region        string
	S3AccessKey     string
	S3SecretKey     string
	S3Bucket        string
	S3PublicBaseURL string
	S3UsePathStyle  bool
	S3Prefix        string
}

// S3Enabled reports whether generated payloads should be uploaded to object storage.
func (c Config) S3Enabled() bool {
	return c.S3Bucket != ""
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		LogLevel:               getLevel("LOG_LEVEL", slog.LevelInfo),
		StateDriver:            strings.ToLower(getEnv("STATE_DRIVER", database.DriverSQLite)),
		StateDSN:               getEnv("STATE_DSN", "genstudio.db"),
		DefaultCreditAllotment: getInt("DEFAULT_CREDIT_ALLOTMENT", 50),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GeminiModel:            getEnv("GEMINI_MODEL", ""),
		GeminiBaseURL:          normalizeBaseURL(os.Getenv("GEMINI_BASE_URL")),
		PrimaryMediaAPIKey:     os.Getenv("PRIMARY_MEDIA_API_KEY"),
		PrimaryMediaBaseURL:    normalizeBaseURL(os.Getenv("PRIMARY_MEDIA_BASE_URL")),
		PrimaryMediaModel:      getEnv("PRIMARY_MEDIA_MODEL", ""),
		SecondaryMediaBaseURL:  normalizeBaseURL(os.Getenv("SECONDARY_MEDIA_BASE_URL")),
		RequestTimeout:         time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 0)),
		AdminListenAddr:        getEnv("ADMIN_LISTEN_ADDR", ":8080"),
		AdminUsername:          os.Getenv("ADMIN_USERNAME"),
		AdminPassword:          os.Getenv("ADMIN_PASSWORD"),
		BotToken:               os.Getenv("TELEGRAM_BOT_TOKEN"),
		S3Endpoint:             getEnv("S3_ENDPOINT", ""),
		S3Region:               os.Getenv("S3_REGION"),
		S3AccessKey:            os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:            os.Getenv("S3_SECRET_KEY"),
		S3Bucket:               os.Getenv("S3_BUCKET"),
		S3PublicBaseURL:        os.Getenv("S3_PUBLIC_BASE_URL"),
		S3UsePathStyle:         getBool("S3_USE_PATH_STYLE", false),
		S3Prefix:               getEnv("S3_PREFIX", "generations"),
	}

	var missing []string
	if cfg.AdminUsername == "" {
		missing = append(missing, "ADMIN_USERNAME")
	}
	if cfg.AdminPassword == "" {
		missing = append(missing, "ADMIN_PASSWORD")
	}
	if cfg.S3Enabled() {
		if cfg.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if cfg.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if cfg.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if cfg.S3PublicBaseURL == "" {
			missing = append(missing, "S3_PUBLIC_BASE_URL")
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	switch cfg.StateDriver {
	case database.DriverSQLite, database.DriverMySQL:
	default:
		return Config{}, fmt.Errorf("unsupported STATE_DRIVER %q", cfg.StateDriver)
	}
	if cfg.DefaultCreditAllotment < 0 {
		return Config{}, fmt.Errorf("DEFAULT_CREDIT_ALLOTMENT must not be negative, got %d", cfg.DefaultCreditAllotment)
	}

	return cfg, nil
}

// normalizeBaseURL adds a missing scheme and drops trailing slashes. Empty stays
// empty so clients fall back to their own defaults.
func normalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if parsed.Scheme == "" {
		parsed, err = url.Parse("https://" + raw)
		if err != nil {
			return ""
		}
	}
	return strings.TrimRight(parsed.String(), "/")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getLevel(key string, fallback slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return fallback
	}
	return level
}

// loadEnvFile overlays the first env file found. Running without one is fine;
// the process environment alone is a valid configuration.
func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
