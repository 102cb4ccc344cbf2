package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Addr           string
	DBDriver       string
	DBPath         string
	DatabaseURL    string
	TemplateDir    string
	StaticDir      string
	MediaDir       string
	PageSize       int
	CacheTTL       time.Duration
	SessionTTL     time.Duration
	MaxUploadBytes int64
	LogLevel       string
	// CSRFKey is the hex encoded 32 byte key form tokens are signed with.
	// Empty means a random key per process.
	CSRFKey        string
	SecureCookies  bool
}

func Default() Config {
	return Config{
		Addr:           ":8080",
		DBDriver:       "sqlite",
		DBPath:         "yatube.db",
		TemplateDir:    "web/templates",
		StaticDir:      "web/static",
		MediaDir:       "media",
		PageSize:       10,
		CacheTTL:       20 * time.Second,
		SessionTTL:     24 * time.Hour,
		MaxUploadBytes: 5 << 20,
	}
}

// Load reads an optional .env file and then the process environment.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Warn("config: Failed to load .env file", "error", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function, falling back to Default for unset keys.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()

	if port := getenv("PORT"); port != "" {
		cfg.Addr = ":" + port
	}
	setString(&cfg.Addr, getenv("ADDR"))
	setString(&cfg.DBDriver, strings.ToLower(getenv("DB_DRIVER")))
	setString(&cfg.DBPath, getenv("DB_PATH"))
	setString(&cfg.DatabaseURL, getenv("DATABASE_URL"))
	setString(&cfg.TemplateDir, getenv("TEMPLATE_DIR"))
	setString(&cfg.StaticDir, getenv("STATIC_DIR"))
	setString(&cfg.MediaDir, getenv("MEDIA_DIR"))
	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.CSRFKey, getenv("CSRF_KEY"))

	if v := getenv("PAGE_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("%w: PAGE_SIZE must be a positive integer, got %q", ErrInvalid, v)
		}
		cfg.PageSize = n
	}
	if v := getenv("CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return cfg, fmt.Errorf("%w: CACHE_TTL must be a non-negative duration, got %q", ErrInvalid, v)
		}
		cfg.CacheTTL = d
	}
	if v := getenv("SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("%w: SESSION_TTL must be a positive duration, got %q", ErrInvalid, v)
		}
		cfg.SessionTTL = d
	}
	if v := getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("%w: MAX_UPLOAD_BYTES must be a positive integer, got %q", ErrInvalid, v)
		}
		cfg.MaxUploadBytes = n
	}

	if v := getenv("SECURE_COOKIES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return cfg, fmt.Errorf("%w: SECURE_COOKIES must be a boolean, got %q", ErrInvalid, v)
		}
		cfg.SecureCookies = b
	}
	if cfg.CSRFKey != "" {
		if key, err := hex.DecodeString(cfg.CSRFKey); err != nil || len(key) != 32 {
			return cfg, fmt.Errorf("%w: CSRF_KEY must be 64 hex characters", ErrInvalid)
		}
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("%w: DATABASE_URL is required for the postgres driver", ErrInvalid)
		}
	default:
		return cfg, fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalid, cfg.DBDriver)
	}

	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
