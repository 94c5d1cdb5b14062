package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"merrygit_go/internal/domain"
)

type Config struct {
	AppName string
	Env     string
	Host    string
	Port    int

	SocketURL            string
	MaxReconnectAttempts int
	ReconnectDelay       time.Duration
	ReconnectDelayMax    time.Duration
	ConnectTimeout       time.Duration

	BackendURL         string
	BackendTokenCookie string
	BackendTimeout     time.Duration

	SessionStore   string
	SQLitePath     string
	DatabaseURL    string
	SessionSealKey string

	// Fernet keys for sessions sealed by older bridges.
	SessionSealLegacyKeys []string

	LockDisplayMode domain.LockDisplayMode
	CustomLockText  string

	CORSOrigins []string
	Debug       bool
}

func Load() (*Config, error) {
	dbHost := getEnv("POSTGRES_HOST", "localhost")
	dbPort := getEnv("POSTGRES_PORT", "5432")
	dbUser := getEnv("POSTGRES_USER", "postgres")
	dbPass := getEnv("POSTGRES_PASSWORD", "postgres")
	dbName := getEnv("POSTGRES_DB", "merrygit")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(dbUser, dbPass),
		Host:     fmt.Sprintf("%s:%s", dbHost, dbPort),
		Path:     dbName,
		RawQuery: "sslmode=disable",
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "MerryGit Realtime Bridge"),
		Env:     getEnv("APP_ENV", "development"),
		Host:    getEnv("HTTP_HOST", "127.0.0.1"),
		Port:    getEnvAsInt("HTTP_PORT", 8090),

		SocketURL:            getEnv("SOCKET_URL", "ws://localhost:5000/ws"),
		MaxReconnectAttempts: getEnvAsInt("MAX_RECONNECT_ATTEMPTS", 5),
		ReconnectDelay:       getEnvAsMillis("RECONNECT_DELAY_MS", 1000),
		ReconnectDelayMax:    getEnvAsMillis("RECONNECT_DELAY_MAX_MS", 5000),
		ConnectTimeout:       getEnvAsMillis("CONNECT_TIMEOUT_MS", 10000),

		BackendURL:         getEnv("BACKEND_URL", "http://localhost:5000/api/v1"),
		BackendTokenCookie: getEnv("BACKEND_TOKEN_COOKIE", "token"),
		BackendTimeout:     getEnvAsMillis("BACKEND_TIMEOUT_MS", 10000),

		SessionStore:   strings.ToLower(getEnv("SESSION_STORE", "sqlite")),
		SQLitePath:     getEnv("SQLITE_PATH", "merrygit.db"),
		DatabaseURL:    u.String(),
		SessionSealKey: os.Getenv("SESSION_SEAL_KEY"),

		LockDisplayMode: domain.LockDisplayMode(strings.ToLower(getEnv("LOCK_DISPLAY_MODE", string(domain.LockDisplayText)))),
		CustomLockText:  getEnv("CUSTOM_LOCK_TEXT", "Locked"),

		Debug: getEnvAsBool("DEBUG", true),
	}

	cfg.SessionSealLegacyKeys = splitList(os.Getenv("SESSION_SEAL_LEGACY_KEYS"))

	cors := getEnv("CORS_ORIGINS", "")
	if cors != "" {
		parts := strings.Split(cors, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		cfg.CORSOrigins = parts
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SessionSealKey == "" {
		return fmt.Errorf("SESSION_SEAL_KEY is required")
	}
	if c.MaxReconnectAttempts <= 0 {
		return fmt.Errorf("MAX_RECONNECT_ATTEMPTS must be positive")
	}
	if c.ReconnectDelay <= 0 || c.ReconnectDelayMax < c.ReconnectDelay {
		return fmt.Errorf("reconnect delays must be positive and RECONNECT_DELAY_MAX_MS >= RECONNECT_DELAY_MS")
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("CONNECT_TIMEOUT_MS must be positive")
	}
	if !c.LockDisplayMode.Valid() {
		return fmt.Errorf("LOCK_DISPLAY_MODE must be text, icon or custom, got %q", c.LockDisplayMode)
	}
	switch c.SessionStore {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("SESSION_STORE must be sqlite or postgres, got %q", c.SessionStore)
	}
	return nil
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvAsMillis(key string, def int) time.Duration {
	return time.Duration(getEnvAsInt(key, def)) * time.Millisecond
}

func getEnvAsBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
