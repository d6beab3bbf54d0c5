package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the central typed configuration struct.
// Embed or extend it in your app's own AppConfig.
type Config struct {
	App      AppConfig
	Registry RegistryConfig
	Log      LogConfig
	Admin    AdminConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
}

// RegistryConfig tunes the singleton registry.
type RegistryConfig struct {
	// AllowAliasOverriding lets an alias be re-pointed at another name.
	AllowAliasOverriding bool

	// AliasFile is an optional YAML manifest of aliases applied at boot.
	AliasFile string
}

type LogConfig struct {
	Level  string // panic | fatal | error | warn | info | debug | trace
	Format string // text | json
}

// AdminConfig controls the HTTP inspection surface.
type AdminConfig struct {
	Enabled bool
	Addr    string
}

// Load reads .env (if present) and populates a Config from environment variables.
// Call once at bootstrap: cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	// Non-fatal: .env may not exist in production
	_ = godotenv.Load(files...)

	return &Config{
		App: AppConfig{
			Name:  env("APP_NAME", "go-container"),
			Env:   env("APP_ENV", "local"),
			Debug: envBool("APP_DEBUG", false),
		},
		Registry: RegistryConfig{
			AllowAliasOverriding: envBool("REGISTRY_ALLOW_ALIAS_OVERRIDING", true),
			AliasFile:            env("REGISTRY_ALIAS_FILE", ""),
		},
		Log: LogConfig{
			Level:  env("LOG_LEVEL", "info"),
			Format: env("LOG_FORMAT", "text"),
		},
		Admin: AdminConfig{
			Enabled: envBool("ADMIN_ENABLED", false),
			Addr:    env("ADMIN_ADDR", ":8089"),
		},
	}
}

// Get returns a raw env value, falling back to defaultVal.
func Get(key, defaultVal string) string {
	return env(key, defaultVal)
}

// GetInt returns an int env value.
func GetInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// GetBool returns a bool env value.
func GetBool(key string, defaultVal bool) bool {
	return envBool(key, defaultVal)
}

// ── helpers ─────────────────────────────────────────────────────────────────

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
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
