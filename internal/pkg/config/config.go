package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file read when no explicit path is given.
const DefaultPath = "applyai.yaml"

// EnvPrefix prefixes every environment override. Nested keys use a double
// underscore: APPLYAI_BACKEND__BASE_URL sets backend.base_url.
const EnvPrefix = "APPLYAI_"

// Identity provider kinds.
const (
	IdentityProviderMemory   = "memory"
	IdentityProviderLoopback = "loopback"
)

// Identity cache kinds.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

type Config struct {
	Backend   BackendConfig   `koanf:"backend"`
	Identity  IdentityConfig  `koanf:"identity"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	DevServer DevServerConfig `koanf:"devserver"`
}

// BackendConfig locates the remote service. BaseURL is not validated here;
// a malformed value surfaces as a network failure on the first call.
type BackendConfig struct {
	BaseURL   string        `koanf:"base_url"`
	Timeout   time.Duration `koanf:"timeout"`
	UserAgent string        `koanf:"user_agent"`
}

type IdentityConfig struct {
	Provider string `koanf:"provider"` // memory, loopback

	// Loopback provider settings
	AuthorizeURL string        `koanf:"authorize_url"`
	ClientID     string        `koanf:"client_id"`
	RedirectPort int           `koanf:"redirect_port"` // 0 picks a free port
	SigningKey   string        `koanf:"signing_key"`   // HS256 key for id tokens, supports ${VAR}
	Issuer       string        `koanf:"issuer"`        // Optional: required "iss" claim
	Audience     string        `koanf:"audience"`      // Optional: required "aud" claim
	LoginTimeout time.Duration `koanf:"login_timeout"`

	Cache     string `koanf:"cache"`      // sqlite, memory
	CachePath string `koanf:"cache_path"` // sqlite database path

	// DevUser is the identity the memory provider signs in as.
	DevUser DevUserConfig `koanf:"dev_user"`
}

type DevUserConfig struct {
	ID    string `koanf:"id"`
	Name  string `koanf:"name"`
	Email string `koanf:"email"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

type DevServerConfig struct {
	Port int `koanf:"port"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"backend.base_url":       "http://localhost:8000",
	"backend.timeout":        "120s",
	"backend.user_agent":     "applyai-client/1.0",
	"identity.provider":      IdentityProviderMemory,
	"identity.login_timeout": "5m",
	"identity.cache":         CacheSQLite,
	"identity.cache_path":    "./data/identity.db",
	"identity.dev_user.id":   "dev-user",
	"identity.dev_user.name": "Dev User",
	"logging.level":          "info",
	"logging.format":         "text",
	"telemetry.service_name": "applyai-client",
	"devserver.port":         8000,
}

// Load reads configuration from path (DefaultPath when empty), then applies
// APPLYAI_ environment overrides and defaults. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// Environment variables override file config
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Identity.SigningKey = substituteEnvVars(cfg.Identity.SigningKey)
	cfg.Identity.ClientID = substituteEnvVars(cfg.Identity.ClientID)
	cfg.Backend.BaseURL = strings.TrimSuffix(substituteEnvVars(cfg.Backend.BaseURL), "/")

	return &cfg, nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
