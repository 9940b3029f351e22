package runtime

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/tjfontaine/applyai-client/internal/backend"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
	"github.com/tjfontaine/applyai-client/internal/identity/loopback"
	"github.com/tjfontaine/applyai-client/internal/pkg/config"
	"github.com/tjfontaine/applyai-client/internal/storage/sqlite"
	storemem "github.com/tjfontaine/applyai-client/internal/storage/memory"
	"github.com/tjfontaine/applyai-client/internal/tokens"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig loads configuration from a YAML file plus APPLYAI_
// environment overrides.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.cfg = cfg
		return nil
	}
}

// WithConfig uses an already loaded configuration.
func WithConfig(cfg *config.Config) Option {
	return func(a *App) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		a.cfg = cfg
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger != nil {
			a.logger = logger
		}
		return nil
	}
}

// WithSQLiteCache persists the signed-in identity in a SQLite database.
func WithSQLiteCache(path string) Option {
	return func(a *App) error {
		store, err := sqlite.New(path)
		if err != nil {
			return fmt.Errorf("create sqlite cache: %w", err)
		}
		a.cache = store
		return nil
	}
}

// WithMemoryCache keeps the signed-in identity for the life of the process
// only.
func WithMemoryCache() Option {
	return func(a *App) error {
		a.cache = storemem.New()
		return nil
	}
}

// WithIdentityCache sets a custom identity cache. The App closes it on
// Shutdown.
func WithIdentityCache(cache ports.IdentityCache) Option {
	return func(a *App) error {
		a.cache = cache
		return nil
	}
}

// WithIdentityGateway sets the identity provider, bypassing the configured
// one.
func WithIdentityGateway(gateway ports.IdentityGateway) Option {
	return func(a *App) error {
		a.identity = gateway
		return nil
	}
}

// WithBrowserOpener sets how the loopback provider presents its authorize
// URL. Ignored by other providers.
func WithBrowserOpener(open loopback.Opener) Option {
	return func(a *App) error {
		a.opener = open
		return nil
	}
}

// WithBackendURL points the backend client at baseURL, overriding the
// configuration.
func WithBackendURL(baseURL string, opts ...backend.ClientOption) Option {
	return func(a *App) error {
		a.backend = backend.NewClient(baseURL, opts...)
		return nil
	}
}

// WithBackend sets a custom backend implementation.
func WithBackend(b ports.Backend) Option {
	return func(a *App) error {
		a.backend = b
		return nil
	}
}

// WithTokenCounter sets the counter used for payload estimates.
func WithTokenCounter(counter tokens.Counter) Option {
	return func(a *App) error {
		a.counter = counter
		return nil
	}
}

// WithTraceWriter sets where spans are written when telemetry is enabled.
func WithTraceWriter(w io.Writer) Option {
	return func(a *App) error {
		a.traceOut = w
		return nil
	}
}
