// Package runtime wires the client together: configuration, identity
// provider and cache, session, backend client and the two orchestrators.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/tjfontaine/applyai-client/internal/backend"
	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
	"github.com/tjfontaine/applyai-client/internal/identity/loopback"
	"github.com/tjfontaine/applyai-client/internal/identity/memory"
	"github.com/tjfontaine/applyai-client/internal/orchestrator"
	"github.com/tjfontaine/applyai-client/internal/pkg/config"
	"github.com/tjfontaine/applyai-client/internal/session"
	"github.com/tjfontaine/applyai-client/internal/storage/sqlite"
	storemem "github.com/tjfontaine/applyai-client/internal/storage/memory"
	"github.com/tjfontaine/applyai-client/internal/telemetry"
	"github.com/tjfontaine/applyai-client/internal/tokens"
)

// App owns the process-wide session and the per-surface orchestrators.
// It can be embedded in another program or driven by cmd/applyai.
type App struct {
	// Dependencies (injected via options or built from config)
	cfg      *config.Config
	cache    ports.IdentityCache
	identity ports.IdentityGateway
	backend  ports.Backend
	counter  tokens.Counter
	logger   *slog.Logger
	traceOut io.Writer
	opener   loopback.Opener

	session *session.Store
	chat    *orchestrator.Chat
	resume  *orchestrator.Resume

	mu             sync.Mutex
	release        func()
	shutdownTracer func(context.Context) error
}

// New builds an App. Anything not supplied through options is built from the
// configuration, which is loaded from config.DefaultPath when no config
// option is given.
func New(opts ...Option) (*App, error) {
	app := &App{
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if app.cfg == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		app.cfg = cfg
	}

	if app.counter == nil {
		app.counter = tokens.NewTiktoken("")
	}

	if app.identity == nil {
		if err := app.initIdentity(); err != nil {
			app.closeCache()
			return nil, fmt.Errorf("init identity provider: %w", err)
		}
	}

	if app.backend == nil {
		app.backend = backend.NewClient(app.cfg.Backend.BaseURL,
			backend.WithTimeout(app.cfg.Backend.Timeout),
			backend.WithUserAgent(app.cfg.Backend.UserAgent),
			backend.WithLogger(app.logger))
	}

	app.session = session.New(app.identity, app.logger)

	orchOpts := []orchestrator.Option{
		orchestrator.WithLogger(app.logger),
		orchestrator.WithTokenCounter(app.counter),
	}
	app.chat = orchestrator.NewChat(app.backend, app.session, orchOpts...)
	app.resume = orchestrator.NewResume(app.backend, app.session, orchOpts...)

	return app, nil
}

func (a *App) initIdentity() error {
	idCfg := a.cfg.Identity

	if a.cache == nil {
		cache, err := newCache(idCfg)
		if err != nil {
			return err
		}
		a.cache = cache
	}

	switch idCfg.Provider {
	case config.IdentityProviderMemory, "":
		a.identity = memory.New(
			memory.WithUser(domain.Identity{
				ID:          idCfg.DevUser.ID,
				DisplayName: idCfg.DevUser.Name,
				Email:       idCfg.DevUser.Email,
			}),
			memory.WithCache(a.cache),
			memory.WithLogger(a.logger))
		return nil

	case config.IdentityProviderLoopback:
		loopbackOpts := []loopback.Option{loopback.WithLogger(a.logger)}
		if a.opener != nil {
			loopbackOpts = append(loopbackOpts, loopback.WithOpener(a.opener))
		}
		gw, err := loopback.New(loopback.Config{
			AuthorizeURL: idCfg.AuthorizeURL,
			ClientID:     idCfg.ClientID,
			RedirectPort: idCfg.RedirectPort,
			SigningKey:   []byte(idCfg.SigningKey),
			Issuer:       idCfg.Issuer,
			Audience:     idCfg.Audience,
			Timeout:      idCfg.LoginTimeout,
		}, a.cache, loopbackOpts...)
		if err != nil {
			return err
		}
		a.identity = gw
		return nil

	default:
		return fmt.Errorf("unknown identity provider %q", idCfg.Provider)
	}
}

func newCache(idCfg config.IdentityConfig) (ports.IdentityCache, error) {
	switch idCfg.Cache {
	case config.CacheSQLite, "":
		store, err := sqlite.New(idCfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open identity cache: %w", err)
		}
		return store, nil
	case config.CacheMemory:
		return storemem.New(), nil
	default:
		return nil, fmt.Errorf("unknown identity cache %q", idCfg.Cache)
	}
}

// Start installs tracing when enabled, subscribes the session to the
// identity provider and waits until the first identity has been delivered.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.release != nil {
		return errors.New("app already started")
	}

	if a.cfg.Telemetry.Enabled && a.traceOut != nil {
		shutdown, err := telemetry.InitTracer(a.cfg.Telemetry.ServiceName, a.traceOut, a.logger)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		a.shutdownTracer = shutdown
	}

	release, err := a.session.Subscribe()
	if err != nil {
		return fmt.Errorf("subscribe session: %w", err)
	}
	a.release = release

	if err := a.session.WaitReady(ctx); err != nil {
		return err
	}

	a.logger.Debug("app started",
		slog.Bool("signed_in", a.session.Current().SignedIn()),
		slog.String("backend", a.cfg.Backend.BaseURL))
	return nil
}

// Shutdown releases the session subscription and closes resources. It is
// safe to call after a failed Start.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.release != nil {
		a.release()
		a.release = nil
	}

	var errs []error
	if a.shutdownTracer != nil {
		if err := a.shutdownTracer(ctx); err != nil {
			a.logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.shutdownTracer = nil
	}
	if err := a.closeCache(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeCache() error {
	if a.cache == nil {
		return nil
	}
	err := a.cache.Close()
	a.cache = nil
	if err != nil {
		a.logger.Error("failed to close identity cache", slog.String("error", err.Error()))
	}
	return err
}

// Config returns the effective configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Session returns the process-wide session store.
func (a *App) Session() *session.Store { return a.session }

// Chat returns the chat orchestrator.
func (a *App) Chat() *orchestrator.Chat { return a.chat }

// Resume returns the resume-tailoring orchestrator.
func (a *App) Resume() *orchestrator.Resume { return a.resume }

// History returns the backend's stored history endpoints.
func (a *App) History() ports.HistoryBackend { return a.backend }

// Tokens returns the token counter.
func (a *App) Tokens() tokens.Counter { return a.counter }
