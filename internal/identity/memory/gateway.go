// Package memory provides an in-process identity provider. It signs in as a
// fixed user without any interaction and is used for local development and
// tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

// Option configures a Gateway.
type Option func(*Gateway)

// WithUser sets the identity SignIn signs in as.
func WithUser(identity domain.Identity) Option {
	return func(g *Gateway) {
		g.user = identity
	}
}

// WithCache restores and persists the signed-in identity through cache.
func WithCache(cache ports.IdentityCache) Option {
	return func(g *Gateway) {
		g.cache = cache
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithSignedIn starts the provider with identity already signed in.
func WithSignedIn(identity domain.Identity) Option {
	return func(g *Gateway) {
		g.current = &identity
		g.restored = true
	}
}

// Gateway is an in-process ports.IdentityGateway.
type Gateway struct {
	mu        sync.Mutex
	user      domain.Identity
	current   *domain.Identity
	restored  bool
	cache     ports.IdentityCache
	logger    *slog.Logger
	listeners map[int]func(*domain.Identity)
	nextID    int

	signInErr  error
	signOutErr error
}

var _ ports.IdentityGateway = (*Gateway)(nil)

// New creates a gateway that signs in as "dev-user" unless WithUser is given.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		user:      domain.Identity{ID: "dev-user", DisplayName: "Dev User"},
		logger:    slog.Default(),
		listeners: make(map[int]func(*domain.Identity)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Subscribe registers onChange and delivers the current identity before
// returning.
func (g *Gateway) Subscribe(onChange func(*domain.Identity)) func() {
	g.restore()

	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = onChange
	current := g.current
	g.mu.Unlock()

	onChange(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

// SignIn signs in as the configured user.
func (g *Gateway) SignIn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if err := g.signInErr; err != nil {
		g.signInErr = nil
		g.mu.Unlock()
		return err
	}
	user := g.user
	g.mu.Unlock()

	if user.ID == "" {
		return errors.New("no user configured for sign-in")
	}

	return g.set(ctx, &user)
}

// SignOut clears the current identity.
func (g *Gateway) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	g.mu.Lock()
	if err := g.signOutErr; err != nil {
		g.signOutErr = nil
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	return g.set(ctx, nil)
}

// SetIdentity changes the identity as if the provider did so on its own,
// e.g. a session expiring elsewhere.
func (g *Gateway) SetIdentity(ctx context.Context, identity *domain.Identity) error {
	return g.set(ctx, identity)
}

// FailNextSignIn makes the next SignIn return err.
func (g *Gateway) FailNextSignIn(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signInErr = err
}

// FailNextSignOut makes the next SignOut return err.
func (g *Gateway) FailNextSignOut(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signOutErr = err
}

// Subscribers returns the number of registered listeners.
func (g *Gateway) Subscribers() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.listeners)
}

func (g *Gateway) set(ctx context.Context, identity *domain.Identity) error {
	if g.cache != nil {
		if err := g.cache.Save(ctx, identity); err != nil {
			return fmt.Errorf("failed to persist identity: %w", err)
		}
	}

	g.mu.Lock()
	if identity != nil {
		copied := *identity
		identity = &copied
	}
	g.current = identity
	g.restored = true
	listeners := make([]func(*domain.Identity), 0, len(g.listeners))
	for _, fn := range g.listeners {
		listeners = append(listeners, fn)
	}
	g.mu.Unlock()

	for _, fn := range listeners {
		fn(identity)
	}
	return nil
}

func (g *Gateway) restore() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.restored || g.cache == nil {
		g.restored = true
		return
	}
	g.restored = true

	identity, err := g.cache.Load(context.Background())
	if err != nil {
		if !errors.Is(err, ports.ErrNoIdentity) {
			g.logger.Warn("failed to restore cached identity", slog.String("error", err.Error()))
		}
		return
	}
	g.current = identity
}
