// Package session holds the process-wide authentication state.
//
// A Store is created once at startup and passed by reference to everything
// that needs to know who is signed in. The identity provider's subscription
// callback is the only writer of the identity; every other component reads
// snapshots through Current.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
	"github.com/tjfontaine/applyai-client/internal/pkg/watch"
)

// Store is the single authoritative view of the signed-in identity.
type Store struct {
	gateway ports.IdentityGateway
	logger  *slog.Logger

	mu          sync.Mutex
	session     domain.Session
	subscribed  bool
	generation  int
	unsubscribe func()
	ready       chan struct{}
	watchers    watch.List[domain.Session]
}

var _ ports.SessionReader = (*Store)(nil)

// New creates a Store in the initializing state. Nothing is read from the
// gateway until Subscribe is called.
func New(gateway ports.IdentityGateway, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		gateway: gateway,
		logger:  logger,
		session: domain.Session{IsInitializing: true},
		ready:   make(chan struct{}),
	}
}

// Subscribe registers with the gateway's change notifications. The returned
// release function deregisters; it is idempotent. Subscribe must be acquired
// once per owning scope: a second acquisition while held returns
// domain.ErrAlreadySubscribed.
func (s *Store) Subscribe() (release func(), err error) {
	s.mu.Lock()
	if s.subscribed {
		s.mu.Unlock()
		return nil, domain.ErrAlreadySubscribed
	}
	s.subscribed = true
	s.generation++
	generation := s.generation
	s.mu.Unlock()

	// The gateway may deliver synchronously, so no lock is held here.
	unsubscribe := s.gateway.Subscribe(s.onIdentityChange)

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.release(generation) })
	}, nil
}

// Scope acquires the subscription, runs fn and releases the subscription on
// every exit path, including panics.
func (s *Store) Scope(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := s.Subscribe()
	if err != nil {
		return err
	}
	defer release()

	return fn(ctx)
}

func (s *Store) release(generation int) {
	s.mu.Lock()
	if !s.subscribed || s.generation != generation {
		s.mu.Unlock()
		return
	}
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.subscribed = false
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// onIdentityChange is the subscription callback and the single writer of
// the session identity.
func (s *Store) onIdentityChange(identity *domain.Identity) {
	s.mu.Lock()
	s.session.Identity = identity
	if s.session.IsInitializing {
		s.session.IsInitializing = false
		close(s.ready)
	}
	snapshot := s.session
	s.watchers.Publish(snapshot)
	s.mu.Unlock()

	s.logger.Debug("session changed",
		slog.Bool("signed_in", identity != nil),
		slog.String("user_id", snapshot.UserID()))

	s.watchers.Flush()
}

// SignIn runs the provider's interactive sign-in and returns when it
// completes or fails. It never writes the identity; the update arrives
// through the subscription. Failures, including the user cancelling, are
// logged and otherwise ignored.
func (s *Store) SignIn(ctx context.Context) {
	if err := s.gateway.SignIn(ctx); err != nil {
		s.logger.Warn("error signing in", slog.String("error", err.Error()))
	}
}

// LogOut signs out through the provider. Failures are logged and otherwise
// ignored.
func (s *Store) LogOut(ctx context.Context) {
	if err := s.gateway.SignOut(ctx); err != nil {
		s.logger.Warn("error signing out", slog.String("error", err.Error()))
	}
}

// Current returns the present session snapshot.
func (s *Store) Current() domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Ready is closed when the first identity delivery has been applied.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the session has initialized or ctx is done.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for identity provider: %w", ctx.Err())
	}
}

// Watch calls fn with a snapshot after every session change, in the order
// the changes happened. The returned function stops notifications.
func (s *Store) Watch(fn func(domain.Session)) (cancel func()) {
	return s.watchers.Add(fn)
}
