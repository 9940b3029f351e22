// Package loopback implements an interactive identity provider for terminal
// clients. SignIn opens the provider's authorize page in the user's browser
// and receives the resulting id token on a short-lived listener bound to
// 127.0.0.1, the desktop equivalent of a sign-in popup.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

const (
	callbackPath        = "/callback"
	defaultLoginTimeout = 5 * time.Minute
)

var (
	// ErrSignInCancelled is returned when the provider redirects back with an
	// error such as access_denied.
	ErrSignInCancelled = errors.New("sign-in cancelled")

	// ErrSignInInProgress is returned when SignIn is called while another
	// flow is waiting for its callback.
	ErrSignInInProgress = errors.New("sign-in already in progress")
)

// Config configures the authorize request and id-token verification.
type Config struct {
	AuthorizeURL string
	ClientID     string
	// RedirectPort is the loopback port; 0 picks a free one.
	RedirectPort int
	// SigningKey verifies HS256 id tokens.
	SigningKey []byte
	// Issuer and Audience are enforced when set.
	Issuer   string
	Audience string
	// Timeout bounds how long SignIn waits for the callback.
	Timeout time.Duration
}

// Opener presents the authorize URL to the user.
type Opener func(authorizeURL string) error

// Option configures a Gateway.
type Option func(*Gateway)

// WithOpener replaces the default opener, which prints the URL.
func WithOpener(open Opener) Option {
	return func(g *Gateway) {
		g.open = open
	}
}

// WithPromptWriter sets where the default opener prints the URL.
func WithPromptWriter(w io.Writer) Option {
	return func(g *Gateway) {
		g.prompt = w
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

// Gateway is a ports.IdentityGateway backed by a browser redirect flow.
type Gateway struct {
	cfg    Config
	cache  ports.IdentityCache
	open   Opener
	prompt io.Writer
	logger *slog.Logger

	mu        sync.Mutex
	current   *domain.Identity
	restored  bool
	listeners map[int]func(*domain.Identity)
	nextID    int

	signingIn sync.Mutex
}

var _ ports.IdentityGateway = (*Gateway)(nil)

// New creates a loopback gateway persisting the signed-in identity in cache.
func New(cfg Config, cache ports.IdentityCache, opts ...Option) (*Gateway, error) {
	if cfg.AuthorizeURL == "" {
		return nil, errors.New("authorize URL is required")
	}
	if _, err := url.Parse(cfg.AuthorizeURL); err != nil {
		return nil, fmt.Errorf("invalid authorize URL: %w", err)
	}
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("id token signing key is required")
	}
	if cache == nil {
		return nil, errors.New("identity cache is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLoginTimeout
	}

	g := &Gateway{
		cfg:       cfg,
		cache:     cache,
		prompt:    os.Stderr,
		logger:    slog.Default(),
		listeners: make(map[int]func(*domain.Identity)),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.open == nil {
		g.open = g.printURL
	}
	return g, nil
}

// Subscribe registers onChange and delivers the cached identity before
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

// SignIn runs the browser flow and blocks until the callback arrives, the
// timeout elapses or ctx is done.
func (g *Gateway) SignIn(ctx context.Context) error {
	if !g.signingIn.TryLock() {
		return ErrSignInInProgress
	}
	defer g.signingIn.Unlock()

	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", g.cfg.RedirectPort))
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}

	flow := &flow{
		state:   uuid.NewString(),
		nonce:   uuid.NewString(),
		results: make(chan callbackResult, 1),
	}
	redirectURI := fmt.Sprintf("http://%s%s", listener.Addr().String(), callbackPath)

	srv := &http.Server{
		Handler:           g.callbackRouter(flow),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("callback listener failed", slog.String("error", err.Error()))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authorizeURL, err := g.authorizeURL(redirectURI, flow)
	if err != nil {
		return err
	}
	if err := g.open(authorizeURL); err != nil {
		return fmt.Errorf("failed to open authorize URL: %w", err)
	}

	g.logger.Debug("waiting for sign-in callback", slog.String("redirect_uri", redirectURI))

	timer := time.NewTimer(g.cfg.Timeout)
	defer timer.Stop()

	var result callbackResult
	select {
	case result = <-flow.results:
	case <-timer.C:
		return fmt.Errorf("sign-in timed out after %s", g.cfg.Timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	if result.err != nil {
		return result.err
	}

	identity, err := verifyIDToken(result.idToken, flow.nonce, g.cfg)
	if err != nil {
		return err
	}

	return g.set(ctx, identity)
}

// SignOut forgets the cached identity.
func (g *Gateway) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return g.set(ctx, nil)
}

func (g *Gateway) authorizeURL(redirectURI string, f *flow) (string, error) {
	u, err := url.Parse(g.cfg.AuthorizeURL)
	if err != nil {
		return "", fmt.Errorf("invalid authorize URL: %w", err)
	}

	q := u.Query()
	q.Set("client_id", g.cfg.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("response_type", "id_token")
	q.Set("response_mode", "query")
	q.Set("scope", "openid profile email")
	q.Set("state", f.state)
	q.Set("nonce", f.nonce)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (g *Gateway) printURL(authorizeURL string) error {
	_, err := fmt.Fprintf(g.prompt, "Open this URL in your browser to sign in:\n\n  %s\n\n", authorizeURL)
	return err
}

func (g *Gateway) set(ctx context.Context, identity *domain.Identity) error {
	if identity == nil {
		if err := g.cache.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear identity cache: %w", err)
		}
	} else if err := g.cache.Save(ctx, identity); err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}

	g.mu.Lock()
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

	if g.restored {
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

// flow is one pending sign-in.
type flow struct {
	state   string
	nonce   string
	results chan callbackResult
	once    sync.Once
}

type callbackResult struct {
	idToken string
	err     error
}

func (f *flow) finish(result callbackResult) {
	f.once.Do(func() {
		f.results <- result
	})
}

func (g *Gateway) callbackRouter(f *flow) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.NoCache)

	r.Get(callbackPath, func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()

		if q.Get("state") != f.state {
			g.logger.Warn("rejected sign-in callback with unexpected state")
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}

		if code := q.Get("error"); code != "" {
			f.finish(callbackResult{err: fmt.Errorf("%w: %s %s", ErrSignInCancelled, code, q.Get("error_description"))})
			writePage(w, http.StatusOK, "Sign-in was cancelled. You can close this window.")
			return
		}

		token := q.Get("id_token")
		if token == "" {
			http.Error(w, "missing id_token", http.StatusBadRequest)
			return
		}

		f.finish(callbackResult{idToken: token})
		writePage(w, http.StatusOK, "Signed in. You can close this window and return to the terminal.")
	})

	return r
}

func writePage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message+"\n")
}
