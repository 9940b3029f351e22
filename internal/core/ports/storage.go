package ports

import (
	"context"
	"errors"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

// ErrNoIdentity is returned by IdentityCache.Load when nothing is cached.
var ErrNoIdentity = errors.New("no cached identity")

// IdentityCache is the identity provider's own persistence of the signed-in
// user between runs.
// Implementations: SQLite (default), in-memory.
type IdentityCache interface {
	// Load returns the cached identity or ErrNoIdentity.
	Load(ctx context.Context) (*domain.Identity, error)
	// Save replaces the cached identity.
	Save(ctx context.Context, identity *domain.Identity) error
	// Clear removes the cached identity. Clearing an empty cache is not an error.
	Clear(ctx context.Context) error
	Close() error
}
