// Package ports defines the interfaces the client core consumes.
// Implementations live under internal/identity, internal/backend and
// internal/storage.
package ports

import (
	"context"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
)

// IdentityGateway is the external identity provider.
// Implementations: in-process (memory), loopback browser flow.
type IdentityGateway interface {
	// Subscribe registers onChange for identity changes. The provider delivers
	// the current identity (nil when signed out) once shortly after
	// registration, then again on every change. The returned function
	// deregisters onChange and is safe to call more than once.
	Subscribe(onChange func(*domain.Identity)) (unsubscribe func())

	// SignIn runs the interactive sign-in flow and returns once it completes
	// or fails. The resulting identity is delivered through Subscribe.
	SignIn(ctx context.Context) error

	// SignOut ends the provider session. The change is delivered through
	// Subscribe.
	SignOut(ctx context.Context) error
}

// SessionReader exposes the current session snapshot.
type SessionReader interface {
	Current() domain.Session
}
