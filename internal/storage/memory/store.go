package memory

import (
	"context"
	"sync"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

// Store is an in-memory implementation of ports.IdentityCache
type Store struct {
	mu       sync.RWMutex
	identity *domain.Identity
}

var _ ports.IdentityCache = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{}
}

func (s *Store) Load(ctx context.Context) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.identity == nil {
		return nil, ports.ErrNoIdentity
	}
	identity := *s.identity
	return &identity, nil
}

func (s *Store) Save(ctx context.Context, identity *domain.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if identity == nil {
		s.identity = nil
		return nil
	}
	copied := *identity
	s.identity = &copied
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identity = nil
	return nil
}

func (s *Store) Close() error {
	return nil
}
