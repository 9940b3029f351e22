package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tjfontaine/applyai-client/internal/core/domain"
	"github.com/tjfontaine/applyai-client/internal/core/ports"
)

// Store is a SQLite implementation of ports.IdentityCache. It keeps at most
// one row: the identity that was signed in when the process last exited.
type Store struct {
	db *sql.DB
}

var _ ports.IdentityCache = (*Store)(nil)

// New opens (creating if needed) the SQLite database at dbPath.
func New(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" && !isURI(dbPath) {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func isURI(path string) bool {
	return len(path) >= 5 && path[:5] == "file:"
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS identity (
			slot INTEGER PRIMARY KEY CHECK (slot = 1),
			user_id TEXT NOT NULL,
			display_name TEXT,
			email TEXT,
			updated_at TIMESTAMP NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) Load(ctx context.Context) (*domain.Identity, error) {
	query := `SELECT user_id, display_name, email FROM identity WHERE slot = 1`

	var (
		identity    domain.Identity
		displayName sql.NullString
		email       sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query).Scan(&identity.ID, &displayName, &email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNoIdentity
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	identity.DisplayName = displayName.String
	identity.Email = email.String
	return &identity, nil
}

func (s *Store) Save(ctx context.Context, identity *domain.Identity) error {
	if identity == nil {
		return s.Clear(ctx)
	}

	query := `INSERT INTO identity (slot, user_id, display_name, email, updated_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			user_id = excluded.user_id,
			display_name = excluded.display_name,
			email = excluded.email,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		identity.ID,
		nullString(identity.DisplayName),
		nullString(identity.Email),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identity`); err != nil {
		return fmt.Errorf("failed to clear identity: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
