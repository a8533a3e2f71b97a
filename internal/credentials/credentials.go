package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nerrad567/tb-edge-agent/internal/infrastructure/database"
)

// Persisted names. They match the layout written by earlier firmware so a
// migrated device keeps its identity.
const (
	Namespace   = "tb_prefs"
	KeyClientID = "dev_id"
	KeyUsername = "dev_user"
	KeySecret   = "dev_pass"
)

// Credentials is the login the device presents to the platform.
// Any field may be empty depending on the credential type.
type Credentials struct {
	ClientID string
	Username string
	Secret   string
}

// Empty reports whether the device has no usable credentials. Selection
// keys on the username: every supported credential type sets it.
func (c Credentials) Empty() bool {
	return c.Username == ""
}

// String redacts the secret so credentials can be logged safely.
func (c Credentials) String() string {
	secret := ""
	if c.Secret != "" {
		secret = "***"
	}
	return fmt.Sprintf("{client_id:%q username:%q secret:%q}", c.ClientID, c.Username, secret)
}

// Store reads and writes Credentials in the preferences table.
type Store struct {
	db *database.DB
}

// NewStore creates a Store over an opened, migrated database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db}
}

// Save writes all three fields. Saving the same value twice leaves the
// store unchanged.
func (s *Store) Save(ctx context.Context, c Credentials) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, kv := range [...]struct{ key, value string }{
			{KeyClientID, c.ClientID},
			{KeyUsername, c.Username},
			{KeySecret, c.Secret},
		} {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO preferences (namespace, key, value) VALUES (?, ?, ?)
				ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value
			`, Namespace, kv.key, kv.value); err != nil {
				return fmt.Errorf("writing %s: %w", kv.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	return nil
}

// Load returns the stored credentials. Missing keys load as "".
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	var c Credentials
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, kv := range [...]struct {
			key string
			dst *string
		}{
			{KeyClientID, &c.ClientID},
			{KeyUsername, &c.Username},
			{KeySecret, &c.Secret},
		} {
			err := tx.QueryRowContext(ctx,
				"SELECT value FROM preferences WHERE namespace = ? AND key = ?",
				Namespace, kv.key,
			).Scan(kv.dst)
			if errors.Is(err, sql.ErrNoRows) {
				*kv.dst = ""
				continue
			}
			if err != nil {
				return fmt.Errorf("reading %s: %w", kv.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("loading credentials: %w", err)
	}
	return c, nil
}

// Clear removes the stored credentials so the next boot provisions again.
func (s *Store) Clear(ctx context.Context) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM preferences WHERE namespace = ?", Namespace)
		return err
	})
	if err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}
