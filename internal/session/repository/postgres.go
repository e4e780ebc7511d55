package repository

import (
	"context"
	"database/sql"
	"errors"

	"pickup-portal/client/internal/session/domain"
)

// PostgresRepository stores the session in Postgres, partitioned by namespace so several
// local profiles can share one database. Tables come from internal/db/migrations.
type PostgresRepository struct {
	db        *sql.DB
	namespace string
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB, namespace string) *PostgresRepository {
	if namespace == "" {
		namespace = "default"
	}
	return &PostgresRepository{db: db, namespace: namespace}
}

// Get returns the value for key, or ok false if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM session_items WHERE namespace = $1 AND key = $2`,
		r.namespace, key,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v, true, nil
}

// Set upserts value under key.
func (r *PostgresRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_items (namespace, key, value, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (namespace, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		r.namespace, key, value,
	)
	return err
}

// Delete removes the given keys in one transaction.
func (r *PostgresRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, k := range keys {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM session_items WHERE namespace = $1 AND key = $2`,
			r.namespace, k,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetCookie returns the named cookie, or nil if not found.
func (r *PostgresRepository) GetCookie(ctx context.Context, name string) (*domain.Cookie, error) {
	c := domain.Cookie{Name: name}
	err := r.db.QueryRowContext(ctx,
		`SELECT value, path, expires_at FROM session_cookies WHERE namespace = $1 AND name = $2`,
		r.namespace, name,
	).Scan(&c.Value, &c.Path, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// SetCookie upserts c.
func (r *PostgresRepository) SetCookie(ctx context.Context, c domain.Cookie) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_cookies (namespace, name, value, path, expires_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (namespace, name) DO UPDATE
		 SET value = EXCLUDED.value, path = EXCLUDED.path, expires_at = EXCLUDED.expires_at`,
		r.namespace, c.Name, c.Value, c.Path, c.ExpiresAt.UTC(),
	)
	return err
}

// DeleteCookie removes the named cookie.
func (r *PostgresRepository) DeleteCookie(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_cookies WHERE namespace = $1 AND name = $2`,
		r.namespace, name,
	)
	return err
}
