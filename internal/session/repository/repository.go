package repository

import (
	"context"
	"errors"

	"pickup-portal/client/internal/session/domain"
)

// ErrUnknownDriver is returned by Open for a driver name it does not recognize.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Repository defines durable storage for the session: a string key/value store (the
// access token, cached profile and status copy) and a separate cookie store that holds
// the refresh token with its own expiry. Implementations do not interpret expiry; the
// session store does.
type Repository interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	// Delete removes the given keys; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// GetCookie returns the cookie by name, or nil if not stored.
	GetCookie(ctx context.Context, name string) (*domain.Cookie, error)
	SetCookie(ctx context.Context, c domain.Cookie) error
	// DeleteCookie removes the cookie; a missing cookie is not an error.
	DeleteCookie(ctx context.Context, name string) error
}
