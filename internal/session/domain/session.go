package domain

import (
	"time"

	userdomain "pickup-portal/client/internal/user/domain"
)

// Durable storage keys. All four are cleared together on logout or any 401.
const (
	KeyAccessToken = "accessToken"
	KeyUser        = "user"
	KeyUserStatus  = "userStatus"
	// CookieRefreshToken is held in the cookie store, not the key/value store.
	CookieRefreshToken = "refreshToken"
)

// Session is a point-in-time copy of the authentication state.
type Session struct {
	AccessToken     string
	User            *userdomain.Profile // nil when no profile is cached
	IsAuthenticated bool
	IsLoading       bool
	// RefreshExpiresAt is the refresh cookie expiry; zero when no cookie is held.
	RefreshExpiresAt time.Time
}

// Cookie is a persisted name/value pair with an explicit expiry, scoped by path.
type Cookie struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Path      string    `json:"path"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the cookie is no longer valid at now.
func (c *Cookie) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
