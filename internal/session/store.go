// Package session owns the customer's authentication state: the access token, the cached
// profile, the redundant status copy and the refresh token cookie. All mutation goes through
// Initialize, Login, Logout (or ForceLogout on a 401) and UpdateUser.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pickup-portal/client/internal/authapi"
	"pickup-portal/client/internal/logging"
	"pickup-portal/client/internal/session/domain"
	"pickup-portal/client/internal/session/repository"
	"pickup-portal/client/internal/telemetry"
	teldomain "pickup-portal/client/internal/telemetry/domain"
	userdomain "pickup-portal/client/internal/user/domain"
)

const (
	// DefaultCookieTTL is the refresh token cookie lifetime.
	DefaultCookieTTL = 30 * 24 * time.Hour
	cookiePath       = "/"
	eventSource      = "portal"
)

var (
	// ErrNotInitialized is returned by mutating operations before Initialize has run.
	ErrNotInitialized = errors.New("session: store not initialized")
	// ErrNoRefreshToken is returned by Refresh when no unexpired refresh cookie is held.
	ErrNoRefreshToken = errors.New("session: no refresh token")
)

// Refresher exchanges a refresh token for a new access token. *authapi.Client implements it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*authapi.RefreshResult, error)
}

// Store is the single owned session context. It is safe for concurrent use; the lock is
// never held across a network call so a 401 handler may call ForceLogout mid-request.
type Store struct {
	repo      repository.Repository
	refresher Refresher
	emitter   telemetry.EventEmitter
	logger    zerolog.Logger
	now       func() time.Time
	cookieTTL time.Duration

	// writeMu orders durable writes so a clear cannot be undone by a write that read the
	// state before it. It is never held across a network call.
	writeMu sync.Mutex

	mu            sync.RWMutex
	initialized   bool
	loading       bool
	accessToken   string
	user          *userdomain.Profile
	storedStatus  userdomain.Status
	refreshExpiry time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRefresher sets the client used by Initialize and Refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Store) { s.refresher = r }
}

// WithEmitter sets where session events go.
func WithEmitter(e telemetry.EventEmitter) Option {
	return func(s *Store) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides time.Now. Tests only.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCookieTTL sets the refresh cookie lifetime. Non-positive keeps DefaultCookieTTL.
func WithCookieTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.cookieTTL = d
		}
	}
}

// NewStore returns an empty, uninitialized store over repo.
func NewStore(repo repository.Repository, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		logger:    zerolog.Nop(),
		now:       time.Now,
		cookieTTL: DefaultCookieTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the persisted session. A cached access token and profile are trusted
// without a network call. Otherwise an unexpired refresh cookie is exchanged for a new
// access token; the session becomes authenticated only if a profile is also cached. With
// neither, storage is cleared. IsLoading is true for the duration of the call.
// Errors are storage failures; refresh failures clear the session and return nil.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.initialized = true
		s.mu.Unlock()
	}()

	token, user, status, err := s.loadPersisted(ctx)
	if err != nil {
		return err
	}
	cookie, err := s.repo.GetCookie(ctx, domain.CookieRefreshToken)
	if err != nil {
		return fmt.Errorf("session: initialize: %w", err)
	}
	if cookie != nil && cookie.Expired(s.now()) {
		cookie = nil
	}

	s.mu.Lock()
	s.user = user
	s.storedStatus = status
	if cookie != nil {
		s.refreshExpiry = cookie.ExpiresAt
	}
	s.mu.Unlock()

	if token != "" && user != nil {
		s.mu.Lock()
		s.accessToken = token
		s.mu.Unlock()
		s.logger.Debug().Str("status", user.Status.String()).Msg("session: restored from storage")
		return nil
	}
	if cookie != nil && s.refresher != nil {
		return s.refresh(ctx, cookie.Value)
	}
	s.logger.Debug().Msg("session: no usable credentials, clearing storage")
	return s.clear(ctx)
}

// Refresh exchanges the held refresh token for a new access token regardless of whether
// one is cached. On failure the session is cleared and the error returned.
func (s *Store) Refresh(ctx context.Context) error {
	if s.refresher == nil {
		return errors.New("session: refresh: no refresher configured")
	}
	cookie, err := s.repo.GetCookie(ctx, domain.CookieRefreshToken)
	if err != nil {
		return fmt.Errorf("session: refresh: %w", err)
	}
	if cookie == nil || cookie.Expired(s.now()) {
		return ErrNoRefreshToken
	}
	var failure error
	if err := s.refreshWith(ctx, cookie.Value, &failure); err != nil {
		return err
	}
	return failure
}

// refresh runs the startup refresh branch; refresh failures are not returned.
func (s *Store) refresh(ctx context.Context, refreshToken string) error {
	return s.refreshWith(ctx, refreshToken, nil)
}

// refreshWith calls the refresher without holding the lock. A refresh failure clears the
// session and is stored in *failure when non-nil. The return value is a storage error.
func (s *Store) refreshWith(ctx context.Context, refreshToken string, failure *error) error {
	res, err := s.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		s.logger.Info().Err(err).Msg("session: refresh failed, clearing session")
		ev := teldomain.NewSessionEvent(teldomain.EventRefreshFailed, eventSource)
		ev.Reason = failureReason(err)
		telemetry.EmitAsync(s.emitter, ctx, ev)
		if failure != nil {
			*failure = fmt.Errorf("session: refresh: %w", err)
		}
		return s.clear(ctx)
	}

	s.writeMu.Lock()
	if err := s.repo.Set(ctx, domain.KeyAccessToken, res.AccessToken); err != nil {
		s.writeMu.Unlock()
		return fmt.Errorf("session: persist access token: %w", err)
	}
	var expiry time.Time
	if res.RefreshToken != "" {
		expiry, err = s.persistCookie(ctx, res.RefreshToken)
		if err != nil {
			s.writeMu.Unlock()
			return err
		}
	}

	s.mu.Lock()
	s.accessToken = res.AccessToken
	if !expiry.IsZero() {
		s.refreshExpiry = expiry
	}
	authenticated := s.user != nil
	s.mu.Unlock()
	s.writeMu.Unlock()

	s.logger.Info().Bool("authenticated", authenticated).Bool("rotated", res.RefreshToken != "").Msg("session: refreshed")
	ev := teldomain.NewSessionEvent(teldomain.EventRefresh, eventSource)
	if !authenticated {
		ev.Reason = "no_cached_profile"
	}
	telemetry.EmitAsync(s.emitter, ctx, ev)
	return nil
}

// Login persists the access token and profile, the status copy when the status is set,
// and the refresh cookie when refreshToken is non-empty. It makes no network call.
func (s *Store) Login(ctx context.Context, accessToken string, user userdomain.Profile, refreshToken string) error {
	if accessToken == "" {
		return errors.New("session: login: empty access token")
	}
	if !s.isInitialized() {
		return ErrNotInitialized
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("session: login: encode profile: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.repo.Set(ctx, domain.KeyAccessToken, accessToken); err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	if err := s.repo.Set(ctx, domain.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("session: login: %w", err)
	}
	if user.Status != userdomain.StatusUnset {
		if err := s.repo.Set(ctx, domain.KeyUserStatus, user.Status.String()); err != nil {
			return fmt.Errorf("session: login: %w", err)
		}
	}
	var expiry time.Time
	if refreshToken != "" {
		if expiry, err = s.persistCookie(ctx, refreshToken); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.accessToken = accessToken
	u := user
	s.user = &u
	if user.Status != userdomain.StatusUnset {
		s.storedStatus = user.Status
	}
	if !expiry.IsZero() {
		s.refreshExpiry = expiry
	}
	s.mu.Unlock()

	masked := logging.MaskPhone(user.PhoneNumber)
	s.logger.Info().Str("phone", masked).Str("status", user.Status.String()).Msg("session: logged in")
	ev := teldomain.NewSessionEvent(teldomain.EventLogin, eventSource)
	ev.PhoneMasked = masked
	ev.Status = user.Status.String()
	telemetry.EmitAsync(s.emitter, ctx, ev)
	return nil
}

// Logout clears memory and every durable key. It is idempotent.
func (s *Store) Logout(ctx context.Context) error {
	if err := s.clear(ctx); err != nil {
		return err
	}
	s.logger.Info().Msg("session: logged out")
	telemetry.EmitAsync(s.emitter, ctx, teldomain.NewSessionEvent(teldomain.EventLogout, eventSource))
	return nil
}

// ForceLogout clears the session after the API reported it invalid. Its signature matches
// authapi.WithUnauthorizedHandler; storage errors are logged.
func (s *Store) ForceLogout(ctx context.Context) {
	// The request context may already be done; clearing must still happen.
	ctx = context.WithoutCancel(ctx)
	if err := s.clear(ctx); err != nil {
		s.logger.Error().Err(err).Msg("session: forced logout: clear storage")
	}
	s.logger.Warn().Msg("session: forced logout after 401")
	ev := teldomain.NewSessionEvent(teldomain.EventForcedLogout, eventSource)
	ev.Reason = "http_401"
	telemetry.EmitAsync(s.emitter, ctx, ev)
}

// UpdateUser merges patch into the cached profile and persists it. It is a no-op when no
// profile is cached or the patch is empty.
func (s *Store) UpdateUser(ctx context.Context, patch userdomain.ProfilePatch) error {
	if !s.isInitialized() {
		return ErrNotInitialized
	}
	if patch.Empty() {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if s.user == nil {
		s.mu.Unlock()
		return nil
	}
	updated := *s.user
	patch.Apply(&updated)
	s.mu.Unlock()

	raw, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("session: update user: encode profile: %w", err)
	}
	if err := s.repo.Set(ctx, domain.KeyUser, string(raw)); err != nil {
		return fmt.Errorf("session: update user: %w", err)
	}
	if patch.Status != nil && *patch.Status != userdomain.StatusUnset {
		if err := s.repo.Set(ctx, domain.KeyUserStatus, patch.Status.String()); err != nil {
			return fmt.Errorf("session: update user: %w", err)
		}
	}

	s.mu.Lock()
	s.user = &updated
	if patch.Status != nil && *patch.Status != userdomain.StatusUnset {
		s.storedStatus = *patch.Status
	}
	s.mu.Unlock()

	ev := teldomain.NewSessionEvent(teldomain.EventProfileUpdated, eventSource)
	ev.Status = updated.Status.String()
	telemetry.EmitAsync(s.emitter, ctx, ev)
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.Session{
		AccessToken:      s.accessToken,
		IsAuthenticated:  s.authenticatedLocked(),
		IsLoading:        s.loading,
		RefreshExpiresAt: s.refreshExpiry,
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

// AccessToken returns the current bearer token, or "". It satisfies authapi.TokenSource.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// IsAuthenticated reports whether both an access token and a profile are held.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticatedLocked()
}

// IsLoading reports whether Initialize is in progress.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Status returns the cached completion status: the profile's own status, else the
// separately stored copy. It is StatusUnset when unauthenticated.
func (s *Store) Status() userdomain.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticatedLocked() {
		return userdomain.StatusUnset
	}
	if s.user.Status != userdomain.StatusUnset {
		return s.user.Status
	}
	return s.storedStatus
}

func (s *Store) authenticatedLocked() bool {
	return s.accessToken != "" && s.user != nil
}

func (s *Store) isInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// loadPersisted reads the token, profile and status copy. An undecodable profile is
// treated as absent.
func (s *Store) loadPersisted(ctx context.Context) (string, *userdomain.Profile, userdomain.Status, error) {
	token, _, err := s.repo.Get(ctx, domain.KeyAccessToken)
	if err != nil {
		return "", nil, userdomain.StatusUnset, fmt.Errorf("session: initialize: %w", err)
	}
	rawUser, hasUser, err := s.repo.Get(ctx, domain.KeyUser)
	if err != nil {
		return "", nil, userdomain.StatusUnset, fmt.Errorf("session: initialize: %w", err)
	}
	rawStatus, _, err := s.repo.Get(ctx, domain.KeyUserStatus)
	if err != nil {
		return "", nil, userdomain.StatusUnset, fmt.Errorf("session: initialize: %w", err)
	}

	var user *userdomain.Profile
	if hasUser && rawUser != "" && rawUser != "null" {
		var u userdomain.Profile
		if err := json.Unmarshal([]byte(rawUser), &u); err != nil {
			s.logger.Warn().Err(err).Msg("session: cached profile is corrupt, ignoring")
		} else {
			user = &u
		}
	}
	return token, user, userdomain.ParseStatus(rawStatus), nil
}

func (s *Store) persistCookie(ctx context.Context, value string) (time.Time, error) {
	expiry := s.now().Add(s.cookieTTL)
	err := s.repo.SetCookie(ctx, domain.Cookie{
		Name:      domain.CookieRefreshToken,
		Value:     value,
		Path:      cookiePath,
		ExpiresAt: expiry,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("session: persist refresh token: %w", err)
	}
	return expiry, nil
}

// clear drops all in-memory state, then every durable key and the refresh cookie.
func (s *Store) clear(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	s.accessToken = ""
	s.user = nil
	s.storedStatus = userdomain.StatusUnset
	s.refreshExpiry = time.Time{}
	s.mu.Unlock()

	if err := s.repo.Delete(ctx, domain.KeyAccessToken, domain.KeyUser, domain.KeyUserStatus); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	if err := s.repo.DeleteCookie(ctx, domain.CookieRefreshToken); err != nil {
		return fmt.Errorf("session: clear: %w", err)
	}
	return nil
}

func failureReason(err error) string {
	switch {
	case authapi.IsUnauthorized(err):
		return "http_401"
	case authapi.IsTransport(err):
		return "transport"
	default:
		return "api_error"
	}
}
