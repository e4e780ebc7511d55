// Package devapi is an in-memory stand-in for the customer Authentication API. It serves the
// same routes and envelopes as the real service so the portal can be run and tested locally.
package devapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pickup-portal/client/internal/security"
)

const (
	defaultLoginLimit  = 10
	defaultLoginWindow = time.Minute
)

// Server holds the in-memory customer, OTP and refresh token state.
type Server struct {
	tokens            *security.TokenProvider
	customers         *customerStore
	otps              *OTPStore
	otpReturnToClient bool
	loginLimit        int
	loginWindow       time.Duration
	logger            zerolog.Logger
	now               func() time.Time
	metrics           *metrics
	registry          *prometheus.Registry
}

// Option configures a Server.
type Option func(*Server)

// WithOTPReturnToClient keeps plain OTPs and serves them on GET /dev/otp.
func WithOTPReturnToClient(enabled bool) Option {
	return func(s *Server) {
		s.otpReturnToClient = enabled
	}
}

// WithLoginRateLimit caps POST /customer/login per client IP.
func WithLoginRateLimit(n int, window time.Duration) Option {
	return func(s *Server) {
		if n > 0 && window > 0 {
			s.loginLimit, s.loginWindow = n, window
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithClock overrides the clock used for OTP and refresh token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Server signing tokens with tokens.
func New(tokens *security.TokenProvider, opts ...Option) (*Server, error) {
	if tokens == nil {
		return nil, errors.New("devapi: token provider is required")
	}
	s := &Server{
		tokens:      tokens,
		customers:   newCustomerStore(),
		loginLimit:  defaultLoginLimit,
		loginWindow: defaultLoginWindow,
		logger:      zerolog.Nop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.otps = NewOTPStore(s.otpReturnToClient, s.now)
	s.metrics, s.registry = newMetrics()
	return s, nil
}

// Handler returns the router wrapped with otelhttp.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.Routes(), "devapi")
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(hlog.NewHandler(s.logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, d time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Dur("elapsed", d).
			Msg("devapi: request")
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/customer", func(r chi.Router) {
		r.With(httprate.Limit(s.loginLimit, s.loginWindow,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				respondError(w, http.StatusTooManyRequests, "Too many OTP requests. Try again later.")
			}),
		)).Post("/login", s.handleLogin)
		r.Post("/verify-otp", s.handleVerifyOTP)
		r.Post("/refresh", s.handleRefresh)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAccess)
			r.Put("/update-profile", s.handleUpdateProfile)
			r.Put("/update-address", s.handleUpdateAddress)
		})
	})

	if s.otpReturnToClient {
		r.Get("/dev/otp", s.handleDevOTP)
	}
	return r
}

type ctxKey struct{}

// requireAccess rejects requests without a valid bearer access token with 401.
func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "Bearer "
		h := r.Header.Get("Authorization")
		if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, err := s.tokens.ValidateAccess(h[len(prefix):])
		if err != nil {
			respondError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}
		if _, ok := s.customers.get(id); !ok {
			respondError(w, http.StatusUnauthorized, "unknown customer")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func customerID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
