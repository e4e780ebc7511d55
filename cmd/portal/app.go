package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"pickup-portal/client/internal/authapi"
	"pickup-portal/client/internal/config"
	"pickup-portal/client/internal/logging"
	"pickup-portal/client/internal/session"
	"pickup-portal/client/internal/session/repository"
	"pickup-portal/client/internal/telemetry"
	telotel "pickup-portal/client/internal/telemetry/otel"
)

const serviceName = "pickup-portal"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app is the per-invocation wiring shared by the subcommands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	client *authapi.Client
	store  *session.Store

	closers []func(context.Context) error
}

// open loads config, builds the session store over the configured storage and runs
// Initialize, which is the CLI's equivalent of a page load.
func (a *app) open(ctx context.Context, logLevel string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	a.cfg = cfg
	a.logger = logging.New(cfg.LogLevel, os.Stderr)

	providers, err := telotel.NewProviders(ctx, telotel.Options{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    serviceName,
		ServiceVersion: version,
		Insecure:       cfg.OTLPInsecure,
		Logger:         a.logger,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.closers = append(a.closers, providers.Shutdown)
	var emitter telemetry.EventEmitter = telemetry.Nop{}
	if providers.Exporting {
		emitter = telotel.NewEventEmitter(providers.LoggerProvider)
	}

	repo, closeRepo, err := repository.Open(ctx, cfg)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeRepo() })
	if fr, ok := repo.(*repository.FileRepository); ok {
		a.logger.Debug().Str("path", fr.Path()).Msg("session file")
	}

	// The client and the store refer to each other: the store refreshes through the
	// client, and the client reads the bearer token from the store and logs it out on 401.
	var store *session.Store
	a.client = authapi.NewClient(cfg.APIBaseURL,
		authapi.WithTimeout(cfg.RequestTimeout()),
		authapi.WithTokenSource(authapi.TokenSourceFunc(func() string { return store.AccessToken() })),
		authapi.WithUnauthorizedHandler(func(ctx context.Context) { store.ForceLogout(ctx) }),
		authapi.WithLogger(a.logger),
	)
	store = session.NewStore(repo,
		session.WithRefresher(a.client),
		session.WithEmitter(emitter),
		session.WithLogger(a.logger),
		session.WithCookieTTL(cfg.CookieTTL()),
	)
	a.store = store

	return store.Initialize(ctx)
}

// close drains pending session events, then shuts telemetry and storage down in reverse order.
func (a *app) close() {
	if len(a.closers) == 0 {
		return
	}
	if !telemetry.Drain(telemetry.ShutdownDrainDuration) {
		a.logger.Warn().Msg("session events still in flight at exit")
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetry.ShutdownDrainDuration)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn().Err(err).Msg("shutdown")
		}
	}
	a.closers = nil
}
