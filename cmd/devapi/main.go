// devapi serves an in-memory Authentication API for local development of the portal.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"pickup-portal/client/internal/config"
	"pickup-portal/client/internal/devapi"
	"pickup-portal/client/internal/logging"
	"pickup-portal/client/internal/security"
	telotel "pickup-portal/client/internal/telemetry/otel"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var addr, logFormat string
	cmd := &cobra.Command{
		Use:           "devapi",
		Short:         "Run the local stand-in Authentication API",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.DevAPIAddr = addr
			}
			var logger zerolog.Logger
			switch logFormat {
			case "json":
				logger = logging.NewJSON(cfg.LogLevel, os.Stderr)
			case "console":
				logger = logging.New(cfg.LogLevel, os.Stderr)
			default:
				return fmt.Errorf("unknown --log-format %q (json or console)", logFormat)
			}
			return run(cmd.Context(), cfg, logger)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides DEVAPI_ADDR)")
	cmd.Flags().StringVar(&logFormat, "log-format", "json", "Log output: json or console")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telotel.NewProviders(ctx, telotel.Options{
		Endpoint:       cfg.OTLPEndpoint,
		ServiceName:    "pickup-devapi",
		ServiceVersion: "dev",
		Insecure:       cfg.OTLPInsecure,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown")
		}
	}()

	signer, generated, err := security.SigningKey(cfg.JWTSigningKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	if generated {
		logger.Info().Msg("JWT_SIGNING_KEY not set; generated an ES256 key for this run")
	}
	tokens, err := security.NewTokenProvider(signer, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL(), cfg.RefreshTTL())
	if err != nil {
		return fmt.Errorf("token provider: %w", err)
	}

	srv, err := devapi.New(tokens,
		devapi.WithOTPReturnToClient(cfg.OTPReturnToClient),
		devapi.WithLogger(logger),
	)
	if err != nil {
		return err
	}
	if cfg.OTPReturnToClient {
		logger.Warn().Msg("OTP_RETURN_TO_CLIENT enabled: GET /dev/otp exposes issued OTPs")
	}

	httpSrv := &http.Server{
		Addr:              cfg.DevAPIAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.DevAPIAddr).Str("alg", tokens.Alg()).Msg("devapi listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down devapi...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("devapi stopped")
	return nil
}
