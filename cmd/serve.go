package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/handler"
	"messageflow-backend/internal/server"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/util"
)

func runServeCommand() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Port = port
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Listen port, overrides PORT")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if missing := cfg.MissingServeVars(); len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	rt, err := openRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.close(true)

	if err := rt.ledger.EnsureHeader(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to prepare license sheet")
	}

	deadLetters := service.NewDeadLetters(rt.db)
	webhooks := service.NewWebhookProcessor(service.WebhookConfig{
		Secret:    cfg.Webhook.Secret,
		Tolerance: cfg.Webhook.Tolerance,
		Dedupe:    cfg.Webhook.Dedupe,
	}, rt.licenses, deadLetters, rt.metrics)
	checkout := service.NewCheckoutService(service.NewStripeGateway(cfg.Stripe), rt.catalog, cfg.Domain, rt.metrics)

	// Without a secret every token is rejected, which keeps the admin API closed.
	tokens := util.NewTokenIssuer(cfg.Admin.JWTSecret, cfg.Admin.JWTTTL)
	if !cfg.AdminEnabled() {
		log.Warn().Msg("ADMIN_PASSWORD_HASH or JWT_SECRET not set, admin API disabled")
	}

	h := handler.New(handler.Deps{
		Licenses:    rt.licenses,
		Webhooks:    webhooks,
		Checkout:    checkout,
		Statistics:  service.NewStatisticsService(rt.store, rt.audit),
		Audit:       rt.audit,
		DeadLetters: deadLetters,
		Tokens:      tokens,
		Admin:       cfg.Admin,
		Environment: cfg.Environment,
	})

	app := server.New(h, server.Options{
		Domain:      cfg.Domain,
		Production:  cfg.IsProduction(),
		PublicDir:   cfg.PublicDir,
		ProxyHeader: cfg.TrustedProxyHeader,
		RateLimit:   true,
		Registry:    rt.metrics.Registry(),
		Tokens:      tokens,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().
			Str("addr", addr).
			Str("environment", cfg.Environment).
			Str("domain", cfg.Domain).
			Msg("MessageFlow server listening")
		if err := app.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server")
		timeout := cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		return app.ShutdownWithTimeout(timeout)
	})

	err = g.Wait()
	log.Info().Int("licenses", rt.store.Len()).Msg("Server stopped")
	return err
}
