// Copyright (c) 2026 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command vodsessiond serves the VOD playback session API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/vodsession/internal/analytics"
	"github.com/ManuGH/vodsession/internal/api"
	"github.com/ManuGH/vodsession/internal/catalog"
	"github.com/ManuGH/vodsession/internal/config"
	"github.com/ManuGH/vodsession/internal/domain/session/abr"
	"github.com/ManuGH/vodsession/internal/domain/session/manager"
	"github.com/ManuGH/vodsession/internal/domain/session/store"
	"github.com/ManuGH/vodsession/internal/domain/session/token"
	xglog "github.com/ManuGH/vodsession/internal/log"
	"github.com/ManuGH/vodsession/internal/security"
	"github.com/ManuGH/vodsession/internal/telemetry"
	"github.com/ManuGH/vodsession/internal/version"
)

const serviceName = "vodsessiond"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	xglog.Configure(xglog.Config{Level: "info", Service: serviceName, Version: version.Version})
	logger := xglog.WithComponent("daemon")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}
	xglog.Configure(xglog.Config{Level: cfg.Logging.Level, Service: serviceName, Version: version.Version})
	logger = xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Str("event", "daemon.failed").Msg("daemon exited with error")
	}
	logger.Info().Str("event", "shutdown.complete").Msg("bye")
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	tracing, err := telemetry.NewProvider(ctx, cfg.TelemetryConfig(serviceName, version.Version))
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		if err := tracing.Shutdown(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	kv, err := store.Open(ctx, cfg.StoreOptions(), xglog.WithComponent("store"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := kv.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
	}()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	manifests := catalog.NewCached(cat, cfg.Catalog.CacheTTL)
	defer manifests.Close()
	cat.OnReload(manifests.Invalidate)

	if cfg.Session.TokenSecret == "" {
		logger.Warn().
			Str("security", "weak").
			Msg("session.token_secret not set; access tokens will not survive a restart")
	}
	issuer, err := token.NewIssuer(cfg.Session.TokenSecret)
	if err != nil {
		return err
	}
	advisor, err := abr.New(cfg.ABRConfig())
	if err != nil {
		return err
	}

	signals := security.NewEmitter(security.NewLogSink(), cfg.SecurityConfig())
	agg := analytics.New(kv, cfg.AnalyticsConfig())

	mgr, err := manager.New(cfg.ManagerConfig(), manager.Deps{
		Store:       kv,
		Manifests:   manifests,
		Tokens:      issuer,
		ABR:         advisor,
		Entitlement: cat,
		Analytics:   agg,
		Security:    signals,
	})
	if err != nil {
		return err
	}

	srv, err := api.New(api.Config{
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		TracingService:     serviceName,
	}, api.Deps{
		Sessions: mgr,
		Reports:  agg,
		Tokens:   issuer,
		Health:   kv,
		Security: signals,
	})
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	logger.Info().
		Str("event", "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("addr", cfg.Server.ListenAddr).
		Str("store", cfg.Store.Backend).
		Int("videos", cat.Len()).
		Msg("starting vodsessiond")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.Catalog.Watch {
		g.Go(func() error {
			return cat.Watch(gctx, catalog.DefaultDebounce)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Str("event", "shutdown.start").Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := agg.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("analytics drain: %w", err))
		}
		if err := signals.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("security drain: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
