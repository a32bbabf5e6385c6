package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofiber/fiber/v3"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lborres/workdeck"
	fiberadapter "github.com/lborres/workdeck/adapters/fiber"
	"github.com/lborres/workdeck/adapters/postgres"
	"github.com/lborres/workdeck/config"
	"github.com/lborres/workdeck/core"
	"github.com/lborres/workdeck/pkg/log"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()
	logger := log.New(cfg.AppEnv, cfg.LogLevel)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("workdeck stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	pool, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	store, sqlDB, err := postgres.Open(pool)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := postgres.Migrate(ctx, sqlDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:     "workdeck",
		ProxyHeader: fiber.HeaderXForwardedFor,
		TrustProxy:  len(cfg.TrustedProxies) > 0,
		TrustProxyConfig: fiber.TrustProxyConfig{
			Proxies:  cfg.TrustedProxies,
			Loopback: true,
		},
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time}|${respHeader:X-Request-ID}|${status}|${latency}|${ip}|${method}|${path}|${error}\n",
		TimeFormat: "2006/01/02 15:04:05",
		TimeZone:   "Local",
	}))

	adapter, err := fiberadapter.New(app, fiberadapter.Options{
		Providers:      oauthProviders(cfg),
		StateSecret:    cfg.Secret,
		AfterLoginPath: cfg.AfterLoginPath,
		Logger:         &logger,
	})
	if err != nil {
		return fmt.Errorf("fiber adapter: %w", err)
	}

	var sessionCache workdeck.Cache
	if cfg.CacheEnabled {
		sessionCache = workdeck.NewLRUCache(workdeck.CacheConfig{
			TTL:     cfg.CacheTTL,
			MaxSize: cfg.CacheSize,
		})
	}

	wd, err := workdeck.New(workdeck.Config{
		Secret:       cfg.Secret,
		Database:     store,
		HTTP:         adapter,
		CacheAdapter: sessionCache,
		SessionConfig: &workdeck.SessionConfig{
			MaxAge:        cfg.SessionMaxAge,
			RefreshWindow: cfg.RefreshWindow,
			CookieName:    cfg.CookieName,
			CookieSecure:  cfg.CookieSecure,
		},
		BasePath:   cfg.BasePath,
		GeoLocator: workdeck.NewIPAPILocator(cfg.GeoBaseURL),
		GeoTimeout: cfg.GeoTimeout,
		TOTPIssuer: cfg.TOTPIssuer,
		Logger:     &logger,
	})
	if err != nil {
		return fmt.Errorf("could not create workdeck instance: %w", err)
	}

	app.Get("/healthz", func(c fiber.Ctx) error {
		if err := pool.Ping(c.Context()); err != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}
		return c.SendStatus(fiber.StatusOK)
	})

	// Application routes: signed in, and past the second factor when one is registered.
	app.Get("/app/me", adapter.RequireSession(), adapter.RequireTwoFactor(), func(c fiber.Ctx) error {
		auth := fiberadapter.AuthFrom(c)
		return c.JSON(fiber.Map{
			"user":    auth.User,
			"session": auth.Session,
		})
	})

	app.Get("/app/cache", adapter.RequireSession(), func(c fiber.Ctx) error {
		stats, ok := wd.CacheStats()
		if !ok {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.JSON(stats)
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr()).Msg("listening")
		errCh <- app.Listen(cfg.Addr(), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// connect opens the pool and waits for the database to accept connections.
func connect(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = cfg.DBConnectTimeout

	ping := func() error {
		if err := pool.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("database not ready")
			return err
		}
		return nil
	}
	if err := backoff.Retry(ping, backoff.WithContext(bo, ctx)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	return pool, nil
}

func oauthProviders(cfg *config.Config) map[core.Provider]fiberadapter.OAuthConfig {
	clients := map[core.Provider]config.OAuthClient{
		core.ProviderGoogle: cfg.Google,
		core.ProviderGitHub: cfg.GitHub,
	}

	providers := make(map[core.Provider]fiberadapter.OAuthConfig)
	for p, client := range clients {
		if !client.Enabled() {
			continue
		}
		providers[p] = fiberadapter.OAuthConfig{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
		}
	}
	return providers
}
