// serve.go starts the HTTP server with all dependencies wired.
package main

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bigkaa/librarium/internal/api/handlers"
	"github.com/bigkaa/librarium/internal/api/middleware"
	"github.com/bigkaa/librarium/internal/auth"
	"github.com/bigkaa/librarium/internal/config"
	"github.com/bigkaa/librarium/internal/database"
	"github.com/bigkaa/librarium/internal/notify"
	"github.com/bigkaa/librarium/internal/objectstore"
	"github.com/bigkaa/librarium/internal/repository"
	"github.com/bigkaa/librarium/internal/server"
	"github.com/bigkaa/librarium/internal/service"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply migrations on startup")
	return cmd
}

func runServe(ctx context.Context, skipMigrate bool) error {
	// 1. Configuration and logging
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	logger.Info("Librarium starting",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 2. Migrations
	if !skipMigrate {
		logger.Info("Applying database migrations")
		if err := database.Migrate(cfg, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	// 3. PostgreSQL pool
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 3.1 *sql.DB over the same pool, so dependency checks see pool exhaustion.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 4. Token issuer
	issuer, err := newIssuer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// 5. Mail
	mailer, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		Timeout:  cfg.SMTPTimeout,
		From:     cfg.MailFrom,
	}, logger)
	if err != nil {
		return fmt.Errorf("mail sender: %w", err)
	}

	// 6. Object storage (optional)
	var uploader objectstore.Uploader
	storageHealthURL := ""
	if cfg.UploadsEnabled() {
		store := objectstore.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket, logger)
		uploader = store
		storageHealthURL = store.HealthURL()
		logger.Info("Object storage enabled", slog.String("bucket", cfg.SupabaseBucket))
	} else {
		logger.Warn("LH_SUPABASE_URL is not set, uploads are disabled")
	}

	// 7. Rate limiting (optional)
	var limiter *middleware.RateLimiter
	var redisChecker handlers.ReadinessChecker
	if cfg.RateLimitEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Redis is not reachable, rate limiter fails open until it is",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
		cancel()

		counter := middleware.NewRedisCounter(rdb)
		limiter = middleware.NewRateLimiter(counter, cfg.RateLimit, cfg.RateLimitWindow, logger)
		redisChecker = counter
		logger.Info("Rate limiting enabled",
			slog.Int("limit", cfg.RateLimit),
			slog.String("window", cfg.RateLimitWindow.String()),
		)
	} else {
		logger.Warn("LH_REDIS_ADDR is not set, rate limiting is disabled")
	}

	// 8. Services and handlers
	txRunner := repository.NewTxRunner(pool)
	bookCache := service.NewBookCache(cfg.BookCacheSize, cfg.BookCacheTTL)

	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), redisChecker)
	apiHandler := handlers.NewAPIHandler(healthHandler, handlers.Services{
		Accounts:  service.NewUserService(txRunner, issuer, mailer, logger),
		Catalog:   service.NewBookService(txRunner, bookCache, logger),
		Lending:   service.NewLendingService(txRunner, bookCache, logger),
		Notices:   service.NewNoticeService(txRunner, mailer, logger),
		Dashboard: service.NewDashboardService(txRunner, logger),
		Assets:    service.NewAssetService(uploader, logger),
		Keys:      issuer,
	}, logger)

	// 9. topologymetrics dependency monitoring
	dephealthSvc, err := service.NewDephealthService(service.DephealthConfig{
		ServiceID:        "librarium",
		Group:            cfg.DephealthGroup,
		DB:               pgDB,
		PostgresURL:      cfg.DatabaseURL(),
		StorageHealthURL: storageHealthURL,
		CheckInterval:    cfg.DephealthCheckInterval,
	}, logger)
	if err != nil {
		logger.Warn("topologymetrics unavailable, running without dependency monitoring",
			slog.String("error", err.Error()),
		)
		dephealthSvc = nil
	} else if err := dephealthSvc.Start(ctx); err != nil {
		logger.Warn("topologymetrics failed to start", slog.String("error", err.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics started",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 10. HTTP server
	jwtAuth := middleware.NewJWTAuth(issuer, logger)
	srv := server.New(cfg, logger, apiHandler, jwtAuth, limiter)
	runErr := srv.Run()

	// 11. Shutdown
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	if runErr != nil {
		return runErr
	}
	logger.Info("Librarium stopped")
	return nil
}

// newIssuer loads the signing key, or generates one for this process when
// no key file is configured.
func newIssuer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*auth.Issuer, error) {
	var (
		key *rsa.PrivateKey
		err error
	)
	if cfg.JWTPrivateKeyPath != "" {
		key, err = auth.LoadPrivateKey(cfg.JWTPrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load JWT key: %w", err)
		}
	} else {
		logger.Warn("LH_JWT_PRIVATE_KEY_PATH is not set, tokens are invalidated on restart")
		key, err = auth.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate JWT key: %w", err)
		}
	}

	issuer, err := auth.NewIssuer(ctx, key, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}
	return issuer, nil
}
