package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	flog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/memoryrouter/dashboard/app/controllers"
	"github.com/memoryrouter/dashboard/app/repository"
	"github.com/memoryrouter/dashboard/internal/pkg/auth"
	"github.com/memoryrouter/dashboard/internal/pkg/billing"
	"github.com/memoryrouter/dashboard/internal/pkg/cache"
	"github.com/memoryrouter/dashboard/internal/pkg/config"
	"github.com/memoryrouter/dashboard/internal/pkg/constants"
	"github.com/memoryrouter/dashboard/internal/pkg/database"
	"github.com/memoryrouter/dashboard/internal/pkg/env"
	"github.com/memoryrouter/dashboard/internal/pkg/jobqueue"
	"github.com/memoryrouter/dashboard/internal/pkg/metrics/counter"
	"github.com/memoryrouter/dashboard/internal/pkg/router"
	"github.com/memoryrouter/dashboard/internal/pkg/security"
	"github.com/memoryrouter/dashboard/internal/pkg/session"
)

// defaultLimiterDB keeps rate limiter keys apart from the cache (DB 0).
const defaultLimiterDB = 1

func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		flog.Info("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			flog.Errorf("shutdown: %v", err)
		}
	}()

	if err := app.Listen(fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)); err != nil {
		log.Fatal(err)
	}
}

func NewApplication(cfg config.Config) (*fiber.App, error) {
	if cfg.IsProd() {
		flog.SetLevel(flog.LevelInfo)
	}

	if err := database.SetupDatabase(); err != nil {
		return nil, err
	}
	cache.SetupCache()
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory()

	codec, err := security.NewTokenCodec(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("token codec: %w", err)
	}

	rdb := cache.GetClient()
	billingRepo := repos.GetBillingRepository()
	billingSvc := billing.NewService(billingRepo, cache.New(rdb))
	reconciler := billing.NewReconciler(cfg.Webhook, billingRepo, billingRepo)
	authSvc := auth.NewService(repos.GetUserRepository(), repos.GetRefreshTokenRepository(), codec)
	outcomes := counter.NewWebhookOutcomes(rdb)

	jobs := jobqueue.NewManager(
		jobqueue.TokenPurgeTask(repos.GetRefreshTokenRepository(), cfg.Jobs.TokenPurgeInterval, time.Now),
		jobqueue.WebhookSweepTask(billingRepo, reconciler, cfg.Jobs, time.Now),
	)

	app := fiber.New(fiber.Config{
		AppName:   "dashboard",
		BodyLimit: 1 << 20,
	})

	app.Hooks().OnShutdown(func() error {
		jobs.Stop()
		return nil
	})
	jobs.Start()

	// recovery and logging
	app.Use(recover.New(), logger.New())

	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: basePath + "docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		flog.Warn("openapi.yml not found; API docs disabled")
	}

	router.InstallRouter(app, router.Deps{
		Gateway:  session.NewGateway(codec),
		Auth:     controllers.NewAuthController(authSvc, cfg.IsProd()),
		Settings: controllers.NewSettingsController(billingSvc),
		Billing:  controllers.NewBillingController(billingSvc),
		Webhook:  controllers.NewWebhookController(reconciler, outcomes),
		Ops: controllers.NewOpsController(map[string]controllers.Pinger{
			"database": func(ctx context.Context) error {
				sqlDB, err := database.GetDB().DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"cache": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
		}, outcomes),
		LimiterStorage:  session.NewRedisStorage(env.GetEnvInt("LIMITER_REDIS_DB", defaultLimiterDB)),
		MetricsUser:     cfg.MetricsUser,
		MetricsPassword: cfg.MetricsPassword,
	})

	return app, nil
}

// findBasePath locates the project root from the usual working directories.
func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}
