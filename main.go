package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/samabos/tymblok/config"
	"github.com/samabos/tymblok/controllers"
	"github.com/samabos/tymblok/job"
	"github.com/samabos/tymblok/middlewares"
	"github.com/samabos/tymblok/migrations"
	"github.com/samabos/tymblok/repositories"
	"github.com/samabos/tymblok/routes"
	"github.com/samabos/tymblok/services"
	"github.com/samabos/tymblok/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func init() {
	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetLevel(logrus.InfoLevel)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Warn("No .env file found, using environment variables")
	}

	cfg := config.LoadConfig()

	db, err := repositories.InitDB(cfg)
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}
	if err := migrations.RunMigrations(db); err != nil {
		logrus.Fatal("Failed to run migrations: ", err)
	}

	userRepo := repositories.NewUserRepository(db)
	integrationRepo := repositories.NewIntegrationRepository(db)
	inboxRepo := repositories.NewInboxRepository(db)
	blockRepo := repositories.NewTimeBlockRepository(db)
	categoryRepo := repositories.NewCategoryRepository(db)

	crypto, err := services.NewTokenEncryptionService(cfg.EncryptionKey)
	if err != nil {
		logrus.Fatal("Failed to initialize token encryption: ", err)
	}

	var stateStore services.StateStore = services.NewMemoryStateStore()
	if redisClient := config.NewRedisClient(cfg); redisClient != nil {
		stateStore = services.NewRedisStateStore(redisClient)
		logrus.Info("Using Redis-backed OAuth state store")
	}
	states := services.NewOAuthStateService(stateStore)

	providers := services.NewProviderRegistry(
		services.NewGitHubProvider(cfg, states, inboxRepo),
		services.NewGoogleCalendarProvider(cfg, states, inboxRepo, blockRepo, categoryRepo),
	)

	integrationService := services.NewIntegrationService(integrationRepo, inboxRepo, providers, crypto, states)
	worker := job.NewSyncWorker(integrationRepo, integrationService, cfg.SyncInterval)

	authMiddleware := middlewares.NewAuthMiddleware(utils.NewJWTValidator(cfg.JWTSecret), userRepo)
	integrationController := controllers.NewIntegrationController(integrationService, cfg.SyncDebounce)

	e := echo.New()
	e.HideBanner = true
	routes.SetupRoutes(e, authMiddleware, integrationController)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return worker.Run(ctx)
	})
	group.Go(func() error {
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Fatal("Server exited with error: ", err)
	}
}
