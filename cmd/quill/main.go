package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/quillcms/quill/internal/app"
	"github.com/quillcms/quill/internal/auth"
	"github.com/quillcms/quill/internal/content"
	"github.com/quillcms/quill/internal/media"
	"github.com/quillcms/quill/internal/messages"
	"github.com/quillcms/quill/internal/platform/cache"
	"github.com/quillcms/quill/internal/platform/db"
	"github.com/quillcms/quill/internal/rbac"
	"github.com/quillcms/quill/internal/shared"
	"github.com/quillcms/quill/internal/users"
	"github.com/quillcms/quill/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := asynqClient.Close(); err != nil {
			logger.Warn("asynq close", slog.Any("error", err))
		}
	}()
	enqueuer := jobs.NewEnqueuer(asynqClient)

	tokens := shared.NewTokenManager(redisClient, cfg.TokenSecret, cfg.TokenTTL)

	// Declared catalog: every feature module registers before reconciliation
	// seals the registry.
	registry := rbac.NewRegistry()
	for _, register := range []func(*rbac.Registry) error{
		users.RegisterRBAC,
		content.RegisterRBAC,
		media.RegisterRBAC,
	} {
		if err := register(registry); err != nil {
			logger.Error("register rbac declarations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	ops := rbac.NewOperations()
	usersRepo := users.NewRepository(pool)
	guard := rbac.NewGuard(tokens, usersRepo, registry, ops, logger)

	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, guard, ops)

	authService := auth.NewService(usersRepo, tokens)
	captchaService := auth.NewCaptchaService(redisClient, enqueuer, cfg.CaptchaTTL, cfg.CaptchaLimit)
	authHandler := auth.NewHandler(logger, authService, captchaService, usersService)

	contentRepo := content.NewRepository(pool)
	contentService := content.NewService(contentRepo)
	contentHandler := content.NewHandler(logger, contentService, contentRepo, guard, ops)

	mediaStorage, err := media.NewStorage(cfg.MediaDir)
	if err != nil {
		logger.Error("init media storage", slog.Any("error", err))
		os.Exit(1)
	}
	mediaRepo := media.NewRepository(pool)
	mediaHandler := media.NewHandler(logger, mediaRepo, mediaStorage, guard, ops)

	messagesRepo := messages.NewRepository(pool)
	messagesService := messages.NewService(messagesRepo, enqueuer, logger)
	messagesHandler := messages.NewHandler(logger, messagesService, guard, ops)

	rbacRepo := rbac.NewRepository(pool)
	rbacHandler := rbac.NewHandler(logger, rbacRepo, guard, ops)

	// Converge persisted roles/permissions with the declared catalog. A
	// failed run rolls back and the server still boots on the last good
	// state.
	reconciler := rbac.NewReconciler(registry, rbac.NewTxFunc(pool), logger, cfg.SuperUsername)
	if err := reconciler.Run(ctx); err != nil {
		logger.Warn("serving with previous rbac state", slog.Any("error", err))
	}

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AuthHandler:     authHandler,
		UsersHandler:    usersHandler,
		ContentHandler:  contentHandler,
		MediaHandler:    mediaHandler,
		MessagesHandler: messagesHandler,
		RBACHandler:     rbacHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
