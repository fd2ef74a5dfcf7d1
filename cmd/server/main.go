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

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sergeiliashko/zero2prod/config"
	"github.com/sergeiliashko/zero2prod/internal/api"
	"github.com/sergeiliashko/zero2prod/internal/api/handler"
	"github.com/sergeiliashko/zero2prod/internal/email"
	"github.com/sergeiliashko/zero2prod/internal/model"
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/internal/service"
	"github.com/sergeiliashko/zero2prod/pkg/database"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
	"github.com/sergeiliashko/zero2prod/pkg/tracing"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// @title Newsletter API
// @version 1.0
// @description Newsletter publishing backend with idempotent publish
// @BasePath /
func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Log.Level, cfg.Log.JSON); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}
	if cfg.Trace.Enabled {
		shutdown := must(tracing.Init(context.Background(), "newsletter", cfg.Trace.Endpoint))
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdown(ctx)
		}()
	}

	db := must(database.InitDB(cfg))
	if err := database.Migrate(db); err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	issueRepo := repository.NewIssueRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)

	emailClient := email.NewClient(cfg.Email)
	coordinator := service.NewIdempotencyCoordinator(db, idempotencyRepo, cfg.Idempotency.ClaimTimeout)
	publishSvc := service.NewPublishService(coordinator, issueRepo)
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, emailClient, cfg.Server.BaseURL)
	authSvc := service.NewAuthService(userRepo, cfg.Session.JWTSecret, cfg.Session.JWTTTL)
	sessions := service.NewSessionStore(rdb, cfg.Session.TTL)

	if err := bootstrapAdmin(context.Background(), userRepo); err != nil {
		panic(err)
	}

	gin.SetMode(cfg.Server.Mode)
	h := handler.New(subscriptionSvc, publishSvc, authSvc, sessions, userRepo, cfg.Session.CookieName, cfg.Session.Secure)
	router := api.NewRouter(h, sessions, authSvc, cfg.Session.CookieName, cfg.Sentry.DSN != "")

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// bootstrapAdmin 首次部署时用环境变量创建后台用户
func bootstrapAdmin(ctx context.Context, users repository.UserRepository) error {
	username := os.Getenv("APP_ADMIN_USERNAME")
	password := os.Getenv("APP_ADMIN_PASSWORD")
	if username == "" || password == "" {
		return nil
	}
	existing, err := users.GetByUsername(ctx, username)
	if err != nil || existing != nil {
		return err
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	return users.Create(ctx, &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: hash,
	})
}
