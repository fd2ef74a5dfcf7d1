package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sergeiliashko/zero2prod/config"
	"github.com/sergeiliashko/zero2prod/internal/email"
	"github.com/sergeiliashko/zero2prod/internal/repository"
	"github.com/sergeiliashko/zero2prod/internal/service"
	"github.com/sergeiliashko/zero2prod/pkg/database"
	"github.com/sergeiliashko/zero2prod/pkg/logger"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

// 投递 worker：消费 issue_delivery_queue，顺带清理过期幂等账本行
func main() {
	cfg := must(config.Load())
	if err := logger.Init(cfg.Log.Level, cfg.Log.JSON); err != nil {
		panic(err)
	}
	defer logger.Sync()

	db := must(database.InitDB(cfg))
	issueRepo := repository.NewIssueRepository(db)
	idempotencyRepo := repository.NewIdempotencyRepository(db)
	emailClient := email.NewClient(cfg.Email)

	worker := service.NewDeliveryWorker(db, issueRepo, emailClient,
		cfg.Worker.Workers, cfg.Worker.ClaimLimit, cfg.Worker.PollInterval)
	stopWorker := worker.Start()

	cleaner := service.NewLedgerCleaner(idempotencyRepo,
		cfg.Idempotency.RetentionTTL, cfg.Idempotency.CleanupBatch, time.Hour)
	stopCleaner := cleaner.Start()

	logger.Info("delivery worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = stopWorker(ctx)
	_ = stopCleaner(ctx)
}
