package service

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/model"
	"github.com/sergeiliashko/zero2prod/internal/repository"
)

// setupTestDB 单连接内存库。连接池只有一个连接：持有未提交认领
// 事务的请求独占它，竞争者在池上排队——和生产环境里在行锁上排队
// 同构，至多一个事务能先完成插入。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(
		&model.User{},
		&model.Subscription{},
		&model.SubscriptionToken{},
		&model.NewsletterIssue{},
		&model.DeliveryQueueEntry{},
		&model.IdempotencyRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedConfirmedSubscribers(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	repo := repository.NewSubscriptionRepository(db)
	ctx := context.Background()
	for i := 0; i < n; i++ {
		token := fmt.Sprintf("token-%d", i)
		if _, err := repo.Create(ctx, fmt.Sprintf("s%d@example.com", i), "s", token); err != nil {
			t.Fatalf("seed subscriber %d: %v", i, err)
		}
		if _, err := repo.ConfirmByToken(ctx, token); err != nil {
			t.Fatalf("confirm subscriber %d: %v", i, err)
		}
	}
}
