package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sergeiliashko/zero2prod/internal/model"
)

// setupTestDB 单连接内存库：一个共享库，事务互斥经由连接池串行化
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
