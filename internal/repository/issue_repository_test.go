package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sergeiliashko/zero2prod/internal/model"
)

func seedSubscribers(t *testing.T, repo SubscriptionRepository, confirmed, pending int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < confirmed; i++ {
		token := fmt.Sprintf("confirmed-%d", i)
		if _, err := repo.Create(ctx, fmt.Sprintf("c%d@example.com", i), "c", token); err != nil {
			t.Fatalf("seed confirmed %d: %v", i, err)
		}
		if _, err := repo.ConfirmByToken(ctx, token); err != nil {
			t.Fatalf("confirm %d: %v", i, err)
		}
	}
	for i := 0; i < pending; i++ {
		if _, err := repo.Create(ctx, fmt.Sprintf("p%d@example.com", i), "p", fmt.Sprintf("pending-%d", i)); err != nil {
			t.Fatalf("seed pending %d: %v", i, err)
		}
	}
}

func TestEnqueueDeliveryOnlyConfirmed(t *testing.T) {
	db := setupTestDB(t)
	issueRepo := NewIssueRepository(db)
	subRepo := NewSubscriptionRepository(db)
	ctx := context.Background()

	seedSubscribers(t, subRepo, 3, 2)

	issueID := uuid.New().String()
	tx := db.Begin()
	issue := &model.NewsletterIssue{ID: issueID, Title: "t", TextContent: "x", HTMLContent: "<p>x</p>", PublishedAt: time.Now().UTC()}
	if err := issueRepo.CreateIssue(ctx, tx, issue); err != nil {
		t.Fatalf("create issue: %v", err)
	}
	queued, err := issueRepo.EnqueueDelivery(ctx, tx, issueID)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}

	if queued != 3 {
		t.Fatalf("expected 3 queued deliveries, got %d", queued)
	}
	cnt, err := issueRepo.CountQueued(ctx, issueID)
	if err != nil {
		t.Fatalf("count queued: %v", err)
	}
	if cnt != 3 {
		t.Fatalf("queue rows = %d, want 3", cnt)
	}
}

func TestEnqueueRollbackLeavesNothing(t *testing.T) {
	db := setupTestDB(t)
	issueRepo := NewIssueRepository(db)
	subRepo := NewSubscriptionRepository(db)
	ctx := context.Background()

	seedSubscribers(t, subRepo, 2, 0)

	issueID := uuid.New().String()
	tx := db.Begin()
	issue := &model.NewsletterIssue{ID: issueID, Title: "t", TextContent: "x", HTMLContent: "<p>x</p>", PublishedAt: time.Now().UTC()}
	if err := issueRepo.CreateIssue(ctx, tx, issue); err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if _, err := issueRepo.EnqueueDelivery(ctx, tx, issueID); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	tx.Rollback()

	// 期刊与队列同生共死
	got, err := issueRepo.GetIssue(ctx, issueID)
	if err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if got != nil {
		t.Fatal("issue row survived rollback")
	}
	cnt, err := issueRepo.CountQueued(ctx, issueID)
	if err != nil {
		t.Fatalf("count queued: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("queue rows survived rollback: %d", cnt)
	}
}

func TestDequeueAndDelete(t *testing.T) {
	db := setupTestDB(t)
	issueRepo := NewIssueRepository(db)
	subRepo := NewSubscriptionRepository(db)
	ctx := context.Background()

	seedSubscribers(t, subRepo, 1, 0)
	issueID := uuid.New().String()
	tx := db.Begin()
	_ = issueRepo.CreateIssue(ctx, tx, &model.NewsletterIssue{ID: issueID, Title: "t", TextContent: "x", HTMLContent: "y", PublishedAt: time.Now().UTC()})
	_, _ = issueRepo.EnqueueDelivery(ctx, tx, issueID)
	if err := tx.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx2 := db.Begin()
	entry, err := issueRepo.DequeueEntry(ctx, tx2)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if entry == nil || entry.NewsletterIssueID != issueID {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if err := issueRepo.DeleteEntry(ctx, tx2, entry.NewsletterIssueID, entry.SubscriberEmail); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	if err := tx2.Commit().Error; err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx3 := db.Begin()
	entry, err = issueRepo.DequeueEntry(ctx, tx3)
	if err != nil {
		t.Fatalf("dequeue empty: %v", err)
	}
	tx3.Rollback()
	if entry != nil {
		t.Fatalf("queue should be empty, got %+v", entry)
	}
}
