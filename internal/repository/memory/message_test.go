package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chris-fellows/cf-message-queue-sub000/internal/domain/entity"
)

func pendingMessage(id, queueID string, priority int, createdAt time.Time) *entity.Message {
	return &entity.Message{
		ID:        id,
		TypeID:    "t",
		QueueID:   queueID,
		Priority:  priority,
		CreatedAt: createdAt,
		Status:    entity.StatusPending,
	}
}

func TestNextEligible_Ordering(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	base := time.Now()

	// Same priority: oldest wins. Lower priority value wins overall.
	msgs := []*entity.Message{
		pendingMessage("m-default-old", "q1", 50, base),
		pendingMessage("m-default-new", "q1", 50, base.Add(time.Second)),
		pendingMessage("m-high", "q1", 0, base.Add(2*time.Second)),
		pendingMessage("m-low", "q1", 100, base.Add(-time.Hour)),
	}
	for _, m := range msgs {
		if err := repo.Add(ctx, m); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	want := []string{"m-high", "m-default-old", "m-default-new", "m-low"}
	for _, expected := range want {
		got, err := repo.NextEligible(ctx, "q1", base.Add(time.Minute))
		if err != nil {
			t.Fatalf("next eligible failed: %v", err)
		}
		if got == nil || got.ID != expected {
			t.Fatalf("expected %s, got %+v", expected, got)
		}
		if err := repo.DeleteByID(ctx, got.ID); err != nil {
			t.Fatalf("delete failed: %v", err)
		}
	}

	got, err := repo.NextEligible(ctx, "q1", base)
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil) on empty queue, got %v %v", got, err)
	}
}

func TestNextEligible_SkipsLeasedExpiredAndForeign(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	now := time.Now()

	leased := pendingMessage("m-leased", "q1", 0, now)
	leased.Status = entity.StatusLeased
	expired := pendingMessage("m-expired", "q1", 0, now)
	expired.ExpiresAt = now.Add(-time.Second)
	foreign := pendingMessage("m-foreign", "q2", 0, now)
	ok := pendingMessage("m-ok", "q1", 50, now)

	for _, m := range []*entity.Message{leased, expired, foreign, ok} {
		if err := repo.Add(ctx, m); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	got, err := repo.NextEligible(ctx, "q1", now)
	if err != nil {
		t.Fatalf("next eligible failed: %v", err)
	}
	if got == nil || got.ID != "m-ok" {
		t.Fatalf("expected m-ok, got %+v", got)
	}
}

func TestGetExpired(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	now := time.Now()

	expired := pendingMessage("m-expired", "q1", 50, now)
	expired.ExpiresAt = now.Add(-time.Minute)
	fresh := pendingMessage("m-fresh", "q1", 50, now)
	fresh.ExpiresAt = now.Add(time.Minute)
	forever := pendingMessage("m-forever", "q1", 50, now)
	leasedExpired := pendingMessage("m-leased", "q1", 50, now)
	leasedExpired.ExpiresAt = now.Add(-time.Minute)
	leasedExpired.Status = entity.StatusLeased

	for _, m := range []*entity.Message{expired, fresh, forever, leasedExpired} {
		if err := repo.Add(ctx, m); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	got, err := repo.GetExpired(ctx, "q1", now)
	if err != nil {
		t.Fatalf("get expired failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "m-expired" {
		t.Fatalf("expected only m-expired, got %+v", got)
	}
}

func TestMessageRepository_CloneIsolation(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()

	msg := pendingMessage("m1", "q1", 50, time.Now())
	msg.Content = []byte("original")
	if err := repo.Add(ctx, msg); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	// Mutating the caller's copy must not touch the stored record.
	msg.Status = entity.StatusLeased
	got, err := repo.GetByID(ctx, "m1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status != entity.StatusPending {
		t.Fatal("stored record was mutated through the caller's reference")
	}

	got.Content[0] = 'X'
	again, _ := repo.GetByID(ctx, "m1")
	if string(again.Content) != "original" {
		t.Fatal("stored content was mutated through a returned clone")
	}
}

func TestDeleteByQueue(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	now := time.Now()

	for _, m := range []*entity.Message{
		pendingMessage("a", "q1", 50, now),
		pendingMessage("b", "q1", 50, now),
		pendingMessage("c", "q2", 50, now),
	} {
		if err := repo.Add(ctx, m); err != nil {
			t.Fatalf("add failed: %v", err)
		}
	}

	if err := repo.DeleteByQueue(ctx, "q1"); err != nil {
		t.Fatalf("delete by queue failed: %v", err)
	}
	q1, _ := repo.GetByQueue(ctx, "q1")
	if len(q1) != 0 {
		t.Fatalf("expected q1 empty, got %d", len(q1))
	}
	q2, _ := repo.GetByQueue(ctx, "q2")
	if len(q2) != 1 {
		t.Fatalf("expected q2 untouched, got %d", len(q2))
	}
}
