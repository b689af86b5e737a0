package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"ai-chat-go/internal/model"
)

func newTestRepo(t *testing.T) ConversationRepository {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewConversationRepository(rdb)
}

func sampleConversation(id string) *model.Conversation {
	now := time.Now().Truncate(time.Millisecond)
	return &model.Conversation{
		ID:    id,
		Title: "test",
		Messages: []model.Message{
			{Sender: model.SenderUser, Role: model.RoleUser, Content: "hi", Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetRoundtrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	conv := sampleConversation("c1")
	if err := repo.Create(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, conv); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "test" || len(got.Messages) != 1 || got.Messages[0].Content != "hi" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSaveBumpsVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	conv := sampleConversation("c1")
	if err := repo.Create(ctx, conv); err != nil {
		t.Fatalf("create: %v", err)
	}

	conv.Title = "renamed"
	if err := repo.Save(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}
	if conv.Version != 1 {
		t.Fatalf("expected version 1 after save, got %d", conv.Version)
	}

	got, err := repo.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "renamed" || got.Version != 1 {
		t.Fatalf("save not visible: %+v", got)
	}
}

func TestSaveDetectsConcurrentModification(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, sampleConversation("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	// 两个并发请求各自 load 同一版本
	first, _ := repo.Get(ctx, "c1")
	second, _ := repo.Get(ctx, "c1")

	first.Title = "first wins"
	if err := repo.Save(ctx, first); err != nil {
		t.Fatalf("first save: %v", err)
	}

	second.Title = "second loses"
	if err := repo.Save(ctx, second); !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	got, _ := repo.Get(ctx, "c1")
	if got.Title != "first wins" {
		t.Fatalf("stale save must not overwrite: %+v", got)
	}
}

func TestSaveMissingConversation(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.Save(context.Background(), sampleConversation("ghost")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersByUpdatedAt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := sampleConversation("older")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := sampleConversation("newer")

	if err := repo.Create(ctx, older); err != nil {
		t.Fatalf("create older: %v", err)
	}
	if err := repo.Create(ctx, newer); err != nil {
		t.Fatalf("create newer: %v", err)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(list))
	}
	if list[0].ID != "newer" {
		t.Fatalf("expected newest first, got %s", list[0].ID)
	}
}

func TestDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.Create(ctx, sampleConversation("c1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Delete(ctx, "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
