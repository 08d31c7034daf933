package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
)

type storeStub struct {
	userID *int64
	events []pgrepo.EventWriteRecord
}

func (s *storeStub) InsertBatch(_ context.Context, userID *int64, events []pgrepo.EventWriteRecord) error {
	if userID != nil {
		uid := *userID
		s.userID = &uid
	}
	s.events = append(s.events, events...)
	return nil
}

func TestTrackWritesOneEvent(t *testing.T) {
	store := &storeStub{}
	svc := NewService(store)
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	err := svc.Track(context.Background(), 9, "story_generated", map[string]any{"gated": true})
	if err != nil {
		t.Fatalf("track: %v", err)
	}

	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	if store.userID == nil || *store.userID != 9 {
		t.Fatalf("unexpected user id: %v", store.userID)
	}
	event := store.events[0]
	if event.Name != "story_generated" {
		t.Fatalf("unexpected event name: %s", event.Name)
	}
	if !event.OccurredAt.Equal(now) {
		t.Fatalf("unexpected occurred_at: %v", event.OccurredAt)
	}
	if gated, ok := event.Props["gated"].(bool); !ok || !gated {
		t.Fatalf("unexpected props: %v", event.Props)
	}
}

func TestTrackRejectsEmptyName(t *testing.T) {
	svc := NewService(&storeStub{})
	if err := svc.Track(context.Background(), 9, "  ", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTrackWithoutStoreIsNoOp(t *testing.T) {
	svc := NewService(nil)
	if err := svc.Track(context.Background(), 9, "story_generated", nil); err != nil {
		t.Fatalf("expected nil error without store, got %v", err)
	}
}
