package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
)

type storeStub struct {
	users map[int64]*pgrepo.UserRecord
}

func newStoreStub(ids ...int64) *storeStub {
	s := &storeStub{users: make(map[int64]*pgrepo.UserRecord)}
	for _, id := range ids {
		s.users[id] = &pgrepo.UserRecord{ID: id}
	}
	return s
}

func (s *storeStub) FindByID(_ context.Context, userID int64) (pgrepo.UserRecord, error) {
	user, ok := s.users[userID]
	if !ok {
		return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
	}
	return *user, nil
}

func (s *storeStub) IncrementRequests(_ context.Context, userID int64) (int, error) {
	user, ok := s.users[userID]
	if !ok {
		return 0, pgrepo.ErrUserNotFound
	}
	user.RequestsCount++
	return user.RequestsCount, nil
}

func (s *storeStub) SetPremiumUntil(_ context.Context, userID int64, until time.Time) error {
	user, ok := s.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	utc := until.UTC()
	user.PremiumUntil = &utc
	return nil
}

func (s *storeStub) ClearPremium(_ context.Context, userID int64) error {
	user, ok := s.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	user.PremiumUntil = nil
	return nil
}

func newTestService(store Store, freeRequests int, now time.Time) *Service {
	svc := NewService(store, Config{FreeRequests: freeRequests})
	svc.now = func() time.Time { return now }
	return svc
}

func TestEvaluateFreeThenGated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newStoreStub(9)
	svc := newTestService(store, 1, now)
	ctx := context.Background()

	for call := 1; call <= 3; call++ {
		decision, err := svc.Evaluate(ctx, 9)
		if err != nil {
			t.Fatalf("evaluate call %d: %v", call, err)
		}
		want := DecisionGated
		if call == 1 {
			want = DecisionFree
		}
		if decision != want {
			t.Fatalf("call %d: expected %s, got %s", call, want, decision)
		}

		if _, err := svc.RecordUsage(ctx, 9); err != nil {
			t.Fatalf("record usage call %d: %v", call, err)
		}
	}

	if store.users[9].RequestsCount != 3 {
		t.Fatalf("expected 3 recorded usages, got %d", store.users[9].RequestsCount)
	}
}

func TestEvaluateFreeWhilePremiumActive(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newStoreStub(4)
	store.users[4].RequestsCount = 50
	until := now.Add(24 * time.Hour)
	store.users[4].PremiumUntil = &until

	svc := newTestService(store, 1, now)

	decision, err := svc.Evaluate(context.Background(), 4)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision != DecisionFree {
		t.Fatalf("premium user must evaluate FREE regardless of usage, got %s", decision)
	}
}

func TestEvaluateGatedAtExactExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newStoreStub(4)
	store.users[4].RequestsCount = 2
	store.users[4].PremiumUntil = &now

	svc := newTestService(store, 1, now)

	decision, err := svc.Evaluate(context.Background(), 4)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision != DecisionGated {
		t.Fatalf("entitlement is active only strictly after now, got %s", decision)
	}
}

func TestGrantOverwritesAndRevokeClears(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newStoreStub(8)
	svc := newTestService(store, 1, now)
	ctx := context.Background()

	until, err := svc.Grant(ctx, 8, 30*24*time.Hour, true)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if want := now.Add(30 * 24 * time.Hour); !until.Equal(want) {
		t.Fatalf("unexpected expiry: got %v want %v", until, want)
	}

	active, err := svc.IsActive(ctx, 8, now)
	if err != nil {
		t.Fatalf("is active: %v", err)
	}
	if !active {
		t.Fatalf("expected active entitlement after grant")
	}

	active, err = svc.IsActive(ctx, 8, now.Add(31*24*time.Hour))
	if err != nil {
		t.Fatalf("is active after window: %v", err)
	}
	if active {
		t.Fatalf("expected inactive entitlement 31 days out")
	}

	// a later, shorter grant shortens the window
	until, err = svc.Grant(ctx, 8, 24*time.Hour, true)
	if err != nil {
		t.Fatalf("second grant: %v", err)
	}
	if want := now.Add(24 * time.Hour); !until.Equal(want) {
		t.Fatalf("grant must overwrite, got %v want %v", until, want)
	}

	if err := svc.Revoke(ctx, 8, true); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	active, err = svc.IsActive(ctx, 8, now)
	if err != nil {
		t.Fatalf("is active after revoke: %v", err)
	}
	if active {
		t.Fatalf("expected inactive entitlement after revoke")
	}

	// revoke is idempotent
	if err := svc.Revoke(ctx, 8, true); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func TestGrantAndRevokeRequireAuthorization(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newStoreStub(8)
	svc := newTestService(store, 1, now)
	ctx := context.Background()

	if _, err := svc.Grant(ctx, 8, time.Hour, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized from grant, got %v", err)
	}
	if store.users[8].PremiumUntil != nil {
		t.Fatalf("unauthorized grant must not mutate state")
	}

	if err := svc.Revoke(ctx, 8, false); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized from revoke, got %v", err)
	}
}

func TestGrantRejectsInvalidDuration(t *testing.T) {
	svc := newTestService(newStoreStub(8), 1, time.Now())
	if _, err := svc.Grant(context.Background(), 8, 0, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero duration, got %v", err)
	}
	if _, err := svc.Grant(context.Background(), 8, -time.Hour, true); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative duration, got %v", err)
	}
}

func TestOperationsOnUnknownUserSurfaceNotFound(t *testing.T) {
	svc := newTestService(newStoreStub(), 1, time.Now())
	ctx := context.Background()

	if _, err := svc.Evaluate(ctx, 123); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound from evaluate, got %v", err)
	}
	if _, err := svc.RecordUsage(ctx, 123); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound from record usage, got %v", err)
	}
	if _, err := svc.Grant(ctx, 123, time.Hour, true); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound from grant, got %v", err)
	}
}
