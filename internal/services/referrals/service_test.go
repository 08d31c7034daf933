package referrals

import (
	"context"
	"errors"
	"testing"

	"github.com/rfuntusov-a11y/gencontent/internal/repo/memory"
)

func TestParseToken(t *testing.T) {
	cases := []struct {
		arg  string
		want int64
	}{
		{"ref42", 42},
		{" ref42 ", 42},
		{"ref0", 0},
		{"ref-5", 0},
		{"refx", 0},
		{"42", 0},
		{"", 0},
		{"REF42", 0},
	}

	for _, tc := range cases {
		if got := ParseToken(tc.arg); got != tc.want {
			t.Fatalf("ParseToken(%q) = %d, want %d", tc.arg, got, tc.want)
		}
	}
}

func TestTokenRoundTrip(t *testing.T) {
	if got := ParseToken(Token(317)); got != 317 {
		t.Fatalf("token round trip failed: got %d", got)
	}
}

func TestRegisterCreditsReferrerExactlyOnce(t *testing.T) {
	store := memory.NewUserRepo()
	svc := NewService(store)
	ctx := context.Background()

	created, err := svc.Register(ctx, 7, 3, "newcomer")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !created {
		t.Fatalf("expected record creation on first registration")
	}

	// re-registration never double-counts
	created, err = svc.Register(ctx, 7, 3, "newcomer")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if created {
		t.Fatalf("expected re-registration to be a no-op")
	}

	referrer, err := store.FindByID(ctx, 3)
	if err != nil {
		t.Fatalf("find referrer: %v", err)
	}
	if referrer.ReferralsCount != 1 {
		t.Fatalf("expected referral count 1, got %d", referrer.ReferralsCount)
	}

	user, err := store.FindByID(ctx, 7)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.ReferrerID != 3 {
		t.Fatalf("expected referrer_id 3, got %d", user.ReferrerID)
	}
}

func TestRegisterCreditsReferrerWithoutOwnRecord(t *testing.T) {
	store := memory.NewUserRepo()
	svc := NewService(store)
	ctx := context.Background()

	// user 3 has never talked to the bot, yet the credit must not be lost
	if _, err := svc.Register(ctx, 7, 3, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	referrer, err := store.FindByID(ctx, 3)
	if err != nil {
		t.Fatalf("expected placeholder referrer record: %v", err)
	}
	if referrer.ReferralsCount != 1 {
		t.Fatalf("expected referral count 1 on placeholder, got %d", referrer.ReferralsCount)
	}
}

func TestRegisterRejectsSelfReferral(t *testing.T) {
	store := memory.NewUserRepo()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, 5, 5, ""); err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := store.FindByID(ctx, 5)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.ReferrerID != 0 {
		t.Fatalf("self-referral must leave referrer_id unset, got %d", user.ReferrerID)
	}
	if user.ReferralsCount != 0 {
		t.Fatalf("self-referral must not credit, got %d", user.ReferralsCount)
	}
}

func TestRegisterRefreshesUsername(t *testing.T) {
	store := memory.NewUserRepo()
	svc := NewService(store)
	ctx := context.Background()

	if _, err := svc.Register(ctx, 9, 0, "old_name"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.Register(ctx, 9, 0, "new_name"); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	user, err := store.FindByID(ctx, 9)
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if user.Username != "new_name" {
		t.Fatalf("expected refreshed username, got %q", user.Username)
	}
}

func TestRegisterRejectsInvalidUserID(t *testing.T) {
	svc := NewService(memory.NewUserRepo())
	if _, err := svc.Register(context.Background(), 0, 3, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
