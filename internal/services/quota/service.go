package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
)

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUserNotFound = errors.New("user not found")
)

// Decision is the outcome of evaluating a generation request against the
// user's quota and entitlement state.
type Decision int

const (
	// DecisionFree lets the generation through without the promo block.
	DecisionFree Decision = iota
	// DecisionGated lets the generation through with the promo block attached.
	DecisionGated
)

func (d Decision) String() string {
	if d == DecisionFree {
		return "FREE"
	}
	return "GATED"
}

type Store interface {
	FindByID(ctx context.Context, userID int64) (pgrepo.UserRecord, error)
	IncrementRequests(ctx context.Context, userID int64) (int, error)
	SetPremiumUntil(ctx context.Context, userID int64, until time.Time) error
	ClearPremium(ctx context.Context, userID int64) error
}

type Config struct {
	// FreeRequests is how many generations a fresh user gets before gating.
	FreeRequests int
}

type Service struct {
	store Store
	cfg   Config
	now   func() time.Time
}

func NewService(store Store, cfg Config) *Service {
	if cfg.FreeRequests < 0 {
		cfg.FreeRequests = 0
	}
	return &Service{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Evaluate reports whether the user's next generation is free or gated. It
// never mutates state; RecordUsage does the accounting once the content has
// actually been produced.
func (s *Service) Evaluate(ctx context.Context, userID int64) (Decision, error) {
	if userID <= 0 {
		return DecisionGated, ErrValidation
	}
	if s.store == nil {
		return DecisionGated, fmt.Errorf("quota store is nil")
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return DecisionGated, s.mapStoreErr(err)
	}

	if user.RequestsCount < s.cfg.FreeRequests {
		return DecisionFree, nil
	}
	if premiumActive(user.PremiumUntil, s.now().UTC()) {
		return DecisionFree, nil
	}

	return DecisionGated, nil
}

// RecordUsage counts one completed generation. Callers invoke it after
// synthesis so a failed generation consumes no quota.
func (s *Service) RecordUsage(ctx context.Context, userID int64) (int, error) {
	if userID <= 0 {
		return 0, ErrValidation
	}
	if s.store == nil {
		return 0, fmt.Errorf("quota store is nil")
	}

	count, err := s.store.IncrementRequests(ctx, userID)
	if err != nil {
		return 0, s.mapStoreErr(err)
	}

	return count, nil
}

// Grant overwrites the entitlement window with now+duration. A later grant for
// a shorter duration shortens the effective window; that is the intended
// administrative-override behavior, not a top-up.
func (s *Service) Grant(ctx context.Context, userID int64, duration time.Duration, authorized bool) (time.Time, error) {
	if !authorized {
		return time.Time{}, ErrUnauthorized
	}
	if userID <= 0 || duration <= 0 {
		return time.Time{}, ErrValidation
	}
	if s.store == nil {
		return time.Time{}, fmt.Errorf("quota store is nil")
	}

	until := s.now().UTC().Add(duration)
	if err := s.store.SetPremiumUntil(ctx, userID, until); err != nil {
		return time.Time{}, s.mapStoreErr(err)
	}

	return until, nil
}

// Revoke clears the entitlement unconditionally. Revoking a user without an
// active entitlement is a no-op, not an error.
func (s *Service) Revoke(ctx context.Context, userID int64, authorized bool) error {
	if !authorized {
		return ErrUnauthorized
	}
	if userID <= 0 {
		return ErrValidation
	}
	if s.store == nil {
		return fmt.Errorf("quota store is nil")
	}

	if err := s.store.ClearPremium(ctx, userID); err != nil {
		return s.mapStoreErr(err)
	}

	return nil
}

func (s *Service) IsActive(ctx context.Context, userID int64, at time.Time) (bool, error) {
	if userID <= 0 {
		return false, ErrValidation
	}
	if s.store == nil {
		return false, fmt.Errorf("quota store is nil")
	}
	if at.IsZero() {
		at = s.now()
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return false, s.mapStoreErr(err)
	}

	return premiumActive(user.PremiumUntil, at.UTC()), nil
}

func (s *Service) mapStoreErr(err error) error {
	if errors.Is(err, pgrepo.ErrUserNotFound) {
		return ErrUserNotFound
	}
	return err
}

func premiumActive(until *time.Time, at time.Time) bool {
	return until != nil && until.After(at)
}
