package referrals

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

const tokenPrefix = "ref"

type Store interface {
	CreateIfAbsent(ctx context.Context, userID int64, username string, referrerID int64) (pgrepo.UserRecord, bool, error)
	UpdateUsername(ctx context.Context, userID int64, username string) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// ParseToken extracts the referrer id from a /start payload like "ref123".
// Anything unparsable means "no referral" rather than an error; a bad deep
// link must never block user creation.
func ParseToken(arg string) int64 {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, tokenPrefix) {
		return 0
	}

	id, err := strconv.ParseInt(arg[len(tokenPrefix):], 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

// Token renders the /start payload of a user's referral deep link.
func Token(userID int64) string {
	return tokenPrefix + strconv.FormatInt(userID, 10)
}

// Register creates the user record on first contact, attributing the referral
// edge when one is supplied. Re-registration is a no-op: the existing referrer
// link is never overwritten and the inviter is never double-credited. Returns
// whether a record was created.
func (s *Service) Register(ctx context.Context, userID, referrerID int64, username string) (bool, error) {
	if userID <= 0 {
		return false, ErrValidation
	}
	if s.store == nil {
		return false, fmt.Errorf("referral store is nil")
	}
	if referrerID == userID || referrerID < 0 {
		referrerID = 0
	}

	user, created, err := s.store.CreateIfAbsent(ctx, userID, username, referrerID)
	if err != nil {
		return false, fmt.Errorf("register user %d: %w", userID, err)
	}

	if !created && strings.TrimSpace(username) != "" && user.Username != strings.TrimSpace(username) {
		if err := s.store.UpdateUsername(ctx, userID, username); err != nil {
			return false, err
		}
	}

	return created, nil
}
