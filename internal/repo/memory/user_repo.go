package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
)

// UserRepo keeps user records in process memory. It backs the bot when no
// postgres DSN is configured and mirrors the contract of the postgres repo,
// including the per-identifier serialization of read-modify-write updates.
type UserRepo struct {
	mu    sync.Mutex
	users map[int64]*pgrepo.UserRecord
	now   func() time.Time
}

func NewUserRepo() *UserRepo {
	return &UserRepo{
		users: make(map[int64]*pgrepo.UserRecord),
		now:   time.Now,
	}
}

func (r *UserRepo) FindByID(_ context.Context, userID int64) (pgrepo.UserRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return pgrepo.UserRecord{}, pgrepo.ErrUserNotFound
	}
	return cloneRecord(user), nil
}

func (r *UserRepo) CreateIfAbsent(_ context.Context, userID int64, username string, referrerID int64) (pgrepo.UserRecord, bool, error) {
	if referrerID == userID || referrerID < 0 {
		referrerID = 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[userID]; ok {
		return cloneRecord(user), false, nil
	}

	user := &pgrepo.UserRecord{
		ID:         userID,
		FirstSeen:  r.now().UTC(),
		Username:   strings.TrimSpace(username),
		ReferrerID: referrerID,
	}
	r.users[userID] = user

	if referrerID != 0 {
		referrer, ok := r.users[referrerID]
		if !ok {
			referrer = &pgrepo.UserRecord{
				ID:        referrerID,
				FirstSeen: r.now().UTC(),
			}
			r.users[referrerID] = referrer
		}
		referrer.ReferralsCount++
	}

	return cloneRecord(user), true, nil
}

func (r *UserRepo) IncrementRequests(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return 0, pgrepo.ErrUserNotFound
	}
	user.RequestsCount++
	return user.RequestsCount, nil
}

func (r *UserRepo) SetPremiumUntil(_ context.Context, userID int64, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	utc := until.UTC()
	user.PremiumUntil = &utc
	return nil
}

func (r *UserRepo) ClearPremium(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[userID]
	if !ok {
		return pgrepo.ErrUserNotFound
	}
	user.PremiumUntil = nil
	return nil
}

func (r *UserRepo) UpdateUsername(_ context.Context, userID int64, username string) error {
	clean := strings.TrimSpace(username)
	if clean == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if user, ok := r.users[userID]; ok {
		user.Username = clean
	}
	return nil
}

func cloneRecord(user *pgrepo.UserRecord) pgrepo.UserRecord {
	out := *user
	if user.PremiumUntil != nil {
		until := *user.PremiumUntil
		out.PremiumUntil = &until
	}
	return out
}
