package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUserNotFound = errors.New("user not found")

type UserRepo struct {
	pool *pgxpool.Pool
}

// UserRecord is one row per Telegram user. ReferrerID is written once at
// creation and never updated; ReferralsCount only grows.
type UserRecord struct {
	ID             int64
	FirstSeen      time.Time
	Username       string
	RequestsCount  int
	PremiumUntil   *time.Time
	ReferrerID     int64
	ReferralsCount int
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) FindByID(ctx context.Context, userID int64) (UserRecord, error) {
	if r.pool == nil {
		return UserRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return UserRecord{}, fmt.Errorf("invalid user id")
	}

	var user UserRecord
	err := r.pool.QueryRow(ctx, `
SELECT id, first_seen, username, requests_count, premium_until, referrer_id, referrals_count
FROM users
WHERE id = $1
`, userID).Scan(
		&user.ID,
		&user.FirstSeen,
		&user.Username,
		&user.RequestsCount,
		&user.PremiumUntil,
		&user.ReferrerID,
		&user.ReferralsCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{}, fmt.Errorf("find user by id: %w", err)
	}

	return user, nil
}

// CreateIfAbsent inserts the user on first contact. When the insert actually
// happens and referrerID points at a different user, the referral edge and the
// referrer's counter move in the same transaction; a referrer that has never
// messaged the bot gets a placeholder row so the credit is not lost.
func (r *UserRepo) CreateIfAbsent(ctx context.Context, userID int64, username string, referrerID int64) (UserRecord, bool, error) {
	if r.pool == nil {
		return UserRecord{}, false, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return UserRecord{}, false, fmt.Errorf("invalid user id")
	}
	if referrerID == userID || referrerID < 0 {
		referrerID = 0
	}

	created := false
	err := WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
INSERT INTO users (id, first_seen, username, requests_count, referrer_id, referrals_count)
VALUES ($1, NOW(), $2, 0, $3, 0)
ON CONFLICT (id) DO NOTHING
`, userID, strings.TrimSpace(username), referrerID)
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}

		created = tag.RowsAffected() > 0
		if !created || referrerID == 0 {
			return nil
		}

		if _, err := tx.Exec(ctx, `
INSERT INTO users (id, first_seen, username, requests_count, referrer_id, referrals_count)
VALUES ($1, NOW(), '', 0, 0, 1)
ON CONFLICT (id) DO UPDATE SET
	referrals_count = users.referrals_count + 1
`, referrerID); err != nil {
			return fmt.Errorf("credit referrer: %w", err)
		}

		return nil
	})
	if err != nil {
		return UserRecord{}, false, err
	}

	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return UserRecord{}, false, err
	}

	return user, created, nil
}

func (r *UserRepo) IncrementRequests(ctx context.Context, userID int64) (int, error) {
	if r.pool == nil {
		return 0, fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return 0, fmt.Errorf("invalid user id")
	}

	var count int
	err := r.pool.QueryRow(ctx, `
UPDATE users
SET requests_count = requests_count + 1
WHERE id = $1
RETURNING requests_count
`, userID).Scan(&count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("increment user requests: %w", err)
	}

	return count, nil
}

func (r *UserRepo) SetPremiumUntil(ctx context.Context, userID int64, until time.Time) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET premium_until = $2
WHERE id = $1
`, userID, until.UTC())
	if err != nil {
		return fmt.Errorf("set user premium: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepo) ClearPremium(ctx context.Context, userID int64) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 {
		return fmt.Errorf("invalid user id")
	}

	tag, err := r.pool.Exec(ctx, `
UPDATE users
SET premium_until = NULL
WHERE id = $1
`, userID)
	if err != nil {
		return fmt.Errorf("clear user premium: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

func (r *UserRepo) UpdateUsername(ctx context.Context, userID int64, username string) error {
	if r.pool == nil {
		return fmt.Errorf("postgres pool is nil")
	}
	if userID <= 0 || strings.TrimSpace(username) == "" {
		return nil
	}

	if _, err := r.pool.Exec(ctx, `
UPDATE users
SET username = $2
WHERE id = $1
`, userID, strings.TrimSpace(username)); err != nil {
		return fmt.Errorf("update user username: %w", err)
	}

	return nil
}
