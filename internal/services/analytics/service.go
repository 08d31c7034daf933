package analytics

import (
	"context"
	"errors"
	"strings"
	"time"

	pgrepo "github.com/rfuntusov-a11y/gencontent/internal/repo/postgres"
)

var ErrValidation = errors.New("validation error")

type Store interface {
	InsertBatch(ctx context.Context, userID *int64, events []pgrepo.EventWriteRecord) error
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		store: store,
		now:   time.Now,
	}
}

// Track appends one product event for the user. Callers treat failures as
// non-fatal: analytics must never block a user-facing flow.
func (s *Service) Track(ctx context.Context, userID int64, name string, props map[string]any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrValidation
	}
	if s.store == nil {
		return nil
	}

	var uid *int64
	if userID > 0 {
		uid = &userID
	}

	return s.store.InsertBatch(ctx, uid, []pgrepo.EventWriteRecord{{
		Name:       name,
		OccurredAt: s.now().UTC(),
		Props:      props,
	}})
}
