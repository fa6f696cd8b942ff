package snooze

import (
	"context"
	"fmt"
	"time"

	"ezmail/internal/apperr"
)

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Snooze hides an email until the given time, which must lie in the future.
func (s *Service) Snooze(ctx context.Context, ownerID, itemID int64, until time.Time) error {
	if itemID <= 0 {
		return fmt.Errorf("email id %d: %w", itemID, apperr.ErrValidation)
	}
	if !until.After(s.now()) {
		return fmt.Errorf("snooze until %s is not in the future: %w", until.Format(time.RFC3339), apperr.ErrValidation)
	}
	return s.store.SetSnooze(ctx, ownerID, itemID, until.UTC())
}

func (s *Service) Unsnooze(ctx context.Context, ownerID, itemID int64) error {
	if itemID <= 0 {
		return fmt.Errorf("email id %d: %w", itemID, apperr.ErrValidation)
	}
	return s.store.ClearSnooze(ctx, ownerID, itemID)
}
