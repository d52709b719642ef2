// Package maintenance runs periodic cleanup against the identity store.
package maintenance

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	DeletePublishedOutboxMessagesBefore(ctx context.Context, before time.Time) (int64, error)
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler removes relayed outbox rows once they are older than the
// retention window and forgets reset tokens that have expired.
type Scheduler struct {
	store     Store
	interval  time.Duration
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduler(store Store, interval, retention time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		store:     store,
		interval:  interval,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// Run sweeps once per interval until ctx is cancelled. A failed sweep is
// logged and retried on the next tick.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Maintenance scheduler stopped")
			return nil
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logger.Error("Maintenance sweep failed", slog.Any("error", err))
			}
		}
	}
}

func (s *Scheduler) Sweep(ctx context.Context) error {
	now := s.now().UTC()

	pruned, err := s.store.DeletePublishedOutboxMessagesBefore(ctx, now.Add(-s.retention))
	if err != nil {
		return err
	}

	cleared, err := s.store.ClearExpiredResetTokens(ctx, now)
	if err != nil {
		return err
	}

	s.logger.Info("Completed maintenance sweep",
		slog.Int64("outbox_pruned", pruned),
		slog.Int64("reset_tokens_cleared", cleared),
	)
	return nil
}
