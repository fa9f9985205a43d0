package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleReminder re-notifies approvers of packages waiting too long
type StaleReminder interface {
	RemindStale(ctx context.Context, age time.Duration) (int, error)
}

// SessionPurger deletes session state not touched since a cutoff
type SessionPurger interface {
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// NewApprovalReminder runs RemindStale every interval for steps open longer than interval
func NewApprovalReminder(r StaleReminder, interval time.Duration, logger *zap.Logger) *Periodic {
	return NewPeriodic("approval-reminder", interval, time.Minute, func(ctx context.Context) error {
		n, err := r.RemindStale(ctx, interval)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Approval reminders sent", zap.Int("count", n))
		}
		return nil
	}, logger)
}

// NewSessionPurge removes session state older than maxAge every interval
func NewSessionPurge(p SessionPurger, interval, maxAge time.Duration, logger *zap.Logger) *Periodic {
	return NewPeriodic("session-purge", interval, time.Minute, func(ctx context.Context) error {
		n, err := p.Purge(ctx, time.Now().Add(-maxAge))
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("Expired session state purged", zap.Int64("rows", n))
		}
		return nil
	}, logger)
}
