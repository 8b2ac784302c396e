package authkit

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const purgeRunTimeout = 30 * time.Second

// RefreshTokenPurger deletes long-expired refresh records on a cron schedule.
type RefreshTokenPurger struct {
	cron      *cron.Cron
	ledger    *RefreshTokenLedger
	retention time.Duration
	logger    *zap.Logger
}

// NewRefreshTokenPurger schedules purges using a standard five-field cron spec.
func NewRefreshTokenPurger(ledger *RefreshTokenLedger, schedule string, retention time.Duration, logger *zap.Logger) (*RefreshTokenPurger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention < 0 {
		return nil, fmt.Errorf("refresh_purge.new: retention must not be negative")
	}
	purger := &RefreshTokenPurger{
		cron:      cron.New(),
		ledger:    ledger,
		retention: retention,
		logger:    logger,
	}
	if _, err := purger.cron.AddFunc(schedule, purger.runScheduled); err != nil {
		return nil, fmt.Errorf("refresh_purge.schedule: %w", err)
	}
	return purger, nil
}

// Start begins running the schedule in the background.
func (purger *RefreshTokenPurger) Start() {
	purger.cron.Start()
}

// Stop halts the schedule; the returned context is done once a running purge finishes.
func (purger *RefreshTokenPurger) Stop() context.Context {
	return purger.cron.Stop()
}

// RunOnce purges immediately.
func (purger *RefreshTokenPurger) RunOnce(ctx context.Context) (int64, error) {
	return purger.ledger.PurgeExpired(ctx, purger.retention)
}

func (purger *RefreshTokenPurger) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeRunTimeout)
	defer cancel()
	removed, err := purger.RunOnce(ctx)
	if err != nil {
		purger.logger.Error("refresh token purge failed", zap.String("code", "refresh_purge.failure"), zap.Error(err))
		return
	}
	purger.logger.Info("refresh token purge complete", zap.String("code", "refresh_purge.success"), zap.Int64("removed", removed))
}
