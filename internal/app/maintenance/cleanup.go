package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
	"github.com/personainsights/server/pkg/logger"
)

const (
	defaultSchedule              = "@hourly"
	defaultResolvedRetention     = 90 * 24 * time.Hour
	defaultExpiredRetention      = 30 * 24 * time.Hour
	defaultNotificationRetention = 60 * 24 * time.Hour
)

// Cleaner removes rows that have outlived their purpose: resolved or
// long-expired invitations, stale read notifications, and expired cache
// entries. Expiry never mutates invitation rows at read time, so storage only
// shrinks through these sweeps.
type Cleaner struct {
	db       *gorm.DB
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string

	resolvedRetention     time.Duration
	expiredRetention      time.Duration
	notificationRetention time.Duration
}

// Option tweaks Cleaner construction.
type Option func(*Cleaner)

// WithCron substitutes the scheduler, used by tests.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for retention comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification for the sweep.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithResolvedRetention adjusts how long resolved invitations are kept.
func WithResolvedRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.resolvedRetention = d
		}
	}
}

// WithExpiredRetention adjusts how long expired pending invitations are kept.
func WithExpiredRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.expiredRetention = d
		}
	}
}

// WithNotificationRetention adjusts how long read notifications are kept.
func WithNotificationRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.notificationRetention = d
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                    db,
		now:                   time.Now,
		schedule:              defaultSchedule,
		resolvedRetention:     defaultResolvedRetention,
		expiredRetention:      defaultExpiredRetention,
		notificationRetention: defaultNotificationRetention,
		log:                   logger.WithScope("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the sweep with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if c.db == nil {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance sweep failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler and returns a context that ends once running
// jobs have drained.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	stats, err := CleanupInvitations(ctx, c.db, c.now(), c.resolvedRetention, c.expiredRetention)
	if err != nil {
		errs = multierr.Append(errs, err)
	} else if stats.Resolved+stats.Expired > 0 {
		c.log.Info("pruned invitations",
			zap.Int64("resolved", stats.Resolved),
			zap.Int64("expired", stats.Expired))
	}

	if _, err := CleanupNotifications(ctx, c.db, c.now(), c.notificationRetention); err != nil {
		errs = multierr.Append(errs, err)
	}

	if _, err := CleanupCacheEntries(ctx, c.db, c.now()); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// InvitationCleanupStats captures the number of invitation rows removed.
type InvitationCleanupStats struct {
	Resolved int64
	Expired  int64
}

// CleanupInvitations removes resolved invitations past the resolved retention
// and pending invitations whose expiry is past the expired retention.
func CleanupInvitations(ctx context.Context, db *gorm.DB, now time.Time, resolvedRetention, expiredRetention time.Duration) (InvitationCleanupStats, error) {
	if db == nil {
		return InvitationCleanupStats{}, errors.New("cleanup invitations: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	stats := InvitationCleanupStats{}

	if result := db.WithContext(ctx).
		Where("status <> ? AND resolved_at < ?", models.InvitationStatusPending, now.Add(-resolvedRetention)).
		Delete(&models.Invitation{}); result.Error != nil {
		return stats, fmt.Errorf("cleanup invitations: resolved: %w", result.Error)
	} else {
		stats.Resolved = result.RowsAffected
	}

	if result := db.WithContext(ctx).
		Where("status = ? AND expires_at < ?", models.InvitationStatusPending, now.Add(-expiredRetention)).
		Delete(&models.Invitation{}); result.Error != nil {
		return stats, fmt.Errorf("cleanup invitations: expired: %w", result.Error)
	} else {
		stats.Expired = result.RowsAffected
	}

	return stats, nil
}

// CleanupNotifications removes read notifications older than the retention window.
func CleanupNotifications(ctx context.Context, db *gorm.DB, now time.Time, retention time.Duration) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup notifications: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("is_read = ? AND read_at < ?", true, now.Add(-retention)).
		Delete(&models.Notification{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup notifications: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupCacheEntries removes expired database cache rows.
func CleanupCacheEntries(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, errors.New("cleanup cache entries: db is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&models.CacheEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("cleanup cache entries: %w", result.Error)
	}
	return result.RowsAffected, nil
}
