package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/personainsights/server/internal/database"
	"github.com/personainsights/server/internal/models"
)

func openCleanupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Prepare(db))
	t.Cleanup(func() {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestCleanupInvitations(t *testing.T) {
	db := openCleanupTestDB(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	oldResolvedAt := now.Add(-100 * 24 * time.Hour)
	recentResolvedAt := now.Add(-time.Hour)

	oldResolved := models.Invitation{
		Email:       "old@example.com",
		TokenDigest: "digest-old-resolved",
		Type:        models.InvitationTypeTeamJoin,
		Status:      models.InvitationStatusAccepted,
		InvitedByID: "inviter",
		InvitedAt:   oldResolvedAt.Add(-time.Hour),
		ExpiresAt:   oldResolvedAt.Add(7 * 24 * time.Hour),
		ResolvedAt:  &oldResolvedAt,
	}
	recentResolved := models.Invitation{
		Email:       "recent@example.com",
		TokenDigest: "digest-recent-resolved",
		Type:        models.InvitationTypeTeamJoin,
		Status:      models.InvitationStatusDeclined,
		InvitedByID: "inviter",
		InvitedAt:   now.Add(-2 * time.Hour),
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
		ResolvedAt:  &recentResolvedAt,
	}
	longExpired := models.Invitation{
		Email:       "stale@example.com",
		TokenDigest: "digest-long-expired",
		Type:        models.InvitationTypeManagerRequest,
		Status:      models.InvitationStatusPending,
		InvitedByID: "inviter",
		InvitedAt:   now.Add(-60 * 24 * time.Hour),
		ExpiresAt:   now.Add(-45 * 24 * time.Hour),
	}
	freshPending := models.Invitation{
		Email:       "fresh@example.com",
		TokenDigest: "digest-fresh-pending",
		Type:        models.InvitationTypeTeamJoin,
		Status:      models.InvitationStatusPending,
		InvitedByID: "inviter",
		InvitedAt:   now.Add(-time.Hour),
		ExpiresAt:   now.Add(7 * 24 * time.Hour),
	}
	// Expired but still inside the retention window: a late resolver should
	// keep seeing the expired error, not a vanished invitation.
	recentlyExpired := models.Invitation{
		Email:       "late@example.com",
		TokenDigest: "digest-recently-expired",
		Type:        models.InvitationTypeTeamJoin,
		Status:      models.InvitationStatusPending,
		InvitedByID: "inviter",
		InvitedAt:   now.Add(-10 * 24 * time.Hour),
		ExpiresAt:   now.Add(-3 * 24 * time.Hour),
	}

	for _, invitation := range []*models.Invitation{&oldResolved, &recentResolved, &longExpired, &freshPending, &recentlyExpired} {
		require.NoError(t, db.Create(invitation).Error)
	}

	stats, err := CleanupInvitations(context.Background(), db, now, 90*24*time.Hour, 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Resolved)
	require.Equal(t, int64(1), stats.Expired)

	var remaining []models.Invitation
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 3)
	for _, invitation := range remaining {
		require.NotEqual(t, "old@example.com", invitation.Email)
		require.NotEqual(t, "stale@example.com", invitation.Email)
	}
}

func TestCleanupNotifications(t *testing.T) {
	db := openCleanupTestDB(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	oldReadAt := now.Add(-90 * 24 * time.Hour)
	recentReadAt := now.Add(-time.Hour)

	oldRead := models.Notification{
		ProfileID: "p1", Type: "invitation.received", Title: "Old",
		IsRead: true, ReadAt: &oldReadAt,
	}
	recentRead := models.Notification{
		ProfileID: "p1", Type: "invitation.received", Title: "Recent",
		IsRead: true, ReadAt: &recentReadAt,
	}
	unread := models.Notification{
		ProfileID: "p1", Type: "invitation.received", Title: "Unread",
	}
	require.NoError(t, db.Create(&oldRead).Error)
	require.NoError(t, db.Create(&recentRead).Error)
	require.NoError(t, db.Create(&unread).Error)

	removed, err := CleanupNotifications(context.Background(), db, now, 60*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&count).Error)
	require.Equal(t, int64(2), count)
}

func TestCleanupCacheEntries(t *testing.T) {
	db := openCleanupTestDB(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.CacheEntry{
		Key: "expired", Value: []byte("x"), ExpiresAt: now.Add(-time.Minute),
	}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{
		Key: "live", Value: []byte("y"), ExpiresAt: now.Add(time.Minute),
	}).Error)

	removed, err := CleanupCacheEntries(context.Background(), db, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)

	var remaining models.CacheEntry
	require.NoError(t, db.First(&remaining).Error)
	require.Equal(t, "live", remaining.Key)
}

func TestCleanerRunOnce(t *testing.T) {
	db := openCleanupTestDB(t)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	resolvedAt := now.Add(-100 * 24 * time.Hour)
	require.NoError(t, db.Create(&models.Invitation{
		Email:       "old@example.com",
		TokenDigest: "digest-run-once",
		Type:        models.InvitationTypeTeamJoin,
		Status:      models.InvitationStatusAccepted,
		InvitedByID: "inviter",
		InvitedAt:   resolvedAt.Add(-time.Hour),
		ExpiresAt:   resolvedAt.Add(7 * 24 * time.Hour),
		ResolvedAt:  &resolvedAt,
	}).Error)
	require.NoError(t, db.Create(&models.CacheEntry{
		Key: "expired", Value: []byte("x"), ExpiresAt: now.Add(-time.Minute),
	}).Error)

	cleaner := NewCleaner(db, WithNow(func() time.Time { return now }))
	require.NoError(t, cleaner.RunOnce(context.Background()))

	var invitations int64
	require.NoError(t, db.Model(&models.Invitation{}).Count(&invitations).Error)
	require.Equal(t, int64(0), invitations)

	var entries int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&entries).Error)
	require.Equal(t, int64(0), entries)
}
