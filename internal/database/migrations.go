package database

import (
	"gorm.io/gorm"

	"github.com/personainsights/server/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Profile{},
		&models.Team{},
		&models.TeamMember{},
		&models.Invitation{},
		&models.SharingPreference{},
		&models.Notification{},
		&models.Conversation{},
		&models.KeyInsight{},
		&models.OceanScore{},
		&models.CacheEntry{},
	)
}

// EnsurePendingInvitationIndex installs the partial unique index that makes
// the duplicate-pending-invitation check race-free. SQLite and Postgres both
// support partial indexes; MySQL does not, so there the transactional
// read-for-update check in the invitation service is the only guard.
func EnsurePendingInvitationIndex(db *gorm.DB) error {
	switch db.Dialector.Name() {
	case "sqlite", "postgres":
		return db.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_invitations_pending_unique
			 ON invitations (email, invited_by_id, invitation_type)
			 WHERE status = 'pending'`,
		).Error
	default:
		return nil
	}
}
