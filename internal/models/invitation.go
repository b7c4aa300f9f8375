package models

import "time"

// Invitation kinds.
const (
	// InvitationTypeManagerRequest asks the recipient to become the
	// inviter's manager.
	InvitationTypeManagerRequest = "manager_request"
	// InvitationTypeTeamJoin invites the recipient into the inviter's team.
	InvitationTypeTeamJoin = "team_join"
)

// Invitation statuses. Expiry is a read-time check; an expired invitation
// keeps the pending status in storage until someone resolves it.
const (
	InvitationStatusPending  = "pending"
	InvitationStatusAccepted = "accepted"
	InvitationStatusDeclined = "declined"
)

// Invitation is a token-bearing, time-limited offer to join a team or to
// become a manager. The raw token is never stored, only its digest.
type Invitation struct {
	BaseModel

	Email       string `gorm:"not null;index" json:"email"`
	TokenDigest string `gorm:"uniqueIndex;not null" json:"-"`
	Type        string `gorm:"column:invitation_type;type:varchar(32);not null" json:"invitation_type"`
	Status      string `gorm:"type:varchar(16);default:'pending';index" json:"status"`

	// ManagerID points at the profile that is, or will become, the team's
	// manager. For manager requests it stays null until the recipient accepts.
	ManagerID   *string `gorm:"type:uuid;index" json:"manager_id,omitempty"`
	InvitedByID string  `gorm:"type:uuid;index" json:"invited_by_id"`
	TeamID      *string `gorm:"type:uuid;index" json:"team_id,omitempty"`

	InvitedAt  time.Time  `gorm:"not null" json:"invited_at"`
	ExpiresAt  time.Time  `gorm:"index" json:"expires_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	Manager   *Profile `gorm:"foreignKey:ManagerID;constraint:OnDelete:SET NULL" json:"manager,omitempty"`
	InvitedBy *Profile `gorm:"foreignKey:InvitedByID;constraint:OnDelete:SET NULL" json:"invited_by,omitempty"`
}

// Expired reports whether the invitation is past its expiry at the given time.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// Terminal reports whether the invitation has been resolved.
func (i *Invitation) Terminal() bool {
	return i.Status != InvitationStatusPending
}
