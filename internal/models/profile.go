package models

import "time"

// Profile roles. A manager is discovered rather than self-declared: the role
// flips to manager when a first team member is attached and reverts to
// employee when the last one is removed.
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
)

// Profile describes a platform user together with their assessment role.
type Profile struct {
	BaseModel

	Email        string `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string `gorm:"not null" json:"-"`
	DisplayName  string `gorm:"type:varchar(128)" json:"display_name"`

	Role     string  `gorm:"type:varchar(32);default:'employee';index" json:"role"`
	TeamName *string `gorm:"type:varchar(128)" json:"team_name,omitempty"`

	CanManageTeams bool `gorm:"default:false" json:"can_manage_teams"`
	CanBeManaged   bool `gorm:"default:true" json:"can_be_managed"`

	IsActive    bool       `gorm:"default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// IsManager reports whether the profile currently holds the manager role.
func (p *Profile) IsManager() bool {
	return p.Role == RoleManager
}
