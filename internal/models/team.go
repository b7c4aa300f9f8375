package models

// Team associates one manager profile with its members through TeamMember
// rows. Capacity of 0 means the server default applies.
type Team struct {
	BaseModel

	ManagerID string `gorm:"type:uuid;uniqueIndex;not null" json:"manager_id"`
	Name      string `gorm:"type:varchar(128);not null" json:"name"`
	Capacity  int    `gorm:"default:0" json:"capacity"`

	Manager *Profile     `gorm:"foreignKey:ManagerID" json:"manager,omitempty"`
	Members []TeamMember `gorm:"foreignKey:TeamID" json:"members,omitempty"`
}

// TeamMember is one normalized membership row. It replaces the legacy
// fixed-slot layout (employee_1..employee_10 columns on the team row); the
// capacity limit is enforced with a transactional count, not column scanning.
type TeamMember struct {
	BaseModel

	TeamID   string `gorm:"type:uuid;not null;uniqueIndex:idx_team_members_pair;index" json:"team_id"`
	MemberID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_members_pair;index" json:"member_id"`

	Team   *Team    `gorm:"foreignKey:TeamID;constraint:OnDelete:CASCADE" json:"team,omitempty"`
	Member *Profile `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE" json:"member,omitempty"`
}
