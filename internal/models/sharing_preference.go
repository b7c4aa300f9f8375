package models

// SharingPreference stores the per-category visibility switches one employee
// grants one manager. Only the employee may mutate the row; manager-facing
// read paths filter by these flags server-side.
type SharingPreference struct {
	BaseModel

	EmployeeID string `gorm:"type:uuid;not null;uniqueIndex:idx_sharing_pair" json:"employee_id"`
	ManagerID  string `gorm:"type:uuid;not null;uniqueIndex:idx_sharing_pair" json:"manager_id"`

	ShareProfile       bool `json:"share_profile"`
	ShareInsights      bool `json:"share_insights"`
	ShareConversations bool `json:"share_conversations"`
	ShareOcean         bool `json:"share_ocean"`
	ShareProgress      bool `json:"share_progress"`

	Employee *Profile `gorm:"foreignKey:EmployeeID;constraint:OnDelete:CASCADE" json:"employee,omitempty"`
	Manager  *Profile `gorm:"foreignKey:ManagerID;constraint:OnDelete:CASCADE" json:"manager,omitempty"`
}
