package models

import "gorm.io/datatypes"

// Conversation stores one completed assessment conversation for a profile.
// Messages keep the raw exchange as JSON; the summary is what dashboards show.
type Conversation struct {
	BaseModel

	ProfileID       string         `gorm:"type:uuid;not null;index" json:"profile_id"`
	Title           string         `gorm:"type:varchar(255)" json:"title"`
	Summary         string         `gorm:"type:text" json:"summary"`
	Messages        datatypes.JSON `json:"messages,omitempty"`
	DurationSeconds int            `gorm:"default:0" json:"duration_seconds"`

	Profile *Profile `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}
