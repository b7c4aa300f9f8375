package models

// KeyInsight is one AI-derived observation about a profile, grouped by
// category (strengths, growth areas, communication style, and so on).
type KeyInsight struct {
	BaseModel

	ProfileID  string  `gorm:"type:uuid;not null;index" json:"profile_id"`
	Category   string  `gorm:"type:varchar(64);not null;index" json:"category"`
	Content    string  `gorm:"type:text;not null" json:"content"`
	Confidence float64 `gorm:"default:0" json:"confidence"`

	Profile *Profile `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}
