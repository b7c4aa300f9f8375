package models

// OceanScore holds a profile's current Big-Five trait scores on a 0..1 scale.
// One row per profile; re-assessments update in place.
type OceanScore struct {
	BaseModel

	ProfileID string `gorm:"type:uuid;uniqueIndex;not null" json:"profile_id"`

	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`

	Profile *Profile `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"profile,omitempty"`
}
