package models

// Skill tracks a user's proficiency for one (category, subcategory, type) triple,
// e.g. ("hold", "crimp", "grip") or ("wall", "overhang", "angle").
type Skill struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"not null;uniqueIndex:idx_skill_identity" json:"external_user_id"`
	MainCategory   string `gorm:"type:varchar(32);not null;uniqueIndex:idx_skill_identity" json:"main_category"`
	SubCategory    string `gorm:"type:varchar(32);not null;uniqueIndex:idx_skill_identity" json:"sub_category"`
	SkillType      string `gorm:"type:varchar(32);not null;uniqueIndex:idx_skill_identity" json:"skill_type"`

	// MaxGrade only ever moves up
	MaxGrade        string `json:"max_grade" gorm:"type:varchar(8)"`
	MaxGradeOrdinal int    `json:"max_grade_ordinal" gorm:"default:-1"`
	TotalProblems   int64  `json:"total_problems" gorm:"default:0"`
	XP              int64  `json:"xp" gorm:"default:0"`
	Level           int    `json:"level" gorm:"default:1"`

	Timestamps
}
