package models

import (
	"time"

	"gorm.io/gorm"
)

// UserProgress is the climber's progression record. CurrentLayer and WhistleLevel are
// derived values: the store recomputes them on every save.
type UserProgress struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"uniqueIndex;not null" json:"external_user_id"` // links to profile service

	DisplayName          string `json:"display_name"`
	PreferredGradeSystem string `json:"preferred_grade_system" gorm:"type:varchar(16);default:'vscale'"`

	// Core progression
	TotalXP      int64 `json:"total_xp" gorm:"default:0"`
	CurrentLayer int   `json:"current_layer" gorm:"default:1"`  // 1 (Edge of the Abyss) .. 7 (Final Maelstrom)
	WhistleLevel int   `json:"whistle_level" gorm:"default:0"` // Bell(0) → Red → Blue → Moon → Black → White(5)

	// Milestones
	LastLayerUpAt *time.Time `json:"last_layer_up_at,omitempty"`
	LastActiveAt  *time.Time `json:"last_active_at,omitempty" gorm:"index"`

	// Profile mirror, written by the profile sync worker
	ProfileUpdatedAt *time.Time `json:"profile_updated_at,omitempty"`

	Timestamps
}

// Timestamps adds GORM auto-times
type Timestamps struct {
	CreatedAt time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// AggregateStats is computed on demand from a user's history. Never persisted.
type AggregateStats struct {
	TotalSessions        int64 `json:"total_sessions"`
	CompletedSessions    int64 `json:"completed_sessions"`
	TotalProblems        int64 `json:"total_problems"`
	CompletedProblems    int64 `json:"completed_problems"`
	FlashedProblems      int64 `json:"flashed_problems"`
	HighestGradeOrdinal  int   `json:"highest_grade_ordinal"` // -1 when nothing has been completed
	CompletedQuests      int64 `json:"completed_quests"`
	RelicsFound          int64 `json:"relics_found"`
	AchievementsUnlocked int64 `json:"achievements_unlocked"`
	TotalClimbSeconds    int64 `json:"total_climb_seconds"`
}
