package models

import (
	"time"
)

// UserAchievement is an unlocked catalog achievement (permanent, one per user and id).
type UserAchievement struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string    `gorm:"not null;uniqueIndex:idx_user_achievement" json:"external_user_id"`
	AchievementID  string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_achievement" json:"achievement_id"` // catalog key, e.g. "first_ascent"
	XPReward       int64     `json:"xp_reward"`
	UnlockedAt     time.Time `json:"unlocked_at" gorm:"autoCreateTime"`
}
