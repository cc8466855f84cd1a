package models

import "time"

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
)

// ClimbingSession groups the problems attempted in one visit to the wall.
type ClimbingSession struct {
	ID             string        `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string        `gorm:"index;not null" json:"external_user_id"`
	Status         SessionStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`
	Location       string        `json:"location,omitempty"`
	Notes          string        `gorm:"type:text" json:"notes,omitempty"`

	StartedAt          time.Time  `json:"started_at"`
	PausedAt           *time.Time `json:"paused_at,omitempty"`
	EndedAt            *time.Time `json:"ended_at,omitempty"`
	TotalPausedSeconds int64      `json:"total_paused_seconds" gorm:"default:0"`
	DurationSeconds    int64      `json:"duration_seconds" gorm:"default:0"`

	// XPEarned sums problem XP; BonusXP is granted once on completion
	XPEarned int64 `json:"xp_earned" gorm:"default:0"`
	BonusXP  int64 `json:"bonus_xp" gorm:"default:0"`

	Timestamps
}
