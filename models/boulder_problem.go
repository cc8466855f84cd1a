package models

// BoulderProblem records one problem attempted during a session. Grade is stored exactly
// as the climber entered it; GradeOrdinal is its V-scale position.
type BoulderProblem struct {
	ID             string `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string `gorm:"index;not null" json:"external_user_id"`
	SessionID      string `gorm:"index;not null" json:"session_id"`

	Grade        string `gorm:"type:varchar(8);not null" json:"grade"`
	GradeSystem  string `gorm:"type:varchar(16);not null" json:"grade_system"`
	GradeOrdinal int    `json:"grade_ordinal"`

	Style     string `gorm:"type:varchar(32)" json:"style,omitempty"`      // technical, power, balance, ...
	HoldType  string `gorm:"type:varchar(32)" json:"hold_type,omitempty"`  // crimp, sloper, pinch, jug, ...
	WallAngle string `gorm:"type:varchar(32)" json:"wall_angle,omitempty"` // slab, vertical, overhang, roof

	Completed bool `json:"completed" gorm:"default:false"`
	Attempts  int  `json:"attempts" gorm:"default:1"`

	// XP awarded (frozen at creation)
	XPEarned int64 `json:"xp_earned" gorm:"default:0"`

	Timestamps
}

// Flashed reports a first-try send.
func (p BoulderProblem) Flashed() bool {
	return p.Completed && p.Attempts <= 1
}
