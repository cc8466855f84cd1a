package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestType string

const (
	QuestTypeDaily  QuestType = "daily"
	QuestTypeWeekly QuestType = "weekly"
	QuestTypeLayer  QuestType = "layer"
)

type QuestStatus string

const (
	QuestStatusActive    QuestStatus = "active"
	QuestStatusCompleted QuestStatus = "completed"
	QuestStatusDiscarded QuestStatus = "discarded"
	QuestStatusExpired   QuestStatus = "expired"
)

// QuestSource records where a quest's text came from.
type QuestSource string

const (
	QuestSourceCatalog  QuestSource = "catalog"
	QuestSourceAI       QuestSource = "ai"
	QuestSourceFallback QuestSource = "fallback"
	QuestSourceLayer    QuestSource = "layer"
)

// Quest covers daily, weekly and layer quests. Layer quests have no expiry and are unique
// per (user, layer); they gate layer advancement.
type Quest struct {
	ID             string      `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string      `gorm:"not null;index;uniqueIndex:idx_layer_quest,where:quest_type = 'layer'" json:"external_user_id"`
	QuestType      QuestType   `gorm:"type:varchar(16);not null;index;uniqueIndex:idx_layer_quest,where:quest_type = 'layer'" json:"quest_type"`
	Layer          int         `gorm:"default:0;uniqueIndex:idx_layer_quest,where:quest_type = 'layer'" json:"layer,omitempty"`
	Status         QuestStatus `gorm:"type:varchar(16);default:'active';index" json:"status"`
	Source         QuestSource `gorm:"type:varchar(16);default:'catalog'" json:"source"`

	Theme       string `gorm:"type:varchar(32)" json:"theme,omitempty"`
	TemplateKey string `gorm:"type:varchar(128);index" json:"template_key"` // slug, used for de-duplication
	Title       string `gorm:"not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`

	Progress    int   `json:"progress" gorm:"default:0"`
	MaxProgress int   `json:"max_progress" gorm:"default:1"`
	XPReward    int64 `json:"xp_reward" gorm:"default:0"`

	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"index"`

	Metadata datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"` // e.g. {"tips": [...], "model": "gpt-4o-mini"}

	Timestamps
}

// IsOverdue reports an active quest whose expiry has passed but has not been swept yet.
func (q Quest) IsOverdue(now time.Time) bool {
	return q.Status == QuestStatusActive && q.ExpiresAt != nil && q.ExpiresAt.Before(now)
}
