package models

import (
	"time"
)

// Rarity of a relic, rarest last.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// UserRelic is a found relic. Immutable once created.
type UserRelic struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	ExternalUserID string    `gorm:"index;not null" json:"external_user_id"`
	RelicID        string    `gorm:"type:varchar(64);not null" json:"relic_id"`
	Name           string    `gorm:"not null" json:"name"`
	Rarity         Rarity    `gorm:"type:varchar(16);not null" json:"rarity"`
	SessionID      string    `gorm:"index" json:"session_id"`
	ProblemID      string    `json:"problem_id"`
	FoundAt        time.Time `json:"found_at" gorm:"autoCreateTime"`
}
