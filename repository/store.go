package repository

import (
	"context"
	"time"

	"climb-progression-system/models"
)

// SkillTouch is one skill affected by a completed problem.
type SkillTouch struct {
	MainCategory string
	SubCategory  string
	SkillType    string
	Grade        string // V-scale token
	GradeOrdinal int
	XP           int64
}

// QuestFilter narrows GetUserQuests. Zero values match everything.
type QuestFilter struct {
	Statuses      []models.QuestStatus
	Types         []models.QuestType
	CreatedSince  time.Time
	CompletedFrom time.Time
}

// Store is the storage collaborator of the progression engine. All user-scoped writes
// that must not race (XP, completion ceilings) go through WithUserLock.
type Store interface {
	// WithUserLock runs fn with the user's row locked. The Store passed to fn is bound
	// to the same transaction.
	WithUserLock(ctx context.Context, externalUserID string, fn func(tx Store) error) error

	GetUser(ctx context.Context, externalUserID string) (*models.UserProgress, error)
	EnsureUser(ctx context.Context, externalUserID string) (*models.UserProgress, error)
	// SaveUser recomputes CurrentLayer and WhistleLevel before writing; the values on
	// the passed record are ignored.
	SaveUser(ctx context.Context, user *models.UserProgress) error
	ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error)

	GetUserSkills(ctx context.Context, externalUserID string) ([]models.Skill, error)
	// UpsertSkill ratchets MaxGrade and accumulates problem count and XP.
	UpsertSkill(ctx context.Context, externalUserID string, touch SkillTouch) (*models.Skill, error)

	CreateSession(ctx context.Context, session *models.ClimbingSession) error
	GetSession(ctx context.Context, externalUserID, sessionID string) (*models.ClimbingSession, error)
	SaveSession(ctx context.Context, session *models.ClimbingSession) error

	CreateProblem(ctx context.Context, problem *models.BoulderProblem) error
	ListSessionProblems(ctx context.Context, sessionID string) ([]models.BoulderProblem, error)
	ListUserProblems(ctx context.Context, externalUserID string) ([]models.BoulderProblem, error)

	GetUserQuests(ctx context.Context, externalUserID string, filter QuestFilter) ([]models.Quest, error)
	GetQuest(ctx context.Context, externalUserID, questID string) (*models.Quest, error)
	CreateQuest(ctx context.Context, quest *models.Quest) error
	UpdateQuest(ctx context.Context, quest *models.Quest) error
	// CountCompletedQuestsSince counts completions of every quest type.
	CountCompletedQuestsSince(ctx context.Context, externalUserID string, since time.Time) (int64, error)
	// ExpireQuests moves overdue active quests to expired. An empty user id sweeps everyone.
	ExpireQuests(ctx context.Context, externalUserID string, now time.Time) (int64, error)

	GetLayerQuest(ctx context.Context, externalUserID string, layer int) (*models.Quest, error)
	CreateLayerQuest(ctx context.Context, quest *models.Quest) error
	UpdateLayerQuest(ctx context.Context, quest *models.Quest) error

	CreateAchievement(ctx context.Context, achievement *models.UserAchievement) error
	GetUserAchievements(ctx context.Context, externalUserID string) ([]models.UserAchievement, error)

	CreateRelic(ctx context.Context, relic *models.UserRelic) error
	GetUserRelics(ctx context.Context, externalUserID string) ([]models.UserRelic, error)

	GetAggregateStats(ctx context.Context, externalUserID string) (*models.AggregateStats, error)
}

// ProfileUpdate is one profile change pulled from the profile service.
type ProfileUpdate struct {
	ExternalUserID string
	DisplayName    string
	UpdatedAt      time.Time
}

// ProfileStore mirrors display data from the profile service.
type ProfileStore interface {
	// UpsertProfiles creates missing users and refreshes display names. It returns the
	// number of rows written.
	UpsertProfiles(ctx context.Context, profiles []ProfileUpdate) (int, error)
	// LastProfileSync is the newest profile timestamp seen, zero when none.
	LastProfileSync(ctx context.Context) (time.Time, error)
}

// Pinger is implemented by stores backed by a network resource.
type Pinger interface {
	Ping(ctx context.Context) error
}

var (
	_ Store        = (*GormStore)(nil)
	_ Store        = (*MemoryStore)(nil)
	_ ProfileStore = (*GormStore)(nil)
	_ ProfileStore = (*MemoryStore)(nil)
)
