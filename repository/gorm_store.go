package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"climb-progression-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore persists progression state in Postgres.
type GormStore struct {
	db   *gorm.DB
	inTx bool
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// AutoMigrate creates or updates every progression table.
func (s *GormStore) AutoMigrate() error {
	return s.db.AutoMigrate(
		&models.UserProgress{},
		&models.Skill{},
		&models.ClimbingSession{},
		&models.BoulderProblem{},
		&models.Quest{},
		&models.UserAchievement{},
		&models.UserRelic{},
	)
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) WithUserLock(ctx context.Context, externalUserID string, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if _, err := s.EnsureUser(ctx, externalUserID); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked models.UserProgress
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_user_id = ?", externalUserID).
			First(&locked).Error; err != nil {
			return fmt.Errorf("lock user %s: %w", externalUserID, err)
		}
		return fn(&GormStore{db: tx, inTx: true})
	})
}

func (s *GormStore) GetUser(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	var user models.UserProgress
	err := s.db.WithContext(ctx).Where("external_user_id = ?", externalUserID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// EnsureUser creates the progression row on first sight (idempotent).
func (s *GormStore) EnsureUser(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	user, err := s.GetUser(ctx, externalUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		return nil, err
	}
	fresh := models.UserProgress{
		ID:                   uuid.NewString(),
		ExternalUserID:       externalUserID,
		PreferredGradeSystem: "vscale",
		CurrentLayer:         1,
	}
	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "external_user_id"}}, DoNothing: true}).
		Create(&fresh).Error; err != nil {
		return nil, err
	}
	return s.GetUser(ctx, externalUserID)
}

func (s *GormStore) SaveUser(ctx context.Context, user *models.UserProgress) error {
	db := s.db.WithContext(ctx)

	var maxOrdinal struct{ Max int }
	if err := db.Model(&models.Skill{}).
		Select("COALESCE(MAX(max_grade_ordinal), -1) AS max").
		Where("external_user_id = ?", user.ExternalUserID).
		Scan(&maxOrdinal).Error; err != nil {
		return err
	}

	var layerQuests []models.Quest
	if err := db.Where("external_user_id = ? AND quest_type = ? AND status = ?",
		user.ExternalUserID, models.QuestTypeLayer, models.QuestStatusCompleted).
		Find(&layerQuests).Error; err != nil {
		return err
	}

	applyDerived(user, maxOrdinal.Max, completedLayerSet(layerQuests), time.Now())
	return db.Save(user).Error
}

func (s *GormStore) ListActiveUserIDs(ctx context.Context, since time.Time) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&models.UserProgress{}).
		Where("last_active_at >= ?", since).
		Pluck("external_user_id", &ids).Error
	return ids, err
}

func (s *GormStore) GetUserSkills(ctx context.Context, externalUserID string) ([]models.Skill, error) {
	var skills []models.Skill
	err := s.db.WithContext(ctx).
		Where("external_user_id = ?", externalUserID).
		Order("main_category, sub_category").
		Find(&skills).Error
	return skills, err
}

func (s *GormStore) UpsertSkill(ctx context.Context, externalUserID string, touch SkillTouch) (*models.Skill, error) {
	db := s.db.WithContext(ctx)
	var skill models.Skill
	err := db.Where("external_user_id = ? AND main_category = ? AND sub_category = ? AND skill_type = ?",
		externalUserID, touch.MainCategory, touch.SubCategory, touch.SkillType).
		First(&skill).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		skill = models.Skill{
			ID:              uuid.NewString(),
			ExternalUserID:  externalUserID,
			MainCategory:    touch.MainCategory,
			SubCategory:     touch.SubCategory,
			SkillType:       touch.SkillType,
			MaxGradeOrdinal: -1,
		}
	} else if err != nil {
		return nil, err
	}

	ratchetSkill(&skill, touch)
	if err := db.Save(&skill).Error; err != nil {
		return nil, err
	}
	return &skill, nil
}

func (s *GormStore) CreateSession(ctx context.Context, session *models.ClimbingSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *GormStore) GetSession(ctx context.Context, externalUserID, sessionID string) (*models.ClimbingSession, error) {
	var session models.ClimbingSession
	err := s.db.WithContext(ctx).
		Where("id = ? AND external_user_id = ?", sessionID, externalUserID).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) SaveSession(ctx context.Context, session *models.ClimbingSession) error {
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *GormStore) CreateProblem(ctx context.Context, problem *models.BoulderProblem) error {
	if problem.ID == "" {
		problem.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(problem).Error
}

func (s *GormStore) ListSessionProblems(ctx context.Context, sessionID string) ([]models.BoulderProblem, error) {
	var problems []models.BoulderProblem
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&problems).Error
	return problems, err
}

func (s *GormStore) ListUserProblems(ctx context.Context, externalUserID string) ([]models.BoulderProblem, error) {
	var problems []models.BoulderProblem
	err := s.db.WithContext(ctx).Where("external_user_id = ?", externalUserID).Order("created_at ASC").Find(&problems).Error
	return problems, err
}

func (s *GormStore) GetUserQuests(ctx context.Context, externalUserID string, filter QuestFilter) ([]models.Quest, error) {
	q := s.db.WithContext(ctx).Where("external_user_id = ?", externalUserID)
	if len(filter.Statuses) > 0 {
		q = q.Where("status IN ?", filter.Statuses)
	}
	if len(filter.Types) > 0 {
		q = q.Where("quest_type IN ?", filter.Types)
	}
	if !filter.CreatedSince.IsZero() {
		q = q.Where("created_at >= ?", filter.CreatedSince)
	}
	if !filter.CompletedFrom.IsZero() {
		q = q.Where("completed_at >= ?", filter.CompletedFrom)
	}
	var quests []models.Quest
	err := q.Order("created_at DESC").Find(&quests).Error
	return quests, err
}

func (s *GormStore) GetQuest(ctx context.Context, externalUserID, questID string) (*models.Quest, error) {
	var quest models.Quest
	err := s.db.WithContext(ctx).
		Where("id = ? AND external_user_id = ?", questID, externalUserID).
		First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrQuestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

func (s *GormStore) CreateQuest(ctx context.Context, quest *models.Quest) error {
	if quest.ID == "" {
		quest.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(quest).Error)
}

func (s *GormStore) UpdateQuest(ctx context.Context, quest *models.Quest) error {
	return s.db.WithContext(ctx).Save(quest).Error
}

func (s *GormStore) CountCompletedQuestsSince(ctx context.Context, externalUserID string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Quest{}).
		Where("external_user_id = ? AND status = ? AND completed_at >= ?", externalUserID, models.QuestStatusCompleted, since).
		Count(&count).Error
	return count, err
}

func (s *GormStore) ExpireQuests(ctx context.Context, externalUserID string, now time.Time) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Quest{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.QuestStatusActive, now)
	if externalUserID != "" {
		q = q.Where("external_user_id = ?", externalUserID)
	}
	res := q.Update("status", models.QuestStatusExpired)
	return res.RowsAffected, res.Error
}

func (s *GormStore) GetLayerQuest(ctx context.Context, externalUserID string, layer int) (*models.Quest, error) {
	var quest models.Quest
	err := s.db.WithContext(ctx).
		Where("external_user_id = ? AND quest_type = ? AND layer = ?", externalUserID, models.QuestTypeLayer, layer).
		First(&quest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, models.ErrQuestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &quest, nil
}

func (s *GormStore) CreateLayerQuest(ctx context.Context, quest *models.Quest) error {
	quest.QuestType = models.QuestTypeLayer
	quest.ExpiresAt = nil
	return s.CreateQuest(ctx, quest)
}

func (s *GormStore) UpdateLayerQuest(ctx context.Context, quest *models.Quest) error {
	if quest.QuestType != models.QuestTypeLayer {
		return fmt.Errorf("%w: quest %s is not a layer quest", models.ErrInvalidInput, quest.ID)
	}
	return s.UpdateQuest(ctx, quest)
}

func (s *GormStore) CreateAchievement(ctx context.Context, achievement *models.UserAchievement) error {
	if achievement.ID == "" {
		achievement.ID = uuid.NewString()
	}
	return translate(s.db.WithContext(ctx).Create(achievement).Error)
}

func (s *GormStore) GetUserAchievements(ctx context.Context, externalUserID string) ([]models.UserAchievement, error) {
	var out []models.UserAchievement
	err := s.db.WithContext(ctx).Where("external_user_id = ?", externalUserID).Order("unlocked_at ASC").Find(&out).Error
	return out, err
}

func (s *GormStore) CreateRelic(ctx context.Context, relic *models.UserRelic) error {
	if relic.ID == "" {
		relic.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(relic).Error
}

func (s *GormStore) GetUserRelics(ctx context.Context, externalUserID string) ([]models.UserRelic, error) {
	var out []models.UserRelic
	err := s.db.WithContext(ctx).Where("external_user_id = ?", externalUserID).Order("found_at DESC").Find(&out).Error
	return out, err
}

func (s *GormStore) GetAggregateStats(ctx context.Context, externalUserID string) (*models.AggregateStats, error) {
	db := s.db.WithContext(ctx)
	stats := &models.AggregateStats{}

	var sessions struct {
		Total     int64
		Completed int64
		Seconds   int64
	}
	if err := db.Model(&models.ClimbingSession{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE status = ?) AS completed, COALESCE(SUM(duration_seconds) FILTER (WHERE status = ?), 0) AS seconds",
			models.SessionStatusCompleted, models.SessionStatusCompleted).
		Where("external_user_id = ?", externalUserID).
		Scan(&sessions).Error; err != nil {
		return nil, err
	}
	stats.TotalSessions = sessions.Total
	stats.CompletedSessions = sessions.Completed
	stats.TotalClimbSeconds = sessions.Seconds

	var problems struct {
		Total     int64
		Completed int64
		Flashed   int64
		Highest   int
	}
	if err := db.Model(&models.BoulderProblem{}).
		Select(`COUNT(*) AS total,
			COUNT(*) FILTER (WHERE completed) AS completed,
			COUNT(*) FILTER (WHERE completed AND attempts <= 1) AS flashed,
			COALESCE(MAX(grade_ordinal) FILTER (WHERE completed), -1) AS highest`).
		Where("external_user_id = ?", externalUserID).
		Scan(&problems).Error; err != nil {
		return nil, err
	}
	stats.TotalProblems = problems.Total
	stats.CompletedProblems = problems.Completed
	stats.FlashedProblems = problems.Flashed
	stats.HighestGradeOrdinal = problems.Highest

	if err := db.Model(&models.Quest{}).
		Where("external_user_id = ? AND status = ?", externalUserID, models.QuestStatusCompleted).
		Count(&stats.CompletedQuests).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.UserRelic{}).
		Where("external_user_id = ?", externalUserID).
		Count(&stats.RelicsFound).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.UserAchievement{}).
		Where("external_user_id = ?", externalUserID).
		Count(&stats.AchievementsUnlocked).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// UpsertProfiles inserts unknown users and refreshes the mirrored profile columns.
func (s *GormStore) UpsertProfiles(ctx context.Context, profiles []ProfileUpdate) (int, error) {
	written := 0
	for _, p := range profiles {
		if p.ExternalUserID == "" {
			continue
		}
		updatedAt := p.UpdatedAt
		row := models.UserProgress{
			ID:                   uuid.NewString(),
			ExternalUserID:       p.ExternalUserID,
			DisplayName:          p.DisplayName,
			PreferredGradeSystem: "vscale",
			CurrentLayer:         1,
			ProfileUpdatedAt:     &updatedAt,
		}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"display_name", "profile_updated_at", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return written, fmt.Errorf("upsert profile %s: %w", p.ExternalUserID, err)
		}
		written++
	}
	return written, nil
}

func (s *GormStore) LastProfileSync(ctx context.Context) (time.Time, error) {
	var row struct{ Last sql.NullTime }
	if err := s.db.WithContext(ctx).Model(&models.UserProgress{}).
		Select("MAX(profile_updated_at) AS last").
		Scan(&row).Error; err != nil {
		return time.Time{}, err
	}
	if !row.Last.Valid {
		return time.Time{}, nil
	}
	return row.Last.Time, nil
}

// translate maps driver conflicts onto models.ErrAlreadyExists. Requires the gorm
// connection to be opened with TranslateError.
func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", models.ErrAlreadyExists, err)
	}
	return err
}
