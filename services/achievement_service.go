package services

import (
	"context"
	"errors"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/repository"

	"go.uber.org/zap"
)

type AchievementService struct {
	Store   repository.Store
	Catalog *gamification.AchievementCatalog
	Events  messaging.EventPublisher
	Logger  *zap.Logger
	now     func() time.Time
}

func NewAchievementService(store repository.Store, catalog *gamification.AchievementCatalog, events messaging.EventPublisher, logger *zap.Logger) *AchievementService {
	return &AchievementService{Store: store, Catalog: catalog, Events: events, Logger: logger, now: time.Now}
}

// CheckAndUnlock unlocks every achievement whose condition now holds and awards its XP.
// Calling it again without new progress unlocks nothing.
func (s *AchievementService) CheckAndUnlock(ctx context.Context, externalUserID string) ([]gamification.Achievement, error) {
	var unlocked []gamification.Achievement
	var user *models.UserProgress
	layerBefore := 0
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		u, err := tx.GetUser(ctx, externalUserID)
		if err != nil {
			return err
		}
		layerBefore = u.CurrentLayer
		unlocked, user, err = s.checkAndUnlockTx(ctx, tx, externalUserID)
		return err
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	for _, a := range unlocked {
		achievementsUnlocked.WithLabelValues(a.ID).Inc()
		publish(ctx, s.Events, s.Logger, messaging.ProgressionEvent{
			Type:       messaging.EventAchievementUnlocked,
			UserID:     externalUserID,
			OccurredAt: now,
			Payload: map[string]any{
				"achievement_id": a.ID,
				"name":           a.Name,
				"xp_reward":      a.XPReward,
			},
		})
	}
	publishLayerChange(ctx, s.Events, s.Logger, user, layerBefore, now)
	return unlocked, nil
}

// checkAndUnlockTx runs evaluation passes until nothing new unlocks, since an unlock's XP
// can satisfy another condition.
func (s *AchievementService) checkAndUnlockTx(ctx context.Context, tx repository.Store, externalUserID string) ([]gamification.Achievement, *models.UserProgress, error) {
	existing, err := tx.GetUserAchievements(ctx, externalUserID)
	if err != nil {
		return nil, nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, a := range existing {
		have[a.AchievementID] = true
	}

	var unlocked []gamification.Achievement
	var user *models.UserProgress
	for pass := 0; pass < len(s.Catalog.All()); pass++ {
		user, err = tx.GetUser(ctx, externalUserID)
		if err != nil {
			return nil, nil, err
		}
		stats, err := tx.GetAggregateStats(ctx, externalUserID)
		if err != nil {
			return nil, nil, err
		}
		candidates := s.Catalog.Evaluate(user, stats, have)
		if len(candidates) == 0 {
			break
		}
		for _, a := range candidates {
			have[a.ID] = true
			now := s.now()
			record := &models.UserAchievement{
				ExternalUserID: externalUserID,
				AchievementID:  a.ID,
				XPReward:       a.XPReward,
				UnlockedAt:     now,
			}
			if err := tx.CreateAchievement(ctx, record); err != nil {
				if errors.Is(err, models.ErrAlreadyExists) {
					continue
				}
				return nil, nil, err
			}
			change, err := awardXP(ctx, tx, s.Logger, externalUserID, a.XPReward, SourceAchievement, now)
			if err != nil {
				return nil, nil, err
			}
			user = change.User
			unlocked = append(unlocked, a)
			s.Logger.Info("Achievement unlocked",
				zap.String("user_id", externalUserID),
				zap.String("achievement_id", a.ID),
				zap.Int64("xp_reward", a.XPReward),
			)
		}
	}
	return unlocked, user, nil
}

// AchievementView is a catalog entry with the user's unlock state.
type AchievementView struct {
	gamification.Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

func (s *AchievementService) ListAchievements(ctx context.Context, externalUserID string) ([]AchievementView, error) {
	records, err := s.Store.GetUserAchievements(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	unlockedAt := make(map[string]time.Time, len(records))
	for _, r := range records {
		unlockedAt[r.AchievementID] = r.UnlockedAt
	}

	all := s.Catalog.All()
	views := make([]AchievementView, 0, len(all))
	for _, a := range all {
		view := AchievementView{Achievement: a}
		if at, ok := unlockedAt[a.ID]; ok {
			view.Unlocked = true
			view.UnlockedAt = &at
		}
		views = append(views, view)
	}
	return views, nil
}

// WithClock replaces the clock; used by tests and replays.
func (s *AchievementService) WithClock(now func() time.Time) *AchievementService {
	s.now = now
	return s
}
