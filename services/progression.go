package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/repository"

	"go.uber.org/zap"
)

// XP sources, used as metric labels and log reasons.
const (
	SourceProblem     = "problem"
	SourceSession     = "session_bonus"
	SourceQuest       = "quest"
	SourceAchievement = "achievement"
)

// dayStart is the UTC midnight the daily completion ceiling resets at.
func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// xpChange describes an XP award applied through the single user upsert path.
type xpChange struct {
	User          *models.UserProgress
	LayerBefore   int
	WhistleBefore int
}

// awardXP adds xp to the user inside an already locked store. SaveUser recomputes the
// derived layer and whistle.
func awardXP(ctx context.Context, tx repository.Store, logger *zap.Logger, externalUserID string, xp int64, reason string, now time.Time) (*xpChange, error) {
	if xp < 0 {
		return nil, fmt.Errorf("%w: negative xp award", models.ErrInvalidInput)
	}
	user, err := tx.GetUser(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	change := &xpChange{LayerBefore: user.CurrentLayer, WhistleBefore: user.WhistleLevel}
	user.TotalXP += xp
	user.LastActiveAt = &now
	if err := tx.SaveUser(ctx, user); err != nil {
		return nil, fmt.Errorf("save user %s: %w", externalUserID, err)
	}
	change.User = user

	if xp > 0 {
		xpAwarded.WithLabelValues(reason).Add(float64(xp))
	}
	if user.CurrentLayer > change.LayerBefore {
		layerAdvances.Inc()
	}
	logger.Info("XP awarded",
		zap.String("user_id", externalUserID),
		zap.Int64("xp", xp),
		zap.Int64("total_xp", user.TotalXP),
		zap.Int("layer", user.CurrentLayer),
		zap.Int("whistle", user.WhistleLevel),
		zap.String("reason", reason),
	)
	return change, nil
}

// ProgressionService owns the user's layer and whistle state.
type ProgressionService struct {
	Store  repository.Store
	Events messaging.EventPublisher
	Logger *zap.Logger
	now    func() time.Time
}

func NewProgressionService(store repository.Store, events messaging.EventPublisher, logger *zap.Logger) *ProgressionService {
	return &ProgressionService{Store: store, Events: events, Logger: logger, now: time.Now}
}

// EnsureProgressRecord ensures a UserProgress row exists (idempotent)
func (s *ProgressionService) EnsureProgressRecord(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	return s.Store.EnsureUser(ctx, externalUserID)
}

// AwardXP atomically adds XP and returns the updated progress.
func (s *ProgressionService) AwardXP(ctx context.Context, externalUserID string, xp int64, reason string) (*models.UserProgress, error) {
	var updated *models.UserProgress
	var layerBefore int
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		change, err := awardXP(ctx, tx, s.Logger, externalUserID, xp, reason, s.now())
		if err != nil {
			return err
		}
		updated, layerBefore = change.User, change.LayerBefore
		return nil
	})
	if err != nil {
		return nil, err
	}
	publishLayerChange(ctx, s.Events, s.Logger, updated, layerBefore, s.now())
	return updated, nil
}

// GrantXP is the admin variant of AwardXP. It refuses users that have no progress yet
// instead of creating them.
func (s *ProgressionService) GrantXP(ctx context.Context, externalUserID string, xp int64, reason string) (*models.UserProgress, error) {
	if _, err := s.Store.GetUser(ctx, externalUserID); err != nil {
		return nil, err
	}
	return s.AwardXP(ctx, externalUserID, xp, reason)
}

// LayerAdvance is the result of AdvanceLayer.
type LayerAdvance struct {
	Advanced      bool `json:"advanced"`
	PreviousLayer int  `json:"previous_layer"`
	NewLayer      int  `json:"new_layer"`
}

// AdvanceLayer re-derives the layer. When either gate is closed it is a no-op.
func (s *ProgressionService) AdvanceLayer(ctx context.Context, externalUserID string) (*LayerAdvance, error) {
	result := &LayerAdvance{}
	var user *models.UserProgress
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		u, err := tx.GetUser(ctx, externalUserID)
		if err != nil {
			return err
		}
		result.PreviousLayer = u.CurrentLayer
		if u.CurrentLayer < gamification.MaxLayer {
			if _, err := refreshLayerQuest(ctx, tx, externalUserID, u.CurrentLayer, s.now()); err != nil {
				return err
			}
		}
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		user = u
		result.NewLayer = u.CurrentLayer
		result.Advanced = u.CurrentLayer > result.PreviousLayer
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Advanced {
		layerAdvances.Inc()
		publishLayerChange(ctx, s.Events, s.Logger, user, result.PreviousLayer, s.now())
	}
	return result, nil
}

// LayerSnapshot is the read model behind GET /user/progress.
type LayerSnapshot struct {
	UserID               string                     `json:"user_id"`
	DisplayName          string                     `json:"display_name,omitempty"`
	TotalXP              int64                      `json:"total_xp"`
	CurrentLayer         int                        `json:"current_layer"`
	LayerName            string                     `json:"layer_name"`
	WhistleLevel         int                        `json:"whistle_level"`
	WhistleName          string                     `json:"whistle_name"`
	XPProgress           gamification.LayerProgress `json:"xp_progress"`
	NextLayerThreshold   int64                      `json:"next_layer_threshold"`
	XPGateMet            bool                       `json:"xp_gate_met"`
	QuestGateMet         bool                       `json:"quest_gate_met"`
	LayerQuest           *models.Quest              `json:"layer_quest,omitempty"`
	PreferredGradeSystem string                     `json:"preferred_grade_system"`
}

// GetLayerProgress builds the snapshot, lazily creating and refreshing the current
// layer's quest.
func (s *ProgressionService) GetLayerProgress(ctx context.Context, externalUserID string) (*LayerSnapshot, error) {
	var snap *LayerSnapshot
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		u, err := tx.GetUser(ctx, externalUserID)
		if err != nil {
			return err
		}
		snap = &LayerSnapshot{
			UserID:               u.ExternalUserID,
			DisplayName:          u.DisplayName,
			TotalXP:              u.TotalXP,
			CurrentLayer:         u.CurrentLayer,
			LayerName:            gamification.LayerName(u.CurrentLayer),
			WhistleLevel:         u.WhistleLevel,
			WhistleName:          gamification.WhistleName(u.WhistleLevel),
			XPProgress:           gamification.LayerProgressInfo(u.TotalXP),
			PreferredGradeSystem: u.PreferredGradeSystem,
		}
		if u.CurrentLayer >= gamification.MaxLayer {
			snap.XPGateMet, snap.QuestGateMet = true, true
			return nil
		}
		quest, err := refreshLayerQuest(ctx, tx, externalUserID, u.CurrentLayer, s.now())
		if err != nil {
			return err
		}
		snap.LayerQuest = quest
		snap.NextLayerThreshold = gamification.LayerThreshold(u.CurrentLayer + 1)
		snap.XPGateMet = u.TotalXP >= snap.NextLayerThreshold
		snap.QuestGateMet = quest.Status == models.QuestStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ResetProgress is the admin path that lowers XP. Layer and whistle are re-derived
// from the zeroed XP, completed layer quests and skills like any other save.
func (s *ProgressionService) ResetProgress(ctx context.Context, externalUserID string) (*models.UserProgress, error) {
	// WithUserLock would create an unknown user
	if _, err := s.Store.GetUser(ctx, externalUserID); err != nil {
		return nil, err
	}
	var user *models.UserProgress
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		u, err := tx.GetUser(ctx, externalUserID)
		if err != nil {
			return err
		}
		u.TotalXP = 0
		if err := tx.SaveUser(ctx, u); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Warn("Progress reset", zap.String("user_id", externalUserID))
	return user, nil
}

// publishLayerChange emits a layer_advanced event when the layer moved up.
func publishLayerChange(ctx context.Context, events messaging.EventPublisher, logger *zap.Logger, user *models.UserProgress, before int, now time.Time) {
	if events == nil || user == nil || user.CurrentLayer <= before {
		return
	}
	publish(ctx, events, logger, messaging.ProgressionEvent{
		Type:       messaging.EventLayerAdvanced,
		UserID:     user.ExternalUserID,
		OccurredAt: now,
		Payload: map[string]any{
			"previous_layer": before,
			"new_layer":      user.CurrentLayer,
			"layer_name":     gamification.LayerName(user.CurrentLayer),
		},
	})
}

// publish is best-effort; failures are logged only.
func publish(ctx context.Context, events messaging.EventPublisher, logger *zap.Logger, event messaging.ProgressionEvent) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish progression event",
			zap.String("type", event.Type),
			zap.String("user_id", event.UserID),
			zap.Error(err),
		)
	}
}

// isNotFound reports store not-found errors of any kind.
func isNotFound(err error) bool {
	return errors.Is(err, models.ErrNotFound)
}

// WithClock replaces the clock; used by tests and replays.
func (s *ProgressionService) WithClock(now func() time.Time) *ProgressionService {
	s.now = now
	return s
}
