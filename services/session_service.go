package services

import (
	"context"
	"fmt"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/repository"

	"go.uber.org/zap"
)

type SessionService struct {
	Store        repository.Store
	Achievements *AchievementService
	Events       messaging.EventPublisher
	Logger       *zap.Logger
	now          func() time.Time
}

func NewSessionService(store repository.Store, achievements *AchievementService, events messaging.EventPublisher, logger *zap.Logger) *SessionService {
	return &SessionService{Store: store, Achievements: achievements, Events: events, Logger: logger, now: time.Now}
}

// StartSession opens a new active session.
func (s *SessionService) StartSession(ctx context.Context, externalUserID, location, notes string) (*models.ClimbingSession, error) {
	var session *models.ClimbingSession
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		session = &models.ClimbingSession{
			ExternalUserID: externalUserID,
			Status:         models.SessionStatusActive,
			Location:       location,
			Notes:          notes,
			StartedAt:      s.now(),
		}
		return tx.CreateSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Session started", zap.String("user_id", externalUserID), zap.String("session_id", session.ID))
	return session, nil
}

func (s *SessionService) GetSession(ctx context.Context, externalUserID, sessionID string) (*models.ClimbingSession, error) {
	return s.Store.GetSession(ctx, externalUserID, sessionID)
}

func (s *SessionService) PauseSession(ctx context.Context, externalUserID, sessionID string) (*models.ClimbingSession, error) {
	return s.transition(ctx, externalUserID, sessionID, func(session *models.ClimbingSession, now time.Time) error {
		if session.Status != models.SessionStatusActive {
			return invalidTransition(session, "pause")
		}
		session.Status = models.SessionStatusPaused
		session.PausedAt = &now
		return nil
	})
}

func (s *SessionService) ResumeSession(ctx context.Context, externalUserID, sessionID string) (*models.ClimbingSession, error) {
	return s.transition(ctx, externalUserID, sessionID, func(session *models.ClimbingSession, now time.Time) error {
		if session.Status != models.SessionStatusPaused {
			return invalidTransition(session, "resume")
		}
		accumulatePause(session, now)
		session.Status = models.SessionStatusActive
		return nil
	})
}

func (s *SessionService) transition(ctx context.Context, externalUserID, sessionID string, apply func(*models.ClimbingSession, time.Time) error) (*models.ClimbingSession, error) {
	var session *models.ClimbingSession
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		sess, err := tx.GetSession(ctx, externalUserID, sessionID)
		if err != nil {
			return err
		}
		if err := apply(sess, s.now()); err != nil {
			return err
		}
		if err := tx.SaveSession(ctx, sess); err != nil {
			return err
		}
		session = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SessionSummary is the result of CompleteSession.
type SessionSummary struct {
	Session         *models.ClimbingSession    `json:"session"`
	BonusXP         int64                      `json:"bonus_xp"`
	User            *models.UserProgress       `json:"user"`
	NewAchievements []gamification.Achievement `json:"new_achievements,omitempty"`
}

// CompleteSession closes the session and grants the session bonus once.
func (s *SessionService) CompleteSession(ctx context.Context, externalUserID, sessionID string) (*SessionSummary, error) {
	summary := &SessionSummary{}
	layerBefore := 0
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		now := s.now()
		session, err := tx.GetSession(ctx, externalUserID, sessionID)
		if err != nil {
			return err
		}
		if session.Status == models.SessionStatusCompleted {
			return invalidTransition(session, "complete")
		}
		accumulatePause(session, now)
		session.Status = models.SessionStatusCompleted
		session.EndedAt = &now
		session.DurationSeconds = max(int64(now.Sub(session.StartedAt).Seconds())-session.TotalPausedSeconds, 0)

		problems, err := tx.ListSessionProblems(ctx, session.ID)
		if err != nil {
			return err
		}
		scored := make([]gamification.SessionProblem, 0, len(problems))
		for _, p := range problems {
			scored = append(scored, gamification.SessionProblem{GradeOrdinal: p.GradeOrdinal, Completed: p.Completed, XPEarned: p.XPEarned})
		}
		session.BonusXP = int64(gamification.SessionBonus(scored, float64(session.DurationSeconds)/60))
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		change, err := awardXP(ctx, tx, s.Logger, externalUserID, session.BonusXP, SourceSession, now)
		if err != nil {
			return err
		}
		summary.Session = session
		summary.BonusXP = session.BonusXP
		summary.User = change.User
		layerBefore = change.LayerBefore
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Logger.Info("Session completed",
		zap.String("user_id", externalUserID),
		zap.String("session_id", sessionID),
		zap.Int64("duration_seconds", summary.Session.DurationSeconds),
		zap.Int64("bonus_xp", summary.BonusXP),
	)
	now := s.now()
	publish(ctx, s.Events, s.Logger, messaging.ProgressionEvent{
		Type:       messaging.EventSessionCompleted,
		UserID:     externalUserID,
		OccurredAt: now,
		Payload: map[string]any{
			"session_id":       sessionID,
			"duration_seconds": summary.Session.DurationSeconds,
			"xp_earned":        summary.Session.XPEarned,
			"bonus_xp":         summary.BonusXP,
		},
	})
	publishLayerChange(ctx, s.Events, s.Logger, summary.User, layerBefore, now)

	if s.Achievements != nil {
		unlocked, err := s.Achievements.CheckAndUnlock(ctx, externalUserID)
		if err != nil {
			s.Logger.Warn("Achievement check failed after session completion",
				zap.String("user_id", externalUserID), zap.Error(err))
		}
		summary.NewAchievements = unlocked
	}
	return summary, nil
}

// accumulatePause folds an open pause into TotalPausedSeconds.
func accumulatePause(session *models.ClimbingSession, now time.Time) {
	if session.PausedAt == nil {
		return
	}
	if paused := int64(now.Sub(*session.PausedAt).Seconds()); paused > 0 {
		session.TotalPausedSeconds += paused
	}
	session.PausedAt = nil
}

func invalidTransition(session *models.ClimbingSession, action string) error {
	if session.Status == models.SessionStatusCompleted {
		return models.NewPolicyError(models.ReasonSessionClosed, "session is completed")
	}
	return models.NewPolicyError(models.ReasonInvalidSessionTransition,
		fmt.Sprintf("cannot %s a %s session", action, session.Status))
}

func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}
