package services

import (
	"context"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/repository"

	"go.uber.org/zap"
)

type RelicService struct {
	Store   repository.Store
	Catalog *gamification.RelicCatalog
	RNG     gamification.Random
	Events  messaging.EventPublisher
	Logger  *zap.Logger
	now     func() time.Time
}

func NewRelicService(store repository.Store, catalog *gamification.RelicCatalog, rng gamification.Random, events messaging.EventPublisher, logger *zap.Logger) *RelicService {
	if rng == nil {
		rng = DefaultRandom
	}
	return &RelicService{Store: store, Catalog: catalog, RNG: rng, Events: events, Logger: logger, now: time.Now}
}

// RollForProblem draws once for a completed problem. A nil result means no drop.
func (s *RelicService) RollForProblem(ctx context.Context, user *models.UserProgress, problem *models.BoulderProblem) (*models.UserRelic, error) {
	if problem == nil || !problem.Completed {
		return nil, nil
	}
	relic, ok := s.Catalog.Roll(s.RNG, user.CurrentLayer, problem.GradeOrdinal)
	if !ok {
		return nil, nil
	}

	found := &models.UserRelic{
		ExternalUserID: user.ExternalUserID,
		RelicID:        relic.ID,
		Name:           relic.Name,
		Rarity:         relic.Rarity,
		SessionID:      problem.SessionID,
		ProblemID:      problem.ID,
		FoundAt:        s.now(),
	}
	if err := s.Store.CreateRelic(ctx, found); err != nil {
		return nil, err
	}

	relicsFound.WithLabelValues(string(relic.Rarity)).Inc()
	s.Logger.Info("Relic found",
		zap.String("user_id", user.ExternalUserID),
		zap.String("relic_id", relic.ID),
		zap.String("rarity", string(relic.Rarity)),
	)
	publish(ctx, s.Events, s.Logger, messaging.ProgressionEvent{
		Type:       messaging.EventRelicFound,
		UserID:     user.ExternalUserID,
		OccurredAt: found.FoundAt,
		Payload: map[string]any{
			"relic_id":   relic.ID,
			"name":       relic.Name,
			"rarity":     relic.Rarity,
			"problem_id": problem.ID,
		},
	})
	return found, nil
}

func (s *RelicService) ListRelics(ctx context.Context, externalUserID string) ([]models.UserRelic, error) {
	return s.Store.GetUserRelics(ctx, externalUserID)
}

func (s *RelicService) WithClock(now func() time.Time) *RelicService {
	s.now = now
	return s
}
