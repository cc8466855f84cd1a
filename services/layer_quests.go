package services

import (
	"context"
	"errors"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/models"
	"climb-progression-system/repository"
)

// ensureLayerQuest lazily creates the durable quest gating layer. Callers hold the user lock.
func ensureLayerQuest(ctx context.Context, tx repository.Store, externalUserID string, layer int, now time.Time) (*models.Quest, error) {
	rule, err := gamification.LayerRuleFor(layer)
	if err != nil {
		return nil, err
	}
	quest, err := tx.GetLayerQuest(ctx, externalUserID, layer)
	if err == nil {
		return quest, nil
	}
	if !isNotFound(err) {
		return nil, err
	}

	quest = &models.Quest{
		ExternalUserID: externalUserID,
		QuestType:      models.QuestTypeLayer,
		Layer:          layer,
		Status:         models.QuestStatusActive,
		Source:         models.QuestSourceLayer,
		TemplateKey:    gamification.TemplateKey(rule.Title),
		Title:          rule.Title,
		Description:    rule.Description,
		MaxProgress:    rule.MaxProgress,
		XPReward:       rule.XPReward(),
		Timestamps:     models.Timestamps{CreatedAt: now},
	}
	if err := tx.CreateLayerQuest(ctx, quest); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			return tx.GetLayerQuest(ctx, externalUserID, layer)
		}
		return nil, err
	}
	return quest, nil
}

// refreshLayerQuest recomputes progress from the full problem history. Completed layer
// quests are left untouched.
func refreshLayerQuest(ctx context.Context, tx repository.Store, externalUserID string, layer int, now time.Time) (*models.Quest, error) {
	quest, err := ensureLayerQuest(ctx, tx, externalUserID, layer, now)
	if err != nil {
		return nil, err
	}
	if quest.Status == models.QuestStatusCompleted {
		return quest, nil
	}

	rule, err := gamification.LayerRuleFor(layer)
	if err != nil {
		return nil, err
	}
	problems, err := tx.ListUserProblems(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	progress := rule.Progress(problems)
	if progress == quest.Progress {
		return quest, nil
	}
	quest.Progress = progress
	if err := tx.UpdateLayerQuest(ctx, quest); err != nil {
		return nil, err
	}
	return quest, nil
}
