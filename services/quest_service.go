package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/repository"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type QuestService struct {
	Store        repository.Store
	Catalog      *gamification.QuestCatalog
	Advice       AdviceGenerator
	Achievements *AchievementService
	Events       messaging.EventPublisher
	RNG          gamification.Random
	Logger       *zap.Logger
	now          func() time.Time
}

func NewQuestService(store repository.Store, catalog *gamification.QuestCatalog, advice AdviceGenerator, achievements *AchievementService, events messaging.EventPublisher, rng gamification.Random, logger *zap.Logger) *QuestService {
	if advice == nil {
		advice = NoopAdviceGenerator{}
	}
	if rng == nil {
		rng = DefaultRandom
	}
	return &QuestService{
		Store:        store,
		Catalog:      catalog,
		Advice:       advice,
		Achievements: achievements,
		Events:       events,
		RNG:          rng,
		Logger:       logger,
		now:          time.Now,
	}
}

var (
	activeOnly = []models.QuestStatus{models.QuestStatusActive}
	dailyOnly  = []models.QuestType{models.QuestTypeDaily}
	weeklyOnly = []models.QuestType{models.QuestTypeWeekly}
)

// GenerateDailyQuests tops the user up to MaxActiveDailyQuests and returns the active dailies.
// Themes and templates already used today are avoided; when the catalog runs dry the advice
// generator is asked, and the fixed fallback quest is the last resort.
func (s *QuestService) GenerateDailyQuests(ctx context.Context, externalUserID string) ([]models.Quest, error) {
	var active []models.Quest
	var created []models.Quest
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		now := s.now()
		if _, err := tx.ExpireQuests(ctx, externalUserID, now); err != nil {
			return err
		}
		var err error
		active, err = tx.GetUserQuests(ctx, externalUserID, repository.QuestFilter{Statuses: activeOnly, Types: dailyOnly})
		if err != nil {
			return err
		}
		need := gamification.MaxActiveDailyQuests - len(active)
		if need <= 0 {
			return nil
		}

		today, err := tx.GetUserQuests(ctx, externalUserID, repository.QuestFilter{Types: dailyOnly, CreatedSince: dayStart(now)})
		if err != nil {
			return err
		}
		usedThemes := make(map[gamification.Theme]bool)
		usedKeys := make(map[string]bool)
		var titles []string
		for _, q := range append(today, active...) {
			usedThemes[gamification.Theme(q.Theme)] = true
			usedKeys[q.TemplateKey] = true
			titles = append(titles, q.Title)
		}

		for _, t := range s.pickDailyTemplates(need, usedThemes, usedKeys) {
			q := newQuest(externalUserID, models.QuestTypeDaily, models.QuestSourceCatalog, t, now, gamification.DailyQuestLifetime)
			if err := tx.CreateQuest(ctx, q); err != nil {
				return err
			}
			usedKeys[q.TemplateKey] = true
			created = append(created, *q)
			need--
		}

		if need > 0 {
			mustCreate := len(active) == 0 && len(created) == 0
			q, err := s.generatedDailyQuest(ctx, tx, externalUserID, titles, usedKeys, mustCreate, now)
			if err != nil {
				return err
			}
			if q != nil {
				created = append(created, *q)
			}
		}
		active = append(active, created...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, q := range created {
		questsGenerated.WithLabelValues(string(q.QuestType), string(q.Source)).Inc()
	}
	if len(created) > 0 {
		s.Logger.Info("Daily quests generated",
			zap.String("user_id", externalUserID),
			zap.Int("created", len(created)),
			zap.Int("active", len(active)),
		)
	}
	return active, nil
}

// pickDailyTemplates walks themes in random order, unused themes first, taking at most one
// template per theme per pass and never repeating a key.
func (s *QuestService) pickDailyTemplates(need int, usedThemes map[gamification.Theme]bool, usedKeys map[string]bool) []gamification.QuestTemplate {
	themes := shuffleThemes(s.RNG, gamification.Themes)
	sort.SliceStable(themes, func(i, j int) bool {
		return !usedThemes[themes[i]] && usedThemes[themes[j]]
	})

	taken := make(map[string]bool, len(usedKeys))
	for k := range usedKeys {
		taken[k] = true
	}
	var picked []gamification.QuestTemplate
	for progress := true; need > 0 && progress; {
		progress = false
		for _, theme := range themes {
			if need == 0 {
				break
			}
			templates := s.Catalog.Daily(theme)
			start := 0
			if len(templates) > 0 {
				start = s.RNG.Intn(len(templates))
			}
			for i := range templates {
				t := templates[(start+i)%len(templates)]
				if taken[t.Key()] {
					continue
				}
				taken[t.Key()] = true
				picked = append(picked, t)
				need--
				progress = true
				break
			}
		}
	}
	return picked
}

// generatedDailyQuest asks the advice generator for one quest and falls back to the fixed
// quest. A fallback already used today is repeated only when mustCreate is set, so the user
// is never left without an active daily.
func (s *QuestService) generatedDailyQuest(ctx context.Context, tx repository.Store, externalUserID string, titles []string, usedKeys map[string]bool, mustCreate bool, now time.Time) (*models.Quest, error) {
	user, err := tx.GetUser(ctx, externalUserID)
	if err != nil {
		return nil, err
	}
	theme := gamification.Themes[s.RNG.Intn(len(gamification.Themes))]
	req := AdviceRequest{
		UserID:         externalUserID,
		Theme:          theme,
		Layer:          user.CurrentLayer,
		WhistleLevel:   user.WhistleLevel,
		TopSkills:      s.topSkills(ctx, tx, externalUserID),
		ExistingTitles: titles,
	}

	advice, err := s.Advice.GenerateQuest(ctx, req)
	if err == nil && !usedKeys[gamification.TemplateKey(advice.Title)] {
		q := newQuest(externalUserID, models.QuestTypeDaily, models.QuestSourceAI, gamification.QuestTemplate{
			Theme:       theme,
			Title:       advice.Title,
			Description: advice.Description,
			XPReward:    advice.XPReward,
			MaxProgress: 1,
		}, now, gamification.DailyQuestLifetime)
		if len(advice.Tips) > 0 {
			if raw, mErr := json.Marshal(map[string]any{"tips": advice.Tips}); mErr == nil {
				q.Metadata = datatypes.JSON(raw)
			}
		}
		if err := tx.CreateQuest(ctx, q); err != nil {
			return nil, err
		}
		return q, nil
	}
	if err != nil && !errors.Is(err, ErrAdviceUnavailable) {
		s.Logger.Warn("Advice generation failed", zap.String("user_id", externalUserID), zap.Error(err))
	}

	fallback := gamification.FallbackDailyQuest()
	if usedKeys[fallback.Key()] && !mustCreate {
		return nil, nil
	}
	adviceFallbacks.Inc()
	q := newQuest(externalUserID, models.QuestTypeDaily, models.QuestSourceFallback, fallback, now, gamification.DailyQuestLifetime)
	if err := tx.CreateQuest(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

// topSkills lists the user's three hardest skills as "crimp (V6)".
func (s *QuestService) topSkills(ctx context.Context, tx repository.Store, externalUserID string) []string {
	skills, err := tx.GetUserSkills(ctx, externalUserID)
	if err != nil {
		return nil
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].MaxGradeOrdinal > skills[j].MaxGradeOrdinal })
	var out []string
	for _, sk := range skills {
		if sk.MainCategory == "grade" {
			continue
		}
		out = append(out, fmt.Sprintf("%s (%s)", sk.SubCategory, sk.MaxGrade))
		if len(out) == 3 {
			break
		}
	}
	return out
}

// GenerateWeeklyQuest returns nil when a weekly is active or one was completed within the
// cooldown window.
func (s *QuestService) GenerateWeeklyQuest(ctx context.Context, externalUserID string) (*models.Quest, error) {
	var created *models.Quest
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		now := s.now()
		if _, err := tx.ExpireQuests(ctx, externalUserID, now); err != nil {
			return err
		}
		active, err := tx.GetUserQuests(ctx, externalUserID, repository.QuestFilter{Statuses: activeOnly, Types: weeklyOnly})
		if err != nil {
			return err
		}
		if len(active) > 0 {
			return nil
		}
		recent, err := tx.GetUserQuests(ctx, externalUserID, repository.QuestFilter{
			Statuses:      []models.QuestStatus{models.QuestStatusCompleted},
			Types:         weeklyOnly,
			CompletedFrom: now.Add(-gamification.WeeklyQuestCooldown),
		})
		if err != nil {
			return err
		}
		if len(recent) > 0 {
			return nil
		}

		templates := s.Catalog.Weekly()
		if len(templates) == 0 {
			return nil
		}
		t := templates[s.RNG.Intn(len(templates))]
		q := newQuest(externalUserID, models.QuestTypeWeekly, models.QuestSourceCatalog, t, now, t.ExpiresIn)
		if err := tx.CreateQuest(ctx, q); err != nil {
			return err
		}
		created = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created != nil {
		questsGenerated.WithLabelValues(string(created.QuestType), string(created.Source)).Inc()
		s.Logger.Info("Weekly quest generated", zap.String("user_id", externalUserID), zap.String("quest_id", created.ID))
	}
	return created, nil
}

func newQuest(externalUserID string, questType models.QuestType, source models.QuestSource, t gamification.QuestTemplate, now time.Time, lifetime time.Duration) *models.Quest {
	expires := now.Add(lifetime)
	maxProgress := t.MaxProgress
	if maxProgress < 1 {
		maxProgress = 1
	}
	return &models.Quest{
		ExternalUserID: externalUserID,
		QuestType:      questType,
		Status:         models.QuestStatusActive,
		Source:         source,
		Theme:          string(t.Theme),
		TemplateKey:    gamification.TemplateKey(t.Title),
		Title:          t.Title,
		Description:    t.Description,
		MaxProgress:    maxProgress,
		XPReward:       t.XPReward,
		ExpiresAt:      &expires,
		Timestamps:     models.Timestamps{CreatedAt: now},
	}
}

// EnsureLayerQuest lazily creates the quest gating layer.
func (s *QuestService) EnsureLayerQuest(ctx context.Context, externalUserID string, layer int) (*models.Quest, error) {
	var quest *models.Quest
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		var err error
		quest, err = ensureLayerQuest(ctx, tx, externalUserID, layer, s.now())
		return err
	})
	return quest, err
}

// RefreshLayerQuest recomputes the layer quest's progress from the problem history.
func (s *QuestService) RefreshLayerQuest(ctx context.Context, externalUserID string, layer int) (*models.Quest, error) {
	var quest *models.Quest
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		var err error
		quest, err = refreshLayerQuest(ctx, tx, externalUserID, layer, s.now())
		return err
	})
	return quest, err
}

// QuestCompletion is the result of CompleteQuest.
type QuestCompletion struct {
	Quest           *models.Quest              `json:"quest"`
	XPAwarded       int64                      `json:"xp_awarded"`
	User            *models.UserProgress       `json:"user"`
	LayerBefore     int                        `json:"layer_before"`
	NewAchievements []gamification.Achievement `json:"new_achievements,omitempty"`
}

// CompleteQuest completes an active quest and awards its XP. At most MaxCompletionsPerDay
// quests of any type complete per UTC day.
func (s *QuestService) CompleteQuest(ctx context.Context, externalUserID, questID string) (*QuestCompletion, error) {
	result := &QuestCompletion{}
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		now := s.now()
		quest, err := tx.GetQuest(ctx, externalUserID, questID)
		if err != nil {
			return err
		}
		switch {
		case quest.Status == models.QuestStatusExpired || quest.IsOverdue(now):
			return reject(models.ReasonQuestExpired, "quest has expired")
		case quest.Status != models.QuestStatusActive:
			return reject(models.ReasonQuestNotActive, fmt.Sprintf("quest is %s", quest.Status))
		}

		if quest.QuestType == models.QuestTypeLayer {
			quest, err = refreshLayerQuest(ctx, tx, externalUserID, quest.Layer, now)
			if err != nil {
				return err
			}
			if quest.Progress < quest.MaxProgress {
				return reject(models.ReasonRequirementsUnmet,
					fmt.Sprintf("progress %d of %d", quest.Progress, quest.MaxProgress))
			}
		}

		completedToday, err := tx.CountCompletedQuestsSince(ctx, externalUserID, dayStart(now))
		if err != nil {
			return err
		}
		if completedToday >= gamification.MaxCompletionsPerDay {
			return reject(models.ReasonDailyCompletionLimit,
				fmt.Sprintf("%d quests already completed today", completedToday))
		}

		quest.Status = models.QuestStatusCompleted
		quest.CompletedAt = &now
		quest.Progress = quest.MaxProgress
		if quest.QuestType == models.QuestTypeLayer {
			err = tx.UpdateLayerQuest(ctx, quest)
		} else {
			err = tx.UpdateQuest(ctx, quest)
		}
		if err != nil {
			return err
		}

		change, err := awardXP(ctx, tx, s.Logger, externalUserID, quest.XPReward, SourceQuest, now)
		if err != nil {
			return err
		}
		result.Quest = quest
		result.XPAwarded = quest.XPReward
		result.User = change.User
		result.LayerBefore = change.LayerBefore
		return nil
	})
	if err != nil {
		return nil, err
	}

	questsCompleted.WithLabelValues(string(result.Quest.QuestType)).Inc()
	now := s.now()
	publish(ctx, s.Events, s.Logger, messaging.ProgressionEvent{
		Type:       messaging.EventQuestCompleted,
		UserID:     externalUserID,
		OccurredAt: now,
		Payload: map[string]any{
			"quest_id":   result.Quest.ID,
			"quest_type": result.Quest.QuestType,
			"title":      result.Quest.Title,
			"xp_reward":  result.Quest.XPReward,
		},
	})
	publishLayerChange(ctx, s.Events, s.Logger, result.User, result.LayerBefore, now)

	if s.Achievements != nil {
		unlocked, err := s.Achievements.CheckAndUnlock(ctx, externalUserID)
		if err != nil {
			s.Logger.Warn("Achievement check failed after quest completion",
				zap.String("user_id", externalUserID), zap.Error(err))
		}
		result.NewAchievements = unlocked
	}
	return result, nil
}

// DiscardQuest drops an active daily or weekly quest. Layer quests cannot be discarded.
func (s *QuestService) DiscardQuest(ctx context.Context, externalUserID, questID string) (*models.Quest, error) {
	var discarded *models.Quest
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		quest, err := tx.GetQuest(ctx, externalUserID, questID)
		if err != nil {
			return err
		}
		if quest.QuestType == models.QuestTypeLayer {
			return reject(models.ReasonLayerQuestNotDiscardable, "layer quests gate advancement")
		}
		if quest.Status != models.QuestStatusActive || quest.IsOverdue(s.now()) {
			return reject(models.ReasonQuestNotActive, fmt.Sprintf("quest is %s", quest.Status))
		}
		quest.Status = models.QuestStatusDiscarded
		if err := tx.UpdateQuest(ctx, quest); err != nil {
			return err
		}
		discarded = quest
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("Quest discarded", zap.String("user_id", externalUserID), zap.String("quest_id", questID))
	return discarded, nil
}

// ListQuests sweeps the user's overdue quests, makes sure the current layer quest exists and
// returns quests, optionally filtered by status.
func (s *QuestService) ListQuests(ctx context.Context, externalUserID string, status models.QuestStatus) ([]models.Quest, error) {
	var quests []models.Quest
	err := s.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		now := s.now()
		if _, err := tx.ExpireQuests(ctx, externalUserID, now); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, externalUserID)
		if err != nil {
			return err
		}
		if user.CurrentLayer < gamification.MaxLayer {
			if _, err := refreshLayerQuest(ctx, tx, externalUserID, user.CurrentLayer, now); err != nil {
				return err
			}
		}
		var filter repository.QuestFilter
		if status != "" {
			filter.Statuses = []models.QuestStatus{status}
		}
		quests, err = tx.GetUserQuests(ctx, externalUserID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return quests, nil
}

// ExpireOverdue sweeps every user's overdue quests.
func (s *QuestService) ExpireOverdue(ctx context.Context) (int64, error) {
	n, err := s.Store.ExpireQuests(ctx, "", s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		questsExpired.Add(float64(n))
		s.Logger.Info("Expired overdue quests", zap.Int64("count", n))
	}
	return n, nil
}

func reject(reason, message string) error {
	questRejections.WithLabelValues(reason).Inc()
	return models.NewPolicyError(reason, message)
}

// WithClock replaces the clock; used by tests and replays.
func (s *QuestService) WithClock(now func() time.Time) *QuestService {
	s.now = now
	return s
}
