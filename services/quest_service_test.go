package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/services"
	"climb-progression-system/services/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type QuestServiceSuite struct {
	suite.Suite
	h      *harness
	advice *mocks.AdviceGenerator
	ctx    context.Context
}

func TestQuestServiceSuite(t *testing.T) {
	suite.Run(t, new(QuestServiceSuite))
}

func (s *QuestServiceSuite) SetupTest() {
	s.advice = new(mocks.AdviceGenerator)
	s.h = newHarness(s.T(), fixedRandom{draw: 0.99}, s.advice)
	s.ctx = context.Background()
}

func (s *QuestServiceSuite) requireReason(err error, reason string) {
	s.Require().Error(err)
	s.Require().ErrorIs(err, models.ErrPolicyRejected)
	got, ok := models.PolicyReason(err)
	s.Require().True(ok)
	s.Equal(reason, got)
}

func (s *QuestServiceSuite) userXP(userID string) int64 {
	u, err := s.h.store.GetUser(s.ctx, userID)
	s.Require().NoError(err)
	return u.TotalXP
}

func (s *QuestServiceSuite) TestGenerateDailyQuests_CapsAtThree() {
	quests, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().Len(quests, gamification.MaxActiveDailyQuests)

	themes := map[string]bool{}
	keys := map[string]bool{}
	for _, q := range quests {
		s.Equal(models.QuestTypeDaily, q.QuestType)
		s.Equal(models.QuestSourceCatalog, q.Source)
		s.Require().NotNil(q.ExpiresAt)
		s.Equal(s.h.clock.Now().Add(24*time.Hour), *q.ExpiresAt)
		themes[q.Theme] = true
		keys[q.TemplateKey] = true
	}
	s.Len(themes, 3, "one quest per theme")
	s.Len(keys, 3)

	again, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Len(again, 3)

	all, err := s.h.quests.ListQuests(s.ctx, "climber-1", models.QuestStatusActive)
	s.Require().NoError(err)
	dailies := 0
	for _, q := range all {
		if q.QuestType == models.QuestTypeDaily {
			dailies++
		}
	}
	s.Equal(3, dailies)
	s.advice.AssertNotCalled(s.T(), "GenerateQuest", mock.Anything, mock.Anything)
}

func (s *QuestServiceSuite) TestCompleteQuest_DailyCeilingLeavesXPUnchanged() {
	dailies, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	weekly, err := s.h.quests.GenerateWeeklyQuest(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().NotNil(weekly)

	for _, q := range dailies {
		res, err := s.h.quests.CompleteQuest(s.ctx, "climber-1", q.ID)
		s.Require().NoError(err)
		s.Equal(models.QuestStatusCompleted, res.Quest.Status)
		s.Equal(res.Quest.MaxProgress, res.Quest.Progress)
		s.NotNil(res.Quest.CompletedAt)
	}

	before := s.userXP("climber-1")
	_, err = s.h.quests.CompleteQuest(s.ctx, "climber-1", weekly.ID)
	s.requireReason(err, models.ReasonDailyCompletionLimit)
	s.Equal(before, s.userXP("climber-1"))

	stored, err := s.h.store.GetQuest(s.ctx, "climber-1", weekly.ID)
	s.Require().NoError(err)
	s.Equal(models.QuestStatusActive, stored.Status)

	// the ceiling resets at UTC midnight
	s.h.clock.Advance(15 * time.Hour)
	res, err := s.h.quests.CompleteQuest(s.ctx, "climber-1", weekly.ID)
	s.Require().NoError(err)
	s.Equal(before+weekly.XPReward, res.User.TotalXP)
}

func (s *QuestServiceSuite) TestCompleteQuest_AwardsXPAndFirstQuestAchievement() {
	dailies, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)

	res, err := s.h.quests.CompleteQuest(s.ctx, "climber-1", dailies[0].ID)
	s.Require().NoError(err)
	s.Equal(dailies[0].XPReward, res.XPAwarded)
	s.Require().Len(res.NewAchievements, 1)
	s.Equal("first_quest", res.NewAchievements[0].ID)
	s.Equal(dailies[0].XPReward+res.NewAchievements[0].XPReward, s.userXP("climber-1"))
	s.Contains(s.h.events.types(), messaging.EventQuestCompleted)

	_, err = s.h.quests.CompleteQuest(s.ctx, "climber-1", dailies[0].ID)
	s.requireReason(err, models.ReasonQuestNotActive)
}

func (s *QuestServiceSuite) TestCompleteQuest_WrongOwnerIsNotFound() {
	dailies, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)

	_, err = s.h.quests.CompleteQuest(s.ctx, "climber-2", dailies[0].ID)
	s.ErrorIs(err, models.ErrQuestNotFound)
}

func (s *QuestServiceSuite) TestExpiry() {
	dailies, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)

	s.h.clock.Advance(24*time.Hour + time.Second)

	_, err = s.h.quests.CompleteQuest(s.ctx, "climber-1", dailies[0].ID)
	s.requireReason(err, models.ReasonQuestExpired)

	n, err := s.h.quests.ExpireOverdue(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(3), n)

	expired, err := s.h.quests.ListQuests(s.ctx, "climber-1", models.QuestStatusExpired)
	s.Require().NoError(err)
	s.Len(expired, 3)

	_, err = s.h.quests.DiscardQuest(s.ctx, "climber-1", dailies[1].ID)
	s.requireReason(err, models.ReasonQuestNotActive)

	fresh, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Len(fresh, 3)
}

func (s *QuestServiceSuite) TestDiscard() {
	dailies, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)

	q, err := s.h.quests.DiscardQuest(s.ctx, "climber-1", dailies[0].ID)
	s.Require().NoError(err)
	s.Equal(models.QuestStatusDiscarded, q.Status)

	// the freed slot is refilled with a template not used today
	refilled, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().Len(refilled, 3)
	for _, r := range refilled {
		s.NotEqual(dailies[0].TemplateKey, r.TemplateKey)
	}

	layerQuest, err := s.h.quests.EnsureLayerQuest(s.ctx, "climber-1", 1)
	s.Require().NoError(err)
	_, err = s.h.quests.DiscardQuest(s.ctx, "climber-1", layerQuest.ID)
	s.requireReason(err, models.ReasonLayerQuestNotDiscardable)
}

func (s *QuestServiceSuite) TestWeeklyCooldown() {
	first, err := s.h.quests.GenerateWeeklyQuest(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().NotNil(first)
	s.Require().NotNil(first.ExpiresAt)
	s.GreaterOrEqual(first.ExpiresAt.Sub(s.h.clock.Now()), 7*24*time.Hour)

	again, err := s.h.quests.GenerateWeeklyQuest(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Nil(again, "a weekly is already active")

	_, err = s.h.quests.CompleteQuest(s.ctx, "climber-1", first.ID)
	s.Require().NoError(err)

	s.h.clock.Advance(3 * 24 * time.Hour)
	cooling, err := s.h.quests.GenerateWeeklyQuest(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Nil(cooling, "completed within the last seven days")

	s.h.clock.Advance(5 * 24 * time.Hour)
	next, err := s.h.quests.GenerateWeeklyQuest(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.NotNil(next)
}

// exhaustCatalog burns through every daily template today by generating and discarding.
func (s *QuestServiceSuite) exhaustCatalog(userID string) {
	templates := 0
	for _, theme := range gamification.Themes {
		templates += len(gamification.NewQuestCatalog().Daily(theme))
	}
	for used := 0; used < templates; {
		quests, err := s.h.quests.GenerateDailyQuests(s.ctx, userID)
		s.Require().NoError(err)
		s.Require().Len(quests, 3)
		for _, q := range quests {
			s.Require().Equal(models.QuestSourceCatalog, q.Source)
			_, err := s.h.quests.DiscardQuest(s.ctx, userID, q.ID)
			s.Require().NoError(err)
			used++
		}
		s.h.clock.Advance(time.Minute)
	}
}

func (s *QuestServiceSuite) TestFallbackWhenAdviceFails() {
	s.advice.On("GenerateQuest", mock.Anything, mock.Anything).Return(nil, errors.New("rate limited"))
	s.exhaustCatalog("climber-1")

	quests, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().Len(quests, 1)
	s.Equal(models.QuestSourceFallback, quests[0].Source)
	s.Equal(gamification.FallbackDailyQuest().Title, quests[0].Title)

	// with nothing else left the fallback repeats rather than leaving no daily
	first := quests[0].ID
	_, err = s.h.quests.DiscardQuest(s.ctx, "climber-1", first)
	s.Require().NoError(err)
	quests, err = s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().Len(quests, 1)
	s.Equal(models.QuestSourceFallback, quests[0].Source)
	s.NotEqual(first, quests[0].ID)
	s.Equal(models.QuestStatusActive, quests[0].Status)
}

func (s *QuestServiceSuite) TestAdviceQuestWhenCatalogExhausted() {
	s.advice.On("GenerateQuest", mock.Anything, mock.MatchedBy(func(req services.AdviceRequest) bool {
		return req.UserID == "climber-1" && req.Layer == 1 && len(req.ExistingTitles) > 0
	})).Return(&services.QuestAdvice{
		Title:       "Silent Feet Ladder",
		Description: "Climb a ladder of four grades without a single foot scuff.",
		XPReward:    45,
		Tips:        []string{"Look at the foothold until your toe lands"},
	}, nil).Once()
	s.exhaustCatalog("climber-1")

	quests, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	s.Require().Len(quests, 1)
	s.Equal(models.QuestSourceAI, quests[0].Source)
	s.Equal("silent-feet-ladder", quests[0].TemplateKey)
	s.Equal(int64(45), quests[0].XPReward)
	s.JSONEq(`{"tips":["Look at the foothold until your toe lands"]}`, string(quests[0].Metadata))
	s.advice.AssertExpectations(s.T())
}

func (s *QuestServiceSuite) TestLayerQuestRequirements() {
	layerQuest, err := s.h.quests.EnsureLayerQuest(s.ctx, "climber-1", 1)
	s.Require().NoError(err)
	s.Equal(10, layerQuest.MaxProgress)
	s.Nil(layerQuest.ExpiresAt)

	_, err = s.h.quests.CompleteQuest(s.ctx, "climber-1", layerQuest.ID)
	s.requireReason(err, models.ReasonRequirementsUnmet)

	sessionID := s.h.startSession(s.T(), "climber-1")
	for range 10 {
		s.h.send(s.T(), "climber-1", sessionID, "V1", 2)
	}
	refreshed, err := s.h.quests.RefreshLayerQuest(s.ctx, "climber-1", 1)
	s.Require().NoError(err)
	s.Equal(10, refreshed.Progress)

	res, err := s.h.quests.CompleteQuest(s.ctx, "climber-1", layerQuest.ID)
	s.Require().NoError(err)
	s.Equal(int64(100), res.XPAwarded)
}

func (s *QuestServiceSuite) TestConcurrentCompletionsRespectCeiling() {
	dailies, err := s.h.quests.GenerateDailyQuests(s.ctx, "climber-1")
	s.Require().NoError(err)
	weekly, err := s.h.quests.GenerateWeeklyQuest(s.ctx, "climber-1")
	s.Require().NoError(err)
	ids := []string{dailies[0].ID, dailies[1].ID, dailies[2].ID, weekly.ID}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, limited := 0, 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := s.h.quests.CompleteQuest(s.ctx, "climber-1", id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			if reason, _ := models.PolicyReason(err); reason == models.ReasonDailyCompletionLimit {
				limited++
			}
		}(id)
	}
	wg.Wait()
	s.Equal(gamification.MaxCompletionsPerDay, succeeded)
	s.Equal(1, limited)
}

func TestStartQuestScheduler(t *testing.T) {
	h := newHarness(t, noDrop, nil)
	_, err := h.quests.StartQuestScheduler(services.SchedulerOptions{DailyAt: "25:99"})
	assert.Error(t, err)

	sched, err := h.quests.StartQuestScheduler(services.SchedulerOptions{DailyAt: "04:30"})
	require.NoError(t, err)
	assert.Len(t, sched.Jobs(), 2)
	require.NoError(t, sched.Shutdown())
}
