package gamification

import (
	"climb-progression-system/models"
)

// Achievement is one catalog entry. Condition must be a pure predicate.
type Achievement struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	XPReward    int64  `json:"xp_reward"`
	Condition   func(user *models.UserProgress, stats *models.AggregateStats) bool `json:"-"`
}

// AchievementCatalog is immutable after construction.
type AchievementCatalog struct {
	entries []Achievement
	byID    map[string]int
}

// NewAchievementCatalog builds the full achievement set.
func NewAchievementCatalog() *AchievementCatalog {
	return newAchievementCatalog(buildAchievements())
}

func newAchievementCatalog(entries []Achievement) *AchievementCatalog {
	c := &AchievementCatalog{entries: entries, byID: make(map[string]int, len(entries))}
	for i, a := range entries {
		c.byID[a.ID] = i
	}
	return c
}

// All returns a shallow copy of the catalog.
func (c *AchievementCatalog) All() []Achievement {
	out := make([]Achievement, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get looks up an achievement by id.
func (c *AchievementCatalog) Get(id string) (Achievement, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Achievement{}, false
	}
	return c.entries[i], true
}

// Evaluate returns the entries not in unlocked whose condition currently holds.
func (c *AchievementCatalog) Evaluate(user *models.UserProgress, stats *models.AggregateStats, unlocked map[string]bool) []Achievement {
	var out []Achievement
	for _, a := range c.entries {
		if unlocked[a.ID] {
			continue
		}
		if a.Condition(user, stats) {
			out = append(out, a)
		}
	}
	return out
}

func completedProblems(n int64) func(*models.UserProgress, *models.AggregateStats) bool {
	return func(_ *models.UserProgress, s *models.AggregateStats) bool { return s.CompletedProblems >= n }
}

func completedSessions(n int64) func(*models.UserProgress, *models.AggregateStats) bool {
	return func(_ *models.UserProgress, s *models.AggregateStats) bool { return s.CompletedSessions >= n }
}

func reachedLayer(n int) func(*models.UserProgress, *models.AggregateStats) bool {
	return func(u *models.UserProgress, _ *models.AggregateStats) bool { return u.CurrentLayer >= n }
}

func reachedWhistle(n int) func(*models.UserProgress, *models.AggregateStats) bool {
	return func(u *models.UserProgress, _ *models.AggregateStats) bool { return u.WhistleLevel >= n }
}

func reachedGrade(ordinal int) func(*models.UserProgress, *models.AggregateStats) bool {
	return func(_ *models.UserProgress, s *models.AggregateStats) bool { return s.HighestGradeOrdinal >= ordinal }
}

func buildAchievements() []Achievement {
	return []Achievement{
		// Volume
		{ID: "first_ascent", Name: "First Ascent", Description: "Complete your first boulder problem", XPReward: 25, Condition: completedProblems(1)},
		{ID: "problems_50", Name: "Chalk Addict", Description: "Complete 50 boulder problems", XPReward: 100, Condition: completedProblems(50)},
		{ID: "problems_100", Name: "Centurion", Description: "Complete 100 boulder problems", XPReward: 200, Condition: completedProblems(100)},
		{ID: "sessions_10", Name: "Regular", Description: "Finish 10 climbing sessions", XPReward: 75, Condition: completedSessions(10)},
		{ID: "sessions_50", Name: "Resident Delver", Description: "Finish 50 climbing sessions", XPReward: 250, Condition: completedSessions(50)},
		{ID: "flash_master", Name: "Flash Master", Description: "Flash 10 boulder problems", XPReward: 150, Condition: func(_ *models.UserProgress, s *models.AggregateStats) bool {
			return s.FlashedProblems >= 10
		}},

		// Grades
		{ID: "grade_v5", Name: "Into the Fives", Description: "Send a V5", XPReward: 100, Condition: reachedGrade(5)},
		{ID: "grade_v8", Name: "Double Digits Loom", Description: "Send a V8", XPReward: 250, Condition: reachedGrade(8)},

		// Layers
		{ID: "layer_2", Name: "Into the Forest", Description: "Reach the second layer", XPReward: 50, Condition: reachedLayer(2)},
		{ID: "layer_4", Name: "Among Giants", Description: "Reach the fourth layer", XPReward: 150, Condition: reachedLayer(4)},
		{ID: "layer_7", Name: "The Final Maelstrom", Description: "Reach the deepest layer", XPReward: 500, Condition: reachedLayer(MaxLayer)},

		// Whistles
		{ID: "whistle_red", Name: "Red Whistle", Description: "Earn the Red Whistle", XPReward: 25, Condition: reachedWhistle(WhistleRed)},
		{ID: "whistle_blue", Name: "Blue Whistle", Description: "Earn the Blue Whistle", XPReward: 50, Condition: reachedWhistle(WhistleBlue)},
		{ID: "whistle_moon", Name: "Moon Whistle", Description: "Earn the Moon Whistle", XPReward: 100, Condition: reachedWhistle(WhistleMoon)},
		{ID: "whistle_black", Name: "Black Whistle", Description: "Earn the Black Whistle", XPReward: 200, Condition: reachedWhistle(WhistleBlack)},
		{ID: "whistle_white", Name: "White Whistle", Description: "Earn the White Whistle", XPReward: 400, Condition: reachedWhistle(WhistleWhite)},

		// Quests
		{ID: "first_quest", Name: "Quest Taker", Description: "Complete your first quest", XPReward: 25, Condition: func(_ *models.UserProgress, s *models.AggregateStats) bool {
			return s.CompletedQuests >= 1
		}},
		{ID: "quests_10", Name: "Seasoned Delver", Description: "Complete 10 quests", XPReward: 100, Condition: func(_ *models.UserProgress, s *models.AggregateStats) bool {
			return s.CompletedQuests >= 10
		}},

		// Relics
		{ID: "first_relic", Name: "Relic Hunter", Description: "Find your first relic", XPReward: 50, Condition: func(_ *models.UserProgress, s *models.AggregateStats) bool {
			return s.RelicsFound >= 1
		}},
		{ID: "relics_10", Name: "Curator of the Abyss", Description: "Find 10 relics", XPReward: 300, Condition: func(_ *models.UserProgress, s *models.AggregateStats) bool {
			return s.RelicsFound >= 10
		}},
	}
}
