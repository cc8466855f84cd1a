package gamification

import (
	"testing"

	"climb-progression-system/models"

	"github.com/stretchr/testify/assert"
)

func ids(achievements []Achievement) []string {
	out := make([]string, 0, len(achievements))
	for _, a := range achievements {
		out = append(out, a.ID)
	}
	return out
}

func TestAchievementCatalog_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for _, a := range NewAchievementCatalog().All() {
		assert.False(t, seen[a.ID], "duplicate achievement ID: %s", a.ID)
		assert.Positive(t, a.XPReward, a.ID)
		seen[a.ID] = true
	}
}

func TestAchievementCatalog_ZeroStats(t *testing.T) {
	user := &models.UserProgress{CurrentLayer: 1}
	stats := &models.AggregateStats{HighestGradeOrdinal: -1}
	assert.Empty(t, NewAchievementCatalog().Evaluate(user, stats, nil))
}

func TestAchievementCatalog_SkipsUnlocked(t *testing.T) {
	catalog := NewAchievementCatalog()
	user := &models.UserProgress{CurrentLayer: 2, WhistleLevel: WhistleBlue}
	stats := &models.AggregateStats{CompletedProblems: 1, HighestGradeOrdinal: 4}

	first := catalog.Evaluate(user, stats, nil)
	assert.ElementsMatch(t, []string{"first_ascent", "layer_2", "whistle_red", "whistle_blue"}, ids(first))

	unlocked := map[string]bool{"first_ascent": true, "whistle_red": true}
	second := catalog.Evaluate(user, stats, unlocked)
	assert.ElementsMatch(t, []string{"layer_2", "whistle_blue"}, ids(second))
}

func TestAchievementCatalog_Get(t *testing.T) {
	a, ok := NewAchievementCatalog().Get("flash_master")
	assert.True(t, ok)
	assert.Equal(t, "Flash Master", a.Name)

	_, ok = NewAchievementCatalog().Get("nope")
	assert.False(t, ok)
}
