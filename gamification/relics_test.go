package gamification

import (
	"testing"

	"climb-progression-system/models"

	"github.com/stretchr/testify/assert"
)

type fixedRandom struct {
	draw float64
	pick int
}

func (r fixedRandom) Float64() float64 { return r.draw }
func (r fixedRandom) Intn(n int) int {
	if r.pick >= n {
		return n - 1
	}
	return r.pick
}

func TestRollRarity(t *testing.T) {
	cases := []struct {
		draw   float64
		rarity models.Rarity
		ok     bool
	}{
		{0.0005, models.RarityLegendary, true},
		{0.0015, models.RarityEpic, true},
		{0.004, models.RarityRare, true},
		{0.01, models.RarityUncommon, true},
		{0.02, models.RarityCommon, true},
		{0.03, "", false},
		{0.9, "", false},
	}
	for _, tc := range cases {
		rarity, ok := RollRarity(tc.draw)
		assert.Equal(t, tc.ok, ok, "draw %v", tc.draw)
		assert.Equal(t, tc.rarity, rarity, "draw %v", tc.draw)
	}
}

func TestRoll_LayerEligibility(t *testing.T) {
	catalog := NewRelicCatalogFrom([]Relic{
		{ID: "deep", Name: "Deep Relic", Rarity: models.RarityRare, LayerRequirement: 5, GradeRequirement: "V0"},
		{ID: "shallow", Name: "Shallow Relic", Rarity: models.RarityCommon, LayerRequirement: 1, GradeRequirement: "V0"},
	})

	_, ok := catalog.Roll(fixedRandom{draw: 0.004}, 2, 10)
	assert.False(t, ok, "rare tier has nothing eligible at layer 2 and must not fall through to common")

	relic, ok := catalog.Roll(fixedRandom{draw: 0.004}, 5, 10)
	assert.True(t, ok)
	assert.Equal(t, "deep", relic.ID)
}

func TestRoll_GradeEligibility(t *testing.T) {
	catalog := NewRelicCatalogFrom([]Relic{
		{ID: "crux", Rarity: models.RarityCommon, LayerRequirement: 1, GradeRequirement: "V6"},
	})
	_, ok := catalog.Roll(fixedRandom{draw: 0.02}, 7, 5)
	assert.False(t, ok)
	_, ok = catalog.Roll(fixedRandom{draw: 0.02}, 7, 6)
	assert.True(t, ok)
}

func TestDefaultRelicCatalog_EveryTierReachable(t *testing.T) {
	catalog := NewRelicCatalog()
	for _, rarity := range []models.Rarity{models.RarityCommon, models.RarityUncommon, models.RarityRare, models.RarityEpic, models.RarityLegendary} {
		assert.NotEmpty(t, catalog.Eligible(rarity, MaxLayer, MaxVGrade), rarity)
	}
	assert.Empty(t, catalog.Eligible(models.RarityLegendary, 1, MaxVGrade))
}
