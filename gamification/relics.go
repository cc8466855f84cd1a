package gamification

import (
	"climb-progression-system/models"
)

// Relic is a catalog entry that can drop from a completed problem.
type Relic struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	Rarity           models.Rarity `json:"rarity"`
	LayerRequirement int           `json:"layer_requirement"`
	GradeRequirement string        `json:"grade_requirement"` // V-scale token
}

// Random is the draw source used for relic rolls and quest selection.
type Random interface {
	Float64() float64
	Intn(n int) int
}

// rarityThresholds are checked rarest first against one draw in [0,1).
var rarityThresholds = []struct {
	rarity models.Rarity
	below  float64
}{
	{models.RarityLegendary, 0.001},
	{models.RarityEpic, 0.002},
	{models.RarityRare, 0.005},
	{models.RarityUncommon, 0.015},
	{models.RarityCommon, 0.03},
}

// RollRarity maps a draw to a rarity tier; ok is false when nothing drops.
func RollRarity(draw float64) (models.Rarity, bool) {
	for _, t := range rarityThresholds {
		if draw < t.below {
			return t.rarity, true
		}
	}
	return "", false
}

// RelicCatalog is immutable after construction.
type RelicCatalog struct {
	entries []Relic
}

func NewRelicCatalog() *RelicCatalog {
	return &RelicCatalog{entries: buildRelics()}
}

// NewRelicCatalogFrom is used when a deployment ships its own relic list.
func NewRelicCatalogFrom(entries []Relic) *RelicCatalog {
	out := make([]Relic, len(entries))
	copy(out, entries)
	return &RelicCatalog{entries: out}
}

func (c *RelicCatalog) All() []Relic {
	out := make([]Relic, len(c.entries))
	copy(out, c.entries)
	return out
}

// Eligible filters by rarity, the user's layer and the sent grade.
func (c *RelicCatalog) Eligible(rarity models.Rarity, layer, gradeOrdinal int) []Relic {
	var out []Relic
	for _, r := range c.entries {
		if r.Rarity != rarity || r.LayerRequirement > layer {
			continue
		}
		required, ok := ToCanonical(r.GradeRequirement, GradeSystemVScale)
		if !ok {
			required = 0
		}
		if gradeOrdinal < required {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Roll draws once. A rolled tier with no eligible entries yields nothing; there is no
// re-roll into a lower tier.
func (c *RelicCatalog) Roll(rng Random, layer, gradeOrdinal int) (Relic, bool) {
	rarity, ok := RollRarity(rng.Float64())
	if !ok {
		return Relic{}, false
	}
	candidates := c.Eligible(rarity, layer, gradeOrdinal)
	if len(candidates) == 0 {
		return Relic{}, false
	}
	return candidates[rng.Intn(len(candidates))], true
}

func buildRelics() []Relic {
	return []Relic{
		{ID: "chalk_pouch", Name: "Weathered Chalk Pouch", Description: "Still dusty from a forgotten ascent", Rarity: models.RarityCommon, LayerRequirement: 1, GradeRequirement: "V0"},
		{ID: "worn_brush", Name: "Worn Boar-Hair Brush", Description: "Bristles shaped by a thousand crimps", Rarity: models.RarityCommon, LayerRequirement: 1, GradeRequirement: "V0"},
		{ID: "taped_finger", Name: "Finger Tape Bundle", Description: "Wrapped by someone who never came back up", Rarity: models.RarityCommon, LayerRequirement: 2, GradeRequirement: "V2"},
		{ID: "glowing_hold", Name: "Glowing Crimp", Description: "A hold that hums when gripped", Rarity: models.RarityUncommon, LayerRequirement: 1, GradeRequirement: "V2"},
		{ID: "forest_resin", Name: "Forest Resin", Description: "Sticky sap from the Forest of Temptation", Rarity: models.RarityUncommon, LayerRequirement: 2, GradeRequirement: "V3"},
		{ID: "fault_compass", Name: "Fault Compass", Description: "Always points toward the next sloper", Rarity: models.RarityRare, LayerRequirement: 3, GradeRequirement: "V4"},
		{ID: "giant_goblet", Name: "Giant's Goblet", Description: "Far too heavy to carry out of the wall", Rarity: models.RarityRare, LayerRequirement: 4, GradeRequirement: "V5"},
		{ID: "corpse_weeper", Name: "Corpse-Weeper Lantern", Description: "Lights the sea of overhangs", Rarity: models.RarityEpic, LayerRequirement: 5, GradeRequirement: "V6"},
		{ID: "unreturned_rope", Name: "Rope of the Unreturned", Description: "Frayed at exactly one end", Rarity: models.RarityEpic, LayerRequirement: 6, GradeRequirement: "V7"},
		{ID: "star_compass", Name: "Star Compass", Description: "Points at whatever its holder most desires", Rarity: models.RarityLegendary, LayerRequirement: 6, GradeRequirement: "V8"},
		{ID: "white_whistle_relic", Name: "Unnamed White Whistle", Description: "Carved from something that was once alive", Rarity: models.RarityLegendary, LayerRequirement: 7, GradeRequirement: "V9"},
	}
}
