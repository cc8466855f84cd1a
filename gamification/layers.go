package gamification

// LayerThresholds[n-1] is the total XP needed to reach layer n.
var LayerThresholds = []int64{0, 800, 2500, 6000, 12000, 22000, 35000}

// MaxLayer is terminal.
const MaxLayer = 7

var layerNames = []string{
	"Edge of the Abyss",
	"Forest of Temptation",
	"Great Fault",
	"Goblets of Giants",
	"Sea of Corpses",
	"Capital of the Unreturned",
	"Final Maelstrom",
}

// LayerName returns the display name for layer (1-based).
func LayerName(layer int) string {
	if layer < 1 || layer > MaxLayer {
		return ""
	}
	return layerNames[layer-1]
}

// LayerThreshold returns the XP needed to enter layer, or -1 past the final layer.
func LayerThreshold(layer int) int64 {
	if layer < 1 {
		return 0
	}
	if layer > MaxLayer {
		return -1
	}
	return LayerThresholds[layer-1]
}

// XPLayer is the layer totalXP alone would reach.
func XPLayer(totalXP int64) int {
	layer := 1
	for l := MaxLayer; l >= 1; l-- {
		if totalXP >= LayerThresholds[l-1] {
			layer = l
			break
		}
	}
	return layer
}

// LayerProgress describes where totalXP sits inside its layer.
type LayerProgress struct {
	CurrentLayer    int     `json:"current_layer"`
	CurrentLayerXP  int64   `json:"current_layer_xp"` // XP earned since entering CurrentLayer
	NextLayerXP     int64   `json:"next_layer_xp"`    // absolute threshold of the next layer, 0 at the final layer
	ProgressPercent float64 `json:"progress_percent"`
}

// LayerProgressInfo is purely XP based; quest gates are not considered.
func LayerProgressInfo(totalXP int64) LayerProgress {
	if totalXP < 0 {
		totalXP = 0
	}
	layer := XPLayer(totalXP)
	floor := LayerThresholds[layer-1]
	info := LayerProgress{
		CurrentLayer:   layer,
		CurrentLayerXP: totalXP - floor,
	}
	if layer >= MaxLayer {
		info.ProgressPercent = 100
		return info
	}
	next := LayerThresholds[layer]
	info.NextLayerXP = next
	pct := float64(totalXP-floor) / float64(next-floor) * 100
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	info.ProgressPercent = pct
	return info
}

// EffectiveLayer steps from layer 1 while both gates for the next step hold: enough XP
// and the current layer's quest completed.
func EffectiveLayer(totalXP int64, completedLayerQuests map[int]bool) int {
	layer := 1
	for layer < MaxLayer && totalXP >= LayerThresholds[layer] && completedLayerQuests[layer] {
		layer++
	}
	return layer
}

// Whistle ranks, lowest first.
const (
	WhistleBell = iota
	WhistleRed
	WhistleBlue
	WhistleMoon
	WhistleBlack
	WhistleWhite
)

var whistleNames = []string{"Bell", "Red", "Blue", "Moon", "Black", "White"}

// WhistleName returns the display name of a whistle level.
func WhistleName(level int) string {
	if level < 0 || level >= len(whistleNames) {
		return ""
	}
	return whistleNames[level]
}

// WhistleLevel maps the best grade ordinal across all skills to a whistle rank.
// Pass a negative ordinal when the user has no graded skill.
func WhistleLevel(maxOrdinal int) int {
	switch {
	case maxOrdinal >= 9:
		return WhistleWhite
	case maxOrdinal >= 7:
		return WhistleBlack
	case maxOrdinal >= 5:
		return WhistleMoon
	case maxOrdinal >= 3:
		return WhistleBlue
	case maxOrdinal >= 1:
		return WhistleRed
	default:
		return WhistleBell
	}
}

var skillLevelThresholds = []int64{0, 50, 150, 300, 500, 800, 1200, 1700, 2300, 3000}

// SkillLevel is 1..10 from accumulated skill XP.
func SkillLevel(xp int64) int {
	level := 1
	for i, threshold := range skillLevelThresholds {
		if xp >= threshold {
			level = i + 1
		}
	}
	return level
}
