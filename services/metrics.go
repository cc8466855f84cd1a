package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	xpAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_xp_awarded_total",
		Help: "Total XP awarded, by source.",
	}, []string{"source"})

	layerAdvances = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progression_layer_advances_total",
		Help: "Number of layer advancements.",
	})

	questsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_quests_generated_total",
		Help: "Quests generated, by type and source.",
	}, []string{"type", "source"})

	questsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_quests_completed_total",
		Help: "Quests completed, by type.",
	}, []string{"type"})

	questRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_quest_rejections_total",
		Help: "Quest completions or discards rejected by policy, by reason.",
	}, []string{"reason"})

	questsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progression_quests_expired_total",
		Help: "Quests moved to expired by the sweep.",
	})

	achievementsUnlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_achievements_unlocked_total",
		Help: "Achievement unlocks, by achievement id.",
	}, []string{"achievement"})

	relicsFound = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "progression_relics_found_total",
		Help: "Relic drops, by rarity.",
	}, []string{"rarity"})

	adviceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "progression_advice_fallbacks_total",
		Help: "Quest generations that fell back to the fixed quest.",
	})
)
