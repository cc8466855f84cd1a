package services

import (
	"math/rand/v2"

	"climb-progression-system/gamification"
)

// globalRandom uses the auto-seeded, goroutine-safe top level source.
type globalRandom struct{}

func (globalRandom) Float64() float64 { return rand.Float64() }
func (globalRandom) Intn(n int) int   { return rand.IntN(n) }

// DefaultRandom is the production draw source for relic rolls and quest picks.
var DefaultRandom gamification.Random = globalRandom{}

// shuffleThemes returns themes in random order.
func shuffleThemes(rng gamification.Random, themes []gamification.Theme) []gamification.Theme {
	out := make([]gamification.Theme, len(themes))
	copy(out, themes)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
