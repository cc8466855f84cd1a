package gamification

import (
	"math"
	"strings"
)

// baseXPByOrdinal is the base reward per V grade; ordinals past the end use the last entry.
var baseXPByOrdinal = []float64{
	5, 5, 8, 10, 12, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60, 65, 70, 75,
}

// bonusStyles earn the style multiplier.
var bonusStyles = map[string]bool{
	"technical":    true,
	"balance":      true,
	"coordination": true,
	"endurance":    true,
}

const (
	flashMultiplier      = 1.5
	fewAttemptMultiplier = 1.2
	grindMultiplier      = 0.8
	styleMultiplier      = 1.2
	gradeModifierFactor  = 0.10
)

// BaseXP returns the unmodified reward for a V ordinal.
func BaseXP(ordinal int) float64 {
	if ordinal < 0 {
		ordinal = 0
	}
	if ordinal >= len(baseXPByOrdinal) {
		return baseXPByOrdinal[len(baseXPByOrdinal)-1]
	}
	return baseXPByOrdinal[ordinal]
}

// AttemptMultiplier rewards quick sends and slightly discounts long projects.
func AttemptMultiplier(attempts int) float64 {
	if attempts < 1 {
		attempts = 1
	}
	switch {
	case attempts == 1:
		return flashMultiplier
	case attempts <= 3:
		return fewAttemptMultiplier
	case attempts > 10:
		return grindMultiplier
	default:
		return 1.0
	}
}

// StyleMultiplier looks at comma or space separated style tags.
func StyleMultiplier(style string) float64 {
	for _, tag := range strings.FieldsFunc(strings.ToLower(style), func(r rune) bool {
		return r == ',' || r == ' ' || r == ';'
	}) {
		if bonusStyles[tag] {
			return styleMultiplier
		}
	}
	return 1.0
}

// ProblemXP computes the XP for one problem. Incomplete problems earn nothing and
// unknown grades are treated as V0.
func ProblemXP(grade string, system GradeSystem, completed bool, attempts int, style string) int {
	if !completed {
		return 0
	}
	g, ok := ParseGrade(grade, system)
	if !ok {
		g = Grade{}
	}
	base := BaseXP(g.Ordinal) * (1 + gradeModifierFactor*float64(g.Modifier))
	xp := int(math.Round(base * AttemptMultiplier(attempts) * StyleMultiplier(style)))
	if xp < 1 {
		xp = 1
	}
	return xp
}

// SessionProblem is the slice of problem data the session bonus looks at.
type SessionProblem struct {
	GradeOrdinal int
	Completed    bool
	XPEarned     int64
}

// SessionBonus rewards volume, grade variety and XP per minute for a finished session.
func SessionBonus(problems []SessionProblem, durationMinutes float64) int {
	completed := 0
	grades := make(map[int]struct{})
	var problemXP int64
	for _, p := range problems {
		if !p.Completed {
			continue
		}
		completed++
		grades[p.GradeOrdinal] = struct{}{}
		problemXP += p.XPEarned
	}

	bonus := 0
	switch {
	case completed >= 10:
		bonus += 50
	case completed >= 5:
		bonus += 25
	case completed >= 3:
		bonus += 10
	}

	switch {
	case len(grades) >= 4:
		bonus += 30
	case len(grades) >= 3:
		bonus += 15
	}

	if durationMinutes > 0 {
		perMinute := float64(problemXP) / durationMinutes
		switch {
		case perMinute > 2:
			bonus += 40
		case perMinute > 1:
			bonus += 20
		}
	}
	return bonus
}
