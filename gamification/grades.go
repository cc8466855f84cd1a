package gamification

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GradeSystem identifies a bouldering grading scale.
type GradeSystem string

const (
	GradeSystemVScale GradeSystem = "vscale"
	GradeSystemFont   GradeSystem = "font"
	GradeSystemGerman GradeSystem = "german"
)

// MaxVGrade is the highest V-scale ordinal accepted.
const MaxVGrade = 18

var upper = cases.Upper(language.Und)

// fontTable and germanTable are indexed by V ordinal.
var fontTable = []string{
	"4", "5", "5+", "6A", "6B", "6C", "7A", "7A+", "7B",
	"7C", "7C+", "8A", "8A+", "8B", "8B+", "8C", "8C+", "9A",
}

var germanTable = []string{
	"5", "6-", "6", "6+", "7-", "7", "7+", "8-", "8",
	"8+", "9-", "9", "9+", "10-", "10", "10+", "11-", "11",
}

var reverseTables = map[GradeSystem]map[string]int{
	GradeSystemFont:   indexTable(fontTable),
	GradeSystemGerman: indexTable(germanTable),
}

func indexTable(table []string) map[string]int {
	m := make(map[string]int, len(table))
	for ordinal, token := range table {
		m[token] = ordinal
	}
	return m
}

// ParseSystem accepts the wire names plus a few common aliases.
func ParseSystem(s string) (GradeSystem, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "vscale", "v-scale", "v", "hueco":
		return GradeSystemVScale, true
	case "font", "fontainebleau", "fb":
		return GradeSystemFont, true
	case "german", "uiaa", "de":
		return GradeSystemGerman, true
	}
	return "", false
}

// Grade is a parsed grade token.
type Grade struct {
	Ordinal int
	// Modifier is +1 or -1 when the token carried a +/- suffix the scale has no exact entry for.
	Modifier int
}

// ParseGrade resolves a grade token. An exact table entry wins; otherwise a trailing
// +/- is stripped and reported as a modifier.
func ParseGrade(grade string, system GradeSystem) (Grade, bool) {
	token := upper.String(strings.TrimSpace(grade))
	if token == "" {
		return Grade{}, false
	}
	if ordinal, ok := lookup(token, system); ok {
		return Grade{Ordinal: ordinal}, true
	}

	modifier := 0
	switch token[len(token)-1] {
	case '+':
		modifier = 1
	case '-':
		modifier = -1
	default:
		return Grade{}, false
	}
	ordinal, ok := lookup(token[:len(token)-1], system)
	if !ok {
		return Grade{}, false
	}
	return Grade{Ordinal: ordinal, Modifier: modifier}, true
}

func lookup(token string, system GradeSystem) (int, bool) {
	if system == GradeSystemVScale {
		var n int
		if !strings.HasPrefix(token, "V") {
			return 0, false
		}
		if _, err := fmt.Sscanf(token, "V%d", &n); err != nil || fmt.Sprintf("V%d", n) != token {
			return 0, false
		}
		if n < 0 || n > MaxVGrade {
			return 0, false
		}
		return n, true
	}
	table, ok := reverseTables[system]
	if !ok {
		return 0, false
	}
	ordinal, ok := table[token]
	return ordinal, ok
}

// ToCanonical returns the V-scale ordinal for grade in system.
func ToCanonical(grade string, system GradeSystem) (int, bool) {
	g, ok := ParseGrade(grade, system)
	if !ok {
		return 0, false
	}
	return g.Ordinal, true
}

// FromCanonical renders a V ordinal in system. Ordinals the scale has no entry for fall
// back to the V token.
func FromCanonical(ordinal int, system GradeSystem) string {
	var table []string
	switch system {
	case GradeSystemFont:
		table = fontTable
	case GradeSystemGerman:
		table = germanTable
	}
	if ordinal >= 0 && ordinal < len(table) {
		return table[ordinal]
	}
	return fmt.Sprintf("V%d", ordinal)
}

// Convert translates a grade between systems. Unknown input is returned unchanged.
func Convert(grade string, from, to GradeSystem) string {
	ordinal, ok := ToCanonical(grade, from)
	if !ok {
		return grade
	}
	return FromCanonical(ordinal, to)
}

// VGrade is shorthand for FromCanonical(ordinal, GradeSystemVScale).
func VGrade(ordinal int) string {
	return fmt.Sprintf("V%d", ordinal)
}
