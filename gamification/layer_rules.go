package gamification

import (
	"fmt"
	"strings"

	"climb-progression-system/models"
)

// LayerRule is the hand-authored requirement for clearing a layer. Progress is always
// recomputed from the full problem history, never incremented.
type LayerRule struct {
	Layer       int
	Title       string
	Description string
	MaxProgress int
	Progress    func(problems []models.BoulderProblem) int
}

// XPReward for clearing the layer quest.
func (r LayerRule) XPReward() int64 {
	return int64(100 * r.Layer)
}

var gripTypes = []string{"crimp", "sloper", "pinch", "jug"}

func isSteep(angle string) bool {
	a := strings.ToLower(angle)
	return a == "overhang" || a == "roof"
}

func countCompleted(problems []models.BoulderProblem, keep func(models.BoulderProblem) bool) int {
	n := 0
	for _, p := range problems {
		if p.Completed && keep(p) {
			n++
		}
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

var layerRules = []LayerRule{
	{
		Layer: 1, Title: "Edge of the Abyss", MaxProgress: 10,
		Description: "Complete 10 boulder problems of any grade.",
		Progress: func(problems []models.BoulderProblem) int {
			return minInt(countCompleted(problems, func(models.BoulderProblem) bool { return true }), 10)
		},
	},
	{
		Layer: 2, Title: "Forest of Temptation", MaxProgress: 5,
		Description: "Complete 5 problems graded V4 or harder.",
		Progress: func(problems []models.BoulderProblem) int {
			return minInt(countCompleted(problems, func(p models.BoulderProblem) bool { return p.GradeOrdinal >= 4 }), 5)
		},
	},
	{
		Layer: 3, Title: "Great Fault", MaxProgress: 8,
		Description: "Complete 2 problems at V4 or harder on each grip: crimp, sloper, pinch and jug.",
		Progress: func(problems []models.BoulderProblem) int {
			total := 0
			for _, grip := range gripTypes {
				n := countCompleted(problems, func(p models.BoulderProblem) bool {
					return p.GradeOrdinal >= 4 && strings.EqualFold(p.HoldType, grip)
				})
				total += minInt(n, 2)
			}
			return total
		},
	},
	{
		Layer: 4, Title: "Goblets of Giants", MaxProgress: 3,
		Description: "Finish 3 sessions with at least 5 completed problems each.",
		Progress: func(problems []models.BoulderProblem) int {
			perSession := make(map[string]int)
			for _, p := range problems {
				if p.Completed {
					perSession[p.SessionID]++
				}
			}
			n := 0
			for _, c := range perSession {
				if c >= 5 {
					n++
				}
			}
			return minInt(n, 3)
		},
	},
	{
		Layer: 5, Title: "Sea of Corpses", MaxProgress: 6,
		Description: "Complete 6 overhang or roof problems at V6 or harder.",
		Progress: func(problems []models.BoulderProblem) int {
			return minInt(countCompleted(problems, func(p models.BoulderProblem) bool {
				return p.GradeOrdinal >= 6 && isSteep(p.WallAngle)
			}), 6)
		},
	},
	{
		Layer: 6, Title: "Capital of the Unreturned", MaxProgress: 2,
		Description: "Climb a perfect session (5+ problems, every one flashed) and send an overhang at V7 or harder.",
		Progress: func(problems []models.BoulderProblem) int {
			progress := 0
			if hasPerfectSession(problems) {
				progress++
			}
			if countCompleted(problems, func(p models.BoulderProblem) bool {
				return p.GradeOrdinal >= 7 && isSteep(p.WallAngle)
			}) > 0 {
				progress++
			}
			return progress
		},
	},
	{
		Layer: 7, Title: "Final Maelstrom", MaxProgress: 3,
		Description: "Complete 3 problems graded V9 or harder.",
		Progress: func(problems []models.BoulderProblem) int {
			return minInt(countCompleted(problems, func(p models.BoulderProblem) bool { return p.GradeOrdinal >= 9 }), 3)
		},
	},
}

// hasPerfectSession looks for a session with at least 5 problems logged, all flashed.
func hasPerfectSession(problems []models.BoulderProblem) bool {
	type tally struct{ total, flashed int }
	sessions := make(map[string]*tally)
	for _, p := range problems {
		t, ok := sessions[p.SessionID]
		if !ok {
			t = &tally{}
			sessions[p.SessionID] = t
		}
		t.total++
		if p.Flashed() {
			t.flashed++
		}
	}
	for _, t := range sessions {
		if t.total >= 5 && t.flashed == t.total {
			return true
		}
	}
	return false
}

// LayerRuleFor returns the rule that gates leaving layer.
func LayerRuleFor(layer int) (LayerRule, error) {
	if layer < 1 || layer > len(layerRules) {
		return LayerRule{}, fmt.Errorf("%w: %d", models.ErrInvalidLayer, layer)
	}
	return layerRules[layer-1], nil
}
