package repository

import (
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/models"
)

// applyDerived overwrites the derived progression fields of user. It is the only place
// CurrentLayer and WhistleLevel are assigned.
func applyDerived(user *models.UserProgress, maxSkillOrdinal int, completedLayers map[int]bool, now time.Time) {
	previous := user.CurrentLayer
	user.CurrentLayer = gamification.EffectiveLayer(user.TotalXP, completedLayers)
	user.WhistleLevel = gamification.WhistleLevel(maxSkillOrdinal)
	if previous != 0 && user.CurrentLayer > previous {
		user.LastLayerUpAt = &now
	}
}

// ratchetSkill folds one problem into a skill record.
func ratchetSkill(skill *models.Skill, touch SkillTouch) {
	skill.TotalProblems++
	skill.XP += touch.XP
	if skill.MaxGrade == "" || touch.GradeOrdinal > skill.MaxGradeOrdinal {
		skill.MaxGrade = touch.Grade
		skill.MaxGradeOrdinal = touch.GradeOrdinal
	}
	skill.Level = gamification.SkillLevel(skill.XP)
}

func completedLayerSet(quests []models.Quest) map[int]bool {
	out := make(map[int]bool, len(quests))
	for _, q := range quests {
		if q.QuestType == models.QuestTypeLayer && q.Status == models.QuestStatusCompleted {
			out[q.Layer] = true
		}
	}
	return out
}
