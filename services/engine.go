package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"climb-progression-system/gamification"
	"climb-progression-system/messaging"
	"climb-progression-system/models"
	"climb-progression-system/repository"

	"go.uber.org/zap"
)

// ProblemInput is a problem as reported by the climber.
type ProblemInput struct {
	SessionID   string `json:"session_id" validate:"required"`
	Grade       string `json:"grade" validate:"required,max=8"`
	GradeSystem string `json:"grade_system"`
	Style       string `json:"style" validate:"max=64"`
	HoldType    string `json:"hold_type" validate:"max=32"`
	WallAngle   string `json:"wall_angle" validate:"max=32"`
	Completed   bool   `json:"completed"`
	Attempts    int    `json:"attempts" validate:"gte=0,lte=1000"`
}

// ProblemOutcome is threaded through the pipeline stages; each stage returns a new value.
type ProblemOutcome struct {
	Problem         *models.BoulderProblem     `json:"problem"`
	XPEarned        int64                      `json:"xp_earned"`
	User            *models.UserProgress       `json:"user"`
	LayerBefore     int                        `json:"layer_before"`
	LayerAfter      int                        `json:"layer_after"`
	WhistleBefore   int                        `json:"whistle_before"`
	WhistleAfter    int                        `json:"whistle_after"`
	NewAchievements []gamification.Achievement `json:"new_achievements,omitempty"`
	FoundRelic      *models.UserRelic          `json:"found_relic,omitempty"`

	system         gamification.GradeSystem
	ordinal        int
	persistedLayer int
}

// Engine records problems: validate, score, persist under the user lock, then the
// best-effort achievement, relic and event stages.
type Engine struct {
	Store        repository.Store
	Achievements *AchievementService
	Relics       *RelicService
	Events       messaging.EventPublisher
	Logger       *zap.Logger
	now          func() time.Time
}

func NewEngine(store repository.Store, achievements *AchievementService, relics *RelicService, events messaging.EventPublisher, logger *zap.Logger) *Engine {
	return &Engine{Store: store, Achievements: achievements, Relics: relics, Events: events, Logger: logger, now: time.Now}
}

// RecordCompletedProblem runs the whole pipeline for one problem. Only validation and
// persistence errors are returned; later stages log and continue.
func (e *Engine) RecordCompletedProblem(ctx context.Context, externalUserID string, in ProblemInput) (*ProblemOutcome, error) {
	out, err := e.validate(in)
	if err != nil {
		return nil, err
	}
	out = e.score(in, out)
	out, err = e.persist(ctx, externalUserID, in, out)
	if err != nil {
		return nil, err
	}
	out = e.unlockAchievements(ctx, externalUserID, out)
	out = e.rollRelic(ctx, out)
	e.emit(ctx, externalUserID, out)
	return &out, nil
}

func (e *Engine) validate(in ProblemInput) (ProblemOutcome, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return ProblemOutcome{}, fmt.Errorf("%w: session_id is required", models.ErrInvalidInput)
	}
	system := gamification.GradeSystemVScale
	if in.GradeSystem != "" {
		var ok bool
		if system, ok = gamification.ParseSystem(in.GradeSystem); !ok {
			return ProblemOutcome{}, fmt.Errorf("%w: %q", models.ErrInvalidGradeSystem, in.GradeSystem)
		}
	}
	ordinal, ok := gamification.ToCanonical(in.Grade, system)
	if !ok {
		return ProblemOutcome{}, fmt.Errorf("%w: %q in %s", models.ErrInvalidGrade, in.Grade, system)
	}
	// a missing count would otherwise score as a flash
	if in.Completed && in.Attempts < 1 {
		return ProblemOutcome{}, fmt.Errorf("%w: attempts must be at least 1 for a completed problem", models.ErrInvalidInput)
	}
	return ProblemOutcome{system: system, ordinal: ordinal}, nil
}

func (e *Engine) score(in ProblemInput, out ProblemOutcome) ProblemOutcome {
	out.XPEarned = int64(gamification.ProblemXP(in.Grade, out.system, in.Completed, in.Attempts, in.Style))
	return out
}

// persist writes the problem, session XP, skills and user XP in one locked unit.
func (e *Engine) persist(ctx context.Context, externalUserID string, in ProblemInput, out ProblemOutcome) (ProblemOutcome, error) {
	err := e.Store.WithUserLock(ctx, externalUserID, func(tx repository.Store) error {
		now := e.now()
		session, err := tx.GetSession(ctx, externalUserID, in.SessionID)
		if err != nil {
			return err
		}
		if session.Status == models.SessionStatusCompleted {
			return models.NewPolicyError(models.ReasonSessionClosed, "session is completed")
		}

		attempts := in.Attempts
		if attempts < 1 {
			attempts = 1
		}
		problem := &models.BoulderProblem{
			ExternalUserID: externalUserID,
			SessionID:      session.ID,
			Grade:          strings.TrimSpace(in.Grade),
			GradeSystem:    string(out.system),
			GradeOrdinal:   out.ordinal,
			Style:          strings.ToLower(strings.TrimSpace(in.Style)),
			HoldType:       strings.ToLower(strings.TrimSpace(in.HoldType)),
			WallAngle:      strings.ToLower(strings.TrimSpace(in.WallAngle)),
			Completed:      in.Completed,
			Attempts:       attempts,
			XPEarned:       out.XPEarned,
		}
		if err := tx.CreateProblem(ctx, problem); err != nil {
			return err
		}

		session.XPEarned += out.XPEarned
		if err := tx.SaveSession(ctx, session); err != nil {
			return err
		}

		if problem.Completed {
			for _, touch := range skillTouches(problem) {
				if _, err := tx.UpsertSkill(ctx, externalUserID, touch); err != nil {
					return err
				}
			}
		}

		change, err := awardXP(ctx, tx, e.Logger, externalUserID, out.XPEarned, SourceProblem, now)
		if err != nil {
			return err
		}
		out.Problem = problem
		out.User = change.User
		out.LayerBefore, out.LayerAfter = change.LayerBefore, change.User.CurrentLayer
		out.persistedLayer = change.User.CurrentLayer
		out.WhistleBefore, out.WhistleAfter = change.WhistleBefore, change.User.WhistleLevel
		return nil
	})
	return out, err
}

// skillTouches maps a completed problem onto the overall grade skill plus its hold, wall
// and style skills. Empty attributes are skipped.
func skillTouches(p *models.BoulderProblem) []repository.SkillTouch {
	vgrade := gamification.VGrade(p.GradeOrdinal)
	style := p.Style
	if i := strings.IndexAny(style, ", ;"); i >= 0 {
		style = style[:i]
	}
	candidates := []struct{ main, sub, kind string }{
		{"grade", "overall", "general"},
		{"hold", p.HoldType, "grip"},
		{"wall", p.WallAngle, "angle"},
		{"style", style, "movement"},
	}
	var touches []repository.SkillTouch
	for _, c := range candidates {
		if c.sub == "" {
			continue
		}
		touches = append(touches, repository.SkillTouch{
			MainCategory: c.main,
			SubCategory:  c.sub,
			SkillType:    c.kind,
			Grade:        vgrade,
			GradeOrdinal: p.GradeOrdinal,
			XP:           p.XPEarned,
		})
	}
	return touches
}

func (e *Engine) unlockAchievements(ctx context.Context, externalUserID string, out ProblemOutcome) ProblemOutcome {
	if e.Achievements == nil {
		return out
	}
	unlocked, err := e.Achievements.CheckAndUnlock(ctx, externalUserID)
	if err != nil {
		e.Logger.Warn("Achievement stage failed", zap.String("user_id", externalUserID), zap.Error(err))
		return out
	}
	out.NewAchievements = unlocked
	if len(unlocked) > 0 {
		if user, err := e.Store.GetUser(ctx, externalUserID); err == nil {
			out.User = user
			out.LayerAfter, out.WhistleAfter = user.CurrentLayer, user.WhistleLevel
		}
	}
	return out
}

func (e *Engine) rollRelic(ctx context.Context, out ProblemOutcome) ProblemOutcome {
	if e.Relics == nil || !out.Problem.Completed {
		return out
	}
	relic, err := e.Relics.RollForProblem(ctx, out.User, out.Problem)
	if err != nil {
		e.Logger.Warn("Relic stage failed", zap.String("user_id", out.User.ExternalUserID), zap.Error(err))
		return out
	}
	out.FoundRelic = relic
	return out
}

func (e *Engine) emit(ctx context.Context, externalUserID string, out ProblemOutcome) {
	now := e.now()
	publish(ctx, e.Events, e.Logger, messaging.ProgressionEvent{
		Type:       messaging.EventProblemRecorded,
		UserID:     externalUserID,
		OccurredAt: now,
		Payload: map[string]any{
			"problem_id": out.Problem.ID,
			"session_id": out.Problem.SessionID,
			"grade":      out.Problem.Grade,
			"completed":  out.Problem.Completed,
			"xp_earned":  out.XPEarned,
		},
	})
	// layer moves caused by achievement XP are published by the achievement stage
	if out.persistedLayer > out.LayerBefore {
		moved := &models.UserProgress{ExternalUserID: externalUserID, CurrentLayer: out.persistedLayer}
		publishLayerChange(ctx, e.Events, e.Logger, moved, out.LayerBefore, now)
	}
	if out.WhistleAfter > out.WhistleBefore {
		publish(ctx, e.Events, e.Logger, messaging.ProgressionEvent{
			Type:       messaging.EventWhistleEarned,
			UserID:     externalUserID,
			OccurredAt: now,
			Payload: map[string]any{
				"whistle_level": out.WhistleAfter,
				"whistle_name":  gamification.WhistleName(out.WhistleAfter),
			},
		})
	}
}

// WithClock replaces the clock; used by tests and replays.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}
