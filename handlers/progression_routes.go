// handlers/progression_routes.go
package handlers

import (
	"strings"

	"climb-progression-system/gamification"
	"climb-progression-system/middleware"
	"climb-progression-system/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Deps bundles the services the HTTP layer talks to.
type Deps struct {
	Progression  *services.ProgressionService
	Quests       *services.QuestService
	Sessions     *services.SessionService
	Engine       *services.Engine
	Achievements *services.AchievementService
	Relics       *services.RelicService
	Logger       *zap.Logger
}

// SetupRoutes registers every route. The gateway forwards paths like
// /api/v1/climb/s/user/progress -> /user/progress.
func SetupRoutes(app *fiber.App, deps Deps) {
	// Public: gateway token only
	app.Get("/grades/convert", convertGrade)

	// 🔐 Secured: require user context (userID, roles)
	user := app.Group("/user", middleware.UserContextMiddleware(deps.Logger))
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(deps.Logger), middleware.RequireRole(middleware.RoleAdmin))

	SetupProgressionRoutes(user, admin, deps)
	SetupQuestRoutes(user, deps)
	SetupSessionRoutes(user, deps)
}

func SetupProgressionRoutes(secured, admin fiber.Router, deps Deps) {
	secured.Get("/progress", func(c *fiber.Ctx) error {
		snap, err := deps.Progression.GetLayerProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, deps.Logger, "get progress", err)
		}
		return c.JSON(snap)
	})

	secured.Post("/progress/advance", func(c *fiber.Ctx) error {
		result, err := deps.Progression.AdvanceLayer(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, deps.Logger, "advance layer", err)
		}
		return c.JSON(result)
	})

	secured.Get("/achievements", func(c *fiber.Ctx) error {
		views, err := deps.Achievements.ListAchievements(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, deps.Logger, "list achievements", err)
		}
		return c.JSON(views)
	})

	secured.Get("/relics", func(c *fiber.Ctx) error {
		relics, err := deps.Relics.ListRelics(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, deps.Logger, "list relics", err)
		}
		return c.JSON(relics)
	})

	// Admin endpoints
	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		type Req struct {
			UserID string `json:"user_id" validate:"required,max=128"`
			XP     int64  `json:"xp" validate:"required,min=1"`
			Reason string `json:"reason" validate:"max=255"`
		}
		var req Req
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		user, err := deps.Progression.GrantXP(c.UserContext(), req.UserID, req.XP, req.Reason)
		if err != nil {
			return writeError(c, deps.Logger, "XP award", err)
		}
		deps.Logger.Info("admin XP grant",
			zap.String("admin_id", middleware.UserID(c)),
			zap.String("user_id", req.UserID),
			zap.Int64("xp", req.XP),
			zap.String("reason", req.Reason))
		return c.JSON(fiber.Map{
			"message": "XP granted successfully",
			"user_id": req.UserID,
			"xp":      req.XP,
			"user":    user,
		})
	})

	admin.Post("/users/:id/reset", func(c *fiber.Ctx) error {
		user, err := deps.Progression.ResetProgress(c.UserContext(), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "reset progress", err)
		}
		return c.JSON(user)
	})

	admin.Post("/quests/expire", func(c *fiber.Ctx) error {
		n, err := deps.Quests.ExpireOverdue(c.UserContext())
		if err != nil {
			return writeError(c, deps.Logger, "expire quests", err)
		}
		return c.JSON(fiber.Map{"expired": n})
	})
}

// convertGrade handles GET /grades/convert?grade=6C&from=font&to=vscale.
func convertGrade(c *fiber.Ctx) error {
	grade := strings.TrimSpace(c.Query("grade"))
	if grade == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "grade is required"})
	}
	from, ok := gamification.ParseSystem(c.Query("from", string(gamification.GradeSystemVScale)))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown grade system: " + c.Query("from")})
	}
	to, ok := gamification.ParseSystem(c.Query("to", string(gamification.GradeSystemVScale)))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown grade system: " + c.Query("to")})
	}
	ordinal, ok := gamification.ToCanonical(grade, from)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown grade " + grade + " for system " + string(from)})
	}
	return c.JSON(fiber.Map{
		"grade":   grade,
		"from":    from,
		"to":      to,
		"result":  gamification.FromCanonical(ordinal, to),
		"ordinal": ordinal,
	})
}
