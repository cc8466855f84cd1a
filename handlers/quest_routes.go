// handlers/quest_routes.go
package handlers

import (
	"climb-progression-system/middleware"
	"climb-progression-system/models"

	"github.com/gofiber/fiber/v2"
)

var questStatuses = map[models.QuestStatus]bool{
	models.QuestStatusActive:    true,
	models.QuestStatusCompleted: true,
	models.QuestStatusDiscarded: true,
	models.QuestStatusExpired:   true,
}

func SetupQuestRoutes(secured fiber.Router, deps Deps) {
	secured.Get("/quests", func(c *fiber.Ctx) error {
		status := models.QuestStatus(c.Query("status"))
		if status != "" && !questStatuses[status] {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown quest status: " + string(status)})
		}
		quests, err := deps.Quests.ListQuests(c.UserContext(), middleware.UserID(c), status)
		if err != nil {
			return writeError(c, deps.Logger, "list quests", err)
		}
		return c.JSON(quests)
	})

	secured.Post("/quests/daily", func(c *fiber.Ctx) error {
		created, err := deps.Quests.GenerateDailyQuests(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, deps.Logger, "generate daily quests", err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": created})
	})

	secured.Post("/quests/weekly", func(c *fiber.Ctx) error {
		quest, err := deps.Quests.GenerateWeeklyQuest(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return writeError(c, deps.Logger, "generate weekly quest", err)
		}
		if quest == nil {
			return c.JSON(fiber.Map{"created": nil, "message": "weekly quest already active or on cooldown"})
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"created": quest})
	})

	secured.Post("/quests/:id/complete", func(c *fiber.Ctx) error {
		result, err := deps.Quests.CompleteQuest(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "complete quest", err)
		}
		return c.JSON(result)
	})

	secured.Post("/quests/:id/discard", func(c *fiber.Ctx) error {
		quest, err := deps.Quests.DiscardQuest(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "discard quest", err)
		}
		return c.JSON(quest)
	})
}
