// handlers/session_routes.go
package handlers

import (
	"climb-progression-system/middleware"
	"climb-progression-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupSessionRoutes(secured fiber.Router, deps Deps) {
	secured.Post("/sessions", func(c *fiber.Ctx) error {
		type Req struct {
			Location string `json:"location" validate:"max=255"`
			Notes    string `json:"notes" validate:"max=2000"`
		}
		var req Req
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		session, err := deps.Sessions.StartSession(c.UserContext(), middleware.UserID(c), req.Location, req.Notes)
		if err != nil {
			return writeError(c, deps.Logger, "start session", err)
		}
		return c.Status(fiber.StatusCreated).JSON(session)
	})

	secured.Get("/sessions/:id", func(c *fiber.Ctx) error {
		session, err := deps.Sessions.GetSession(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "get session", err)
		}
		return c.JSON(session)
	})

	secured.Post("/sessions/:id/pause", func(c *fiber.Ctx) error {
		session, err := deps.Sessions.PauseSession(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "pause session", err)
		}
		return c.JSON(session)
	})

	secured.Post("/sessions/:id/resume", func(c *fiber.Ctx) error {
		session, err := deps.Sessions.ResumeSession(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "resume session", err)
		}
		return c.JSON(session)
	})

	secured.Post("/sessions/:id/complete", func(c *fiber.Ctx) error {
		summary, err := deps.Sessions.CompleteSession(c.UserContext(), middleware.UserID(c), c.Params("id"))
		if err != nil {
			return writeError(c, deps.Logger, "complete session", err)
		}
		return c.JSON(summary)
	})

	secured.Post("/sessions/:id/problems", func(c *fiber.Ctx) error {
		var in services.ProblemInput
		if err := c.BodyParser(&in); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
		in.SessionID = c.Params("id")
		if ok, err := validateBody(c, &in); !ok {
			return err
		}
		outcome, err := deps.Engine.RecordCompletedProblem(c.UserContext(), middleware.UserID(c), in)
		if err != nil {
			return writeError(c, deps.Logger, "record problem", err)
		}
		return c.Status(fiber.StatusCreated).JSON(outcome)
	})
}
