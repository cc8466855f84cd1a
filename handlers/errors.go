// handlers/errors.go
package handlers

import (
	"errors"

	"climb-progression-system/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var validate = validator.New()

// parseBody decodes and validates a JSON request body. On failure the 400 response has
// already been written and the returned error is the one fiber should see.
func parseBody(c *fiber.Ctx, dst any) (bool, error) {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(dst); err != nil {
			return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}
	}
	return validateBody(c, dst)
}

// validateBody runs the validate tags on an already decoded request.
func validateBody(c *fiber.Ctx, dst any) (bool, error) {
	if err := validate.Struct(dst); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "validation failed",
			"cause": err.Error(),
		})
	}
	return true, nil
}

// writeError maps service errors onto HTTP statuses.
func writeError(c *fiber.Ctx, logger *zap.Logger, action string, err error) error {
	if reason, ok := models.PolicyReason(err); ok {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":  err.Error(),
			"reason": reason,
		})
	}
	switch {
	case errors.Is(err, models.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	logger.Error("request failed", zap.String("action", action), zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": action + " failed",
		"cause": err.Error(),
	})
}
