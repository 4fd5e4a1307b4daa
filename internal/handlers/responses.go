package handlers

import (
	"github.com/gofiber/fiber/v2"

	"palaver/internal/middleware"
	"palaver/internal/models"
)

// currentUser pulls the authenticated user out of the request Locals.
func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(middleware.UserKey).(*models.User)
	return user
}

// failErr maps one error kind to one negative result with a stable reason
// string. There is no partial-success shape: an operation either fully
// applied or failed.
func failErr(c *fiber.Ctx, err error) error {
	kind, ok := models.KindOf(err)
	if !ok {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "Internal error",
			"error":   err.Error(),
		})
	}

	status := fiber.StatusBadRequest
	switch kind {
	case models.KindInvalidUser:
		status = fiber.StatusNotFound
	case models.KindUnavailableForBots:
		status = fiber.StatusForbidden
	case models.KindUserNotInGroup, models.KindValidation:
		status = fiber.StatusBadRequest
	}

	return c.Status(status).JSON(fiber.Map{
		"kind":  kind.String(),
		"error": err.Error(),
	})
}
