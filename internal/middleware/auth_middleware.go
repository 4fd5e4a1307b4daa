package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"palaver/internal/services"
)

// UserKey is the Locals key the authenticated user document is stored under.
const UserKey = "user"

// AuthRequired is a Fiber middleware that resolves the bearer token to a full
// user document and stores it in the request Locals.
func AuthRequired(authService *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header is required",
			})
		}

		// Expected format: "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if !(len(parts) == 2 && parts[0] == "Bearer") {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Authorization header format must be 'Bearer <token>'",
			})
		}

		user, err := authService.Authorize(parts[1], "", "")
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid or expired token",
			})
		}

		c.Locals(UserKey, user)
		return c.Next()
	}
}
