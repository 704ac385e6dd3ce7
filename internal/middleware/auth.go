package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"messageflow-backend/internal/util"
)

// LocalAdmin is the Locals key holding the authenticated admin username.
const LocalAdmin = "admin"

// Auth admits requests carrying a valid admin bearer token.
func Auth(tokens *util.TokenIssuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization token",
			})
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || tokenParts[0] != "Bearer" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization format",
			})
		}

		username, err := tokens.ValidateToken(tokenParts[1])
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization token",
			})
		}

		c.Locals(LocalAdmin, username)
		return c.Next()
	}
}

// AdminName returns the username stored by Auth, or "".
func AdminName(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalAdmin).(string)
	return name
}
