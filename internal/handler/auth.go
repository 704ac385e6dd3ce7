package handler

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"messageflow-backend/internal/util"
)

type LoginInput struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required,max=72"`
}

// HandleAdminLogin exchanges the configured admin credentials for a token.
func (h *Handler) HandleAdminLogin(c *fiber.Ctx) error {
	if h.admin.PasswordHash == "" || h.tokens == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Admin access is not configured",
		})
	}

	input := new(LoginInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := util.Validator().Struct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Username and password are required",
		})
	}

	meta := requestMeta(c)
	userOK := subtle.ConstantTimeCompare([]byte(input.Username), []byte(h.admin.Username)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(h.admin.PasswordHash), []byte(input.Password))
	if !userOK || passErr != nil {
		if err := h.audit.RecordLogin(c.UserContext(), input.Username, "failed", meta); err != nil {
			log.Warn().Err(err).Msg("Failed to record login")
		}
		log.Warn().Str("username", input.Username).Str("ip", meta.IP).Msg("Admin login rejected")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid username or password",
		})
	}

	token, err := h.tokens.GenerateToken(input.Username)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to generate token",
		})
	}

	if err := h.audit.RecordLogin(c.UserContext(), input.Username, "success", meta); err != nil {
		log.Warn().Err(err).Msg("Failed to record login")
	}
	return c.JSON(fiber.Map{
		"token":    token,
		"username": input.Username,
	})
}
