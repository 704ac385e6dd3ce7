package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/service"
)

// HandleStripeWebhook receives Stripe events. The signature is computed over
// the exact request bytes, so the body is never parsed before verification.
func (h *Handler) HandleStripeWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.Request().Body()...)
	signature := c.Get("Stripe-Signature")

	result, err := h.webhooks.Process(c.UserContext(), payload, signature)
	if errors.Is(err, service.ErrInvalidSignature) {
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: " + err.Error())
	}
	if err != nil {
		// Non-2xx makes Stripe retry the delivery.
		log.Error().Err(err).Msg("Stripe webhook processing failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Webhook processing failed",
		})
	}

	return c.JSON(fiber.Map{
		"received": true,
		"status":   result.Outcome,
	})
}
