package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"messageflow-backend/internal/service"
)

// HandleGetDeadLetters lists unresolved dead letters, or all with ?all=true.
func (h *Handler) HandleGetDeadLetters(c *fiber.Ctx) error {
	entries, err := h.deadLetters.List(c.UserContext(), c.QueryBool("all", false))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load dead letters",
		})
	}

	return c.JSON(fiber.Map{
		"deadLetters": entries,
		"total":       len(entries),
	})
}

func (h *Handler) HandleResolveDeadLetter(c *fiber.Ctx) error {
	entry, err := h.deadLetters.Resolve(c.UserContext(), c.Params("id"))
	if errors.Is(err, service.ErrDeadLetterNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Dead letter not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve dead letter",
		})
	}
	return c.JSON(entry)
}
