package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/service"
)

// HandleLicenseStatistics aggregates licenses and verify traffic over a date
// range (start_date, end_date as YYYY-MM-DD, default the last 30 days).
func (h *Handler) HandleLicenseStatistics(c *fiber.Ctx) error {
	start, end, err := service.ParseDateRange(c.Query("start_date"), c.Query("end_date"), h.now())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"code":    400,
			"message": "Invalid date range",
			"errors": []fiber.Map{
				{"field": "date", "message": err.Error()},
			},
		})
	}

	stats, err := h.stats.Compute(c.UserContext(), start, end)
	if err != nil {
		log.Error().Err(err).Msg("Failed to compute statistics")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"code":    500,
			"message": "Failed to compute statistics",
		})
	}

	return c.JSON(fiber.Map{
		"code":    200,
		"message": "success",
		"data": fiber.Map{
			"statistics":   stats,
			"success_rate": stats.GetSuccessRate(),
			"start_date":   start.Format("2006-01-02"),
			"end_date":     end.Format("2006-01-02"),
		},
	})
}
