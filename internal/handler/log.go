package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const maxPageSize = 100

func pagination(c *fiber.Ctx) (page, pageSize int) {
	page, _ = strconv.Atoi(c.Query("page", "1"))
	pageSize, _ = strconv.Atoi(c.Query("page_size", "10"))

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}

// HandleGetLogs pages through license operations.
func (h *Handler) HandleGetLogs(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	logs, total, err := h.audit.GetOperationLogs(c.UserContext(), page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}

func (h *Handler) HandleGetLoginLogs(c *fiber.Ctx) error {
	page, pageSize := pagination(c)

	logs, total, err := h.audit.GetLoginLogs(c.UserContext(), page, pageSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load login logs",
		})
	}

	return c.JSON(fiber.Map{
		"logs":  logs,
		"total": total,
		"page":  page,
	})
}
