package handler

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/middleware"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/store"
)

const unavailablePage = "<h1>Invalid license</h1><p>Contact support@messageflow.pro</p>"

// HandleVerifyLicense answers POST /verify-license. Lookup misses are 200
// with valid=false.
func (h *Handler) HandleVerifyLicense(c *fiber.Ctx) error {
	var input struct {
		LicenseKey interface{} `json:"licenseKey"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(service.VerifyResult{Error: "Invalid request body"})
	}

	// A non-string key is treated as absent.
	key, _ := input.LicenseKey.(string)
	result := h.licenses.Verify(c.UserContext(), key, requestMeta(c))
	if result.Status == service.VerifyError {
		return c.Status(fiber.StatusInternalServerError).JSON(result)
	}
	return c.JSON(result)
}

// HandleDownload serves the personalized artifact as an attachment.
func (h *Handler) HandleDownload(c *fiber.Ctx) error {
	artifact, err := h.licenses.Download(c.UserContext(), c.Params("licenseKey"), requestMeta(c))
	if errors.Is(err, service.ErrLicenseUnavailable) {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Status(fiber.StatusNotFound).SendString(unavailablePage)
	}
	if err != nil {
		log.Error().Err(err).Msg("Download failed")
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Status(fiber.StatusInternalServerError).SendString(errorPage)
	}

	c.Set(fiber.HeaderContentType, artifact.ContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+artifact.Filename+`"`)
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	return c.Send(artifact.Content)
}

// HandleGetAllLicenses lists every license for administrators.
func (h *Handler) HandleGetAllLicenses(c *fiber.Ctx) error {
	licenses, err := h.licenses.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list licenses",
		})
	}

	return c.JSON(fiber.Map{
		"licenses": licenses,
		"total":    len(licenses),
	})
}

func (h *Handler) HandleGetLicense(c *fiber.Ctx) error {
	license, err := h.licenses.Get(c.UserContext(), c.Params("key"))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "License not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load license",
		})
	}

	logs, err := h.audit.GetTargetLogs(c.UserContext(), license.Key)
	if err != nil {
		log.Warn().Err(err).Str("license", license.Key).Msg("Failed to load license history")
	}
	return c.JSON(fiber.Map{
		"license": license,
		"history": logs,
	})
}

// HandleLicenseUsage returns the latest verify and download attempts for a key.
func (h *Handler) HandleLicenseUsage(c *fiber.Ctx) error {
	key := c.Params("key")
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	usages, err := h.audit.GetUsage(c.UserContext(), key, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load usage",
		})
	}

	return c.JSON(fiber.Map{
		"key":    key,
		"usages": usages,
	})
}

func (h *Handler) HandleRevokeLicense(c *fiber.Ctx) error {
	return h.setActive(c, false)
}

func (h *Handler) HandleRestoreLicense(c *fiber.Ctx) error {
	return h.setActive(c, true)
}

func (h *Handler) setActive(c *fiber.Ctx, active bool) error {
	change := h.licenses.Revoke
	if active {
		change = h.licenses.Restore
	}

	license, err := change(c.UserContext(), c.Params("key"), actorName(c))
	if errors.Is(err, store.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "License not found",
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update license",
		})
	}
	return c.JSON(license)
}

func actorName(c *fiber.Ctx) string {
	if name := middleware.AdminName(c); name != "" {
		return service.ActorAdmin + ":" + name
	}
	return service.ActorAdmin
}
