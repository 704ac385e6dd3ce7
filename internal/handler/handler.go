// Package handler exposes the license services over HTTP.
package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/util"
)

type Deps struct {
	Licenses    *service.LicenseService
	Webhooks    *service.WebhookProcessor
	Checkout    *service.CheckoutService
	Statistics  *service.StatisticsService
	Audit       *service.AuditLog
	DeadLetters *service.DeadLetters
	Tokens      *util.TokenIssuer
	Admin       config.AdminConfig
	Environment string
}

// Handler holds the services the routes call into.
type Handler struct {
	licenses    *service.LicenseService
	webhooks    *service.WebhookProcessor
	checkout    *service.CheckoutService
	stats       *service.StatisticsService
	audit       *service.AuditLog
	deadLetters *service.DeadLetters
	tokens      *util.TokenIssuer
	admin       config.AdminConfig
	environment string
	now         func() time.Time
}

func New(deps Deps) *Handler {
	return &Handler{
		licenses:    deps.Licenses,
		webhooks:    deps.Webhooks,
		checkout:    deps.Checkout,
		stats:       deps.Statistics,
		audit:       deps.Audit,
		deadLetters: deps.DeadLetters,
		tokens:      deps.Tokens,
		admin:       deps.Admin,
		environment: deps.Environment,
		now:         time.Now,
	}
}

func requestMeta(c *fiber.Ctx) service.RequestMeta {
	return service.RequestMeta{
		IP:        c.IP(),
		UserAgent: c.Get(fiber.HeaderUserAgent),
	}
}

// HandleHealth reports liveness.
func (h *Handler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":      "OK",
		"timestamp":   h.now().UTC().Format(time.RFC3339Nano),
		"environment": h.environment,
	})
}
