// Package server assembles the fiber application.
package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/handler"
	"messageflow-backend/internal/middleware"
	"messageflow-backend/internal/util"
)

// MaxBodySize bounds every request body, webhook included.
const MaxBodySize = 1 << 20

const rateWindow = 15 * time.Minute

type Options struct {
	Domain      string
	Production  bool
	PublicDir   string
	ProxyHeader string
	// RateLimit disables the per-IP limiters when false.
	RateLimit bool
	Registry  *prometheus.Registry
	Tokens    *util.TokenIssuer
}

// New returns an app with every route registered.
func New(h *handler.Handler, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "messageflow",
		BodyLimit:             MaxBodySize,
		ProxyHeader:           opts.ProxyHeader,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var e *fiber.Error
			if errors.As(err, &e) {
				code = e.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled error")
			}
			return c.Status(code).JSON(fiber.Map{
				"error": statusMessage(code),
			})
		},
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.RequestLogger())
	app.Use(middleware.Helmet())
	app.Use(middleware.CORS(opts.Domain, opts.Production))

	var general, checkout fiber.Handler = passThrough, passThrough
	if opts.RateLimit {
		general = middleware.RateLimit(100, rateWindow, "Too many requests, please try again later")
		checkout = middleware.RateLimit(10, rateWindow, "Too many checkout attempts, please try again later")
	}
	jsonOnly := []fiber.Handler{middleware.BodyLimit(middleware.JSONBodyLimit), middleware.RequireJSON()}

	// The webhook must see the raw body, so no JSON middleware runs before it.
	app.Post("/webhook", h.HandleStripeWebhook)
	app.Get("/health", h.HandleHealth)

	if opts.Registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	app.Post("/create-checkout-session", append([]fiber.Handler{general, checkout}, append(jsonOnly, h.HandleCreateCheckoutSession)...)...)
	app.Post("/verify-license", append([]fiber.Handler{general}, append(jsonOnly, h.HandleVerifyLicense)...)...)
	app.Get("/download/:licenseKey", general, h.HandleDownload)
	app.Get("/success", general, h.HandleSuccess)
	app.Get("/cancel", h.HandleCancel)

	api := app.Group("/api/v1", general)
	api.Post("/auth/login", append(jsonOnly, h.HandleAdminLogin)...)

	auth := middleware.Auth(opts.Tokens)
	licenses := api.Group("/licenses", auth)
	licenses.Get("/", h.HandleGetAllLicenses)
	licenses.Get("/statistics", h.HandleLicenseStatistics)
	licenses.Get("/:key", h.HandleGetLicense)
	licenses.Get("/:key/usage", h.HandleLicenseUsage)
	licenses.Put("/:key/revoke", h.HandleRevokeLicense)
	licenses.Put("/:key/restore", h.HandleRestoreLicense)

	api.Get("/dead-letters", auth, h.HandleGetDeadLetters)
	api.Put("/dead-letters/:id/resolve", auth, h.HandleResolveDeadLetter)
	api.Get("/logs", auth, h.HandleGetLogs)
	api.Get("/auth/login-logs", auth, h.HandleGetLoginLogs)

	if opts.PublicDir != "" {
		app.Static("/", opts.PublicDir)
	}

	app.Use(func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
		return c.Status(fiber.StatusNotFound).SendString("<h1>404 - Page not found</h1>")
	})

	return app
}

func passThrough(c *fiber.Ctx) error {
	return c.Next()
}

func statusMessage(code int) string {
	if code >= fiber.StatusInternalServerError {
		return "Internal server error"
	}
	return fiber.NewError(code).Message
}
