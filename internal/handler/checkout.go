package handler

import (
	"bytes"
	"errors"
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/model"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/store"
	"messageflow-backend/internal/util"
)

const errorPage = "<h1>Error</h1><p>Something went wrong. Contact support@messageflow.pro</p>"

// HandleCreateCheckoutSession starts a Stripe checkout for a catalog plan.
func (h *Handler) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	input := new(service.CheckoutInput)
	if err := c.BodyParser(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	id, err := h.checkout.Create(c.UserContext(), *input)
	switch {
	case errors.Is(err, service.ErrInvalidPlan):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid plan"})
	case errors.Is(err, service.ErrInvalidEmail):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid email"})
	case errors.Is(err, service.ErrProductConfig):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid product configuration"})
	case err != nil:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Unable to create checkout session, please try again later",
		})
	}

	return c.JSON(fiber.Map{"id": id})
}

var successTemplate = template.Must(template.New("success").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Purchase complete - MessageFlow</title>
<style>
body { font-family: 'Inter', sans-serif; background: linear-gradient(135deg, #667eea, #764ba2); min-height: 100vh; display: flex; align-items: center; justify-content: center; margin: 0; }
.card { background: white; padding: 50px; border-radius: 20px; max-width: 560px; text-align: center; }
.license-key { font-family: monospace; font-size: 1.3rem; background: #f7fafc; padding: 15px; border-radius: 10px; margin: 10px 0; word-break: break-all; }
.download-btn { display: inline-block; margin-top: 20px; padding: 15px 30px; background: #667eea; color: white; border-radius: 10px; text-decoration: none; font-weight: 700; }
.warning { background: #fff3cd; color: #856404; padding: 15px; border-radius: 10px; margin-top: 20px; font-size: 0.9rem; }
</style>
</head>
<body>
<div class="card">
<h1>Payment complete!</h1>
<p>Thank you for purchasing MessageFlow Pro.</p>
{{if .License}}
<div class="license-box">
<strong>Your license key:</strong>
<div class="license-key">{{.License.Key}}</div>
<small>Keep this key somewhere safe.</small>
</div>
<a class="download-btn" href="/download/{{.License.Key}}">Download MessageFlow Pro</a>
<div class="warning"><strong>Security:</strong> this link is unique and personal. Do not share it.</div>
<p>You will also receive an email with the license and the download link.</p>
{{else}}
<p>You will receive an email with your license and the download link shortly.</p>
{{end}}
</div>
</body>
</html>
`))

const cancelPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>Payment cancelled</title>
<style>
body { font-family: 'Inter', sans-serif; background: linear-gradient(135deg, #667eea, #764ba2); min-height: 100vh; display: flex; align-items: center; justify-content: center; padding: 20px; }
.card { background: white; padding: 50px; border-radius: 20px; max-width: 500px; text-align: center; }
a { color: #667eea; text-decoration: none; font-weight: 700; }
</style>
</head>
<body>
<div class="card">
<h1>Payment cancelled</h1>
<p>No charge was made.</p>
<p><a href="/">Back to home</a></p>
</div>
</body>
</html>
`

// HandleSuccess renders the page Stripe redirects to after payment. The
// license is shown only once the webhook has issued it.
func (h *Handler) HandleSuccess(c *fiber.Ctx) error {
	sessionID := util.SanitizeInput(c.Query("session_id"))
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

	if _, err := h.checkout.Session(c.UserContext(), sessionID); err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to retrieve checkout session")
		return c.Status(fiber.StatusInternalServerError).SendString(errorPage)
	}

	var license *model.License
	found, err := h.licenses.FindBySession(c.UserContext(), sessionID)
	switch {
	case err == nil:
		license = found
	case !errors.Is(err, store.ErrNotFound):
		log.Error().Err(err).Str("session_id", sessionID).Msg("Failed to look up session license")
	}

	var buf bytes.Buffer
	if err := successTemplate.Execute(&buf, struct{ License *model.License }{license}); err != nil {
		log.Error().Err(err).Msg("Failed to render success page")
		return c.Status(fiber.StatusInternalServerError).SendString(errorPage)
	}
	return c.Send(buf.Bytes())
}

func (h *Handler) HandleCancel(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.SendString(cancelPage)
}
