package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCreateCheckoutSession(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	app.Post("/create-checkout-session", th.HandleCreateCheckoutSession)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantBody   map[string]string
	}{
		{name: "valid", body: `{"plan":"pro","email":"buyer@example.com"}`, wantStatus: fiber.StatusOK, wantBody: map[string]string{"id": "cs_test_pro"}},
		{name: "invalid_plan", body: `{"plan":"gold"}`, wantStatus: fiber.StatusBadRequest, wantBody: map[string]string{"error": "Invalid plan"}},
		{name: "invalid_email", body: `{"plan":"pro","email":"x"}`, wantStatus: fiber.StatusBadRequest, wantBody: map[string]string{"error": "Invalid email"}},
		{name: "missing_price", body: `{"plan":"business"}`, wantStatus: fiber.StatusBadRequest, wantBody: map[string]string{"error": "Invalid product configuration"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/create-checkout-session", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestHandleSuccess(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	th.putLicense(t, "VALID-AAAAA-BBBBB-CCCCC", "cs_paid", true)
	app.Get("/success", th.HandleSuccess)

	tests := []struct {
		name         string
		query        string
		gatewayErr   error
		wantStatus   int
		wantContains string
		wantMissing  string
	}{
		{name: "license_ready", query: "cs_paid", wantStatus: fiber.StatusOK, wantContains: `href="/download/VALID-AAAAA-BBBBB-CCCCC"`},
		{name: "license_pending", query: "cs_pending", wantStatus: fiber.StatusOK, wantContains: "shortly", wantMissing: "/download/"},
		{name: "stripe_error", query: "cs_paid", gatewayErr: errors.New("no such session"), wantStatus: fiber.StatusInternalServerError, wantMissing: "VALID-AAAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th.gateway.getErr = tt.gatewayErr
			req, _ := http.NewRequest("GET", "/success?session_id="+tt.query, nil)
			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			if tt.wantContains != "" {
				assert.Contains(t, string(body), tt.wantContains)
			}
			if tt.wantMissing != "" {
				assert.NotContains(t, string(body), tt.wantMissing)
			}
		})
	}
}

func TestHandleCancel(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	app.Get("/cancel", th.HandleCancel)

	req, _ := http.NewRequest("GET", "/cancel", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "No charge was made")
}
