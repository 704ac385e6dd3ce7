package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/database"
	"messageflow-backend/internal/model"
	"messageflow-backend/internal/service"
	"messageflow-backend/internal/store"
	"messageflow-backend/internal/util"
)

type stubGateway struct {
	getErr error
}

func (s *stubGateway) CreateCheckoutSession(_ context.Context, req service.CheckoutSessionRequest) (string, error) {
	return "cs_test_" + req.Plan, nil
}

func (s *stubGateway) GetCheckoutSession(_ context.Context, id string) (*service.CheckoutSessionInfo, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &service.CheckoutSessionInfo{ID: id, PaymentStatus: "paid"}, nil
}

func (s *stubGateway) FindCoupon(context.Context, string) (string, error) {
	return "", nil
}

type testHandler struct {
	*Handler
	store   *store.FileStore
	gateway *stubGateway
	db      *gorm.DB
}

func newTestHandler(t *testing.T) *testHandler {
	t.Helper()

	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.html")
	require.NoError(t, os.WriteFile(tmpl, []byte("<p>{{LICENSE_KEY}} {{PLAN}}</p>"), 0o600))

	db := database.InitTestDB(t)
	fs := store.NewFileStore(filepath.Join(dir, "licenses.json"))
	catalog := config.DefaultCatalog(config.StripeConfig{PriceIDPro: "price_pro"})
	audit := service.NewAuditLog(db)
	licenses := service.NewLicenseService(service.LicenseServiceDeps{
		Store:    fs,
		Catalog:  catalog,
		Renderer: service.NewRenderer(tmpl),
		Audit:    audit,
	})
	gw := &stubGateway{}

	h := New(Deps{
		Licenses:    licenses,
		Checkout:    service.NewCheckoutService(gw, catalog, "https://shop.example.com", nil),
		Statistics:  service.NewStatisticsService(fs, audit),
		Audit:       audit,
		DeadLetters: service.NewDeadLetters(db),
		Tokens:      util.NewTokenIssuer("test-secret", time.Hour),
		Environment: "test",
	})
	return &testHandler{Handler: h, store: fs, gateway: gw, db: db}
}

func (th *testHandler) putLicense(t *testing.T, key, session string, active bool) {
	t.Helper()
	require.NoError(t, th.store.Put(context.Background(), &model.License{
		Key:             key,
		HashedKey:       util.HashLicenseKey(key),
		Plan:            "pro",
		Email:           "buyer@example.com",
		PurchaseDate:    time.Now().UTC(),
		Active:          active,
		StripeSessionID: session,
	}))
}

func TestHandleVerifyLicense(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	th.putLicense(t, "VALID-AAAAA-BBBBB-CCCCC", "cs_1", true)
	th.putLicense(t, "INACT-AAAAA-BBBBB-CCCCC", "cs_2", false)
	app.Post("/verify-license", th.HandleVerifyLicense)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantValid  bool
		wantError  string
	}{
		{name: "empty_key", body: `{"licenseKey":""}`, wantStatus: fiber.StatusOK, wantError: "License key not provided"},
		{name: "missing_key", body: `{}`, wantStatus: fiber.StatusOK, wantError: "License key not provided"},
		{name: "non_string_key", body: `{"licenseKey":12345}`, wantStatus: fiber.StatusOK, wantError: "License key not provided"},
		{name: "unknown_key", body: `{"licenseKey":"NOPE0-NOPE0-NOPE0-NOPE0"}`, wantStatus: fiber.StatusOK, wantError: "License not found"},
		{name: "inactive_key", body: `{"licenseKey":"INACT-AAAAA-BBBBB-CCCCC"}`, wantStatus: fiber.StatusOK, wantError: "License not active"},
		{name: "valid_key", body: `{"licenseKey":"VALID-AAAAA-BBBBB-CCCCC"}`, wantStatus: fiber.StatusOK, wantValid: true},
		{name: "malformed_json", body: `{"licenseKey":`, wantStatus: fiber.StatusBadRequest, wantError: "Invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("POST", "/verify-license", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.wantValid, got["valid"])
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, got["error"])
				assert.NotContains(t, got, "plan")
			} else {
				assert.Equal(t, "pro", got["plan"])
				assert.NotEmpty(t, got["features"])
				assert.NotEmpty(t, got["purchaseDate"])
			}
		})
	}
}

func TestHandleDownload(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	th.putLicense(t, "VALID-AAAAA-BBBBB-CCCCC", "cs_1", true)
	th.putLicense(t, "INACT-AAAAA-BBBBB-CCCCC", "cs_2", false)
	app.Get("/download/:licenseKey", th.HandleDownload)

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{name: "active", key: "VALID-AAAAA-BBBBB-CCCCC", wantStatus: fiber.StatusOK},
		{name: "inactive", key: "INACT-AAAAA-BBBBB-CCCCC", wantStatus: fiber.StatusNotFound},
		{name: "unknown", key: "NOPE0-NOPE0-NOPE0-NOPE0", wantStatus: fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/download/"+tt.key, nil)
			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			body, _ := io.ReadAll(resp.Body)
			if tt.wantStatus != fiber.StatusOK {
				assert.Empty(t, resp.Header.Get("Content-Disposition"))
				assert.NotContains(t, string(body), "buyer@example.com")
				return
			}
			assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
			assert.Equal(t, `attachment; filename="messageflow-pro-VALID-AAAAA-BBBBB-CCCCC.html"`, resp.Header.Get("Content-Disposition"))
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
			assert.Equal(t, "<p>VALID-AAAAA-BBBBB-CCCCC PRO</p>", string(body))
		})
	}
}

func TestHandleRevokeRestore(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	th.putLicense(t, "VALID-AAAAA-BBBBB-CCCCC", "cs_1", true)
	app.Put("/licenses/:key/revoke", th.HandleRevokeLicense)
	app.Put("/licenses/:key/restore", th.HandleRestoreLicense)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantActive bool
	}{
		{name: "revoke", path: "/licenses/VALID-AAAAA-BBBBB-CCCCC/revoke", wantStatus: fiber.StatusOK, wantActive: false},
		{name: "restore", path: "/licenses/VALID-AAAAA-BBBBB-CCCCC/restore", wantStatus: fiber.StatusOK, wantActive: true},
		{name: "unknown", path: "/licenses/NOPE0-NOPE0-NOPE0-NOPE0/revoke", wantStatus: fiber.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("PUT", tt.path, nil)
			resp, err := app.Test(req)
			assert.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantStatus == fiber.StatusOK {
				var got model.License
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
				assert.Equal(t, tt.wantActive, got.Active)
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	app := fiber.New()
	th := newTestHandler(t)
	app.Get("/health", th.HandleHealth)

	req, _ := http.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "OK", got["status"])
	assert.Equal(t, "test", got["environment"])
	_, err = time.Parse(time.RFC3339Nano, got["timestamp"])
	assert.NoError(t, err)
}
