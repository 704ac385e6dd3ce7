package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_DIR", "var/data")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("DOMAIN", "https://shop.example.com/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, StoreFile, cfg.LicenseStore)
	assert.Equal(t, filepath.Join("var/data", "licenses.json"), cfg.LicenseFile)
	assert.Equal(t, filepath.Join("var/data", "messageflow.db"), cfg.DBPath)
	assert.Equal(t, "https://shop.example.com", cfg.Domain)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_123", cfg.Webhook.Secret)
	assert.Equal(t, 5*time.Minute, cfg.Webhook.Tolerance)
	assert.True(t, cfg.Webhook.Dedupe)
	assert.Empty(t, cfg.MissingServeVars())
	assert.False(t, cfg.AdminEnabled())
}

func TestMissingServeVars(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "all_missing",
			cfg:  Config{},
			want: []string{"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "DOMAIN"},
		},
		{
			name: "domain_missing",
			cfg: Config{
				Stripe:  StripeConfig{SecretKey: "sk"},
				Webhook: WebhookConfig{Secret: "whsec"},
			},
			want: []string{"DOMAIN"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.MissingServeVars())
		})
	}
}

func TestLoadRejectsUnknownStore(t *testing.T) {
	t.Setenv("LICENSE_STORE", "redis")

	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultCatalog(t *testing.T) {
	catalog := DefaultCatalog(StripeConfig{PriceIDPro: "price_pro"})

	assert.Equal(t, []string{"business", "pro"}, catalog.Plans())
	assert.True(t, catalog.Has("pro"))
	assert.False(t, catalog.Has("enterprise"))
	assert.Equal(t, "price_pro", catalog["pro"].PriceID)
	assert.Contains(t, catalog.Features("business"), "white_label")
	assert.Nil(t, catalog.Features("enterprise"))
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := `plans:
  pro:
    name: MessageFlow Pro
    price: 7900
    features: [unlimited_contacts, email_support]
    seats: 1
  team:
    name: MessageFlow Team
    price: 14900
    price_id: price_team
    features: [unlimited_contacts, shared_inbox]
    seats: 3
    max_contacts: "10000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	catalog, err := LoadCatalog(path, StripeConfig{PriceIDPro: "price_pro_env"})
	require.NoError(t, err)

	assert.Equal(t, []string{"pro", "team"}, catalog.Plans())
	assert.Equal(t, int64(7900), catalog["pro"].Price)
	assert.Equal(t, "price_pro_env", catalog["pro"].PriceID)
	assert.Equal(t, "Infinity", catalog["pro"].MaxContacts)
	assert.Equal(t, "price_team", catalog["team"].PriceID)
	assert.Equal(t, "10000", catalog["team"].MaxContacts)
}

func TestLoadCatalogErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("plans: {}\n"), 0o600))
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("plans: [\n"), 0o600))

	for _, path := range []string{filepath.Join(dir, "missing.yaml"), empty, broken} {
		_, err := LoadCatalog(path, StripeConfig{})
		assert.Error(t, err, path)
	}
}
