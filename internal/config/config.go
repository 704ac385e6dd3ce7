package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	StoreFile     = "file"
	StoreDatabase = "database"
)

// Config is read from the environment. Variable names follow the
// deployment's .env file.
type Config struct {
	Port        int    `envconfig:"PORT" default:"3000"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	Domain      string `envconfig:"DOMAIN"`

	DataDir      string `envconfig:"DATA_DIR" default:"data"`
	LicenseStore string `envconfig:"LICENSE_STORE" default:"file"`
	LicenseFile  string `envconfig:"LICENSE_FILE"`
	DBEngine     string `envconfig:"DB_ENGINE" default:"sqlite"`
	DBPath       string `envconfig:"DB_PATH"`
	DBDSN        string `envconfig:"DB_DSN"`

	Stripe  StripeConfig
	Webhook WebhookConfig
	Admin   AdminConfig
	Sheets  SheetsConfig
	Logging LoggingConfig

	TemplatePath       string        `envconfig:"TEMPLATE_PATH" default:"templates/messageflow-pro-template.html"`
	PublicDir          string        `envconfig:"PUBLIC_DIR" default:"public"`
	CatalogFile        string        `envconfig:"CATALOG_FILE"`
	TrustedProxyHeader string        `envconfig:"TRUSTED_PROXY_HEADER" default:"X-Forwarded-For"`
	ShutdownTimeout    time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

type StripeConfig struct {
	SecretKey       string        `envconfig:"STRIPE_SECRET_KEY"`
	PriceIDPro      string        `envconfig:"STRIPE_PRICE_ID_PRO"`
	PriceIDBusiness string        `envconfig:"STRIPE_PRICE_ID_BUSINESS"`
	Timeout         time.Duration `envconfig:"STRIPE_TIMEOUT" default:"20s"`
}

type WebhookConfig struct {
	Secret    string        `envconfig:"STRIPE_WEBHOOK_SECRET"`
	Tolerance time.Duration `envconfig:"WEBHOOK_TOLERANCE" default:"5m"`
	// Dedupe makes a repeated completed-payment event for the same checkout
	// session a no-op instead of a second license.
	Dedupe bool `envconfig:"WEBHOOK_DEDUPE" default:"true"`
}

type AdminConfig struct {
	Username     string        `envconfig:"ADMIN_USERNAME" default:"admin"`
	PasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`
	JWTSecret    string        `envconfig:"JWT_SECRET"`
	JWTTTL       time.Duration `envconfig:"JWT_TTL" default:"24h"`
}

type SheetsConfig struct {
	Enabled        bool   `envconfig:"SHEETS_ENABLED" default:"false"`
	CredentialPath string `envconfig:"SHEETS_CREDENTIALS"`
	SpreadsheetID  string `envconfig:"SHEETS_SPREADSHEET_ID"`
	SheetName      string `envconfig:"SHEETS_SHEET_NAME" default:"Licenses"`
}

type LoggingConfig struct {
	Level      string `envconfig:"LOG_LEVEL" default:"info"`
	File       string `envconfig:"LOG_FILE"`
	MaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" default:"50"`
	MaxBackups int    `envconfig:"LOG_MAX_BACKUPS" default:"3"`
}

// Load reads the configuration from the environment and fills derived paths.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.LicenseStore = strings.ToLower(strings.TrimSpace(c.LicenseStore))
	c.DBEngine = strings.ToLower(strings.TrimSpace(c.DBEngine))
	c.Domain = strings.TrimRight(strings.TrimSpace(c.Domain), "/")
	if c.LicenseFile == "" {
		c.LicenseFile = filepath.Join(c.DataDir, "licenses.json")
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "messageflow.db")
	}
}

func (c *Config) validate() error {
	switch c.LicenseStore {
	case StoreFile, StoreDatabase:
	default:
		return fmt.Errorf("invalid LICENSE_STORE %q: want %q or %q", c.LicenseStore, StoreFile, StoreDatabase)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	return nil
}

// IsProduction reports whether the process runs with ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// MissingServeVars lists the variables the HTTP server cannot start without.
func (c *Config) MissingServeVars() []string {
	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Webhook.Secret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if c.Domain == "" {
		missing = append(missing, "DOMAIN")
	}
	return missing
}

// AdminEnabled reports whether the admin API can issue tokens.
func (c *Config) AdminEnabled() bool {
	return c.Admin.PasswordHash != "" && c.Admin.JWTSecret != ""
}
