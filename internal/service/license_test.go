package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/database"
	"messageflow-backend/internal/model"
	"messageflow-backend/internal/store"
	"messageflow-backend/internal/util"
)

const testTemplate = `<html><body>
<p id="key">{{LICENSE_KEY}}</p><p>{{LICENSE_EMAIL}}</p><p>{{PLAN}}</p>
<p>{{MAX_CONTACTS}}</p><p>{{GENERATION_DATE}}</p><p>{{LICENSE_KEY}}</p>
</body></html>`

type testEnv struct {
	licenses *LicenseService
	store    *store.FileStore
	audit    *AuditLog
	dead     *DeadLetters
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	tmpl := filepath.Join(dir, "template.html")
	require.NoError(t, os.WriteFile(tmpl, []byte(testTemplate), 0o600))

	db := database.InitTestDB(t)
	fs := store.NewFileStore(filepath.Join(dir, "licenses.json"))
	require.NoError(t, fs.Load(context.Background()))

	audit := NewAuditLog(db)
	svc := NewLicenseService(LicenseServiceDeps{
		Store:    fs,
		Catalog:  config.DefaultCatalog(config.StripeConfig{PriceIDPro: "price_pro", PriceIDBusiness: "price_business"}),
		Renderer: NewRenderer(tmpl),
		Audit:    audit,
	})
	return &testEnv{licenses: svc, store: fs, audit: audit, dead: NewDeadLetters(db)}
}

func (e *testEnv) put(t *testing.T, key string, active bool, hashed string) {
	t.Helper()
	if hashed == "" {
		hashed = util.HashLicenseKey(key)
	}
	require.NoError(t, e.store.Put(context.Background(), &model.License{
		Key:          key,
		HashedKey:    hashed,
		Plan:         "pro",
		Email:        "buyer@example.com",
		PurchaseDate: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Active:       active,
	}))
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "VALID-AAAAA-BBBBB-CCCCC", true, "")
	env.put(t, "INACT-AAAAA-BBBBB-CCCCC", false, "")
	env.put(t, "BROKE-AAAAA-BBBBB-CCCCC", true, strings.Repeat("0", 64))

	tests := []struct {
		name      string
		key       string
		wantValid bool
		wantError string
		status    string
	}{
		{name: "empty_key", key: "", wantError: "License key not provided", status: VerifyMissingKey},
		{name: "blank_key", key: "   ", wantError: "License key not provided", status: VerifyMissingKey},
		{name: "unknown_key", key: "NOPE0-NOPE0-NOPE0-NOPE0", wantError: "License not found", status: VerifyNotFound},
		{name: "inactive", key: "INACT-AAAAA-BBBBB-CCCCC", wantError: "License not active", status: VerifyInactive},
		{name: "tampered_hash", key: "BROKE-AAAAA-BBBBB-CCCCC", wantError: "License corrupted", status: VerifyCorrupted},
		{name: "valid", key: "VALID-AAAAA-BBBBB-CCCCC", wantValid: true, status: VerifyValid},
		{name: "valid_with_whitespace", key: "  VALID-AAAAA-BBBBB-CCCCC\n", wantValid: true, status: VerifyValid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := env.licenses.Verify(context.Background(), tt.key, RequestMeta{IP: "127.0.0.1"})
			assert.Equal(t, tt.wantValid, got.Valid)
			assert.Equal(t, tt.wantError, got.Error)
			assert.Equal(t, tt.status, got.Status)
			if tt.wantValid {
				assert.Equal(t, "pro", got.Plan)
				assert.Equal(t, []string{"unlimited_contacts", "no_watermark", "lifetime_updates", "email_support"}, got.Features)
				require.NotNil(t, got.PurchaseDate)
				assert.True(t, got.PurchaseDate.Equal(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)))
			} else {
				assert.Empty(t, got.Plan)
				assert.Nil(t, got.PurchaseDate)
			}
		})
	}

	usage, err := env.audit.GetUsage(context.Background(), "VALID-AAAAA-BBBBB-CCCCC", 10)
	require.NoError(t, err)
	assert.Len(t, usage, 2)
}

func TestVerifyDoesNotMutateStore(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "VALID-AAAAA-BBBBB-CCCCC", true, "")

	before, err := env.store.List(context.Background())
	require.NoError(t, err)
	env.licenses.Verify(context.Background(), "VALID-AAAAA-BBBBB-CCCCC", RequestMeta{})
	env.licenses.Verify(context.Background(), "NOPE0-NOPE0-NOPE0-NOPE0", RequestMeta{})
	after, err := env.store.List(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestIssue(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	license, err := env.licenses.Issue(ctx, IssueRequest{
		Plan:       "pro",
		Email:      "buyer@example.com",
		SessionID:  "cs_test_1",
		CustomerID: "cus_1",
		Amount:     9700,
	})
	require.NoError(t, err)

	assert.True(t, util.IsLicenseKeyFormat(license.Key))
	assert.Equal(t, util.HashLicenseKey(license.Key), license.HashedKey)
	assert.True(t, license.Active)
	assert.Equal(t, int64(9700), license.Amount)
	assert.WithinDuration(t, time.Now(), license.PurchaseDate, time.Minute)

	stored, err := env.store.Get(ctx, license.Key)
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", stored.StripeSessionID)

	logs, err := env.audit.GetTargetLogs(ctx, license.Key)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionIssue, logs[0].Action)
}

func TestIssueRejectsInvalidPurchase(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.licenses.Issue(context.Background(), IssueRequest{Plan: "enterprise", Email: "buyer@example.com"})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	_, err = env.licenses.Issue(context.Background(), IssueRequest{Plan: "pro", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	assert.Equal(t, 0, env.store.Len())
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "VALID-AAAAA-BBBBB-CCCCC", true, "")
	env.put(t, "INACT-AAAAA-BBBBB-CCCCC", false, "")
	ctx := context.Background()

	artifact, err := env.licenses.Download(ctx, "VALID-AAAAA-BBBBB-CCCCC", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "messageflow-pro-VALID-AAAAA-BBBBB-CCCCC.html", artifact.Filename)
	assert.Equal(t, "text/html; charset=utf-8", artifact.ContentType)

	content := string(artifact.Content)
	assert.Equal(t, 2, strings.Count(content, "VALID-AAAAA-BBBBB-CCCCC"))
	assert.Contains(t, content, "buyer@example.com")
	assert.Contains(t, content, "<p>PRO</p>")
	assert.Contains(t, content, "<p>Infinity</p>")
	assert.NotContains(t, content, "{{")

	_, err = env.licenses.Download(ctx, "INACT-AAAAA-BBBBB-CCCCC", RequestMeta{})
	assert.ErrorIs(t, err, ErrLicenseUnavailable)

	_, err = env.licenses.Download(ctx, "NOPE0-NOPE0-NOPE0-NOPE0", RequestMeta{})
	assert.ErrorIs(t, err, ErrLicenseUnavailable)

	logs, err := env.audit.GetTargetLogs(ctx, "VALID-AAAAA-BBBBB-CCCCC")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ActionDownload, logs[0].Action)
	assert.Equal(t, ActorPublic, logs[0].Actor)
	_, offset := logs[0].CreatedAt.Zone()
	assert.Equal(t, 0, offset)
}

func TestDownloadMissingTemplate(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "VALID-AAAAA-BBBBB-CCCCC", true, "")
	env.licenses.renderer = NewRenderer(filepath.Join(t.TempDir(), "missing.html"))

	_, err := env.licenses.Download(context.Background(), "VALID-AAAAA-BBBBB-CCCCC", RequestMeta{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrLicenseUnavailable)
}

func TestRevokeRestore(t *testing.T) {
	env := newTestEnv(t)
	env.put(t, "VALID-AAAAA-BBBBB-CCCCC", true, "")
	ctx := context.Background()

	license, err := env.licenses.Revoke(ctx, "VALID-AAAAA-BBBBB-CCCCC", ActorAdmin)
	require.NoError(t, err)
	assert.False(t, license.Active)
	assert.Equal(t, VerifyInactive, env.licenses.Verify(ctx, "VALID-AAAAA-BBBBB-CCCCC", RequestMeta{}).Status)

	license, err = env.licenses.Restore(ctx, "VALID-AAAAA-BBBBB-CCCCC", ActorAdmin)
	require.NoError(t, err)
	assert.True(t, license.Active)
	assert.True(t, env.licenses.Verify(ctx, "VALID-AAAAA-BBBBB-CCCCC", RequestMeta{}).Valid)

	_, err = env.licenses.Revoke(ctx, "NOPE0-NOPE0-NOPE0-NOPE0", ActorAdmin)
	assert.ErrorIs(t, err, store.ErrNotFound)

	logs, err := env.audit.GetTargetLogs(ctx, "VALID-AAAAA-BBBBB-CCCCC")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ActionRevoke, logs[0].Action)
	assert.Equal(t, ActionRestore, logs[1].Action)
}

type recordingLedger struct {
	appended chan string
	updated  chan string
}

func (r *recordingLedger) AppendLicense(_ context.Context, l *model.License) error {
	r.appended <- l.Key
	return nil
}

func (r *recordingLedger) UpdateLicenseStatus(_ context.Context, l *model.License) error {
	r.updated <- l.Key
	return nil
}

func TestLedgerSync(t *testing.T) {
	env := newTestEnv(t)
	ledger := &recordingLedger{appended: make(chan string, 1), updated: make(chan string, 1)}
	env.licenses.ledger = ledger
	ctx := context.Background()

	license, err := env.licenses.Issue(ctx, IssueRequest{Plan: "business", Email: "team@example.com", SessionID: "cs_1"})
	require.NoError(t, err)
	_, err = env.licenses.Revoke(ctx, license.Key, ActorCLI)
	require.NoError(t, err)
	env.licenses.Wait()

	assert.Equal(t, license.Key, <-ledger.appended)
	assert.Equal(t, license.Key, <-ledger.updated)
}
