package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/metrics"
	"messageflow-backend/internal/model"
	"messageflow-backend/internal/store"
	"messageflow-backend/internal/util"
)

// Verification outcomes, also used as usage record results and metric labels.
const (
	VerifyValid      = "valid"
	VerifyMissingKey = "missing_key"
	VerifyNotFound   = "not_found"
	VerifyInactive   = "inactive"
	VerifyCorrupted  = "corrupted"
	VerifyError      = "error"
)

var (
	ErrInvalidPlan        = errors.New("invalid plan")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrLicenseUnavailable = errors.New("license not found or inactive")
)

// VerifyResult is returned to clients as is. It never carries record
// details beyond plan, features and purchase date.
type VerifyResult struct {
	Valid        bool       `json:"valid"`
	Plan         string     `json:"plan,omitempty"`
	Features     []string   `json:"features,omitempty"`
	PurchaseDate *time.Time `json:"purchaseDate,omitempty"`
	Error        string     `json:"error,omitempty"`
	Status       string     `json:"-"`
}

// LicenseLedger mirrors license changes to an external sheet.
type LicenseLedger interface {
	AppendLicense(ctx context.Context, license *model.License) error
	UpdateLicenseStatus(ctx context.Context, license *model.License) error
}

type LicenseServiceDeps struct {
	Store    store.Store
	Catalog  config.Catalog
	Renderer *Renderer
	Audit    *AuditLog
	Metrics  *metrics.Metrics
	Ledger   LicenseLedger
	KeyGen   *util.KeyGenerator
}

// LicenseService issues licenses and answers verify and download requests.
type LicenseService struct {
	store    store.Store
	catalog  config.Catalog
	renderer *Renderer
	audit    *AuditLog
	metrics  *metrics.Metrics
	ledger   LicenseLedger
	keygen   *util.KeyGenerator
	now      func() time.Time

	ledgerWG sync.WaitGroup
}

func NewLicenseService(deps LicenseServiceDeps) *LicenseService {
	keygen := deps.KeyGen
	if keygen == nil {
		keygen = util.NewKeyGenerator(nil)
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &LicenseService{
		store:    deps.Store,
		catalog:  deps.Catalog,
		renderer: deps.Renderer,
		audit:    deps.Audit,
		metrics:  m,
		ledger:   deps.Ledger,
		keygen:   keygen,
		now:      time.Now,
	}
}

func (s *LicenseService) Catalog() config.Catalog {
	return s.catalog
}

// ValidatePurchase applies the checks shared by checkout and webhook.
func (s *LicenseService) ValidatePurchase(plan, email string) error {
	if !s.catalog.Has(plan) {
		return fmt.Errorf("%w: %q", ErrInvalidPlan, plan)
	}
	if !util.ValidateEmail(email) {
		return ErrInvalidEmail
	}
	return nil
}

// IssueRequest carries what a completed checkout tells us about a purchase.
type IssueRequest struct {
	Plan       string
	Email      string
	SessionID  string
	CustomerID string
	Amount     int64
}

// Issue creates, persists and returns a new active license. The key is not
// checked for collisions.
func (s *LicenseService) Issue(ctx context.Context, req IssueRequest) (*model.License, error) {
	if err := s.ValidatePurchase(req.Plan, req.Email); err != nil {
		return nil, err
	}

	key := s.keygen.Generate()
	license := &model.License{
		Key:              key,
		HashedKey:        util.HashLicenseKey(key),
		Plan:             req.Plan,
		Email:            req.Email,
		PurchaseDate:     s.now().UTC(),
		Active:           true,
		StripeSessionID:  req.SessionID,
		StripeCustomerID: req.CustomerID,
		Amount:           req.Amount,
	}
	if err := s.store.Put(ctx, license); err != nil {
		return nil, fmt.Errorf("persist license: %w", err)
	}

	s.metrics.LicensesIssued.WithLabelValues(license.Plan).Inc()
	if err := s.audit.LogOperation(ctx, ActorWebhook, ActionIssue, key, map[string]interface{}{
		"plan":      license.Plan,
		"sessionId": license.StripeSessionID,
		"amount":    license.Amount,
	}); err != nil {
		log.Warn().Err(err).Str("license", key).Msg("Failed to write operation log")
	}
	s.syncLedger(license, false)

	log.Info().Str("license", key).Str("plan", license.Plan).Str("session", license.StripeSessionID).Msg("License issued")
	return license, nil
}

// Materialize renders the personalized download for a license.
func (s *LicenseService) Materialize(license *model.License) (*Artifact, error) {
	if s.renderer == nil {
		return nil, errors.New("artifact renderer not configured")
	}
	return s.renderer.Render(ArtifactData{
		LicenseKey:  license.Key,
		Email:       license.Email,
		Plan:        license.Plan,
		MaxContacts: s.catalog[license.Plan].MaxContacts,
	})
}

// Verify checks a candidate key. Misses are reported in the result, never as
// an error.
func (s *LicenseService) Verify(ctx context.Context, rawKey string, meta RequestMeta) VerifyResult {
	key := util.SanitizeInput(rawKey)
	if key == "" {
		return s.verified(ctx, key, meta, VerifyResult{Error: "License key not provided", Status: VerifyMissingKey})
	}

	license, err := s.store.Get(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return s.verified(ctx, key, meta, VerifyResult{Error: "License not found", Status: VerifyNotFound})
	case err != nil:
		log.Error().Err(err).Msg("License lookup failed")
		return s.verified(ctx, key, meta, VerifyResult{Error: "Server error", Status: VerifyError})
	}

	if !license.Active {
		return s.verified(ctx, key, meta, VerifyResult{Error: "License not active", Status: VerifyInactive})
	}

	// The stored digest is re-derived rather than trusted, so a damaged
	// record cannot pass.
	if util.HashLicenseKey(key) != license.HashedKey {
		log.Warn().Str("license", key).Msg("Stored license hash does not match key")
		return s.verified(ctx, key, meta, VerifyResult{Error: "License corrupted", Status: VerifyCorrupted})
	}

	purchased := license.PurchaseDate
	return s.verified(ctx, key, meta, VerifyResult{
		Valid:        true,
		Plan:         license.Plan,
		Features:     s.catalog.Features(license.Plan),
		PurchaseDate: &purchased,
		Status:       VerifyValid,
	})
}

func (s *LicenseService) verified(ctx context.Context, key string, meta RequestMeta, result VerifyResult) VerifyResult {
	s.metrics.Verifications.WithLabelValues(result.Status).Inc()
	if key != "" {
		if err := s.audit.RecordUsage(ctx, key, "verify", result.Status, meta); err != nil {
			log.Warn().Err(err).Msg("Failed to record license usage")
		}
	}
	return result
}

// Download renders the artifact for an active license. Unknown and inactive
// keys both yield ErrLicenseUnavailable.
func (s *LicenseService) Download(ctx context.Context, rawKey string, meta RequestMeta) (*Artifact, error) {
	key := util.SanitizeInput(rawKey)
	license, err := s.store.Get(ctx, key)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.metrics.Downloads.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("lookup license: %w", err)
	}
	if license == nil || !license.Active {
		s.metrics.Downloads.WithLabelValues("unavailable").Inc()
		if key != "" {
			if err := s.audit.RecordUsage(ctx, key, "download", "unavailable", meta); err != nil {
				log.Warn().Err(err).Msg("Failed to record license usage")
			}
		}
		return nil, ErrLicenseUnavailable
	}

	artifact, err := s.Materialize(license)
	if err != nil {
		s.metrics.Downloads.WithLabelValues("error").Inc()
		return nil, err
	}

	s.metrics.Downloads.WithLabelValues("ok").Inc()
	if err := s.audit.RecordUsage(ctx, key, "download", "ok", meta); err != nil {
		log.Warn().Err(err).Msg("Failed to record license usage")
	}
	if err := s.audit.LogOperation(ctx, ActorPublic, ActionDownload, key, nil); err != nil {
		log.Warn().Err(err).Msg("Failed to write operation log")
	}
	log.Info().Str("license", key).Msg("Artifact downloaded")
	return artifact, nil
}

func (s *LicenseService) Get(ctx context.Context, key string) (*model.License, error) {
	return s.store.Get(ctx, util.SanitizeInput(key))
}

func (s *LicenseService) List(ctx context.Context) ([]model.License, error) {
	return s.store.List(ctx)
}

func (s *LicenseService) FindBySession(ctx context.Context, sessionID string) (*model.License, error) {
	return s.store.FindBySession(ctx, sessionID)
}

// Revoke deactivates a license so verify and download reject it.
func (s *LicenseService) Revoke(ctx context.Context, key, actor string) (*model.License, error) {
	return s.setActive(ctx, key, actor, false)
}

// Restore re-activates a revoked license.
func (s *LicenseService) Restore(ctx context.Context, key, actor string) (*model.License, error) {
	return s.setActive(ctx, key, actor, true)
}

func (s *LicenseService) setActive(ctx context.Context, key, actor string, active bool) (*model.License, error) {
	key = util.SanitizeInput(key)
	license, err := s.store.SetActive(ctx, key, active)
	if err != nil {
		return nil, err
	}

	action := ActionRevoke
	if active {
		action = ActionRestore
	}
	if err := s.audit.LogOperation(ctx, actor, action, key, nil); err != nil {
		log.Warn().Err(err).Str("license", key).Msg("Failed to write operation log")
	}
	s.syncLedger(license, true)

	log.Info().Str("license", key).Bool("active", active).Str("actor", actor).Msg("License status changed")
	return license, nil
}

func (s *LicenseService) syncLedger(license *model.License, update bool) {
	if s.ledger == nil {
		return
	}
	snapshot := *license
	s.ledgerWG.Add(1)
	go func() {
		defer s.ledgerWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		if update {
			err = s.ledger.UpdateLicenseStatus(ctx, &snapshot)
		} else {
			err = s.ledger.AppendLicense(ctx, &snapshot)
		}
		if err != nil {
			log.Error().Err(err).Str("license", snapshot.Key).Msg("Failed to sync license to sheet")
		}
	}()
}

// Wait blocks until pending ledger writes finish.
func (s *LicenseService) Wait() {
	s.ledgerWG.Wait()
}
