package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"messageflow-backend/internal/metrics"
	"messageflow-backend/internal/model"
	"messageflow-backend/internal/store"
)

const eventCheckoutCompleted = "checkout.session.completed"

// Webhook outcomes reported to Stripe and counted in metrics.
const (
	OutcomeIssued       = "issued"
	OutcomeIgnored      = "ignored"
	OutcomeDuplicate    = "duplicate"
	OutcomeDeadLettered = "dead_lettered"
)

var ErrInvalidSignature = errors.New("invalid stripe signature")

// WebhookResult describes how one verified event was handled.
type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   string
	License   *model.License
}

type checkoutSession struct {
	ID              string `json:"id"`
	Customer        string `json:"customer"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	AmountTotal int64             `json:"amount_total"`
	Metadata    map[string]string `json:"metadata"`
}

func (s checkoutSession) email() string {
	if email := strings.TrimSpace(s.CustomerEmail); email != "" {
		return email
	}
	return strings.TrimSpace(s.CustomerDetails.Email)
}

type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
	Dedupe    bool
}

// WebhookProcessor turns verified Stripe deliveries into licenses.
type WebhookProcessor struct {
	cfg         WebhookConfig
	licenses    *LicenseService
	deadLetters *DeadLetters
	metrics     *metrics.Metrics

	// issueMu serializes the session lookup and the insert when deduping.
	issueMu sync.Mutex
}

func NewWebhookProcessor(cfg WebhookConfig, licenses *LicenseService, deadLetters *DeadLetters, m *metrics.Metrics) *WebhookProcessor {
	if m == nil {
		m = licenses.metrics
	}
	return &WebhookProcessor{
		cfg:         cfg,
		licenses:    licenses,
		deadLetters: deadLetters,
		metrics:     m,
	}
}

// Process verifies and handles one delivery. Only signature failures and
// storage failures are returned as errors; every other verified event is
// acknowledged.
func (p *WebhookProcessor) Process(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.cfg.Secret, webhook.ConstructEventOptions{
		Tolerance:                p.cfg.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		p.metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		log.Warn().Err(err).Msg("Stripe webhook signature verification failed")
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	result, err := p.handle(ctx, &event, payload)
	if err != nil {
		p.metrics.WebhookEvents.WithLabelValues(string(event.Type), "error").Inc()
		return nil, err
	}
	p.metrics.WebhookEvents.WithLabelValues(result.EventType, result.Outcome).Inc()
	return result, nil
}

func (p *WebhookProcessor) handle(ctx context.Context, event *stripe.Event, payload []byte) (*WebhookResult, error) {
	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}

	if event.Type != eventCheckoutCompleted {
		log.Debug().Str("type", result.EventType).Str("event_id", event.ID).Msg("Stripe webhook ignored (unhandled type)")
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	var session checkoutSession
	if event.Data == nil || json.Unmarshal(event.Data.Raw, &session) != nil {
		p.deadLetter(ctx, event, "", "undecodable checkout session", payload)
		result.Outcome = OutcomeDeadLettered
		return result, nil
	}

	plan := session.Metadata["plan"]
	email := session.email()
	if err := p.licenses.ValidatePurchase(plan, email); err != nil {
		log.Error().Err(err).
			Str("event_id", event.ID).
			Str("session_id", session.ID).
			Str("plan", plan).
			Msg("Completed checkout failed validation, no license issued")
		p.deadLetter(ctx, event, session.ID, err.Error(), payload)
		result.Outcome = OutcomeDeadLettered
		return result, nil
	}

	license, duplicate, err := p.issue(ctx, IssueRequest{
		Plan:       plan,
		Email:      email,
		SessionID:  session.ID,
		CustomerID: session.Customer,
		Amount:     session.AmountTotal,
	})
	if err != nil {
		return nil, err
	}
	result.License = license
	if duplicate {
		log.Info().Str("event_id", event.ID).Str("session_id", session.ID).Str("license", license.Key).
			Msg("Checkout session already has a license, skipping")
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	// The download is rendered on demand as well, so a failure here only
	// costs the early check of the template.
	if _, err := p.licenses.Materialize(license); err != nil {
		log.Error().Err(err).Str("license", license.Key).Msg("Failed to render license artifact")
	}

	result.Outcome = OutcomeIssued
	return result, nil
}

func (p *WebhookProcessor) issue(ctx context.Context, req IssueRequest) (*model.License, bool, error) {
	if !p.cfg.Dedupe || req.SessionID == "" {
		license, err := p.licenses.Issue(ctx, req)
		return license, false, err
	}

	p.issueMu.Lock()
	defer p.issueMu.Unlock()

	existing, err := p.licenses.FindBySession(ctx, req.SessionID)
	switch {
	case err == nil:
		return existing, true, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, fmt.Errorf("lookup session license: %w", err)
	}

	license, err := p.licenses.Issue(ctx, req)
	return license, false, err
}

func (p *WebhookProcessor) deadLetter(ctx context.Context, event *stripe.Event, sessionID, reason string, payload []byte) {
	entry := &model.DeadLetter{
		EventID:   event.ID,
		EventType: string(event.Type),
		SessionID: sessionID,
		Reason:    reason,
		Payload:   string(payload),
	}
	if err := p.deadLetters.Add(ctx, entry); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Str("reason", reason).Msg("Failed to record dead letter")
	}
}
