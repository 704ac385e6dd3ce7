package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"messageflow-backend/internal/config"
	"messageflow-backend/internal/metrics"
	"messageflow-backend/internal/util"
)

const couponLookupLimit = 100

var (
	ErrProductConfig  = errors.New("plan has no stripe price")
	ErrCheckoutFailed = errors.New("checkout session could not be created")
)

// CheckoutSessionRequest is what the gateway sends to Stripe.
type CheckoutSessionRequest struct {
	Plan       string
	PriceID    string
	Email      string
	CouponID   string
	SuccessURL string
	CancelURL  string
	Timestamp  time.Time
}

// CheckoutSessionInfo is the part of a retrieved session the success page
// needs.
type CheckoutSessionInfo struct {
	ID            string
	PaymentStatus string
	Email         string
}

// PaymentGateway is the payment provider as seen by checkout and the success
// page.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error)
	GetCheckoutSession(ctx context.Context, id string) (*CheckoutSessionInfo, error)
	// FindCoupon returns the id of the coupon matching code case-insensitively,
	// or "" when there is none.
	FindCoupon(ctx context.Context, code string) (string, error)
}

// StripeGateway talks to the Stripe API.
type StripeGateway struct {
	sc *client.API
}

func NewStripeGateway(cfg config.StripeConfig) *StripeGateway {
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &StripeGateway{sc: client.New(cfg.SecretKey, stripe.NewBackends(httpClient))}
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{
				"plan":        req.Plan,
				"integration": "messageflow",
			},
		},
	}
	params.AddMetadata("plan", req.Plan)
	params.AddMetadata("timestamp", strconv.FormatInt(req.Timestamp.UnixMilli(), 10))
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	// Stripe rejects promotion codes together with explicit discounts.
	if req.CouponID != "" {
		params.Discounts = []*stripe.CheckoutSessionDiscountParams{{Coupon: stripe.String(req.CouponID)}}
	} else {
		params.AllowPromotionCodes = stripe.Bool(true)
	}

	session, err := g.sc.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, id string) (*CheckoutSessionInfo, error) {
	session, err := g.sc.CheckoutSessions.Get(id, &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return nil, err
	}
	info := &CheckoutSessionInfo{
		ID:            session.ID,
		PaymentStatus: string(session.PaymentStatus),
		Email:         session.CustomerEmail,
	}
	if info.Email == "" && session.CustomerDetails != nil {
		info.Email = session.CustomerDetails.Email
	}
	return info, nil
}

func (g *StripeGateway) FindCoupon(ctx context.Context, code string) (string, error) {
	params := &stripe.CouponListParams{}
	params.Context = ctx
	params.Limit = stripe.Int64(couponLookupLimit)

	iter := g.sc.Coupons.List(params)
	for seen := 0; seen < couponLookupLimit && iter.Next(); seen++ {
		if c := iter.Coupon(); strings.EqualFold(c.ID, code) {
			return c.ID, nil
		}
	}
	if err := iter.Err(); err != nil {
		return "", err
	}
	return "", nil
}

// CheckoutInput is the body of a checkout request.
type CheckoutInput struct {
	Plan         string `json:"plan"`
	Email        string `json:"email"`
	DiscountCode string `json:"discountCode"`
}

// CheckoutService starts hosted Stripe checkouts for catalog plans.
type CheckoutService struct {
	gateway PaymentGateway
	catalog config.Catalog
	domain  string
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewCheckoutService(gateway PaymentGateway, catalog config.Catalog, domain string, m *metrics.Metrics) *CheckoutService {
	if m == nil {
		m = metrics.New(nil)
	}
	return &CheckoutService{
		gateway: gateway,
		catalog: catalog,
		domain:  strings.TrimRight(domain, "/"),
		metrics: m,
		now:     time.Now,
	}
}

// Create validates in and returns the new Stripe session id.
func (s *CheckoutService) Create(ctx context.Context, in CheckoutInput) (string, error) {
	if !s.catalog.Has(in.Plan) {
		return "", ErrInvalidPlan
	}
	email := strings.TrimSpace(in.Email)
	if email != "" && !util.ValidateEmail(email) {
		return "", ErrInvalidEmail
	}
	product := s.catalog[in.Plan]
	if product.PriceID == "" {
		return "", ErrProductConfig
	}

	req := CheckoutSessionRequest{
		Plan:       in.Plan,
		PriceID:    product.PriceID,
		Email:      email,
		SuccessURL: s.domain + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.domain + "/cancel",
		Timestamp:  s.now(),
	}

	if code := strings.TrimSpace(in.DiscountCode); code != "" {
		couponID, err := s.gateway.FindCoupon(ctx, code)
		switch {
		case err != nil:
			log.Warn().Err(err).Str("code", code).Msg("Coupon lookup failed, continuing without discount")
		case couponID == "":
			log.Info().Str("code", code).Msg("Coupon not found, continuing without discount")
		default:
			req.CouponID = couponID
		}
	}

	id, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		s.metrics.CheckoutErrors.Inc()
		log.Error().Err(err).Str("plan", in.Plan).Msg("Failed to create checkout session")
		return "", fmt.Errorf("%w: %v", ErrCheckoutFailed, err)
	}

	log.Info().Str("session_id", id).Str("plan", in.Plan).Str("coupon", req.CouponID).Msg("Checkout session created")
	return id, nil
}

// Session retrieves a checkout session for the success page.
func (s *CheckoutService) Session(ctx context.Context, id string) (*CheckoutSessionInfo, error) {
	return s.gateway.GetCheckoutSession(ctx, id)
}
