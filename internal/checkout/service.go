package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-promo/internal/common"
	"github.com/noah-isme/storefront-promo/internal/events"
	"github.com/noah-isme/storefront-promo/internal/obs"
	"github.com/noah-isme/storefront-promo/internal/promotion"
)

// ErrInvalidRedirect is returned when a requested return url points at a
// host other than the configured one.
var ErrInvalidRedirect = errors.New("checkout: redirect url not allowed")

// Pricer prices a cart.
type Pricer interface {
	CartTotals(ctx context.Context, items []promotion.LineItem, code string) (promotion.CartTotals, error)
}

// SessionCreator opens a hosted checkout session.
type SessionCreator interface {
	Create(ctx context.Context, p Payload) (Session, error)
}

// Redeemer schedules promotion usage recording for a checkout. checkoutID is
// the dedup key; orderID is the shopper facing reference.
type Redeemer interface {
	EnqueueRedemption(ctx context.Context, checkoutID uuid.UUID, orderID string, promotionIDs []string) error
}

// Emitter records domain events.
type Emitter interface {
	EmitLogged(ctx context.Context, topic string, aggregateID uuid.UUID, payload any)
}

// Request is a checkout attempt from the storefront.
type Request struct {
	Items      []promotion.LineItem `json:"items" validate:"required,min=1,max=100,dive"`
	Code       string               `json:"code,omitempty" validate:"omitempty,max=64"`
	Customer   *Customer            `json:"customer,omitempty" validate:"omitempty"`
	SuccessURL string               `json:"success_url,omitempty" validate:"omitempty,url,max=2048"`
	CancelURL  string               `json:"cancel_url,omitempty" validate:"omitempty,url,max=2048"`
}

// Result is the created session alongside the totals it was priced with.
type Result struct {
	URL        string               `json:"url"`
	OrderID    string               `json:"kk_order_id"`
	CheckoutID uuid.UUID            `json:"checkout_id"`
	Totals     promotion.CartTotals `json:"totals"`
}

// Service prices a cart and hands it to the session function.
type Service struct {
	Pricer      Pricer
	Sessions    SessionCreator
	Redemptions Redeemer
	Events      Emitter
	SuccessURL  string
	CancelURL   string
	Logger      zerolog.Logger

	// NewOrderID and NewCheckoutID override id generation in tests.
	NewOrderID    func() string
	NewCheckoutID func() uuid.UUID
}

// Start creates a checkout session for req.
func (s *Service) Start(ctx context.Context, req Request) (Result, error) {
	if s == nil || s.Pricer == nil || s.Sessions == nil {
		return Result{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout").Start(ctx, "checkout.start")
	defer span.End()

	if err := common.ValidateStruct(req); err != nil {
		obs.Count(obs.CheckoutSessionTotal, string(ModeNone), "invalid")
		return Result{}, err
	}
	orderID, checkoutID := s.orderID(), s.checkoutID()
	span.SetAttributes(
		attribute.String("checkout.order_id", orderID),
		attribute.String("checkout.id", checkoutID.String()),
	)

	successURL, err := redirectURL(req.SuccessURL, s.SuccessURL)
	if err != nil {
		obs.Count(obs.CheckoutSessionTotal, string(ModeNone), "invalid")
		return Result{}, err
	}
	cancelURL, err := redirectURL(req.CancelURL, s.CancelURL)
	if err != nil {
		obs.Count(obs.CheckoutSessionTotal, string(ModeNone), "invalid")
		return Result{}, err
	}

	totals, err := s.Pricer.CartTotals(ctx, req.Items, req.Code)
	if err != nil {
		span.RecordError(err)
		obs.Count(obs.CheckoutSessionTotal, string(ModeNone), "error")
		return Result{}, fmt.Errorf("price cart: %w", err)
	}

	promo := BuildPromo(totals)
	payload := Payload{
		Items:      BuildLines(req.Items, totals),
		Promo:      promo,
		SuccessURL: withOrderID(successURL, orderID),
		CancelURL:  cancelURL,
		OrderID:    orderID,
		Customer:   req.Customer,
		CheckoutID: checkoutID.String(),
	}
	if err := payload.Validate(); err != nil {
		obs.Count(obs.CheckoutSessionTotal, string(promo.Mode), "invalid")
		return Result{}, err
	}

	session, err := s.Sessions.Create(ctx, payload)
	if err != nil {
		span.RecordError(err)
		obs.Count(obs.CheckoutSessionTotal, string(promo.Mode), "upstream_error")
		return Result{}, err
	}
	obs.Count(obs.CheckoutSessionTotal, string(promo.Mode), "ok")

	log := s.Logger.With().
		Str("order_id", session.OrderID).
		Str("checkout_id", checkoutID.String()).
		Str("mode", string(promo.Mode)).
		Logger()
	if s.Redemptions != nil {
		if err := s.Redemptions.EnqueueRedemption(ctx, checkoutID, session.OrderID, promo.AppliedIDs); err != nil {
			log.Error().Err(err).Strs("promotion_ids", promo.AppliedIDs).Msg("enqueue promotion redemption")
		}
	}
	if s.Events != nil {
		s.Events.EmitLogged(ctx, events.TopicCheckoutStarted, checkoutID, map[string]any{
			"order_id":      session.OrderID,
			"mode":          promo.Mode,
			"savings_cents": promo.SavingsCents,
			"applied_ids":   promo.AppliedIDs,
		})
	}
	log.Info().Int64("savings_cents", promo.SavingsCents).Msg("checkout session created")

	return Result{URL: session.URL, OrderID: session.OrderID, CheckoutID: checkoutID, Totals: totals}, nil
}

func (s *Service) orderID() string {
	if s.NewOrderID != nil {
		return s.NewOrderID()
	}
	return NewOrderID()
}

func (s *Service) checkoutID() uuid.UUID {
	if s.NewCheckoutID != nil {
		return s.NewCheckoutID()
	}
	return uuid.New()
}

// NewOrderID returns a short storefront order reference for display. It is
// not unique; the checkout id keys everything that must be.
func NewOrderID() string {
	return fmt.Sprintf("KKO-%06d", 100000+rand.IntN(900000))
}

// redirectURL picks the requested url, or the configured one when none was
// requested. A requested url must keep the configured scheme and host, and
// is refused outright when no url is configured.
func redirectURL(requested, configured string) (string, error) {
	requested = strings.TrimSpace(requested)
	configured = strings.TrimSpace(configured)
	if requested == "" {
		return configured, nil
	}
	if configured == "" {
		return "", fmt.Errorf("%w: no configured url to match %s", ErrInvalidRedirect, requested)
	}
	want, err := url.Parse(configured)
	if err != nil {
		return "", fmt.Errorf("%w: configured url: %v", ErrInvalidRedirect, err)
	}
	got, err := url.Parse(requested)
	if err != nil ||
		!strings.EqualFold(got.Scheme, want.Scheme) ||
		!strings.EqualFold(got.Host, want.Host) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRedirect, requested)
	}
	return requested, nil
}

func withOrderID(raw, orderID string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("oid", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}
