package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront-promo/internal/resilience"
)

var (
	// ErrUpstream is returned when the session function answers with an error.
	ErrUpstream = errors.New("checkout: session function failed")
	// ErrUnavailable is returned when the session function cannot be reached.
	ErrUnavailable = errors.New("checkout: session function unavailable")
)

const maxResponseBytes = 1 << 20

// Session is a created hosted checkout session.
type Session struct {
	URL     string `json:"url"`
	OrderID string `json:"kk_order_id"`
}

// SessionClient calls the hosted create-checkout-session function.
type SessionClient struct {
	HTTP     resilience.HTTPClient
	Endpoint string
	APIKey   string
}

// NewHTTPClient returns an instrumented client for the session function.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// Create posts the payload and returns the session. Retries of one checkout
// share its CheckoutID as the idempotency key.
func (c SessionClient) Create(ctx context.Context, p Payload) (Session, error) {
	endpoint := strings.TrimSpace(c.Endpoint)
	if endpoint == "" {
		return Session{}, fmt.Errorf("%w: endpoint not configured", ErrUnavailable)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return Session{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Session{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.CheckoutID != "" {
		req.Header.Set("Idempotency-Key", p.CheckoutID)
	}
	if key := strings.TrimSpace(c.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
		req.Header.Set("apikey", key)
	}

	resp, err := c.HTTP.Do(ctx, req)
	if err != nil {
		var statusErr *resilience.StatusError
		if errors.As(err, &statusErr) {
			return Session{}, fmt.Errorf("%w: %s", ErrUpstream, statusErr.Status)
		}
		if ctx.Err() != nil {
			return Session{}, ctx.Err()
		}
		return Session{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Session{}, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Error string `json:"error"`
		}
		msg := resp.Status
		if json.Unmarshal(raw, &failure) == nil && strings.TrimSpace(failure.Error) != "" {
			msg = failure.Error
		}
		return Session{}, fmt.Errorf("%w: %s", ErrUpstream, msg)
	}

	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return Session{}, fmt.Errorf("%w: decode response: %v", ErrUpstream, err)
	}
	if strings.TrimSpace(s.URL) == "" {
		return Session{}, fmt.Errorf("%w: response has no url", ErrUpstream)
	}
	if s.OrderID == "" {
		s.OrderID = p.OrderID
	}
	return s, nil
}
