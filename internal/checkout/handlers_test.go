package checkout

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-promo/internal/promotion"
)

func postSession(t *testing.T, h *Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/checkout/session", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Start(rec, req)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error.Code
}

func TestHandlerStartReturnsSession(t *testing.T) {
	f := newFixture(enginePricer{})
	rec := postSession(t, &Handler{Svc: f.svc}, `{"items":[{"product_id":"a","name":"A","price":12.5,"qty":2}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Data struct {
			URL     string `json:"url"`
			OrderID string `json:"kk_order_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "KKO-424242", body.Data.OrderID)
	require.NotEmpty(t, body.Data.URL)
}

func TestHandlerStartErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(f fixture)
		body   string
		status int
		code   string
	}{
		{name: "malformed", body: `{`, status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "empty cart", body: `{"items":[]}`, status: http.StatusBadRequest, code: "BAD_REQUEST"},
		{name: "upstream", setup: func(f fixture) { f.sessions.err = ErrUpstream },
			body: `{"items":[{"product_id":"a","price":10,"qty":1}]}`, status: http.StatusBadGateway, code: "UPSTREAM_ERROR"},
		{name: "unavailable", setup: func(f fixture) { f.sessions.err = ErrUnavailable },
			body: `{"items":[{"product_id":"a","price":10,"qty":1}]}`, status: http.StatusServiceUnavailable, code: "UNAVAILABLE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(enginePricer{})
			if tc.setup != nil {
				tc.setup(f)
			}
			rec := postSession(t, &Handler{Svc: f.svc}, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			require.Equal(t, tc.code, errorCode(t, rec))
		})
	}
}

func TestHandlerStoreUnavailable(t *testing.T) {
	f := newFixture(enginePricer{err: promotion.ErrStoreUnavailable})
	rec := postSession(t, &Handler{Svc: f.svc}, `{"items":[{"product_id":"a","price":10,"qty":1}]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandlerCheckoutDisabled(t *testing.T) {
	rec := postSession(t, &Handler{}, `{"items":[]}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "CHECKOUT_DISABLED", errorCode(t, rec))
}
